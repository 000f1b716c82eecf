package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-rent-payments/app/confirmation"
	"github.com/vibast-solutions/ms-go-rent-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rent-payments/app/gateway"
)

type handleGatewayCallbackRequest interface {
	GetGateway() string
	GetCallbackHash() string
	GetPayload() string
}

func (s *PaymentService) HandleGatewayCallback(ctx context.Context, req handleGatewayCallbackRequest) (*entity.Payment, error) {
	gw, err := s.gateways.Get(req.GetGateway())
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayNotSupported) {
			return nil, ErrGatewayUnsupported
		}
		return nil, err
	}

	parser, ok := gw.(gateway.CallbackParser)
	if !ok {
		s.persistRejectedCallback(ctx, nil, nil, req, "gateway does not send callbacks")
		return nil, ErrGatewayUnsupported
	}

	payload := []byte(req.GetPayload())
	event, err := parser.ParseCallback(ctx, payload)
	if err != nil {
		s.persistRejectedCallback(ctx, nil, nil, req, fmt.Sprintf("gateway callback could not be parsed: %v", err))
		return nil, ErrCallbackRejected
	}

	callbackHash := strings.TrimSpace(req.GetCallbackHash())
	found, err := s.paymentRepo.FindByCallbackHash(ctx, gw.Code(), callbackHash)
	if err != nil {
		return nil, err
	}
	if found == nil {
		s.persistRejectedCallback(ctx, nil, event, req, "payment not found for callback hash")
		return nil, ErrPaymentNotFound
	}

	var rejectReason string
	payment, err := s.transition(ctx, found.ID, func(p *entity.Payment, now time.Time) (*entity.PaymentEvent, error) {
		if p.CheckoutRequestID == nil || *p.CheckoutRequestID != event.RequestID {
			rejectReason = "checkout request id does not match payment"
			return nil, ErrCallbackRejected
		}
		if terminalStatus(p.Status) {
			return nil, nil
		}

		status, ok := statusFromObserved(confirmation.Classify(event.Status))
		if !ok {
			return nil, nil
		}

		oldStatus := p.Status
		s.resolve(p, status, resolution{
			receipt: event.ReceiptReference,
			amount:  event.ConfirmedAmount,
			reason:  event.ResultDesc,
		}, now)

		gatewayRef := event.RequestID
		payloadJSON := string(payload)
		return &entity.PaymentEvent{
			EventType:   "gateway_callback",
			OldStatus:   &oldStatus,
			NewStatus:   p.Status,
			GatewayRef:  &gatewayRef,
			PayloadJSON: &payloadJSON,
		}, nil
	})
	if err != nil {
		if errors.Is(err, ErrCallbackRejected) {
			paymentID := found.ID
			s.persistRejectedCallback(ctx, &paymentID, event, req, rejectReason)
		}
		return nil, err
	}

	if terminalStatus(payment.Status) {
		s.runs.stop(payment.ID, errCallbackResolved)
	}

	now := s.now().UTC()
	paymentID := payment.ID
	if err := s.callbackRepo.Create(ctx, &entity.PaymentCallback{
		PaymentID:         &paymentID,
		Gateway:           gw.Code(),
		CallbackHash:      callbackHash,
		CheckoutRequestID: normalizeOptionalString(event.RequestID),
		ResultCode:        normalizeOptionalString(event.ResultCode),
		PayloadJSON:       string(payload),
		Status:            entity.PaymentCallbackProcessed,
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		return nil, err
	}

	return payment, nil
}

func (s *PaymentService) persistRejectedCallback(
	ctx context.Context,
	paymentID *uint64,
	event *gateway.CallbackEvent,
	req handleGatewayCallbackRequest,
	reason string,
) {
	now := s.now().UTC()
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "callback rejected"
	}
	trimmedErr := truncate(reason, 1024)

	callback := &entity.PaymentCallback{
		PaymentID:    paymentID,
		Gateway:      strings.ToLower(strings.TrimSpace(req.GetGateway())),
		CallbackHash: strings.TrimSpace(req.GetCallbackHash()),
		PayloadJSON:  req.GetPayload(),
		Status:       entity.PaymentCallbackRejected,
		Error:        &trimmedErr,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if event != nil {
		callback.CheckoutRequestID = normalizeOptionalString(event.RequestID)
		callback.ResultCode = normalizeOptionalString(event.ResultCode)
	}

	if err := s.callbackRepo.Create(ctx, callback); err != nil {
		s.logger.WithError(err).WithField("callback_hash", callback.CallbackHash).Warn("Failed to store rejected callback")
	}
}
