package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-rent-payments/app/confirmation"
	"github.com/vibast-solutions/ms-go-rent-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rent-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-rent-payments/app/types"
)

func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	now := s.now().UTC()
	before := now.Add(-s.paymentsCfg.ReconcileStaleAfter)
	items, err := s.paymentRepo.ListForReconcile(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil || payment.CheckoutRequestID == nil || strings.TrimSpace(*payment.CheckoutRequestID) == "" {
			continue
		}
		if s.runs.running(payment.ID) {
			continue
		}
		if err := s.reconcilePayment(ctx, payment); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *PaymentService) reconcilePayment(ctx context.Context, payment *entity.Payment) error {
	gw, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return err
	}

	checkoutID := strings.TrimSpace(*payment.CheckoutRequestID)
	callCtx, cancel := context.WithTimeout(ctx, s.coordinatorFor(gw).Policy().CallTimeout)
	defer cancel()

	result, err := gw.GetPaymentStatus(callCtx, checkoutID)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	status, ok := statusFromObserved(confirmation.Classify(result.Status))
	if !ok {
		return nil
	}

	_, err = s.transition(ctx, payment.ID, func(p *entity.Payment, now time.Time) (*entity.PaymentEvent, error) {
		if terminalStatus(p.Status) {
			return nil, nil
		}

		oldStatus := p.Status
		p.PollAttempts++
		s.resolve(p, status, resolution{
			receipt: result.ReceiptReference,
			amount:  result.ConfirmedAmount,
			reason:  result.FailureReason,
		}, now)

		return &entity.PaymentEvent{
			EventType:  "payment_reconciled",
			OldStatus:  &oldStatus,
			NewStatus:  p.Status,
			GatewayRef: &checkoutID,
		}, nil
	})
	return err
}

func (s *PaymentService) RunDispatchCallbacksBatch(ctx context.Context) error {
	now := s.now().UTC()
	items, err := s.paymentRepo.ListDueCallbackDispatch(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil {
			continue
		}
		if err := s.dispatchCallback(ctx, payment); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	now := s.now().UTC()
	cutoff := now.Add(-s.paymentsCfg.PendingTimeout)
	items, err := s.paymentRepo.ListExpiredPending(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil || s.runs.running(payment.ID) {
			continue
		}

		_, err := s.transition(ctx, payment.ID, func(p *entity.Payment, now time.Time) (*entity.PaymentEvent, error) {
			if terminalStatus(p.Status) {
				return nil, nil
			}
			oldStatus := p.Status
			s.resolve(p, types.PaymentStatusExpired, resolution{}, now)
			return &entity.PaymentEvent{
				EventType: "payment_expired",
				OldStatus: &oldStatus,
				NewStatus: p.Status,
			}, nil
		})
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// dispatchCallback posts the payment to the caller's status callback URL and
// records the delivery result. If the payment moved to another status while
// the request was in flight, the delivery scheduled for that newer status is
// left alone.
func (s *PaymentService) dispatchCallback(ctx context.Context, payment *entity.Payment) error {
	sentStatus := payment.Status

	if strings.TrimSpace(payment.StatusCallbackURL) == "" {
		_, err := s.recordDelivery(ctx, payment.ID, sentStatus, func(p *entity.Payment, _ time.Time) string {
			errMsg := "status_callback_url is empty"
			p.CallbackDeliveryStatus = entity.CallbackDeliveryFailed
			p.CallbackDeliveryNextAt = nil
			p.CallbackDeliveryLastErr = &errMsg
			return "callback_dispatch_failed"
		})
		return err
	}

	dispatchErr := s.postCallback(ctx, payment)
	if dispatchErr == nil {
		_, err := s.recordDelivery(ctx, payment.ID, sentStatus, func(p *entity.Payment, _ time.Time) string {
			p.CallbackDeliveryStatus = entity.CallbackDeliverySuccess
			p.CallbackDeliveryNextAt = nil
			p.CallbackDeliveryLastErr = nil
			return "callback_dispatched"
		})
		return err
	}

	_, err := s.recordDelivery(ctx, payment.ID, sentStatus, func(p *entity.Payment, now time.Time) string {
		s.recordDispatchFailure(p, now, dispatchErr)
		return "callback_dispatch_failed"
	})
	if err != nil {
		return err
	}
	return dispatchErr
}

func (s *PaymentService) postCallback(ctx context.Context, payment *entity.Payment) error {
	payload := &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(payment)}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payment.StatusCallbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", payment.RequestID)
	if s.appAPIKey != "" {
		req.Header.Set("X-API-Key", s.appAPIKey)
	}

	resp, err := s.callbackHTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback endpoint returned status=%d", resp.StatusCode)
	}
	return nil
}

func (s *PaymentService) recordDelivery(
	ctx context.Context,
	id uint64,
	sentStatus int32,
	apply func(p *entity.Payment, now time.Time) string,
) (*entity.Payment, error) {
	return s.transition(ctx, id, func(p *entity.Payment, now time.Time) (*entity.PaymentEvent, error) {
		if p.Status != sentStatus {
			return nil, nil
		}
		eventType := apply(p, now)
		return &entity.PaymentEvent{
			EventType: eventType,
			NewStatus: p.Status,
		}, nil
	})
}

func (s *PaymentService) recordDispatchFailure(payment *entity.Payment, now time.Time, dispatchErr error) {
	payment.CallbackDeliveryAttempts++
	trimmed := truncate(dispatchErr.Error(), 1024)
	payment.CallbackDeliveryLastErr = &trimmed

	maxAttempts := s.paymentsCfg.CallbackMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if payment.CallbackDeliveryAttempts >= maxAttempts {
		payment.CallbackDeliveryStatus = entity.CallbackDeliveryFailed
		payment.CallbackDeliveryNextAt = nil
		return
	}

	retryInterval := s.paymentsCfg.CallbackRetryInterval
	if retryInterval <= 0 {
		retryInterval = 5 * time.Minute
	}
	next := now.Add(retryInterval)
	payment.CallbackDeliveryStatus = entity.CallbackDeliveryPending
	payment.CallbackDeliveryNextAt = &next
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
