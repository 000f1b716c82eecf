package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rent-payments/app/confirmation"
	"github.com/vibast-solutions/ms-go-rent-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rent-payments/app/factory"
	"github.com/vibast-solutions/ms-go-rent-payments/app/gateway"
	"github.com/vibast-solutions/ms-go-rent-payments/app/repository"
	"github.com/vibast-solutions/ms-go-rent-payments/app/types"
	"github.com/vibast-solutions/ms-go-rent-payments/config"
)

const (
	defaultListLimit = int32(100)
	defaultBatchSize = int32(100)
	defaultCurrency  = "KES"
)

type createPaymentRequest interface {
	GetRequestId() string
	GetCallerService() string
	GetPayerPhoneNumber() string
	GetAmount() decimal.Decimal
	GetUnitReference() string
	GetBillingPeriod() string
	GetNarrative() string
	GetGateway() string
	GetStatusCallbackUrl() string
	GetMetadata() map[string]string
}

type listPaymentsRequest interface {
	GetRequestId() string
	GetCallerService() string
	GetUnitReference() string
	GetBillingPeriod() string
	GetHasStatus() bool
	GetStatus() types.PaymentStatus
	GetGateway() string
	GetLimit() int32
	GetOffset() int32
}

type cancelPaymentRequest interface {
	GetId() uint64
	GetReason() string
}

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uint64) (*entity.Payment, error)
	FindByCallerRequestID(ctx context.Context, callerService, requestID string) (*entity.Payment, error)
	FindByCallbackHash(ctx context.Context, gateway, callbackHash string) (*entity.Payment, error)
	List(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error)
	ListDueCallbackDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error)
	ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error)
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
	ListByPaymentID(ctx context.Context, paymentID uint64) ([]*entity.PaymentEvent, error)
}

type paymentCallbackRepository interface {
	Create(ctx context.Context, callback *entity.PaymentCallback) error
}

type PaymentService struct {
	paymentRepo  paymentRepository
	eventRepo    paymentEventRepository
	callbackRepo paymentCallbackRepository
	gateways     *gateway.Registry
	policy       confirmation.Policy
	paymentsCfg  config.PaymentsConfig
	appAPIKey    string
	callbackHTTP *http.Client
	logger       logrus.FieldLogger
	now          func() time.Time

	coordinatorOpts []confirmation.Option
	coordMu         sync.Mutex
	coordinators    map[string]*confirmation.Coordinator

	// transitionMu serializes read-modify-write cycles on payment records
	// between requests, callbacks, jobs and background confirmation runs.
	transitionMu sync.Mutex

	runs *runTracker
}

func NewPaymentService(
	paymentRepo paymentRepository,
	eventRepo paymentEventRepository,
	callbackRepo paymentCallbackRepository,
	gateways *gateway.Registry,
	policy confirmation.Policy,
	paymentsCfg config.PaymentsConfig,
	appAPIKey string,
	coordinatorOpts ...confirmation.Option,
) *PaymentService {
	timeout := paymentsCfg.CallbackHTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PaymentService{
		paymentRepo:     paymentRepo,
		eventRepo:       eventRepo,
		callbackRepo:    callbackRepo,
		gateways:        gateways,
		policy:          policy,
		paymentsCfg:     paymentsCfg,
		appAPIKey:       strings.TrimSpace(appAPIKey),
		callbackHTTP:    &http.Client{Timeout: timeout},
		logger:          factory.NewModuleLogger("payments-service"),
		now:             time.Now,
		coordinatorOpts: coordinatorOpts,
		coordinators:    map[string]*confirmation.Coordinator{},
		runs:            newRunTracker(),
	}
}

func (s *PaymentService) CreatePayment(ctx context.Context, req createPaymentRequest) (*entity.Payment, error) {
	requestID := strings.TrimSpace(req.GetRequestId())
	callerService := strings.TrimSpace(req.GetCallerService())
	if requestID == "" || callerService == "" {
		return nil, ErrInvalidRequest
	}

	existing, err := s.paymentRepo.FindByCallerRequestID(ctx, callerService, requestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	gw, err := s.gateways.Get(req.GetGateway())
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayNotSupported) {
			return nil, ErrGatewayUnsupported
		}
		return nil, err
	}

	amount := req.GetAmount()
	if !amount.Equal(amount.Truncate(0)) {
		return nil, fmt.Errorf("%w: amount must be a whole number", ErrInvalidRequest)
	}

	payReq := confirmation.PaymentRequest{
		PayerPhoneNumber: types.NormalizePhoneNumber(req.GetPayerPhoneNumber(), s.paymentsCfg.PhoneCountryCode),
		Amount:           amount.IntPart(),
		UnitReference:    strings.TrimSpace(req.GetUnitReference()),
		BillingPeriod:    strings.TrimSpace(req.GetBillingPeriod()),
		Narrative:        strings.TrimSpace(req.GetNarrative()),
		CallbackHash:     uuid.NewString(),
	}
	if err := payReq.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := s.now().UTC()
	payment := &entity.Payment{
		RequestID:              requestID,
		CallerService:          callerService,
		PayerPhone:             payReq.PayerPhoneNumber,
		UnitReference:          payReq.UnitReference,
		BillingPeriod:          normalizeOptionalString(payReq.BillingPeriod),
		Narrative:              payReq.Narrative,
		AmountUnits:            payReq.Amount,
		Currency:               s.currency(),
		Status:                 int32(types.PaymentStatusCreated),
		Gateway:                gw.Code(),
		CallbackHash:           payReq.CallbackHash,
		StatusCallbackURL:      strings.TrimSpace(req.GetStatusCallbackUrl()),
		Metadata:               cloneMetadata(req.GetMetadata()),
		CallbackDeliveryStatus: entity.CallbackDeliveryNone,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrPaymentAlreadyExists) {
			return nil, ErrPaymentAlreadyExists
		}
		return nil, err
	}

	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: "payment_created",
		NewStatus: payment.Status,
		CreatedAt: now,
	})

	coord := s.coordinatorFor(gw)
	handle, err := coord.Initiate(ctx, payReq)
	if err != nil {
		var initErr *confirmation.GatewayInitiationError
		if !errors.As(err, &initErr) {
			return nil, err
		}
		if _, recErr := s.recordInitiationFailure(ctx, payment.ID, initErr.Reason); recErr != nil {
			s.logger.WithError(recErr).WithField("payment_id", payment.ID).Error("Failed to persist initiation failure")
		}
		return nil, fmt.Errorf("%w: %s", ErrGatewayInitiation, initErr.Reason)
	}

	payment, err = s.transition(ctx, payment.ID, func(p *entity.Payment, now time.Time) (*entity.PaymentEvent, error) {
		checkoutID := handle.RequestID
		p.CheckoutRequestID = &checkoutID
		p.MerchantRequestID = normalizeOptionalString(handle.MerchantRequestID)
		submittedAt := handle.SubmittedAt
		p.SubmittedAt = &submittedAt

		oldStatus := p.Status
		p.Status = int32(types.PaymentStatusPending)
		return &entity.PaymentEvent{
			EventType:  "push_initiated",
			OldStatus:  &oldStatus,
			NewStatus:  p.Status,
			GatewayRef: &checkoutID,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.startConfirmation(payment.ID, coord, *handle)

	return payment, nil
}

func (s *PaymentService) recordInitiationFailure(ctx context.Context, id uint64, reason string) (*entity.Payment, error) {
	return s.transition(ctx, id, func(p *entity.Payment, now time.Time) (*entity.PaymentEvent, error) {
		oldStatus := p.Status
		s.resolve(p, types.PaymentStatusFailed, resolution{reason: reason}, now)
		return &entity.PaymentEvent{
			EventType: "initiation_failed",
			OldStatus: &oldStatus,
			NewStatus: p.Status,
		}, nil
	})
}

func (s *PaymentService) GetPayment(ctx context.Context, id uint64) (*entity.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, req listPaymentsRequest) ([]*entity.Payment, error) {
	limit := req.GetLimit()
	if limit <= 0 {
		limit = defaultListLimit
	}

	filter := repository.PaymentFilter{
		RequestID:     strings.TrimSpace(req.GetRequestId()),
		CallerService: strings.TrimSpace(req.GetCallerService()),
		UnitReference: strings.TrimSpace(req.GetUnitReference()),
		BillingPeriod: strings.TrimSpace(req.GetBillingPeriod()),
		HasStatus:     req.GetHasStatus(),
		Status:        int32(req.GetStatus()),
		Gateway:       strings.ToLower(strings.TrimSpace(req.GetGateway())),
		Limit:         limit,
		Offset:        req.GetOffset(),
	}

	return s.paymentRepo.List(ctx, filter)
}

func (s *PaymentService) ListPaymentEvents(ctx context.Context, id uint64) ([]*entity.PaymentEvent, error) {
	if _, err := s.GetPayment(ctx, id); err != nil {
		return nil, err
	}
	return s.eventRepo.ListByPaymentID(ctx, id)
}

// CancelPayment marks the payment cancelled and stops its confirmation run.
// The push prompt already on the payer's phone is not withdrawn.
func (s *PaymentService) CancelPayment(ctx context.Context, req cancelPaymentRequest) (*entity.Payment, error) {
	payment, err := s.transition(ctx, req.GetId(), func(p *entity.Payment, now time.Time) (*entity.PaymentEvent, error) {
		status := types.PaymentStatus(p.Status)
		switch {
		case status == types.PaymentStatusCompleted:
			return nil, fmt.Errorf("%w: completed payments cannot be cancelled", ErrInvalidStatus)
		case status == types.PaymentStatusCancelled:
			return nil, nil
		case status.Terminal():
			return nil, fmt.Errorf("%w: %s payments cannot be cancelled", ErrInvalidStatus, status)
		}

		oldStatus := p.Status
		s.resolve(p, types.PaymentStatusCancelled, resolution{reason: req.GetReason()}, now)
		return &entity.PaymentEvent{
			EventType: "payment_cancelled",
			OldStatus: &oldStatus,
			NewStatus: p.Status,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.runs.stop(payment.ID, errPaymentCancelled)

	return payment, nil
}

func (s *PaymentService) transition(
	ctx context.Context,
	id uint64,
	apply func(payment *entity.Payment, now time.Time) (*entity.PaymentEvent, error),
) (*entity.Payment, error) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	now := s.now().UTC()
	event, err := apply(payment, now)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return payment, nil
	}

	payment.UpdatedAt = now
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	event.PaymentID = payment.ID
	event.CreatedAt = now
	_ = s.eventRepo.Create(ctx, event)

	return payment, nil
}

type resolution struct {
	receipt string
	amount  *int64
	reason  string
}

func (s *PaymentService) resolve(payment *entity.Payment, status types.PaymentStatus, res resolution, now time.Time) {
	switch status {
	case types.PaymentStatusCompleted:
		payment.ReceiptReference = normalizeOptionalString(res.receipt)
		amount := payment.AmountUnits
		if res.amount != nil && *res.amount > 0 {
			amount = *res.amount
		}
		payment.ConfirmedAmount = &amount
		payment.FailureReason = nil
	case types.PaymentStatusFailed, types.PaymentStatusCancelled:
		if reason := normalizeOptionalString(truncate(res.reason, 255)); reason != nil {
			payment.FailureReason = reason
		}
	}

	if payment.Status == int32(status) {
		return
	}
	payment.Status = int32(status)
	if status.Terminal() || status == types.PaymentStatusTimedOut {
		s.markForCallbackDelivery(payment, now)
	}
}

func (s *PaymentService) coordinatorFor(gw gateway.Gateway) *confirmation.Coordinator {
	s.coordMu.Lock()
	defer s.coordMu.Unlock()

	if coord, ok := s.coordinators[gw.Code()]; ok {
		return coord
	}

	opts := append([]confirmation.Option{
		confirmation.WithLogger(factory.NewModuleLogger("confirmation")),
	}, s.coordinatorOpts...)
	coord := confirmation.NewCoordinator(gw, s.policy, opts...)
	s.coordinators[gw.Code()] = coord
	return coord
}

func (s *PaymentService) markForCallbackDelivery(payment *entity.Payment, now time.Time) {
	payment.CallbackDeliveryStatus = entity.CallbackDeliveryPending
	payment.CallbackDeliveryAttempts = 0
	payment.CallbackDeliveryNextAt = &now
	payment.CallbackDeliveryLastErr = nil
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func (s *PaymentService) currency() string {
	if c := strings.ToUpper(strings.TrimSpace(s.paymentsCfg.Currency)); c != "" {
		return c
	}
	return defaultCurrency
}

func statusFromObserved(observed confirmation.ObservedStatus) (types.PaymentStatus, bool) {
	switch observed {
	case confirmation.StatusCompleted:
		return types.PaymentStatusCompleted, true
	case confirmation.StatusFailed:
		return types.PaymentStatusFailed, true
	case confirmation.StatusCancelled:
		return types.PaymentStatusCancelled, true
	default:
		return 0, false
	}
}

func terminalStatus(status int32) bool {
	return types.PaymentStatus(status).Terminal()
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max]
}
