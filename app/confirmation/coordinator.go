package confirmation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rent-payments/app/gateway"
)

const (
	defaultMaxAttempts  = 5
	defaultPollInterval = 5 * time.Second
	defaultCallTimeout  = 10 * time.Second
)

type Policy struct {
	MaxAttempts  int
	PollInterval time.Duration
	CallTimeout  time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.PollInterval <= 0 {
		p.PollInterval = defaultPollInterval
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = defaultCallTimeout
	}
	return p
}

type Sleeper func(ctx context.Context, d time.Duration)

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

type Option func(*Coordinator)

func WithSleeper(s Sleeper) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.sleep = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithAttemptObserver(fn func(PollAttempt)) Option {
	return func(c *Coordinator) {
		c.observer = fn
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type Coordinator struct {
	gateway  gateway.Gateway
	policy   Policy
	sleep    Sleeper
	now      func() time.Time
	observer func(PollAttempt)
	logger   logrus.FieldLogger

	mu   sync.Mutex
	runs map[string]struct{}
}

func NewCoordinator(gw gateway.Gateway, policy Policy, opts ...Option) *Coordinator {
	c := &Coordinator{
		gateway: gw,
		policy:  policy.normalized(),
		sleep:   sleepContext,
		now:     time.Now,
		logger:  logrus.WithField("module", "confirmation"),
		runs:    map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("gateway", gw.Code())
	return c
}

func (c *Coordinator) Policy() Policy {
	return c.policy
}

func (c *Coordinator) InitiateAndConfirm(ctx context.Context, req PaymentRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	if ctx.Err() != nil {
		return cancelled("", 0), nil
	}

	handle, err := c.Initiate(ctx, req)
	if err != nil {
		var initErr *GatewayInitiationError
		if errors.As(err, &initErr) {
			return failed(initErr.Reason, 0), err
		}
		return Outcome{}, err
	}

	return c.Confirm(ctx, *handle)
}

func (c *Coordinator) Initiate(ctx context.Context, req PaymentRequest) (*PushPaymentHandle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	out, err := c.gateway.InitiatePushPayment(callCtx, &gateway.PushInput{
		PhoneNumber:      req.PayerPhoneNumber,
		Amount:           req.Amount,
		AccountReference: strings.TrimSpace(req.UnitReference),
		Narrative:        req.narrative(),
		CallbackHash:     strings.TrimSpace(req.CallbackHash),
	})
	if err != nil {
		c.logger.WithError(err).WithField("unit_reference", req.UnitReference).Warn("Push payment initiation failed")
		return nil, &GatewayInitiationError{Reason: gateway.Reason(err), Err: err}
	}
	if out == nil || strings.TrimSpace(out.RequestID) == "" {
		c.logger.WithField("unit_reference", req.UnitReference).Warn("Push payment initiation returned no request id")
		return nil, &GatewayInitiationError{Reason: ErrMalformedHandle.Error(), Err: ErrMalformedHandle}
	}

	return &PushPaymentHandle{
		RequestID:         strings.TrimSpace(out.RequestID),
		MerchantRequestID: strings.TrimSpace(out.MerchantRequestID),
		SubmittedAt:       c.now().UTC(),
	}, nil
}

func (c *Coordinator) Confirm(ctx context.Context, handle PushPaymentHandle) (Outcome, error) {
	requestID := strings.TrimSpace(handle.RequestID)
	if requestID == "" {
		return failed(ErrMalformedHandle.Error(), 0), nil
	}
	if !c.acquire(requestID) {
		return Outcome{}, ErrPollInProgress
	}
	defer c.release(requestID)

	l := c.logger.WithField("request_id", requestID)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return c.finish(l, cancelled("", attempt)), nil
		}

		attempt++
		status, result, err := c.queryStatus(ctx, requestID)
		c.observe(PollAttempt{RequestID: requestID, Number: attempt, Status: status, Err: err, At: c.now().UTC()})

		entry := l.WithField("attempt", attempt).WithField("status", status.String())
		if err != nil {
			entry.WithError(err).Debug("Payment status query failed")
		} else {
			entry.Debug("Payment status observed")
		}

		switch status {
		case StatusCompleted:
			var amount int64
			if result.ConfirmedAmount != nil {
				amount = *result.ConfirmedAmount
			}
			return c.finish(l, completed(strings.TrimSpace(result.ReceiptReference), amount, attempt)), nil
		case StatusFailed:
			return c.finish(l, failed(strings.TrimSpace(result.FailureReason), attempt)), nil
		case StatusCancelled:
			return c.finish(l, cancelled(strings.TrimSpace(result.FailureReason), attempt)), nil
		}

		if attempt >= c.policy.MaxAttempts {
			return c.finish(l, timedOut(attempt)), nil
		}
		c.sleep(ctx, c.policy.PollInterval)
	}
}

func (c *Coordinator) queryStatus(ctx context.Context, requestID string) (ObservedStatus, *gateway.StatusOutput, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	result, err := c.gateway.GetPaymentStatus(callCtx, requestID)
	if err != nil {
		return StatusUnknown, nil, err
	}
	if result == nil {
		return StatusUnknown, nil, gateway.ErrMalformedResponse
	}
	return Classify(result.Status), result, nil
}

// callContext detaches gateway calls from the caller's cancellation; a
// request already sent is allowed to finish within the call timeout.
func (c *Coordinator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.policy.CallTimeout)
}

func (c *Coordinator) observe(attempt PollAttempt) {
	if c.observer != nil {
		c.observer(attempt)
	}
}

func (c *Coordinator) finish(l logrus.FieldLogger, outcome Outcome) Outcome {
	l.WithField("outcome", outcome.Kind.String()).WithField("attempts", outcome.Attempts).Info("Payment confirmation finished")
	return outcome
}

func (c *Coordinator) acquire(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.runs[requestID]; busy {
		return false
	}
	c.runs[requestID] = struct{}{}
	return true
}

func (c *Coordinator) release(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runs, requestID)
}
