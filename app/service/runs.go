package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-rent-payments/app/confirmation"
	"github.com/vibast-solutions/ms-go-rent-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rent-payments/app/types"
)

const runPersistTimeout = 10 * time.Second

var (
	errServiceShutdown  = errors.New("payment service shutting down")
	errPaymentCancelled = errors.New("payment cancelled")
	errCallbackResolved = errors.New("payment resolved by gateway callback")
)

type confirmationRun struct {
	cancel context.CancelCauseFunc
}

type runTracker struct {
	mu     sync.Mutex
	base   context.Context
	stopFn context.CancelCauseFunc
	runs   map[uint64]*confirmationRun
	closed bool
	wg     sync.WaitGroup
}

func newRunTracker() *runTracker {
	base, stop := context.WithCancelCause(context.Background())
	return &runTracker{
		base:   base,
		stopFn: stop,
		runs:   map[uint64]*confirmationRun{},
	}
}

func (t *runTracker) start(id uint64, fn func(ctx context.Context)) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if _, busy := t.runs[id]; busy {
		t.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancelCause(t.base)
	run := &confirmationRun{cancel: cancel}
	t.runs[id] = run
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer t.forget(id, run)
		defer cancel(nil)
		fn(ctx)
	}()
	return true
}

func (t *runTracker) forget(id uint64, run *confirmationRun) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runs[id] == run {
		delete(t.runs, id)
	}
}

func (t *runTracker) stop(id uint64, cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if run, ok := t.runs[id]; ok {
		run.cancel(cause)
	}
}

func (t *runTracker) running(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.runs[id]
	return ok
}

func (t *runTracker) shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.stopFn(errServiceShutdown)

	finished := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every background confirmation run and waits for their
// outcomes to be persisted. Payments whose run was interrupted stay pending
// for the reconcile job.
func (s *PaymentService) Shutdown(ctx context.Context) error {
	return s.runs.shutdown(ctx)
}

func (s *PaymentService) startConfirmation(id uint64, coord *confirmation.Coordinator, handle confirmation.PushPaymentHandle) {
	started := s.runs.start(id, func(ctx context.Context) {
		outcome, err := coord.Confirm(ctx, handle)
		if err != nil {
			s.logger.WithError(err).WithField("payment_id", id).Warn("Payment confirmation did not run")
			return
		}
		s.applyOutcome(id, outcome, context.Cause(ctx))
	})
	if !started {
		s.logger.WithField("payment_id", id).Warn("Payment confirmation not started")
	}
}

func (s *PaymentService) applyOutcome(id uint64, outcome confirmation.Outcome, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), runPersistTimeout)
	defer cancel()

	l := s.logger.WithField("payment_id", id).WithField("outcome", outcome.Kind.String())

	_, err := s.transition(ctx, id, func(p *entity.Payment, now time.Time) (*entity.PaymentEvent, error) {
		if terminalStatus(p.Status) {
			return nil, nil
		}

		oldStatus := p.Status
		p.PollAttempts += int32(outcome.Attempts)

		switch outcome.Kind {
		case confirmation.OutcomeCompleted:
			amount := outcome.ConfirmedAmount
			s.resolve(p, types.PaymentStatusCompleted, resolution{receipt: outcome.ReceiptReference, amount: &amount}, now)
		case confirmation.OutcomeFailed:
			s.resolve(p, types.PaymentStatusFailed, resolution{reason: outcome.Reason}, now)
		case confirmation.OutcomeTimedOut:
			s.resolve(p, types.PaymentStatusTimedOut, resolution{}, now)
		case confirmation.OutcomeCancelled:
			// A locally stopped run says nothing about the payment itself.
			if cause == nil {
				s.resolve(p, types.PaymentStatusCancelled, resolution{reason: outcome.Reason}, now)
			}
		}

		var gatewayRef *string
		if p.CheckoutRequestID != nil {
			ref := *p.CheckoutRequestID
			gatewayRef = &ref
		}
		return &entity.PaymentEvent{
			EventType:  "confirmation_" + outcome.Kind.String(),
			OldStatus:  &oldStatus,
			NewStatus:  p.Status,
			GatewayRef: gatewayRef,
		}, nil
	})
	if err != nil {
		l.WithError(err).Error("Failed to persist confirmation outcome")
		return
	}
	l.WithField("attempts", outcome.Attempts).Info("Payment confirmation outcome persisted")
}
