package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type MockGateway struct {
	mu          sync.Mutex
	script      []StatusOutput
	initiateErr error
	amounts     map[string]int64
	queries     map[string]int
}

type MockOption func(*MockGateway)

func WithMockStatuses(statuses ...StatusOutput) MockOption {
	return func(g *MockGateway) {
		g.script = append([]StatusOutput(nil), statuses...)
	}
}

func WithMockInitiateError(err error) MockOption {
	return func(g *MockGateway) {
		g.initiateErr = err
	}
}

func NewMockGateway(opts ...MockOption) *MockGateway {
	g := &MockGateway{
		amounts: map[string]int64{},
		queries: map[string]int{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *MockGateway) Code() string {
	return CodeMock
}

func (g *MockGateway) InitiatePushPayment(_ context.Context, input *PushInput) (*PushOutput, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initiateErr != nil {
		return nil, g.initiateErr
	}

	requestID := "ws_CO_MOCK_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	g.amounts[requestID] = input.Amount

	return &PushOutput{
		RequestID:         requestID,
		MerchantRequestID: "mock-" + uuid.NewString(),
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (g *MockGateway) GetPaymentStatus(_ context.Context, requestID string) (*StatusOutput, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	amount, known := g.amounts[requestID]
	if len(g.script) > 0 {
		if !known {
			out := g.script[len(g.script)-1]
			return &out, nil
		}
		n := g.queries[requestID]
		g.queries[requestID] = n + 1
		if n >= len(g.script) {
			n = len(g.script) - 1
		}
		out := g.script[n]
		if out.Status != StatusPending {
			g.forget(requestID)
		}
		return &out, nil
	}

	if !known {
		return &StatusOutput{Status: StatusFailed, FailureReason: "unknown request"}, nil
	}
	g.forget(requestID)
	return &StatusOutput{
		Status:           StatusCompleted,
		ReceiptReference: mockReceipt(requestID),
		ConfirmedAmount:  &amount,
	}, nil
}

func (g *MockGateway) forget(requestID string) {
	delete(g.amounts, requestID)
	delete(g.queries, requestID)
}

func mockReceipt(requestID string) string {
	suffix := strings.ToUpper(strings.TrimPrefix(requestID, "ws_CO_MOCK_"))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("MOCK%s", suffix)
}
