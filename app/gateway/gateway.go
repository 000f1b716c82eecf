package gateway

import (
	"context"
	"errors"
	"strings"
)

const (
	CodeMpesa      = "mpesa"
	CodeRentalsAPI = "rentals-api"
	CodeMock       = "mock"
)

// Canonical raw statuses reported by GetPaymentStatus. Gateways may still
// return other values; the coordinator keeps polling on anything it does not
// recognize.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var ErrMalformedResponse = errors.New("malformed gateway response")

type PushInput struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
	Narrative        string
	CallbackHash     string
}

type PushOutput struct {
	RequestID         string
	MerchantRequestID string
	CustomerMessage   string
}

type StatusOutput struct {
	Status           string
	ReceiptReference string
	ConfirmedAmount  *int64
	FailureReason    string
}

type CallbackEvent struct {
	RequestID         string
	MerchantRequestID string
	Status            string
	ResultCode        string
	ResultDesc        string
	ReceiptReference  string
	ConfirmedAmount   *int64
	PhoneNumber       string
}

type Gateway interface {
	Code() string
	InitiatePushPayment(ctx context.Context, input *PushInput) (*PushOutput, error)
	GetPaymentStatus(ctx context.Context, requestID string) (*StatusOutput, error)
}

type CallbackParser interface {
	ParseCallback(ctx context.Context, payload []byte) (*CallbackEvent, error)
}

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func Reason(err error) string {
	if err == nil {
		return ""
	}
	var gwErr *Error
	if errors.As(err, &gwErr) && strings.TrimSpace(gwErr.Message) != "" {
		return strings.TrimSpace(gwErr.Message)
	}
	return err.Error()
}

func joinCallbackURL(baseURL, callbackHash string) string {
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	callbackHash = strings.TrimSpace(callbackHash)
	if baseURL == "" || callbackHash == "" {
		return ""
	}
	return baseURL + "/" + callbackHash
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return strings.TrimSpace(value[:max])
}
