package confirmation

import (
	"regexp"
	"strings"
	"time"
)

var phonePattern = regexp.MustCompile(`^[1-9][0-9]{9,14}$`)

type PaymentRequest struct {
	PayerPhoneNumber string
	Amount           int64
	UnitReference    string
	BillingPeriod    string
	Narrative        string
	CallbackHash     string
}

func (r PaymentRequest) Validate() error {
	if !phonePattern.MatchString(r.PayerPhoneNumber) {
		return &ValidationError{Field: "payer_phone_number", Message: "must be digits in international format"}
	}
	if r.Amount <= 0 {
		return &ValidationError{Field: "amount", Message: "must be a positive whole number"}
	}
	if strings.TrimSpace(r.UnitReference) == "" {
		return &ValidationError{Field: "unit_reference", Message: "is required"}
	}
	if period := strings.TrimSpace(r.BillingPeriod); period != "" {
		if _, err := time.Parse("2006-01", period); err != nil {
			return &ValidationError{Field: "billing_period", Message: "must be YYYY-MM"}
		}
	}
	return nil
}

func (r PaymentRequest) narrative() string {
	if s := strings.TrimSpace(r.Narrative); s != "" {
		return s
	}
	if period := strings.TrimSpace(r.BillingPeriod); period != "" {
		return "Rent " + period
	}
	return "Rent payment"
}

type PushPaymentHandle struct {
	RequestID         string
	MerchantRequestID string
	SubmittedAt       time.Time
}

type ObservedStatus int

const (
	StatusUnknown ObservedStatus = iota
	StatusPending
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s ObservedStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s ObservedStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type PollAttempt struct {
	RequestID string
	Number    int
	Status    ObservedStatus
	Err       error
	At        time.Time
}

func Classify(raw string) ObservedStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "processing", "queued", "submitted", "initiated":
		return StatusPending
	case "completed", "complete", "success", "successful", "paid":
		return StatusCompleted
	case "failed", "failure", "rejected", "declined":
		return StatusFailed
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}
