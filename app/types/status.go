package types

import (
	"fmt"
	"strconv"
	"strings"
)

type PaymentStatus int32

const (
	PaymentStatusUnspecified PaymentStatus = 0
	PaymentStatusCreated     PaymentStatus = 1
	PaymentStatusPending     PaymentStatus = 2
	PaymentStatusTimedOut    PaymentStatus = 3
	PaymentStatusCompleted   PaymentStatus = 10
	PaymentStatusFailed      PaymentStatus = 20
	PaymentStatusCancelled   PaymentStatus = 30
	PaymentStatusExpired     PaymentStatus = 40
)

var paymentStatusNames = map[PaymentStatus]string{
	PaymentStatusCreated:   "created",
	PaymentStatusPending:   "pending",
	PaymentStatusTimedOut:  "timed_out",
	PaymentStatusCompleted: "completed",
	PaymentStatusFailed:    "failed",
	PaymentStatusCancelled: "cancelled",
	PaymentStatusExpired:   "expired",
}

func (s PaymentStatus) String() string {
	if name, ok := paymentStatusNames[s]; ok {
		return name
	}
	return "unspecified"
}

func (s PaymentStatus) Valid() bool {
	_, ok := paymentStatusNames[s]
	return ok
}

// Terminal statuses are never left once entered. TimedOut is not terminal:
// a later callback or reconcile run can still resolve the payment.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired:
		return true
	default:
		return false
	}
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.ParseInt(raw, 10, 32); err == nil {
		status := PaymentStatus(n)
		if !status.Valid() {
			return PaymentStatusUnspecified, fmt.Errorf("invalid status %q", raw)
		}
		return status, nil
	}
	if raw == "canceled" {
		raw = "cancelled"
	}
	for status, name := range paymentStatusNames {
		if name == raw {
			return status, nil
		}
	}
	return PaymentStatusUnspecified, fmt.Errorf("invalid status %q", raw)
}
