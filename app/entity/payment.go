package entity

import "time"

const (
	CallbackDeliveryNone    int32 = 0
	CallbackDeliveryPending int32 = 1
	CallbackDeliverySuccess int32 = 10
	CallbackDeliveryFailed  int32 = 20
)

type Payment struct {
	ID uint64

	RequestID     string
	CallerService string

	PayerPhone    string
	UnitReference string
	BillingPeriod *string
	Narrative     string

	AmountUnits int64
	Currency    string

	Status  int32
	Gateway string

	CheckoutRequestID *string
	MerchantRequestID *string
	SubmittedAt       *time.Time

	ReceiptReference *string
	ConfirmedAmount  *int64
	FailureReason    *string
	PollAttempts     int32

	CallbackHash      string
	StatusCallbackURL string

	Metadata map[string]string

	CallbackDeliveryStatus   int32
	CallbackDeliveryAttempts int32
	CallbackDeliveryNextAt   *time.Time
	CallbackDeliveryLastErr  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
