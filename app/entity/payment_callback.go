package entity

import "time"

const (
	PaymentCallbackProcessed int32 = 10
	PaymentCallbackRejected  int32 = 20
)

type PaymentCallback struct {
	ID uint64

	PaymentID *uint64

	Gateway           string
	CallbackHash      string
	CheckoutRequestID *string
	ResultCode        *string
	PayloadJSON       string
	Status            int32
	Error             *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
