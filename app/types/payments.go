package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit = int32(100)
	maxListLimit     = int32(500)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return fmt.Errorf("%s must be YYYY-MM", fe.Field())
	case "url":
		return fmt.Errorf("%s must be a valid url", fe.Field())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}

type CreatePaymentRequest struct {
	RequestId         string            `json:"request_id" validate:"required,max=128"`
	CallerService     string            `json:"caller_service" validate:"required,max=128"`
	PayerPhoneNumber  string            `json:"payer_phone_number" validate:"required,max=32"`
	Amount            decimal.Decimal   `json:"amount" validate:"-"`
	UnitReference     string            `json:"unit_reference" validate:"required,max=64"`
	BillingPeriod     string            `json:"billing_period,omitempty" validate:"omitempty,datetime=2006-01"`
	Narrative         string            `json:"narrative,omitempty" validate:"max=64"`
	Gateway           string            `json:"gateway,omitempty" validate:"omitempty,oneof=mpesa rentals-api mock"`
	StatusCallbackUrl string            `json:"status_callback_url,omitempty" validate:"omitempty,url"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

func (r *CreatePaymentRequest) GetRequestId() string           { return r.RequestId }
func (r *CreatePaymentRequest) GetCallerService() string       { return r.CallerService }
func (r *CreatePaymentRequest) GetPayerPhoneNumber() string    { return r.PayerPhoneNumber }
func (r *CreatePaymentRequest) GetAmount() decimal.Decimal     { return r.Amount }
func (r *CreatePaymentRequest) GetUnitReference() string       { return r.UnitReference }
func (r *CreatePaymentRequest) GetBillingPeriod() string       { return r.BillingPeriod }
func (r *CreatePaymentRequest) GetNarrative() string           { return r.Narrative }
func (r *CreatePaymentRequest) GetGateway() string             { return r.Gateway }
func (r *CreatePaymentRequest) GetStatusCallbackUrl() string   { return r.StatusCallbackUrl }
func (r *CreatePaymentRequest) GetMetadata() map[string]string { return r.Metadata }

func NewCreatePaymentRequestFromContext(ctx echo.Context) (*CreatePaymentRequest, error) {
	var body CreatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	if strings.TrimSpace(body.RequestId) == "" {
		body.RequestId = ctx.Request().Header.Get(echo.HeaderXRequestID)
	}
	body.Normalize()

	return &body, nil
}

func (r *CreatePaymentRequest) Normalize() {
	r.RequestId = strings.TrimSpace(r.RequestId)
	r.CallerService = strings.TrimSpace(r.CallerService)
	r.PayerPhoneNumber = strings.TrimSpace(r.PayerPhoneNumber)
	r.UnitReference = strings.TrimSpace(r.UnitReference)
	r.BillingPeriod = strings.TrimSpace(r.BillingPeriod)
	r.Narrative = strings.TrimSpace(r.Narrative)
	r.Gateway = strings.ToLower(strings.TrimSpace(r.Gateway))
	r.StatusCallbackUrl = strings.TrimSpace(r.StatusCallbackUrl)
}

func (r *CreatePaymentRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationMessage(err)
	}
	if !r.Amount.IsPositive() {
		return errors.New("amount must be > 0")
	}
	if !r.Amount.Equal(r.Amount.Truncate(0)) {
		return errors.New("amount must be a whole number")
	}
	if !r.Amount.LessThanOrEqual(decimal.NewFromInt(1 << 53)) {
		return errors.New("amount is too large")
	}
	return nil
}

type GetPaymentRequest struct {
	Id uint64 `json:"id"`
}

func (r *GetPaymentRequest) GetId() uint64 { return r.Id }

func NewGetPaymentRequestFromContext(ctx echo.Context) (*GetPaymentRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetPaymentRequest{Id: id}, nil
}

func (r *GetPaymentRequest) Validate() error {
	if r.GetId() == 0 {
		return errors.New("invalid payment id")
	}
	return nil
}

type ListPaymentsRequest struct {
	RequestId     string        `json:"request_id,omitempty"`
	CallerService string        `json:"caller_service,omitempty"`
	UnitReference string        `json:"unit_reference,omitempty"`
	BillingPeriod string        `json:"billing_period,omitempty" validate:"omitempty,datetime=2006-01"`
	HasStatus     bool          `json:"has_status,omitempty"`
	Status        PaymentStatus `json:"status,omitempty"`
	Gateway       string        `json:"gateway,omitempty" validate:"omitempty,oneof=mpesa rentals-api mock"`
	Limit         int32         `json:"limit,omitempty"`
	Offset        int32         `json:"offset,omitempty"`
}

func (r *ListPaymentsRequest) GetRequestId() string      { return r.RequestId }
func (r *ListPaymentsRequest) GetCallerService() string  { return r.CallerService }
func (r *ListPaymentsRequest) GetUnitReference() string  { return r.UnitReference }
func (r *ListPaymentsRequest) GetBillingPeriod() string  { return r.BillingPeriod }
func (r *ListPaymentsRequest) GetHasStatus() bool        { return r.HasStatus }
func (r *ListPaymentsRequest) GetStatus() PaymentStatus  { return r.Status }
func (r *ListPaymentsRequest) GetGateway() string        { return r.Gateway }
func (r *ListPaymentsRequest) GetLimit() int32           { return r.Limit }
func (r *ListPaymentsRequest) GetOffset() int32          { return r.Offset }

func NewListPaymentsRequestFromContext(ctx echo.Context) (*ListPaymentsRequest, error) {
	req := &ListPaymentsRequest{
		RequestId:     strings.TrimSpace(ctx.QueryParam("request_id")),
		CallerService: strings.TrimSpace(ctx.QueryParam("caller_service")),
		UnitReference: strings.TrimSpace(ctx.QueryParam("unit_reference")),
		BillingPeriod: strings.TrimSpace(ctx.QueryParam("billing_period")),
		Gateway:       strings.ToLower(strings.TrimSpace(ctx.QueryParam("gateway"))),
		Limit:         defaultListLimit,
		Offset:        0,
	}

	if statusRaw := strings.TrimSpace(ctx.QueryParam("status")); statusRaw != "" {
		status, err := ParsePaymentStatus(statusRaw)
		if err != nil {
			return nil, err
		}
		req.HasStatus = true
		req.Status = status
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListPaymentsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = defaultListLimit
	}
	if r.GetLimit() <= 0 || r.GetLimit() > maxListLimit {
		return fmt.Errorf("limit must be between 1 and %d", maxListLimit)
	}
	if r.GetOffset() < 0 {
		return errors.New("offset must be >= 0")
	}
	if r.GetHasStatus() && !r.GetStatus().Valid() {
		return errors.New("invalid status")
	}
	if err := validate.Struct(r); err != nil {
		return validationMessage(err)
	}
	return nil
}

type CancelPaymentRequest struct {
	Id     uint64 `json:"id"`
	Reason string `json:"reason,omitempty" validate:"max=255"`
}

func (r *CancelPaymentRequest) GetId() uint64     { return r.Id }
func (r *CancelPaymentRequest) GetReason() string { return r.Reason }

func NewCancelPaymentRequestFromContext(ctx echo.Context) (*CancelPaymentRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body CancelPaymentRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.Id = id
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *CancelPaymentRequest) Validate() error {
	if r.GetId() == 0 {
		return errors.New("invalid payment id")
	}
	if err := validate.Struct(r); err != nil {
		return validationMessage(err)
	}
	return nil
}

type HandleGatewayCallbackRequest struct {
	Gateway      string `json:"gateway"`
	CallbackHash string `json:"callback_hash"`
	Payload      string `json:"payload"`
}

func (r *HandleGatewayCallbackRequest) GetGateway() string      { return r.Gateway }
func (r *HandleGatewayCallbackRequest) GetCallbackHash() string { return r.CallbackHash }
func (r *HandleGatewayCallbackRequest) GetPayload() string      { return r.Payload }

func NewHandleGatewayCallbackRequestFromContext(ctx echo.Context) (*HandleGatewayCallbackRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &HandleGatewayCallbackRequest{
		Gateway:      strings.ToLower(strings.TrimSpace(ctx.Param("gateway"))),
		CallbackHash: strings.TrimSpace(ctx.Param("hash")),
		Payload:      string(rawBody),
	}, nil
}

func (r *HandleGatewayCallbackRequest) Validate() error {
	if strings.TrimSpace(r.GetGateway()) == "" {
		return errors.New("gateway is required")
	}
	if strings.TrimSpace(r.GetCallbackHash()) == "" {
		return errors.New("callback hash is required")
	}
	if strings.TrimSpace(r.GetPayload()) == "" {
		return errors.New("payload is required")
	}
	if !json.Valid([]byte(r.GetPayload())) {
		return errors.New("payload must be json")
	}
	return nil
}

type HealthRequest struct{}

type HealthResponse struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Payment struct {
	Id                uint64            `json:"id"`
	RequestId         string            `json:"request_id"`
	CallerService     string            `json:"caller_service"`
	PayerPhoneNumber  string            `json:"payer_phone_number"`
	UnitReference     string            `json:"unit_reference"`
	BillingPeriod     string            `json:"billing_period,omitempty"`
	Narrative         string            `json:"narrative,omitempty"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	Status            PaymentStatus     `json:"status"`
	StatusName        string            `json:"status_name"`
	Gateway           string            `json:"gateway"`
	CheckoutRequestId string            `json:"checkout_request_id,omitempty"`
	MerchantRequestId string            `json:"merchant_request_id,omitempty"`
	ReceiptReference  string            `json:"receipt_reference,omitempty"`
	ConfirmedAmount   int64             `json:"confirmed_amount,omitempty"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	PollAttempts      int32             `json:"poll_attempts"`
	Message           string            `json:"message,omitempty"`
	StatusCallbackUrl string            `json:"status_callback_url,omitempty"`
	Metadata          map[string]string `json:"metadata"`
	SubmittedAt       string            `json:"submitted_at,omitempty"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
}

type PaymentEvent struct {
	Id         uint64 `json:"id"`
	EventType  string `json:"event_type"`
	OldStatus  string `json:"old_status,omitempty"`
	NewStatus  string `json:"new_status"`
	GatewayRef string `json:"gateway_ref,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type PaymentEnvelopeResponse struct {
	Payment *Payment `json:"payment"`
}

type ListPaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}

type ListPaymentEventsResponse struct {
	Events []*PaymentEvent `json:"events"`
}
