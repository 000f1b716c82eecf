package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-rent-payments/app/confirmation"
	"github.com/vibast-solutions/ms-go-rent-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rent-payments/app/gateway"
	"github.com/vibast-solutions/ms-go-rent-payments/app/repository"
	"github.com/vibast-solutions/ms-go-rent-payments/app/service"
	"github.com/vibast-solutions/ms-go-rent-payments/app/types"
	"github.com/vibast-solutions/ms-go-rent-payments/config"
)

type controllerPaymentRepo struct {
	mu     sync.Mutex
	items  map[uint64]*entity.Payment
	nextID uint64
	listFn func(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error)
}

func newControllerPaymentRepo(seed ...*entity.Payment) *controllerPaymentRepo {
	r := &controllerPaymentRepo{items: map[uint64]*entity.Payment{}, nextID: 22}
	for _, item := range seed {
		copyItem := *item
		r.items[item.ID] = &copyItem
	}
	return r
}

func (r *controllerPaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment.ID = r.nextID
	r.nextID++
	copyItem := *payment
	r.items[payment.ID] = &copyItem
	return nil
}

func (r *controllerPaymentRepo) Update(_ context.Context, payment *entity.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[payment.ID]; !ok {
		return repository.ErrPaymentNotFound
	}
	copyItem := *payment
	r.items[payment.ID] = &copyItem
	return nil
}

func (r *controllerPaymentRepo) FindByID(_ context.Context, id uint64) (*entity.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *controllerPaymentRepo) FindByCallerRequestID(context.Context, string, string) (*entity.Payment, error) {
	return nil, nil
}

func (r *controllerPaymentRepo) FindByCallbackHash(context.Context, string, string) (*entity.Payment, error) {
	return nil, nil
}

func (r *controllerPaymentRepo) List(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error) {
	if r.listFn != nil {
		return r.listFn(ctx, filter)
	}
	return []*entity.Payment{}, nil
}

func (r *controllerPaymentRepo) ListDueCallbackDispatch(context.Context, time.Time, int32) ([]*entity.Payment, error) {
	return []*entity.Payment{}, nil
}

func (r *controllerPaymentRepo) ListExpiredPending(context.Context, time.Time, int32) ([]*entity.Payment, error) {
	return []*entity.Payment{}, nil
}

func (r *controllerPaymentRepo) ListForReconcile(context.Context, time.Time, int32) ([]*entity.Payment, error) {
	return []*entity.Payment{}, nil
}

type controllerEventRepo struct {
	events []*entity.PaymentEvent
}

func (r *controllerEventRepo) Create(context.Context, *entity.PaymentEvent) error {
	return nil
}

func (r *controllerEventRepo) ListByPaymentID(context.Context, uint64) ([]*entity.PaymentEvent, error) {
	return r.events, nil
}

type controllerCallbackRepo struct{}

func (r *controllerCallbackRepo) Create(context.Context, *entity.PaymentCallback) error {
	return nil
}

func newControllerForTest(t *testing.T, repo *controllerPaymentRepo, eventRepo *controllerEventRepo, gw gateway.Gateway) *PaymentController {
	t.Helper()
	if eventRepo == nil {
		eventRepo = &controllerEventRepo{}
	}
	paymentService := service.NewPaymentService(
		repo,
		eventRepo,
		&controllerCallbackRepo{},
		gateway.NewRegistry(gw.Code(), gw),
		confirmation.Policy{MaxAttempts: 2, PollInterval: time.Millisecond, CallTimeout: time.Second},
		config.PaymentsConfig{CallbackMaxAttempts: 3, CallbackRetryInterval: time.Minute, PendingTimeout: time.Hour, ReconcileStaleAfter: time.Minute, JobBatchSize: 100, PhoneCountryCode: "254", Currency: "KES"},
		"rent-payments-app-key",
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = paymentService.Shutdown(ctx)
	})
	return NewPaymentController(paymentService)
}

func storedPayment(id uint64, status types.PaymentStatus) *entity.Payment {
	now := time.Now().UTC()
	return &entity.Payment{
		ID:                id,
		RequestID:         "req-1",
		CallerService:     "rentals-service",
		PayerPhone:        "254712345678",
		UnitReference:     "B1",
		AmountUnits:       1500,
		Currency:          "KES",
		Status:            int32(status),
		Gateway:           gateway.CodeMock,
		CallbackHash:      "hash-1",
		StatusCallbackURL: "https://rentals.example/payments/status",
		Metadata:          map[string]string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestCreatePaymentBadBody(t *testing.T) {
	ctrl := newControllerForTest(t, newControllerPaymentRepo(), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString("{bad"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := ctrl.CreatePayment(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreatePaymentSuccess(t *testing.T) {
	ctrl := newControllerForTest(t, newControllerPaymentRepo(), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(`{"caller_service":"rentals-service","payer_phone_number":"0712345678","amount":1500,"unit_reference":"B1","billing_period":"2024-05","status_callback_url":"https://rentals.example/payments/status"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	_ = ctrl.CreatePayment(ctx)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}

	var payload types.PaymentEnvelopeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.Payment == nil || payload.Payment.Id != 22 {
		t.Fatalf("unexpected payment payload: %+v", payload.Payment)
	}
	if payload.Payment.RequestId != "req-1" {
		t.Fatalf("expected request id from header, got %q", payload.Payment.RequestId)
	}
	if payload.Payment.StatusName != "pending" {
		t.Fatalf("expected pending status, got %q", payload.Payment.StatusName)
	}
	if payload.Payment.PayerPhoneNumber != "254712345678" {
		t.Fatalf("expected normalized phone, got %q", payload.Payment.PayerPhoneNumber)
	}
}

func TestCreatePaymentFractionalAmount(t *testing.T) {
	ctrl := newControllerForTest(t, newControllerPaymentRepo(), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(`{"request_id":"req-1","caller_service":"rentals-service","payer_phone_number":"0712345678","amount":"1500.50","unit_reference":"B1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	_ = ctrl.CreatePayment(ctx)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreatePaymentGatewayRejection(t *testing.T) {
	gw := gateway.NewMockGateway(gateway.WithMockInitiateError(&gateway.Error{Code: "400.002.02", Message: "Invalid PhoneNumber"}))
	ctrl := newControllerForTest(t, newControllerPaymentRepo(), nil, gw)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(`{"request_id":"req-1","caller_service":"rentals-service","payer_phone_number":"0712345678","amount":1500,"unit_reference":"B1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	_ = ctrl.CreatePayment(ctx)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d body=%s", rec.Code, rec.Body.String())
	}

	var payload types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !bytes.Contains([]byte(payload.Error), []byte("Invalid PhoneNumber")) {
		t.Fatalf("expected gateway reason in error, got %q", payload.Error)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	ctrl := newControllerForTest(t, newControllerPaymentRepo(), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payments/9", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("9")

	_ = ctrl.GetPayment(ctx)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetPaymentIncludesUserMessage(t *testing.T) {
	receipt := "NLJ7RT61SV"
	item := storedPayment(5, types.PaymentStatusCompleted)
	item.ReceiptReference = &receipt
	ctrl := newControllerForTest(t, newControllerPaymentRepo(item), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payments/5", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("5")

	_ = ctrl.GetPayment(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload types.PaymentEnvelopeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.Payment.Message != "Payment received. M-Pesa receipt NLJ7RT61SV." {
		t.Fatalf("unexpected message %q", payload.Payment.Message)
	}
}

func TestListPaymentsSuccess(t *testing.T) {
	repo := newControllerPaymentRepo()
	repo.listFn = func(_ context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error) {
		if filter.Limit != 10 || filter.UnitReference != "B1" {
			t.Errorf("unexpected filter: %+v", filter)
		}
		return []*entity.Payment{storedPayment(1, types.PaymentStatusPending)}, nil
	}
	ctrl := newControllerForTest(t, repo, nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payments?limit=10&offset=0&unit_reference=B1", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	_ = ctrl.ListPayments(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	var payload types.ListPaymentsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(payload.Payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(payload.Payments))
	}
}

func TestListPaymentsInvalidStatus(t *testing.T) {
	ctrl := newControllerForTest(t, newControllerPaymentRepo(), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payments?status=settled", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	_ = ctrl.ListPayments(ctx)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListPaymentEvents(t *testing.T) {
	eventRepo := &controllerEventRepo{events: []*entity.PaymentEvent{
		{ID: 1, PaymentID: 5, EventType: "payment_created", NewStatus: int32(types.PaymentStatusCreated), CreatedAt: time.Now().UTC()},
		{ID: 2, PaymentID: 5, EventType: "push_initiated", NewStatus: int32(types.PaymentStatusPending), CreatedAt: time.Now().UTC()},
	}}
	ctrl := newControllerForTest(t, newControllerPaymentRepo(storedPayment(5, types.PaymentStatusPending)), eventRepo, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payments/5/events", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("5")

	_ = ctrl.ListPaymentEvents(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload types.ListPaymentEventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(payload.Events) != 2 || payload.Events[1].NewStatus != "pending" {
		t.Fatalf("unexpected events payload: %+v", payload.Events)
	}
}

func TestCancelPaymentNotFound(t *testing.T) {
	ctrl := newControllerForTest(t, newControllerPaymentRepo(), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payments/3/cancel", bytes.NewBufferString(`{"reason":"duplicate"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("3")

	_ = ctrl.CancelPayment(ctx)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelPaymentCompletedConflict(t *testing.T) {
	ctrl := newControllerForTest(t, newControllerPaymentRepo(storedPayment(3, types.PaymentStatusCompleted)), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payments/3/cancel", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("3")

	_ = ctrl.CancelPayment(ctx)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCancelPaymentPending(t *testing.T) {
	ctrl := newControllerForTest(t, newControllerPaymentRepo(storedPayment(3, types.PaymentStatusPending)), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payments/3/cancel", bytes.NewBufferString(`{"reason":"paid in cash"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("3")

	_ = ctrl.CancelPayment(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	var payload types.PaymentEnvelopeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.Payment.StatusName != "cancelled" {
		t.Fatalf("expected cancelled status, got %q", payload.Payment.StatusName)
	}
}

func TestHandleGatewayCallbackUnsupportedGateway(t *testing.T) {
	ctrl := newControllerForTest(t, newControllerPaymentRepo(), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateways/mock/hash-1", bytes.NewBufferString(`{"Body":{}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("gateway", "hash")
	ctx.SetParamValues("mock", "hash-1")

	_ = ctrl.HandleGatewayCallback(ctx)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGatewayCallbackInvalidJSON(t *testing.T) {
	ctrl := newControllerForTest(t, newControllerPaymentRepo(), nil, gateway.NewMockGateway())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateways/mpesa/hash-1", bytes.NewBufferString(`{bad`))
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("gateway", "hash")
	ctx.SetParamValues("mpesa", "hash-1")

	_ = ctrl.HandleGatewayCallback(ctx)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
