package grpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vibast-solutions/ms-go-rent-payments/app/confirmation"
	"github.com/vibast-solutions/ms-go-rent-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rent-payments/app/gateway"
	"github.com/vibast-solutions/ms-go-rent-payments/app/repository"
	"github.com/vibast-solutions/ms-go-rent-payments/app/service"
	"github.com/vibast-solutions/ms-go-rent-payments/app/types"
	"github.com/vibast-solutions/ms-go-rent-payments/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type grpcPaymentRepo struct {
	mu     sync.Mutex
	items  map[uint64]*entity.Payment
	nextID uint64
	listFn func(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error)
}

func newGRPCPaymentRepo(seed ...*entity.Payment) *grpcPaymentRepo {
	r := &grpcPaymentRepo{items: map[uint64]*entity.Payment{}, nextID: 77}
	for _, item := range seed {
		copyItem := *item
		r.items[item.ID] = &copyItem
	}
	return r
}

func (r *grpcPaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment.ID = r.nextID
	r.nextID++
	copyItem := *payment
	r.items[payment.ID] = &copyItem
	return nil
}

func (r *grpcPaymentRepo) Update(_ context.Context, payment *entity.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *payment
	r.items[payment.ID] = &copyItem
	return nil
}

func (r *grpcPaymentRepo) FindByID(_ context.Context, id uint64) (*entity.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *grpcPaymentRepo) FindByCallerRequestID(context.Context, string, string) (*entity.Payment, error) {
	return nil, nil
}

func (r *grpcPaymentRepo) FindByCallbackHash(context.Context, string, string) (*entity.Payment, error) {
	return nil, nil
}

func (r *grpcPaymentRepo) List(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error) {
	if r.listFn != nil {
		return r.listFn(ctx, filter)
	}
	return []*entity.Payment{}, nil
}

func (r *grpcPaymentRepo) ListDueCallbackDispatch(context.Context, time.Time, int32) ([]*entity.Payment, error) {
	return []*entity.Payment{}, nil
}

func (r *grpcPaymentRepo) ListExpiredPending(context.Context, time.Time, int32) ([]*entity.Payment, error) {
	return []*entity.Payment{}, nil
}

func (r *grpcPaymentRepo) ListForReconcile(context.Context, time.Time, int32) ([]*entity.Payment, error) {
	return []*entity.Payment{}, nil
}

type grpcEventRepo struct{}

func (r *grpcEventRepo) Create(context.Context, *entity.PaymentEvent) error {
	return nil
}

func (r *grpcEventRepo) ListByPaymentID(context.Context, uint64) ([]*entity.PaymentEvent, error) {
	return nil, nil
}

type grpcCallbackRepo struct{}

func (r *grpcCallbackRepo) Create(context.Context, *entity.PaymentCallback) error {
	return nil
}

func newGRPCServerForTest(t *testing.T, repo *grpcPaymentRepo, gw gateway.Gateway) *Server {
	t.Helper()
	paymentService := service.NewPaymentService(
		repo,
		&grpcEventRepo{},
		&grpcCallbackRepo{},
		gateway.NewRegistry(gw.Code(), gw),
		confirmation.Policy{MaxAttempts: 2, PollInterval: time.Millisecond, CallTimeout: time.Second},
		config.PaymentsConfig{CallbackMaxAttempts: 3, CallbackRetryInterval: time.Minute, PendingTimeout: time.Hour, ReconcileStaleAfter: time.Minute, JobBatchSize: 100, PhoneCountryCode: "254"},
		"rent-payments-app-key",
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = paymentService.Shutdown(ctx)
	})
	return NewServer(paymentService)
}

func validCreateRequest() *types.CreatePaymentRequest {
	return &types.CreatePaymentRequest{
		RequestId:        "req-1",
		CallerService:    "rentals-service",
		PayerPhoneNumber: "+254712345678",
		Amount:           decimal.NewFromInt(1999),
		UnitReference:    "B1",
		BillingPeriod:    "2024-05",
	}
}

func TestCreatePaymentInvalidArgument(t *testing.T) {
	srv := newGRPCServerForTest(t, newGRPCPaymentRepo(), gateway.NewMockGateway())

	_, err := srv.CreatePayment(context.Background(), &types.CreatePaymentRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestCreatePaymentSuccess(t *testing.T) {
	srv := newGRPCServerForTest(t, newGRPCPaymentRepo(), gateway.NewMockGateway())

	resp, err := srv.CreatePayment(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Payment.Id != 77 {
		t.Fatalf("expected id=77, got %+v", resp.Payment)
	}
	if resp.Payment.PayerPhoneNumber != "254712345678" {
		t.Fatalf("expected normalized phone, got %q", resp.Payment.PayerPhoneNumber)
	}
}

func TestCreatePaymentGatewayRejectionIsUnavailable(t *testing.T) {
	gw := gateway.NewMockGateway(gateway.WithMockInitiateError(&gateway.Error{Message: "System busy"}))
	srv := newGRPCServerForTest(t, newGRPCPaymentRepo(), gw)

	_, err := srv.CreatePayment(context.Background(), validCreateRequest())
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	srv := newGRPCServerForTest(t, newGRPCPaymentRepo(), gateway.NewMockGateway())

	_, err := srv.GetPayment(context.Background(), &types.GetPaymentRequest{Id: 9})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCancelPaymentCompletedFailedPrecondition(t *testing.T) {
	repo := newGRPCPaymentRepo(&entity.Payment{ID: 9, Status: int32(types.PaymentStatusCompleted)})
	srv := newGRPCServerForTest(t, repo, gateway.NewMockGateway())

	_, err := srv.CancelPayment(context.Background(), &types.CancelPaymentRequest{Id: 9, Reason: "duplicate"})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

func TestListPaymentsSuccess(t *testing.T) {
	repo := newGRPCPaymentRepo()
	repo.listFn = func(context.Context, repository.PaymentFilter) ([]*entity.Payment, error) {
		return []*entity.Payment{{
			ID:            5,
			RequestID:     "req-1",
			CallerService: "rentals-service",
			UnitReference: "B1",
			AmountUnits:   1000,
			Currency:      "KES",
			Status:        int32(types.PaymentStatusPending),
			Gateway:       gateway.CodeMpesa,
			CallbackHash:  "hash-1",
			Metadata:      map[string]string{},
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		}}, nil
	}
	srv := newGRPCServerForTest(t, repo, gateway.NewMockGateway())

	resp, err := srv.ListPayments(context.Background(), &types.ListPaymentsRequest{Limit: 10, Offset: 0})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resp.Payments) != 1 || resp.Payments[0].Id != 5 {
		t.Fatalf("unexpected payments response: %+v", resp)
	}
}

func TestJSONCodecRoundTripOverGRPC(t *testing.T) {
	srv := newGRPCServerForTest(t, newGRPCPaymentRepo(), gateway.NewMockGateway())

	lis := bufconn.Listen(1 << 20)
	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoveryInterceptor(),
		RequestIDInterceptor(),
		LoggingInterceptor(),
	))
	types.RegisterRentPaymentsServiceServer(grpcSrv, srv)
	go func() { _ = grpcSrv.Serve(lis) }()
	t.Cleanup(grpcSrv.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := types.NewRentPaymentsServiceClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.Health(ctx, &types.HealthRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	ctx = metadata.AppendToOutgoingContext(ctx, requestIDHeader, "grpc-req-1")
	health, err := client.Health(ctx, &types.HealthRequest{})
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)

	req := validCreateRequest()
	req.RequestId = ""
	created, err := client.CreatePayment(ctx, req)
	require.NoError(t, err)
	require.Equal(t, uint64(77), created.Payment.Id)
	require.Equal(t, "grpc-req-1", created.Payment.RequestId)
	require.Equal(t, int64(1999), created.Payment.Amount)

	fetched, err := client.GetPayment(ctx, &types.GetPaymentRequest{Id: created.Payment.Id})
	require.NoError(t, err)
	require.Equal(t, "B1", fetched.Payment.UnitReference)

	_, err = client.GetPayment(ctx, &types.GetPaymentRequest{Id: 404})
	require.Equal(t, codes.NotFound, status.Code(err))
}
