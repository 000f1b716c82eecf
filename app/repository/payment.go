package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-rent-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rent-payments/app/types"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
)

const paymentColumns = `
	id, request_id, caller_service, payer_phone, unit_reference, billing_period, narrative,
	amount_units, currency, status, gateway,
	checkout_request_id, merchant_request_id, submitted_at,
	receipt_reference, confirmed_amount, failure_reason, poll_attempts,
	callback_hash, status_callback_url, metadata_json,
	callback_delivery_status, callback_delivery_attempts, callback_delivery_next_at, callback_delivery_last_error,
	created_at, updated_at
`

type PaymentFilter struct {
	RequestID     string
	CallerService string
	UnitReference string
	BillingPeriod string
	HasStatus     bool
	Status        int32
	Gateway       string
	Limit         int32
	Offset        int32
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			request_id, caller_service, payer_phone, unit_reference, billing_period, narrative,
			amount_units, currency, status, gateway,
			checkout_request_id, merchant_request_id, submitted_at,
			receipt_reference, confirmed_amount, failure_reason, poll_attempts,
			callback_hash, status_callback_url, metadata_json,
			callback_delivery_status, callback_delivery_attempts, callback_delivery_next_at, callback_delivery_last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.RequestID,
		payment.CallerService,
		payment.PayerPhone,
		payment.UnitReference,
		nullableStringValue(payment.BillingPeriod),
		payment.Narrative,
		payment.AmountUnits,
		payment.Currency,
		payment.Status,
		payment.Gateway,
		nullableStringValue(payment.CheckoutRequestID),
		nullableStringValue(payment.MerchantRequestID),
		nullableTimeValue(payment.SubmittedAt),
		nullableStringValue(payment.ReceiptReference),
		nullableInt64Value(payment.ConfirmedAmount),
		nullableStringValue(payment.FailureReason),
		payment.PollAttempts,
		payment.CallbackHash,
		payment.StatusCallbackURL,
		metadataJSON,
		payment.CallbackDeliveryStatus,
		payment.CallbackDeliveryAttempts,
		nullableTimeValue(payment.CallbackDeliveryNextAt),
		nullableStringValue(payment.CallbackDeliveryLastErr),
		payment.CreatedAt.UTC(),
		payment.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE payments SET
			status = ?,
			checkout_request_id = ?,
			merchant_request_id = ?,
			submitted_at = ?,
			receipt_reference = ?,
			confirmed_amount = ?,
			failure_reason = ?,
			poll_attempts = ?,
			status_callback_url = ?,
			metadata_json = ?,
			callback_delivery_status = ?,
			callback_delivery_attempts = ?,
			callback_delivery_next_at = ?,
			callback_delivery_last_error = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.Status,
		nullableStringValue(payment.CheckoutRequestID),
		nullableStringValue(payment.MerchantRequestID),
		nullableTimeValue(payment.SubmittedAt),
		nullableStringValue(payment.ReceiptReference),
		nullableInt64Value(payment.ConfirmedAmount),
		nullableStringValue(payment.FailureReason),
		payment.PollAttempts,
		payment.StatusCallbackURL,
		metadataJSON,
		payment.CallbackDeliveryStatus,
		payment.CallbackDeliveryAttempts,
		nullableTimeValue(payment.CallbackDeliveryNextAt),
		nullableStringValue(payment.CallbackDeliveryLastErr),
		payment.UpdatedAt.UTC(),
		payment.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}

	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *PaymentRepository) FindByCallerRequestID(ctx context.Context, callerService, requestID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE caller_service = ? AND request_id = ? LIMIT 1`
	return r.findOne(ctx, query, callerService, requestID)
}

func (r *PaymentRepository) FindByCallbackHash(ctx context.Context, gateway, callbackHash string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway = ? AND callback_hash = ? LIMIT 1`
	return r.findOne(ctx, query, gateway, callbackHash)
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments`

	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)

	if strings.TrimSpace(filter.RequestID) != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if strings.TrimSpace(filter.CallerService) != "" {
		conditions = append(conditions, "caller_service = ?")
		args = append(args, filter.CallerService)
	}
	if strings.TrimSpace(filter.UnitReference) != "" {
		conditions = append(conditions, "unit_reference = ?")
		args = append(args, filter.UnitReference)
	}
	if strings.TrimSpace(filter.BillingPeriod) != "" {
		conditions = append(conditions, "billing_period = ?")
		args = append(args, filter.BillingPeriod)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if strings.TrimSpace(filter.Gateway) != "" {
		conditions = append(conditions, "gateway = ?")
		args = append(args, filter.Gateway)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return r.findMany(ctx, query, args...)
}

func (r *PaymentRepository) ListDueCallbackDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE callback_delivery_status = ?
		  AND callback_delivery_next_at IS NOT NULL
		  AND callback_delivery_next_at <= ?
		ORDER BY callback_delivery_next_at ASC
		LIMIT ?
	`
	return r.findMany(ctx, query, entity.CallbackDeliveryPending, now.UTC(), limit)
}

func (r *PaymentRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status IN (?, ?, ?)
		  AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	return r.findMany(ctx, query,
		int32(types.PaymentStatusCreated),
		int32(types.PaymentStatusPending),
		int32(types.PaymentStatusTimedOut),
		cutoff.UTC(),
		limit,
	)
}

// ListForReconcile returns unresolved payments that reached the gateway and
// have not changed since before.
func (r *PaymentRepository) ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status IN (?, ?)
		  AND checkout_request_id IS NOT NULL
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`
	return r.findMany(ctx, query,
		int32(types.PaymentStatusPending),
		int32(types.PaymentStatusTimedOut),
		before.UTC(),
		limit,
	)
}

func (r *PaymentRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Payment, error) {
	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, args...), payment); errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]*entity.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var billingPeriod sql.NullString
	var checkoutRequestID sql.NullString
	var merchantRequestID sql.NullString
	var submittedAt sql.NullTime
	var receiptReference sql.NullString
	var confirmedAmount sql.NullInt64
	var failureReason sql.NullString
	var metadataJSON string
	var callbackNextAt sql.NullTime
	var callbackLastErr sql.NullString

	err := scan.Scan(
		&payment.ID,
		&payment.RequestID,
		&payment.CallerService,
		&payment.PayerPhone,
		&payment.UnitReference,
		&billingPeriod,
		&payment.Narrative,
		&payment.AmountUnits,
		&payment.Currency,
		&payment.Status,
		&payment.Gateway,
		&checkoutRequestID,
		&merchantRequestID,
		&submittedAt,
		&receiptReference,
		&confirmedAmount,
		&failureReason,
		&payment.PollAttempts,
		&payment.CallbackHash,
		&payment.StatusCallbackURL,
		&metadataJSON,
		&payment.CallbackDeliveryStatus,
		&payment.CallbackDeliveryAttempts,
		&callbackNextAt,
		&callbackLastErr,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.BillingPeriod = stringPtrFromNull(billingPeriod)
	payment.CheckoutRequestID = stringPtrFromNull(checkoutRequestID)
	payment.MerchantRequestID = stringPtrFromNull(merchantRequestID)
	payment.SubmittedAt = timePtrFromNull(submittedAt)
	payment.ReceiptReference = stringPtrFromNull(receiptReference)
	payment.ConfirmedAmount = int64PtrFromNull(confirmedAmount)
	payment.FailureReason = stringPtrFromNull(failureReason)
	payment.CallbackDeliveryNextAt = timePtrFromNull(callbackNextAt)
	payment.CallbackDeliveryLastErr = stringPtrFromNull(callbackLastErr)
	payment.CreatedAt = payment.CreatedAt.UTC()
	payment.UpdatedAt = payment.UpdatedAt.UTC()

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	payment.Metadata = metadata

	return nil
}
