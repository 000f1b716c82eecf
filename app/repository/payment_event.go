package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-rent-payments/app/entity"
)

type PaymentEventRepository struct {
	db DBTX
}

func NewPaymentEventRepository(db DBTX) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

func (r *PaymentEventRepository) Create(ctx context.Context, event *entity.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (
			payment_id, event_type, old_status, new_status, gateway_ref, payload_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.PaymentID,
		event.EventType,
		nullableInt32Value(event.OldStatus),
		event.NewStatus,
		nullableStringValue(event.GatewayRef),
		nullableStringValue(event.PayloadJSON),
		event.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}

func (r *PaymentEventRepository) ListByPaymentID(ctx context.Context, paymentID uint64) ([]*entity.PaymentEvent, error) {
	query := `
		SELECT id, payment_id, event_type, old_status, new_status, gateway_ref, payload_json, created_at
		FROM payment_events
		WHERE payment_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*entity.PaymentEvent, 0)
	for rows.Next() {
		var oldStatus sql.NullInt32
		var gatewayRef sql.NullString
		var payloadJSON sql.NullString
		event := &entity.PaymentEvent{}
		if err := rows.Scan(&event.ID, &event.PaymentID, &event.EventType, &oldStatus, &event.NewStatus, &gatewayRef, &payloadJSON, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.OldStatus = int32PtrFromNull(oldStatus)
		event.GatewayRef = stringPtrFromNull(gatewayRef)
		event.PayloadJSON = stringPtrFromNull(payloadJSON)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
