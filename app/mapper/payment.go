package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-rent-payments/app/confirmation"
	"github.com/vibast-solutions/ms-go-rent-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rent-payments/app/types"
)

const pendingMessage = "Check your phone and enter your M-Pesa PIN to complete the payment."

func PaymentToResponse(item *entity.Payment) *types.Payment {
	if item == nil {
		return nil
	}

	status := types.PaymentStatus(item.Status)
	return &types.Payment{
		Id:                item.ID,
		RequestId:         item.RequestID,
		CallerService:     item.CallerService,
		PayerPhoneNumber:  item.PayerPhone,
		UnitReference:     item.UnitReference,
		BillingPeriod:     derefString(item.BillingPeriod),
		Narrative:         item.Narrative,
		Amount:            item.AmountUnits,
		Currency:          item.Currency,
		Status:            status,
		StatusName:        status.String(),
		Gateway:           item.Gateway,
		CheckoutRequestId: derefString(item.CheckoutRequestID),
		MerchantRequestId: derefString(item.MerchantRequestID),
		ReceiptReference:  derefString(item.ReceiptReference),
		ConfirmedAmount:   derefInt64(item.ConfirmedAmount),
		FailureReason:     derefString(item.FailureReason),
		PollAttempts:      item.PollAttempts,
		Message:           UserMessage(item),
		StatusCallbackUrl: item.StatusCallbackURL,
		Metadata:          cloneMetadata(item.Metadata),
		SubmittedAt:       formatTime(item.SubmittedAt),
		CreatedAt:         item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentsToResponse(items []*entity.Payment) []*types.Payment {
	result := make([]*types.Payment, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

func PaymentEventsToResponse(items []*entity.PaymentEvent) []*types.PaymentEvent {
	result := make([]*types.PaymentEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		event := &types.PaymentEvent{
			Id:         item.ID,
			EventType:  item.EventType,
			NewStatus:  types.PaymentStatus(item.NewStatus).String(),
			GatewayRef: derefString(item.GatewayRef),
			CreatedAt:  item.CreatedAt.UTC().Format(time.RFC3339),
		}
		if item.OldStatus != nil {
			event.OldStatus = types.PaymentStatus(*item.OldStatus).String()
		}
		result = append(result, event)
	}
	return result
}

func UserMessage(item *entity.Payment) string {
	switch types.PaymentStatus(item.Status) {
	case types.PaymentStatusPending:
		return pendingMessage
	case types.PaymentStatusCompleted:
		return confirmation.Outcome{Kind: confirmation.OutcomeCompleted, ReceiptReference: derefString(item.ReceiptReference)}.UserMessage()
	case types.PaymentStatusFailed:
		return confirmation.Outcome{Kind: confirmation.OutcomeFailed, Reason: derefString(item.FailureReason)}.UserMessage()
	case types.PaymentStatusCancelled:
		return confirmation.Outcome{Kind: confirmation.OutcomeCancelled}.UserMessage()
	case types.PaymentStatusTimedOut, types.PaymentStatusExpired:
		return confirmation.Outcome{Kind: confirmation.OutcomeTimedOut}.UserMessage()
	default:
		return ""
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func formatTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
