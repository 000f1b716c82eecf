package confirmation

import "fmt"

type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota + 1
	OutcomeFailed
	OutcomeTimedOut
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Kind             OutcomeKind
	ReceiptReference string
	ConfirmedAmount  int64
	Reason           string
	Attempts         int
}

func (o Outcome) IsZero() bool {
	return o.Kind == 0
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeCompleted:
		return fmt.Sprintf("completed(receipt=%s)", o.ReceiptReference)
	case OutcomeFailed:
		return fmt.Sprintf("failed(%s)", o.Reason)
	default:
		return o.Kind.String()
	}
}

func (o Outcome) UserMessage() string {
	switch o.Kind {
	case OutcomeCompleted:
		if o.ReceiptReference != "" {
			return "Payment received. M-Pesa receipt " + o.ReceiptReference + "."
		}
		return "Payment received."
	case OutcomeFailed:
		if o.Reason != "" {
			return "Payment failed: " + o.Reason + "."
		}
		return "Payment failed."
	case OutcomeCancelled:
		return "Payment was cancelled."
	case OutcomeTimedOut:
		return "We could not confirm your payment automatically. Please check your M-Pesa messages before paying again."
	default:
		return ""
	}
}

func completed(receipt string, amount int64, attempts int) Outcome {
	return Outcome{Kind: OutcomeCompleted, ReceiptReference: receipt, ConfirmedAmount: amount, Attempts: attempts}
}

func failed(reason string, attempts int) Outcome {
	if reason == "" {
		reason = "payment failed"
	}
	return Outcome{Kind: OutcomeFailed, Reason: reason, Attempts: attempts}
}

func cancelled(reason string, attempts int) Outcome {
	return Outcome{Kind: OutcomeCancelled, Reason: reason, Attempts: attempts}
}

func timedOut(attempts int) Outcome {
	return Outcome{Kind: OutcomeTimedOut, Attempts: attempts}
}
