package types

import "testing"

func TestParsePaymentStatus(t *testing.T) {
	cases := map[string]PaymentStatus{
		"2":         PaymentStatusPending,
		"pending":   PaymentStatusPending,
		"TIMED_OUT": PaymentStatusTimedOut,
		"canceled":  PaymentStatusCancelled,
		"40":        PaymentStatusExpired,
	}
	for raw, want := range cases {
		got, err := ParsePaymentStatus(raw)
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", raw, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", raw, want, got)
		}
	}

	for _, raw := range []string{"", "0", "99", "paid"} {
		if _, err := ParsePaymentStatus(raw); err == nil {
			t.Fatalf("%q: expected error", raw)
		}
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	for _, s := range []PaymentStatus{PaymentStatusCreated, PaymentStatusPending, PaymentStatusTimedOut} {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
	for _, s := range []PaymentStatus{PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	cases := map[string]string{
		"0712345678":       "254712345678",
		"0712 345 678":     "254712345678",
		"+254712345678":    "254712345678",
		"254712345678":     "254712345678",
		"712345678":        "254712345678",
		"+1 (415) 555-0100": "14155550100",
		"07123abc":         "07123abc",
	}
	for raw, want := range cases {
		if got := NormalizePhoneNumber(raw, "254"); got != want {
			t.Fatalf("%q: expected %q, got %q", raw, want, got)
		}
	}
}
