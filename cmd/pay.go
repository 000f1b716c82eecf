package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-rent-payments/app/confirmation"
	"github.com/vibast-solutions/ms-go-rent-payments/app/gateway"
	"github.com/vibast-solutions/ms-go-rent-payments/app/types"
)

var errPaymentNotCompleted = errors.New("payment was not completed")

type payOptions struct {
	phone     string
	amount    string
	unit      string
	period    string
	narrative string
	gateway   string
}

var payFlags payOptions

var payCmd = &cobra.Command{
	Use:          "pay",
	Short:        "Push one payment prompt and wait for its outcome",
	Long:         "Push a payment prompt to the payer's phone through the configured gateway and poll until it completes, fails, or times out. Ctrl-C stops polling.",
	SilenceUsage: true,
	RunE:         runPay,
}

func init() {
	payCmd.Flags().StringVar(&payFlags.phone, "phone", "", "Payer phone number (07..., +254... or 254...)")
	payCmd.Flags().StringVar(&payFlags.amount, "amount", "", "Amount in whole currency units")
	payCmd.Flags().StringVar(&payFlags.unit, "unit", "", "Unit reference, e.g. B1")
	payCmd.Flags().StringVar(&payFlags.period, "period", "", "Billing period (YYYY-MM)")
	payCmd.Flags().StringVar(&payFlags.narrative, "narrative", "", "Text shown on the payer's prompt")
	payCmd.Flags().StringVar(&payFlags.gateway, "gateway", "", "Gateway code; defaults to PAYMENTS_DEFAULT_GATEWAY")
	_ = payCmd.MarkFlagRequired("phone")
	_ = payCmd.MarkFlagRequired("amount")
	_ = payCmd.MarkFlagRequired("unit")

	rootCmd.AddCommand(payCmd)
}

func runPay(cmd *cobra.Command, _ []string) error {
	cfg := mustLoadConfig()

	req, err := newPayRequest(payFlags, cfg.Payments.PhoneCountryCode)
	if err != nil {
		return err
	}

	gw, err := newGatewayRegistry(cfg).Get(payFlags.gateway)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return payOnce(ctx, gw, confirmationPolicy(cfg), req, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// newPayRequest builds the request with a fresh callback hash, since M-Pesa
// refuses a push without a callback URL even when nobody listens on it.
func newPayRequest(opts payOptions, countryCode string) (confirmation.PaymentRequest, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(opts.amount))
	if err != nil {
		return confirmation.PaymentRequest{}, fmt.Errorf("invalid amount: %w", err)
	}
	if !amount.Equal(amount.Truncate(0)) {
		return confirmation.PaymentRequest{}, errors.New("amount must be a whole number")
	}

	return confirmation.PaymentRequest{
		PayerPhoneNumber: types.NormalizePhoneNumber(opts.phone, countryCode),
		Amount:           amount.IntPart(),
		UnitReference:    strings.TrimSpace(opts.unit),
		BillingPeriod:    strings.TrimSpace(opts.period),
		Narrative:        strings.TrimSpace(opts.narrative),
		CallbackHash:     uuid.NewString(),
	}, nil
}

func payOnce(
	ctx context.Context,
	gw gateway.Gateway,
	policy confirmation.Policy,
	req confirmation.PaymentRequest,
	stdout, stderr io.Writer,
	opts ...confirmation.Option,
) error {
	opts = append(opts, confirmation.WithAttemptObserver(func(a confirmation.PollAttempt) {
		fmt.Fprintf(stderr, "attempt %d: %s\n", a.Number, a.Status)
	}))
	coordinator := confirmation.NewCoordinator(gw, policy, opts...)

	outcome, err := coordinator.InitiateAndConfirm(ctx, req)
	if err != nil {
		var initErr *confirmation.GatewayInitiationError
		if !errors.As(err, &initErr) {
			return err
		}
		logrus.WithError(err).WithField("gateway", gw.Code()).WithField("reason", initErr.Reason).Warn("Gateway rejected the payment prompt")
	}

	fmt.Fprintf(stdout, "outcome: %s (attempts=%d)\n%s\n", outcome, outcome.Attempts, outcome.UserMessage())
	if outcome.Kind != confirmation.OutcomeCompleted {
		return errPaymentNotCompleted
	}
	return nil
}
