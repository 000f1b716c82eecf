package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rent-payments",
	Short: "Rent payments microservice",
	Long:  "A rent payments microservice that pushes M-Pesa payment prompts, confirms them, and notifies caller services.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errPaymentNotCompleted) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
