package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/inferpay/inferpay/internal/interfaces/cli/migrate"
	"github.com/inferpay/inferpay/internal/interfaces/cli/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "inferpay",
		Short: "Inferpay - session and metered-payment coordinator",
		Long:  `Inferpay coordinates pre-paid inference sessions: escrow deposits, per-token metering, checkpoints, and settlement.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
