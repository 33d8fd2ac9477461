package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	logging "github.com/skip-mev/salvo/chains/log"
	"github.com/skip-mev/salvo/config"
)

type rootFlags struct {
	Verbose bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:   "salvo",
		Short: "Batch key generation and transaction submission for EVM chains",
		Long: `salvo generates funded-account key files and drives batches of signed
transactions from them against a node's JSON-RPC endpoint, with bounded
concurrency, per transaction retries and per sender nonce ordering.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			env, err := config.ParseEnv()
			if err != nil {
				return errors.Wrap(err, "failed to parse environment")
			}

			logger, err := logging.DefaultLogger(env.DevLogging || flags.Verbose)
			if err != nil {
				return errors.Wrap(err, "failed to build logger")
			}

			ctx := config.WithEnv(cmd.Context(), env)
			ctx = logging.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "console logging at debug level")

	root.AddCommand(
		newKeygenCmd(),
		newSubmitCmd(),
		newAddressesCmd(),
	)
	return root
}

// commandLogger returns the logger installed by the root command.
func commandLogger(cmd *cobra.Command) *zap.Logger {
	return logging.FromContext(cmd.Context())
}
