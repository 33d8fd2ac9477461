package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skip-mev/salvo/chains/ethereum/keystore"
	"github.com/skip-mev/salvo/chains/ethereum/wallet"
)

// KeygenConfig holds the keygen command flags.
type KeygenConfig struct {
	Count int
	Out   string
	Force bool
}

func newKeygenCmd() *cobra.Command {
	var cfg KeygenConfig

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate key pairs and write them to a key file",
		Long: `Generates --count fresh secp256k1 key pairs from the system CSPRNG and writes
them atomically to a PrivateKey,Address CSV file. Row order is the sender order
used by submit.

Examples:
  salvo keygen --count 200 --out keys.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeygen(commandLogger(cmd), cfg)
		},
	}

	cmd.Flags().IntVarP(&cfg.Count, "count", "n", 0, "number of key pairs to generate")
	cmd.Flags().StringVarP(&cfg.Out, "out", "o", "keys.csv", "key file to write")
	cmd.Flags().BoolVarP(&cfg.Force, "force", "f", false, "replace an existing key file")
	_ = cmd.MarkFlagRequired("count")
	return cmd
}

func runKeygen(logger *zap.Logger, cfg KeygenConfig) error {
	if cfg.Count < 0 {
		return fmt.Errorf("count must not be negative, got %d", cfg.Count)
	}
	if !cfg.Force {
		if _, err := os.Stat(cfg.Out); err == nil {
			return fmt.Errorf("%s already exists, use --force to replace it", cfg.Out)
		}
	}

	keys, err := wallet.NewGenerator(nil).GenerateAll(cfg.Count)
	if err != nil {
		return errors.Wrap(err, "failed to generate keys")
	}
	if err := keystore.WriteFile(cfg.Out, keystore.NewRecords(keys)); err != nil {
		return errors.Wrap(err, "failed to write key file")
	}

	logger.Info("generated keys", zap.Int("count", len(keys)), zap.String("path", cfg.Out))
	return nil
}
