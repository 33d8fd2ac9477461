package main

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skip-mev/salvo/chains/ethereum/keystore"
)

// defaultAllocBalance is 10,000 ether in wei.
const defaultAllocBalance = "10000000000000000000000"

// AddressesConfig holds the addresses command flags.
type AddressesConfig struct {
	Keys    string
	Balance string
	List    bool
}

func newAddressesCmd() *cobra.Command {
	var cfg AddressesConfig

	cmd := &cobra.Command{
		Use:   "addresses",
		Short: "Print the addresses of a key file as a genesis alloc",
		Long: `Prints a genesis "alloc" object crediting every address of the key file with
--balance wei, ready to paste into a development chain's genesis. With --list only
the addresses are printed, one per line, in key file order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAddresses(commandLogger(cmd), cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.Keys, "keys", "k", "keys.csv", "key file to read")
	cmd.Flags().StringVarP(&cfg.Balance, "balance", "b", defaultAllocBalance, "balance in wei credited to every address")
	cmd.Flags().BoolVar(&cfg.List, "list", false, "print bare addresses instead of an alloc object")
	return cmd
}

func runAddresses(logger *zap.Logger, out io.Writer, cfg AddressesConfig) error {
	records, err := keystore.ReadFile(cfg.Keys)
	var malformed *keystore.MalformedRowsError
	if errors.As(err, &malformed) {
		logger.Warn("skipping malformed key records", zap.Int("rows", len(malformed.Rows)), zap.Error(err))
	} else if err != nil {
		return err
	}

	if cfg.List {
		for _, r := range records {
			if _, err := fmt.Fprintln(out, r.Address().Hex()); err != nil {
				return err
			}
		}
		return nil
	}

	balance, ok := new(big.Int).SetString(cfg.Balance, 10)
	if !ok {
		return fmt.Errorf("invalid balance %q", cfg.Balance)
	}
	alloc, err := keystore.GenesisAlloc(records, balance)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(alloc))
	return err
}
