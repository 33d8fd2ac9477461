package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skip-mev/salvo/chains"
	batchtypes "github.com/skip-mev/salvo/chains/types"
	"github.com/skip-mev/salvo/config"
)

var errFailed = errors.New("failure")

func newSubmitCmd() *cobra.Command {
	var cfg config.Config

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a batch of transactions described by a batch spec",
		Long: `Loads the batch spec (YAML, or TOML for a .toml file), builds one transaction per
key and template repetition, and submits them. Interrupting the command stops
dispatch; broadcasts already under way complete.

Exit status is 0 when every item is confirmed, 2 when any item is rejected,
3 when the batch was cancelled and 1 when the batch could not be set up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := runSubmit(cmd.Context(), commandLogger(cmd), cfg)
			if code == ExitOK {
				return nil
			}
			return &exitError{code: code, err: err}
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigPath, "config", "c", "", "path to the batch spec file")
	return cmd
}

func runSubmit(ctx context.Context, logger *zap.Logger, cfg config.Config) (int, error) {
	var setupErr error
	exitIfErr := func(err error, message string) bool {
		if err == nil {
			return false
		}
		setupErr = errors.Wrap(err, message)
		saveConfigError(ctx, setupErr, logger)
		logger.Error("Failure", zap.Error(setupErr))
		return true
	}

	if cfg.ConfigPath == "" {
		exitIfErr(errFailed, "config file path is required")
		return ExitSetupFailure, setupErr
	}

	spec, err := batchtypes.LoadSpec(cfg.ConfigPath)
	if exitIfErr(err, "failed to load batch spec") {
		return ExitSetupFailure, setupErr
	}

	batch, err := chains.NewBatch(ctx, logger, spec)
	if exitIfErr(err, "failed to create batch") {
		return ExitSetupFailure, setupErr
	}

	result, err := batch.Run(ctx)
	switch {
	case ctx.Err() != nil:
		logger.Warn("batch cancelled",
			zap.Int("confirmed", result.Summary.Confirmed),
			zap.Int("cancelled", result.Summary.Cancelled))
		return ExitCancelled, ctx.Err()
	case err != nil:
		logger.Error("failed to run batch", zap.Error(err))
		return ExitSetupFailure, err
	case !result.Summary.AllConfirmed():
		return ExitRejected, errors.Errorf("%d of %d items rejected", result.Summary.Rejected, result.Summary.Total)
	}
	return ExitOK, nil
}

// saveConfigError records a setup failure in the results directory so runs that never started
// still leave a result behind.
func saveConfigError(ctx context.Context, err error, logger *zap.Logger) {
	out := batchtypes.BatchResult{
		Error: err.Error(),
	}

	if errSave := chains.SaveResults(out, chains.ResultsPath(ctx, batchtypes.BatchSpec{}, "setup-error"), logger); errSave != nil {
		logger.Error("failed to save results", zap.Error(errSave))
	}
}
