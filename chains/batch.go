package chains

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skip-mev/salvo/chains/ethereum/keystore"
	"github.com/skip-mev/salvo/chains/ethereum/metrics"
	"github.com/skip-mev/salvo/chains/ethereum/submitter"
	"github.com/skip-mev/salvo/chains/ethereum/txfactory"
	ethtypes "github.com/skip-mev/salvo/chains/ethereum/types"
	"github.com/skip-mev/salvo/chains/ethereum/wallet"
	logging "github.com/skip-mev/salvo/chains/log"
	batchtypes "github.com/skip-mev/salvo/chains/types"
	"github.com/skip-mev/salvo/config"
)

// Batch is one configured submission run over the keys of a key file.
type Batch struct {
	logger  *zap.Logger
	spec    batchtypes.BatchSpec
	client  wallet.Client
	records []keystore.KeyRecord
	runID   string
}

// NewBatch dials the spec's endpoint and loads its keys. Malformed key rows are logged and
// skipped; an unreadable key file aborts.
func NewBatch(ctx context.Context, logger *zap.Logger, spec batchtypes.BatchSpec) (*Batch, error) {
	records, err := keystore.ReadFile(spec.KeysFile)
	var malformed *keystore.MalformedRowsError
	switch {
	case errors.As(err, &malformed):
		for _, row := range malformed.Rows {
			logger.Warn("skipping malformed key record",
				zap.Int("line", row.Line),
				zap.Int("index", row.Index),
				zap.String("reason", row.Reason))
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}

	client, err := wallet.Dial(ctx, spec.RPC, spec.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return NewBatchWithClient(logger, spec, client, records)
}

// NewBatchWithClient creates a batch over an existing client and key records.
func NewBatchWithClient(logger *zap.Logger, spec batchtypes.BatchSpec, client wallet.Client, records []keystore.KeyRecord) (*Batch, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no usable keys in %s", spec.KeysFile)
	}
	if spec.Limit > 0 && spec.Limit < len(records) {
		records = records[:spec.Limit]
	}
	runID := uuid.NewString()
	return &Batch{
		logger:  logger.With(zap.String("module", "batch"), zap.String("run_id", runID)),
		spec:    spec,
		client:  client,
		records: records,
		runID:   runID,
	}, nil
}

// RunID identifies this run in logs and saved results.
func (b *Batch) RunID() string {
	return b.runID
}

// Run builds one item per key and template repetition, submits them, prints a summary and saves
// the results. Per item failures only show in the result; the error reports setup failures and
// failures to save.
func (b *Batch) Run(ctx context.Context) (batchtypes.BatchResult, error) {
	b.logger.Info("starting new batch run", zap.String("name", b.spec.Name), zap.Int("keys", len(b.records)))

	result, err := b.run(ctx)
	if err != nil {
		result.Error = err.Error()
	}

	metrics.PrintResults(result)

	path := ResultsPath(ctx, b.spec, b.runID)
	b.logger.Info("batch run completed, saving results", zap.String("path", path))
	if saveErr := SaveResults(result, path, b.logger); saveErr != nil {
		return result, errors.Join(err, fmt.Errorf("failed to save results: %w", saveErr))
	}
	return result, err
}

func (b *Batch) run(ctx context.Context) (batchtypes.BatchResult, error) {
	empty := batchtypes.BatchResult{RunID: b.runID, Name: b.spec.Name}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	if b.spec.MetricsAddr != "" {
		srv := startPrometheusServer(b.spec.MetricsAddr, registry, b.logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	tpl, err := txfactory.NewTemplate(b.spec.Template)
	if err != nil {
		return empty, fmt.Errorf("invalid template: %w", err)
	}

	chainID, err := b.chainID()
	if err != nil {
		return empty, err
	}

	builder := txfactory.NewBuilder(b.logger, b.client, tpl.GasPrice())
	items := b.buildItems(ctx, builder, tpl)

	sub, err := submitter.New(b.logger, b.client, b.submitOptions(chainID), m)
	if err != nil {
		return empty, err
	}

	start := time.Now()
	report, err := sub.Submit(ctx, items)
	if err != nil {
		return empty, err
	}
	result := metrics.ProcessResults(b.runID, report.Results, start, time.Now(), report.ThresholdExceeded)
	result.Name = b.spec.Name
	return result, nil
}

// chainID returns the spec's chain id, or nil to let the submitter query the node.
func (b *Batch) chainID() (*big.Int, error) {
	if b.spec.ChainID == "" {
		return nil, nil
	}
	id, ok := new(big.Int).SetString(b.spec.ChainID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid chain id %q", b.spec.ChainID)
	}
	return id, nil
}

// buildItems renders the template in key order, TxsPerKey times per key. Senders are built in
// parallel since each first build queries the pending nonce; a sender listed on several rows is
// built by one goroutine in position order so its nonces rise with the position. A build failure
// is kept as a failed item so it is reported in place. Once ctx is cancelled the remaining items
// are left unbuilt and carry the cancellation.
func (b *Batch) buildItems(ctx context.Context, builder *txfactory.Builder, tpl *txfactory.Template) []submitter.Item {
	perKey := b.spec.TxsPerKey
	items := make([]submitter.Item, len(b.records)*perKey)

	type slot struct {
		index int
		rec   keystore.KeyRecord
	}
	var (
		senders  [][]slot
		bySender = map[common.Address]int{}
	)
	for k, rec := range b.records {
		s, ok := bySender[rec.Address()]
		if !ok {
			s = len(senders)
			bySender[rec.Address()] = s
			senders = append(senders, nil)
		}
		for j := range perKey {
			senders[s] = append(senders[s], slot{index: k*perKey + j, rec: rec})
		}
	}

	var g errgroup.Group
	g.SetLimit(max(b.spec.Submit.Concurrency, 1))
	for _, slots := range senders {
		g.Go(func() error {
			for _, sl := range slots {
				if err := ctx.Err(); err != nil {
					items[sl.index] = submitter.Item{Key: sl.rec.Key, Envelope: ethtypes.Envelope{From: sl.rec.Address()}, Err: err}
					continue
				}
				env, err := builder.BuildTemplate(ctx, tpl, sl.index, sl.rec.Key)
				if err != nil {
					b.logger.Warn("failed to build transaction",
						zap.Int("index", sl.index),
						zap.Int("key_index", sl.rec.Index),
						zap.Error(err))
					env.From = sl.rec.Address()
				}
				items[sl.index] = submitter.Item{Key: sl.rec.Key, Envelope: env, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (b *Batch) submitOptions(chainID *big.Int) submitter.Options {
	cfg := b.spec.Submit
	opts := submitter.DefaultOptions()
	opts.Concurrency = cfg.Concurrency
	opts.MaxAttempts = cfg.MaxAttempts
	opts.BackoffBase = cfg.BackoffBase
	opts.BackoffCap = cfg.BackoffCap
	opts.BroadcastTimeout = cfg.BroadcastTimeout
	opts.RejectThreshold = cfg.RejectThreshold
	opts.AwaitReceipt = cfg.AwaitReceipt
	opts.ReceiptTimeout = cfg.ReceiptTimeout
	opts.ChainID = chainID
	return opts
}

// ResultsPath resolves where a run's results are written. A relative results_file is placed in
// the results directory, which defaults to the log directory.
func ResultsPath(ctx context.Context, spec batchtypes.BatchSpec, runID string) string {
	dir := config.EnvFromContext(ctx).ResultsDir
	if dir == "" {
		dir = logging.LogDir
	}
	name := spec.ResultsFile
	if name == "" {
		name = fmt.Sprintf("batch-%s.json", runID)
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// SaveResults writes the batch results as indented JSON to path.
func SaveResults(results batchtypes.BatchResult, path string, logger *zap.Logger) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("failed to create results directory",
			zap.String("dir", dir),
			zap.Error(err))
		return err
	}

	jsonData, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		logger.Error("failed to marshal results to JSON",
			zap.Error(err))
		return err
	}

	if err := os.WriteFile(path, jsonData, 0o644); err != nil {
		logger.Error("failed to write results to file",
			zap.String("path", path),
			zap.Error(err))
		return err
	}

	logger.Debug("successfully saved batch results",
		zap.String("path", path))

	return nil
}
