// Package submitter drives batches of signed transactions to a node with bounded concurrency,
// per item retries and per sender nonce ordering.
package submitter

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/skip-mev/salvo/chains/ethereum/metrics"
	ethtypes "github.com/skip-mev/salvo/chains/ethereum/types"
	"github.com/skip-mev/salvo/chains/ethereum/wallet"
)

// Client is the node surface the submitter broadcasts through.
type Client interface {
	ethereum.ChainIDReader
	ethereum.TransactionSender
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Options configures a Submitter.
type Options struct {
	// Concurrency caps simultaneous sign and broadcast calls against the node.
	Concurrency int
	// MaxAttempts is the total number of broadcast attempts per item, first one included.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// BroadcastTimeout bounds each broadcast call.
	BroadcastTimeout time.Duration
	// RejectThreshold is the rejected fraction at which the batch logs a warning.
	RejectThreshold float64
	// AwaitReceipt holds an item until its receipt is seen; reverted receipts reject the item.
	AwaitReceipt        bool
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
	// ChainID skips querying the node when set.
	ChainID *big.Int
}

// DefaultOptions returns the options used when a batch spec leaves them unset.
func DefaultOptions() Options {
	return Options{
		Concurrency:         8,
		MaxAttempts:         5,
		BackoffBase:         500 * time.Millisecond,
		BackoffCap:          8 * time.Second,
		BroadcastTimeout:    10 * time.Second,
		RejectThreshold:     0.5,
		ReceiptTimeout:      30 * time.Second,
		ReceiptPollInterval: 500 * time.Millisecond,
	}
}

// Validate reports the first option that cannot drive a batch.
func (o Options) Validate() error {
	if o.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", o.Concurrency)
	}
	if o.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", o.MaxAttempts)
	}
	if o.BackoffBase < 0 || o.BackoffCap < o.BackoffBase {
		return fmt.Errorf("invalid backoff range [%s, %s]", o.BackoffBase, o.BackoffCap)
	}
	if o.BroadcastTimeout <= 0 {
		return fmt.Errorf("broadcast timeout must be positive")
	}
	if o.AwaitReceipt && (o.ReceiptTimeout <= 0 || o.ReceiptPollInterval <= 0) {
		return fmt.Errorf("receipt timeout and poll interval must be positive")
	}
	return nil
}

// Item pairs an envelope with the key that signs it. A non nil Err marks an item that failed to
// build; it is rejected without being dispatched, or cancelled if the batch already is.
type Item struct {
	Key      wallet.KeyPair
	Envelope ethtypes.Envelope
	Err      error
}

// Report is the outcome of a batch. Results is positionally aligned with the submitted items.
type Report struct {
	Results           []ethtypes.SubmissionResult
	ThresholdExceeded bool
	Cancelled         bool
}

// Submitter signs and broadcasts batches of items through one client.
type Submitter struct {
	logger  *zap.Logger
	client  Client
	opts    Options
	metrics *metrics.Metrics
}

// New creates a submitter. A nil m records metrics nowhere.
func New(logger *zap.Logger, client Client, opts Options, m *metrics.Metrics) (*Submitter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.NewMetrics(nil)
	}
	return &Submitter{
		logger:  logger.With(zap.String("module", "submitter")),
		client:  client,
		opts:    opts,
		metrics: m,
	}, nil
}

// Submit signs and broadcasts items. Per item failures are recorded in the results and never
// returned; the only error is a failure to resolve the chain id, which aborts the batch before
// anything is sent. Cancelling ctx stops dispatch: undispatched items end Cancelled, broadcasts
// already under way complete.
func (s *Submitter) Submit(ctx context.Context, items []Item) (Report, error) {
	results := make([]ethtypes.SubmissionResult, len(items))
	for i, it := range items {
		results[i] = ethtypes.SubmissionResult{
			Index:    i,
			Envelope: it.Envelope,
			Outcome:  ethtypes.OutcomePending,
			State:    ethtypes.StateQueued,
		}
	}
	if len(items) == 0 {
		return Report{Results: results}, nil
	}

	// A cancelled batch never signs, so the chain id is only needed while ctx is live.
	chainID := s.opts.ChainID
	if chainID == nil && ctx.Err() == nil {
		id, err := s.client.ChainID(ctx)
		switch {
		case err == nil:
			chainID = id
		case ctx.Err() == nil:
			return Report{Results: results}, fmt.Errorf("failed to get chain id: %w", err)
		}
	}

	lanes := senderLanes(items)
	s.logger.Info("submitting batch",
		zap.Int("items", len(items)),
		zap.Int("senders", len(lanes)),
		zap.Int("concurrency", s.opts.Concurrency),
		zap.String("chain_id", chainID.String()))

	sem := semaphore.NewWeighted(int64(s.opts.Concurrency))
	var wg sync.WaitGroup
	for _, lane := range lanes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runLane(ctx, sem, chainID, items, results, lane)
		}()
	}
	wg.Wait()

	report := Report{Results: results, Cancelled: ctx.Err() != nil}
	var rejected int
	for _, r := range results {
		s.metrics.Outcomes.WithLabelValues(r.Outcome.String()).Inc()
		if r.Outcome == ethtypes.OutcomeRejected {
			rejected++
		}
	}
	if rejected > 0 && float64(rejected)/float64(len(results)) >= s.opts.RejectThreshold {
		report.ThresholdExceeded = true
		s.logger.Warn("rejected items reached the batch threshold",
			zap.Int("rejected", rejected),
			zap.Int("total", len(results)),
			zap.Float64("threshold", s.opts.RejectThreshold))
	}
	return report, nil
}

// senderLanes groups item indices by sender, each lane in ascending nonce order. Items with equal
// nonces keep their input order. Lanes are ordered by the sender's first appearance.
func senderLanes(items []Item) [][]int {
	var (
		lanes  [][]int
		byAddr = map[common.Address]int{}
	)
	for i, it := range items {
		l, ok := byAddr[it.Envelope.From]
		if !ok {
			l = len(lanes)
			byAddr[it.Envelope.From] = l
			lanes = append(lanes, nil)
		}
		lanes[l] = append(lanes[l], i)
	}
	for _, lane := range lanes {
		slices.SortStableFunc(lane, func(a, b int) int {
			return cmp.Compare(items[a].Envelope.Nonce, items[b].Envelope.Nonce)
		})
	}
	return lanes
}

// runLane dispatches one sender's items in nonce order. The next item starts only once the
// previous one has had its first broadcast answered, or ended without one.
func (s *Submitter) runLane(ctx context.Context, sem *semaphore.Weighted, chainID *big.Int, items []Item, results []ethtypes.SubmissionResult, lane []int) {
	var wg sync.WaitGroup
	for _, idx := range lane {
		released := make(chan struct{})
		release := sync.OnceFunc(func() { close(released) })
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer release()
			s.runItem(ctx, sem, chainID, items[idx], &results[idx], release)
		}()
		<-released
	}
	wg.Wait()
}

func (s *Submitter) runItem(ctx context.Context, sem *semaphore.Weighted, chainID *big.Int, item Item, res *ethtypes.SubmissionResult, release func()) {
	logger := s.logger.With(
		zap.Int("index", res.Index),
		zap.String("from", item.Envelope.From.Hex()),
		zap.Uint64("nonce", item.Envelope.Nonce))

	if err := ctx.Err(); err != nil {
		s.stop(logger, res, 1, err, nil)
		return
	}
	if item.Err != nil {
		s.reject(logger, res, item.Err, metrics.RejectInvalidEnvelope)
		return
	}
	if err := validate(item); err != nil {
		s.reject(logger, res, err, metrics.RejectInvalidEnvelope)
		return
	}

	signer := wallet.NewSigner(item.Key, chainID)
	bo := s.newBackOff()
	var (
		lastErr     error
		broadcastAt time.Time
	)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			s.stop(logger, res, attempt, err, lastErr)
			return
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			s.stop(logger, res, attempt, err, lastErr)
			return
		}

		res.State = ethtypes.StateSigning
		signed, err := signer.SignTx(item.Envelope.Tx())
		if err != nil {
			sem.Release(1)
			s.reject(logger, res, fmt.Errorf("%w: signing: %w", ErrInvalidEnvelope, err), metrics.RejectInvalidEnvelope)
			return
		}

		res.State = ethtypes.StateBroadcasting
		res.Attempts = attempt
		res.TxHash = signed.Hash()
		if broadcastAt.IsZero() {
			broadcastAt = time.Now()
		}
		err = s.broadcast(ctx, signed)
		sem.Release(1)
		release()

		if err == nil && s.opts.AwaitReceipt {
			err = s.awaitReceipt(ctx, logger, signed.Hash(), res, broadcastAt)
		}
		if err == nil {
			res.Outcome = ethtypes.OutcomeConfirmed
			res.State = ethtypes.StateConfirmed
			logger.Debug("item confirmed", zap.String("tx_hash", res.TxHash.Hex()), zap.Int("attempts", attempt))
			return
		}

		lastErr = err
		classified := Classify(err)
		if classified.Permanent {
			if errors.Is(err, ErrReverted) {
				s.reject(logger, res, err, metrics.RejectReverted)
				return
			}
			s.reject(logger, res, classified, metrics.RejectPermanent)
			return
		}
		if attempt >= s.opts.MaxAttempts {
			s.reject(logger, res, fmt.Errorf("giving up after %d attempts: %w", attempt, classified), metrics.RejectRetriesExhausted)
			return
		}

		wait := bo.NextBackOff()
		res.State = ethtypes.StateRetrying
		s.metrics.Retries.Inc()
		logger.Warn("broadcast failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.stop(logger, res, attempt+1, ctx.Err(), lastErr)
			return
		case <-timer.C:
		}
	}
}

// broadcast sends tx. In flight broadcasts are not abandoned on cancellation; each one is
// bounded by the broadcast timeout instead.
func (s *Submitter) broadcast(ctx context.Context, tx *gethtypes.Transaction) error {
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.BroadcastTimeout)
	defer cancel()

	s.metrics.InFlight.Inc()
	defer s.metrics.InFlight.Dec()

	err := s.client.SendTransaction(bctx, tx)
	if isAlreadyKnown(err) {
		err = nil
	}
	if err != nil {
		s.metrics.BroadcastFailure.Inc()
		return err
	}
	s.metrics.BroadcastSuccess.Inc()
	return nil
}

// awaitReceipt polls for the receipt of an accepted broadcast. It does not hold a submission slot.
func (s *Submitter) awaitReceipt(ctx context.Context, logger *zap.Logger, hash common.Hash, res *ethtypes.SubmissionResult, broadcastAt time.Time) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.ReceiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := s.client.TransactionReceipt(rctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.BlockNumber != nil {
				res.BlockNumber = receipt.BlockNumber.Uint64()
			}
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("%w in block %d", ErrReverted, res.BlockNumber)
			}
			s.metrics.TxInclusion.Observe(float64(time.Since(broadcastAt).Milliseconds()))
			return nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			logger.Debug("receipt lookup failed", zap.Error(err))
		}

		select {
		case <-rctx.Done():
			return fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}

// stop ends an item interrupted by cancellation. An item that never broadcast is Cancelled;
// one that already broadcast and was waiting to retry is Rejected with its last failure.
func (s *Submitter) stop(logger *zap.Logger, res *ethtypes.SubmissionResult, attempt int, ctxErr, lastErr error) {
	if attempt == 1 || lastErr == nil {
		res.Outcome = ethtypes.OutcomeCancelled
		res.State = ethtypes.StateCancelled
		res.Reason = ctxErr.Error()
		res.Err = ctxErr
		logger.Debug("item cancelled before dispatch")
		return
	}
	s.reject(logger, res, fmt.Errorf("%w while retrying: %w", ctxErr, lastErr), metrics.RejectCancelled)
}

func (s *Submitter) reject(logger *zap.Logger, res *ethtypes.SubmissionResult, err error, reason metrics.RejectReason) {
	res.Outcome = ethtypes.OutcomeRejected
	res.State = ethtypes.StateRejected
	res.Err = err
	res.Reason = err.Error()
	s.metrics.Rejections.WithLabelValues(string(reason)).Inc()
	logger.Info("item rejected", zap.String("reason", string(reason)), zap.Int("attempts", res.Attempts), zap.Error(err))
}

func (s *Submitter) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.BackoffBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = s.opts.BackoffCap
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func validate(item Item) error {
	env := item.Envelope
	switch {
	case item.Key.IsZero():
		return fmt.Errorf("%w: missing signing key", ErrInvalidEnvelope)
	case item.Key.Address() != env.From:
		return fmt.Errorf("%w: key %s does not sign for %s", ErrInvalidEnvelope, item.Key.Address().Hex(), env.From.Hex())
	case env.GasLimit == 0:
		return fmt.Errorf("%w: zero gas limit", ErrInvalidEnvelope)
	case env.IsContractCreation() && len(env.Data) == 0:
		return fmt.Errorf("%w: contract creation without init code", ErrInvalidEnvelope)
	case env.Value != nil && env.Value.Sign() < 0:
		return fmt.Errorf("%w: negative value", ErrInvalidEnvelope)
	case env.GasPrice == nil || env.GasPrice.Sign() < 0:
		return fmt.Errorf("%w: missing gas price", ErrInvalidEnvelope)
	}
	return nil
}
