package txfactory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	ethtypes "github.com/skip-mev/salvo/chains/ethereum/types"
	"github.com/skip-mev/salvo/chains/ethereum/wallet"
)

// ErrInvalidTarget is returned when a target is neither empty nor a well formed address.
var ErrInvalidTarget = errors.New("invalid target address")

// Client is what the builder needs from the node.
type Client interface {
	ethereum.GasPricer
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// account tracks nonce assignment for one sender. base is the chain's pending nonce at the
// first build, built is how many envelopes have been assigned since.
type account struct {
	mu     sync.Mutex
	loaded bool
	base   uint64
	built  uint64
}

// Builder assembles unsigned envelopes with strictly increasing nonces per sender.
// It is safe for concurrent use; builds for different senders never contend on the same lock.
type Builder struct {
	logger *zap.Logger
	client Client

	gasMu    sync.Mutex
	gasPrice *big.Int

	mu       sync.Mutex
	accounts map[common.Address]*account
}

// NewBuilder creates a builder. A nil gasPrice means the node's suggestion is fetched once and reused.
func NewBuilder(logger *zap.Logger, client Client, gasPrice *big.Int) *Builder {
	b := &Builder{
		logger:   logger.With(zap.String("module", "tx_builder")),
		client:   client,
		accounts: make(map[common.Address]*account),
	}
	if gasPrice != nil {
		b.gasPrice = new(big.Int).Set(gasPrice)
	}
	return b
}

// Build returns the next envelope for sender. An empty target builds a contract creation with
// payload as init code. A zero gasLimit picks the transfer or contract call default.
// Failures never consume a nonce.
func (b *Builder) Build(ctx context.Context, sender wallet.KeyPair, target string, payload []byte, value *big.Int, gasLimit uint64) (ethtypes.Envelope, error) {
	to, err := parseTarget(target)
	if err != nil {
		return ethtypes.Envelope{}, err
	}

	gasPrice, err := b.suggestGasPrice(ctx)
	if err != nil {
		return ethtypes.Envelope{}, err
	}

	if value == nil {
		value = new(big.Int)
	}
	if gasLimit == 0 {
		gasLimit = ethtypes.ContractCallGasLimit
		if to != nil && len(payload) == 0 {
			gasLimit = ethtypes.TransferGasLimit
		}
	}

	nonce, err := b.nextNonce(ctx, sender.Address())
	if err != nil {
		return ethtypes.Envelope{}, err
	}

	return ethtypes.Envelope{
		From:     sender.Address(),
		To:       to,
		Value:    new(big.Int).Set(value),
		Data:     common.CopyBytes(payload),
		GasLimit: gasLimit,
		GasPrice: new(big.Int).Set(gasPrice),
		Nonce:    nonce,
	}, nil
}

// Outstanding returns how many envelopes have been built for addr since its nonce was last loaded.
func (b *Builder) Outstanding(addr common.Address) uint64 {
	acct := b.account(addr)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.built
}

// Reset forgets the nonce state of addr so the next build queries the chain again.
func (b *Builder) Reset(addr common.Address) {
	b.mu.Lock()
	delete(b.accounts, addr)
	b.mu.Unlock()
}

func (b *Builder) account(addr common.Address) *account {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[addr]
	if !ok {
		acct = &account{}
		b.accounts[addr] = acct
	}
	return acct
}

func (b *Builder) nextNonce(ctx context.Context, addr common.Address) (uint64, error) {
	acct := b.account(addr)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if !acct.loaded {
		base, err := b.client.PendingNonceAt(ctx, addr)
		if err != nil {
			return 0, fmt.Errorf("failed to get nonce of %s: %w", addr.Hex(), err)
		}
		acct.base = base
		acct.loaded = true
		b.logger.Debug("loaded account nonce", zap.String("address", addr.Hex()), zap.Uint64("nonce", base))
	}

	nonce := acct.base + acct.built
	acct.built++
	return nonce, nil
}

func (b *Builder) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	b.gasMu.Lock()
	defer b.gasMu.Unlock()

	if b.gasPrice != nil {
		return b.gasPrice, nil
	}
	price, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	b.gasPrice = price
	b.logger.Debug("using suggested gas price", zap.String("gas_price", price.String()))
	return price, nil
}

func parseTarget(target string) (*common.Address, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, nil
	}
	if !common.IsHexAddress(target) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	addr := common.HexToAddress(target)
	return &addr, nil
}
