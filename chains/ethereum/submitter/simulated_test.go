package submitter

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/skip-mev/salvo/chains/ethereum/txfactory"
	ethtypes "github.com/skip-mev/salvo/chains/ethereum/types"
	"github.com/skip-mev/salvo/chains/ethereum/wallet"
)

func setupSimulated(t *testing.T, funded []wallet.KeyPair) *simulated.Backend {
	t.Helper()
	balance, _ := new(big.Int).SetString("10000000000000000000000", 10)
	alloc := types.GenesisAlloc{}
	for _, k := range funded {
		alloc[k.Address()] = types.Account{Balance: balance}
	}
	sim := simulated.NewBackend(alloc)
	t.Cleanup(func() { _ = sim.Close() })
	return sim
}

// autoCommit mines a block every interval until the test ends.
func autoCommit(t *testing.T, sim *simulated.Backend, interval time.Duration) {
	t.Helper()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sim.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		wg.Wait()
	})
}

func buildTransfers(t *testing.T, b *txfactory.Builder, keys []wallet.KeyPair, perKey int) []Item {
	t.Helper()
	var items []Item
	for _, k := range keys {
		for range perKey {
			env, err := b.Build(context.Background(), k, target, nil, big.NewInt(1_000), 0)
			require.NoError(t, err)
			items = append(items, Item{Key: k, Envelope: env})
		}
	}
	return items
}

func TestSubmitOnSimulatedChain(t *testing.T) {
	keys := newKeys(t, 3)
	sim := setupSimulated(t, keys)
	client := sim.Client()
	ctx := context.Background()

	b := txfactory.NewBuilder(zaptest.NewLogger(t), client, nil)
	items := buildTransfers(t, b, keys, 1)

	opts := testOptions()
	opts.Concurrency = 2
	report, err := newSubmitter(t, client, opts).Submit(ctx, items)
	require.NoError(t, err)
	sim.Commit()

	require.Len(t, report.Results, 3)
	for i, r := range report.Results {
		require.Equal(t, i, r.Index)
		require.Equal(t, ethtypes.OutcomeConfirmed, r.Outcome, r.Reason)
		require.Equal(t, keys[i].Address(), r.Envelope.From)

		receipt, err := client.TransactionReceipt(ctx, r.TxHash)
		require.NoError(t, err)
		require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	}

	balance, err := client.BalanceAt(ctx, common.HexToAddress(target), nil)
	require.NoError(t, err)
	require.Equal(t, int64(3_000), balance.Int64())
}

func TestSubmitOnSimulatedChainAwaitingReceipts(t *testing.T) {
	keys := newKeys(t, 3)
	// the last key is never funded
	sim := setupSimulated(t, keys[:2])
	client := sim.Client()
	autoCommit(t, sim, 20*time.Millisecond)

	b := txfactory.NewBuilder(zaptest.NewLogger(t), client, nil)
	items := buildTransfers(t, b, keys, 3)

	opts := testOptions()
	opts.AwaitReceipt = true
	opts.ReceiptTimeout = 5 * time.Second
	report, err := newSubmitter(t, client, opts).Submit(context.Background(), items)
	require.NoError(t, err)

	require.Len(t, report.Results, 9)
	for _, r := range report.Results {
		if r.Envelope.From == keys[2].Address() {
			require.Equal(t, ethtypes.OutcomeRejected, r.Outcome)
			require.Equal(t, 1, r.Attempts)
			var rpcErr *RPCError
			require.ErrorAs(t, r.Err, &rpcErr)
			require.True(t, rpcErr.Permanent, rpcErr.Message)
			continue
		}
		require.Equal(t, ethtypes.OutcomeConfirmed, r.Outcome, r.Reason)
		require.NotZero(t, r.BlockNumber)
	}
	require.False(t, report.ThresholdExceeded)
}
