package wallet

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is the subset of a go-ethereum client used to build and submit batches.
// *ethclient.Client and the simulated backend client both satisfy it.
type Client interface {
	ethereum.ChainIDReader
	ethereum.GasPricer
	ethereum.TransactionSender
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Dial connects to a node's JSON-RPC endpoint over HTTP(S) or websocket.
// requestTimeout caps every request made over an HTTP transport.
func Dial(ctx context.Context, endpoint string, requestTimeout time.Duration) (*ethclient.Client, error) {
	tr := &http.Transport{
		MaxConnsPerHost:     64,
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	hc := &http.Client{
		Transport: tr,
		Timeout:   requestTimeout,
	}
	rpcClient, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("failed construct RPC client for %s: %w", endpoint, err)
	}
	return ethclient.NewClient(rpcClient), nil
}
