package submitter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/txpool"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrInvalidEnvelope marks an item that can never be submitted as built.
	ErrInvalidEnvelope = errors.New("invalid envelope")
	// ErrReverted is returned when an awaited receipt reports failed execution.
	ErrReverted = errors.New("transaction reverted")
	// ErrReceiptTimeout is returned when no receipt shows up within the receipt timeout.
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)

// JSON-RPC codes the node uses for requests that can never succeed.
const (
	codeInvalidRequest = -32600
	codeInvalidParams  = -32602
)

// permanentMessages are node rejections that resubmitting the same signed bytes cannot fix.
var permanentMessages = []string{
	core.ErrNonceTooLow.Error(),
	core.ErrInsufficientFunds.Error(),
	core.ErrIntrinsicGas.Error(),
	core.ErrTxTypeNotSupported.Error(),
	txpool.ErrInvalidSender.Error(),
	txpool.ErrReplaceUnderpriced.Error(),
	txpool.ErrGasLimit.Error(),
	txpool.ErrNegativeValue.Error(),
	txpool.ErrOversizedData.Error(),
	types.ErrInvalidSig.Error(),
	types.ErrInvalidChainId.Error(),
}

// RPCError is a classified broadcast failure.
type RPCError struct {
	Code      int
	Message   string
	Permanent bool
	Err       error
}

func (e *RPCError) Error() string {
	kind := "retryable"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s rpc error %d: %s", kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s rpc error: %s", kind, e.Message)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// Classify maps a broadcast or receipt error onto an RPCError. Unknown failures, timeouts and
// transport errors are retryable; malformed requests and known pool rejections are permanent.
func Classify(err error) *RPCError {
	if err == nil {
		return nil
	}
	var classified *RPCError
	if errors.As(err, &classified) {
		return classified
	}

	out := &RPCError{Message: err.Error(), Err: err}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		out.Code = rpcErr.ErrorCode()
	}

	switch {
	case errors.Is(err, ErrInvalidEnvelope), errors.Is(err, ErrReverted):
		out.Permanent = true
	case errors.Is(err, ErrReceiptTimeout), errors.Is(err, context.DeadlineExceeded):
	case isNetError(err):
	case out.Code == codeInvalidRequest || out.Code == codeInvalidParams:
		out.Permanent = true
	default:
		msg := strings.ToLower(out.Message)
		for _, m := range permanentMessages {
			if strings.Contains(msg, m) {
				out.Permanent = true
				break
			}
		}
	}
	return out
}

// isAlreadyKnown reports whether the node already holds the exact transaction, which makes a
// rebroadcast a success.
func isAlreadyKnown(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), txpool.ErrAlreadyKnown.Error())
}

func isNetError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
