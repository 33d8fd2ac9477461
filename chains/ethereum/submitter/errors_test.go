package submitter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/ethereum/go-ethereum/core"
	"github.com/stretchr/testify/require"
)

type jsonRPCError struct {
	code int
	msg  string
}

func (e jsonRPCError) Error() string  { return e.msg }
func (e jsonRPCError) ErrorCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
		code      int
	}{
		{"nonce too low", jsonRPCError{-32000, "nonce too low: next nonce 4, tx nonce 2"}, true, -32000},
		{"insufficient funds", fmt.Errorf("send: %w", core.ErrInsufficientFunds), true, 0},
		{"invalid params", jsonRPCError{codeInvalidParams, "invalid argument 0"}, true, codeInvalidParams},
		{"invalid envelope", fmt.Errorf("%w: zero gas limit", ErrInvalidEnvelope), true, 0},
		{"reverted", ErrReverted, true, 0},
		{"server busy", jsonRPCError{-32000, "txpool is full"}, false, -32000},
		{"deadline", context.DeadlineExceeded, false, 0},
		{"receipt timeout", ErrReceiptTimeout, false, 0},
		{"connection refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, false, 0},
		{"unknown", errors.New("something odd"), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			require.Equal(t, tt.permanent, got.Permanent)
			require.Equal(t, tt.code, got.Code)
			require.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyKeepsClassification(t *testing.T) {
	require.Nil(t, Classify(nil))

	orig := &RPCError{Code: 7, Message: "custom", Permanent: true}
	require.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig)))
	require.Equal(t, "permanent rpc error 7: custom", orig.Error())
}

func TestIsAlreadyKnown(t *testing.T) {
	require.True(t, isAlreadyKnown(jsonRPCError{-32000, "already known"}))
	require.False(t, isAlreadyKnown(errors.New("nonce too low")))
	require.False(t, isAlreadyKnown(nil))
}
