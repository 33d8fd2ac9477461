package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Default gas limits used by the transaction templates.
const (
	TransferGasLimit     uint64 = 21_000
	ContractCallGasLimit uint64 = 429_496
)

// Envelope is an unsigned transaction description awaiting signing.
// A nil To means contract creation, in which case Data holds the init code.
type Envelope struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Value    *big.Int        `json:"value"`
	Data     []byte          `json:"data,omitempty"`
	GasLimit uint64          `json:"gas_limit"`
	GasPrice *big.Int        `json:"gas_price"`
	Nonce    uint64          `json:"nonce"`
}

// IsContractCreation reports whether the envelope deploys a contract.
func (e Envelope) IsContractCreation() bool {
	return e.To == nil
}

// IsValueTransfer reports whether the envelope is a plain value transfer without call data.
func (e Envelope) IsValueTransfer() bool {
	return e.To != nil && len(e.Data) == 0
}

// Tx converts the envelope into an unsigned legacy transaction.
func (e Envelope) Tx() *gethtypes.Transaction {
	value := e.Value
	if value == nil {
		value = new(big.Int)
	}
	return gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    e.Nonce,
		GasPrice: e.GasPrice,
		Gas:      e.GasLimit,
		To:       e.To,
		Value:    value,
		Data:     e.Data,
	})
}

// Outcome is the terminal (or pending) status of a submission.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeConfirmed
	OutcomeRejected
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// IsTerminal reports whether no further transition can happen.
func (o Outcome) IsTerminal() bool {
	return o != OutcomePending
}

// State is a step of an item's lifecycle inside the submitter.
type State int

const (
	StateQueued State = iota
	StateSigning
	StateBroadcasting
	StateRetrying
	StateConfirmed
	StateRejected
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateSigning:
		return "signing"
	case StateBroadcasting:
		return "broadcasting"
	case StateRetrying:
		return "retrying"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SubmissionResult records what happened to one batch item.
type SubmissionResult struct {
	Index    int         `json:"index"`
	Envelope Envelope    `json:"envelope"`
	Outcome  Outcome     `json:"outcome"`
	State    State       `json:"-"`
	TxHash   common.Hash `json:"tx_hash,omitempty"`
	// BlockNumber is only set when receipts are awaited.
	BlockNumber uint64 `json:"block_number,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Err         error  `json:"-"`
	Attempts    int    `json:"attempts"`
}
