package types

import (
	"time"
)

// BatchResult represents the results of a batch run
type BatchResult struct {
	RunID   string       `json:"run_id"`
	Name    string       `json:"name,omitempty"`
	Summary Summary      `json:"summary"`
	Items   []ItemResult `json:"items"`
	Error   string       `json:"error,omitempty"`
}

// Summary holds the per outcome counts of a batch
type Summary struct {
	Total     int
	Confirmed int
	Rejected  int
	Cancelled int
	// TotalAttempts counts every broadcast attempt, retries included.
	TotalAttempts     int
	ThresholdExceeded bool
	Runtime           time.Duration
	StartTime         time.Time
	EndTime           time.Time
	TPS               float64 `json:"TPS,omitempty"`
}

// AllConfirmed reports whether every item was confirmed. An empty batch counts as confirmed.
func (s Summary) AllConfirmed() bool {
	return s.Confirmed == s.Total
}

// ItemResult is the persisted form of one item's outcome, positionally aligned with the batch input.
type ItemResult struct {
	Index       int    `json:"index"`
	Sender      string `json:"sender"`
	To          string `json:"to,omitempty"`
	Nonce       uint64 `json:"nonce"`
	Outcome     string `json:"outcome"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Attempts    int    `json:"attempts"`
	Reason      string `json:"reason,omitempty"`
}
