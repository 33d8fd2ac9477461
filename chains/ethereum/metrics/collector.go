package metrics

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/skip-mev/salvo/chains/ethereum/types"
	batchtypes "github.com/skip-mev/salvo/chains/types"
)

// ProcessResults folds per item submission results into the persisted batch result.
// Items keep their input positions.
func ProcessResults(runID string, results []types.SubmissionResult, start, end time.Time, thresholdExceeded bool) batchtypes.BatchResult {
	out := batchtypes.BatchResult{
		RunID: runID,
		Items: make([]batchtypes.ItemResult, len(results)),
		Summary: batchtypes.Summary{
			Total:             len(results),
			ThresholdExceeded: thresholdExceeded,
			StartTime:         start,
			EndTime:           end,
			Runtime:           end.Sub(start),
		},
	}

	for i, r := range results {
		switch r.Outcome {
		case types.OutcomeConfirmed:
			out.Summary.Confirmed++
		case types.OutcomeRejected:
			out.Summary.Rejected++
		case types.OutcomeCancelled:
			out.Summary.Cancelled++
		}
		out.Summary.TotalAttempts += r.Attempts
		out.Items[i] = itemResult(r)
	}

	if secs := out.Summary.Runtime.Seconds(); secs > 0 {
		out.Summary.TPS = float64(out.Summary.Confirmed) / secs
	}
	return out
}

func itemResult(r types.SubmissionResult) batchtypes.ItemResult {
	item := batchtypes.ItemResult{
		Index:       r.Index,
		Sender:      r.Envelope.From.Hex(),
		Nonce:       r.Envelope.Nonce,
		Outcome:     r.Outcome.String(),
		BlockNumber: r.BlockNumber,
		Attempts:    r.Attempts,
		Reason:      r.Reason,
	}
	if r.Envelope.To != nil {
		item.To = r.Envelope.To.Hex()
	}
	if r.TxHash != (common.Hash{}) {
		item.TxHash = r.TxHash.Hex()
	}
	return item
}
