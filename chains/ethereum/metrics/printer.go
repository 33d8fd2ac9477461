package metrics

import (
	"fmt"

	"github.com/skip-mev/salvo/chains/ethereum/types"
	batchtypes "github.com/skip-mev/salvo/chains/types"
)

// maxPrintedRejections bounds the per item section so large batches stay readable.
const maxPrintedRejections = 20

func PrintResults(result batchtypes.BatchResult) {
	fmt.Println("\n=== Batch Results ===")
	if result.Name != "" {
		fmt.Printf("Batch: %s\n", result.Name)
	}
	fmt.Printf("Run ID: %s\n", result.RunID)

	fmt.Println("\n🎯 Overall Statistics:")
	fmt.Printf("Total Items: %d\n", result.Summary.Total)
	fmt.Printf("Confirmed: %d\n", result.Summary.Confirmed)
	fmt.Printf("Rejected: %d\n", result.Summary.Rejected)
	fmt.Printf("Cancelled: %d\n", result.Summary.Cancelled)
	fmt.Printf("Broadcast Attempts: %d\n", result.Summary.TotalAttempts)
	fmt.Printf("Runtime: %s\n", result.Summary.Runtime)
	fmt.Printf("Confirmed Per Second: %.2f\n", result.Summary.TPS)
	if result.Summary.ThresholdExceeded {
		fmt.Println("⚠️  Rejection threshold exceeded")
	}
	if result.Error != "" {
		fmt.Printf("Error: %s\n", result.Error)
	}

	if result.Summary.Rejected == 0 {
		return
	}

	fmt.Println("\n❌ Rejected Items:")
	printed := 0
	for _, item := range result.Items {
		if item.Outcome != types.OutcomeRejected.String() {
			continue
		}
		if printed == maxPrintedRejections {
			fmt.Printf("  ... and %d more\n", result.Summary.Rejected-printed)
			break
		}
		fmt.Printf("  #%d %s nonce=%d attempts=%d: %s\n", item.Index, item.Sender, item.Nonce, item.Attempts, item.Reason)
		printed++
	}
}
