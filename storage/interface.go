// Package storage defines the usage-record store for reviewloop.
//
// The store is reporting-only: the cost ledger embedded in the summary
// comment remains the source of truth for cumulative cost. A nil store
// is valid and means usage records are not kept.
package storage

import (
	"context"
)

// Storage defines the interface for reviewloop storage backends.
// Implementations must be safe for concurrent use by multiple goroutines.
type Storage interface {
	// StoreRun records one completed review run.
	StoreRun(ctx context.Context, run *RunRecord) error
	// ListRunsForPR returns all recorded runs for a pull request,
	// oldest first.
	ListRunsForPR(ctx context.Context, owner, repo string, prNumber int) ([]*RunRecord, error)
}
