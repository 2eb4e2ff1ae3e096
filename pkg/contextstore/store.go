// Package contextstore is C2: per-execution shared state, exposed as an
// append-only, versioned commit log (spec.md §4.2).
package contextstore

import (
	"context"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// Store is the Context Store contract of spec.md §4.2. Implementations must
// make Commit a conditional append (VersionConflict if expectedVersion
// doesn't match the current version) and must make History a restartable,
// version-ordered iterator.
type Store interface {
	// Snapshot returns a consistent view of the context and its current
	// version. Reads never observe a partial commit.
	Snapshot(ctx context.Context, executionID string) (types.ContextSnapshot, error)

	// Commit conditionally appends delta, keyed by stepID, iff
	// expectedVersion equals the store's current version for executionID.
	// On success the new version is current+1. On mismatch it returns
	// VersionConflict and does not apply delta.
	Commit(ctx context.Context, executionID, stepID string, delta types.Delta, expectedVersion int64) (int64, error)

	// History returns every commit for executionID in version order.
	History(ctx context.Context, executionID string) ([]types.ContextCommit, error)

	// Purge deletes every commit for executionID (spec.md §6 retention).
	Purge(ctx context.Context, executionID string) error
}

// applyDelta folds delta into data, expressing a null value as a delete per
// spec.md §4.2 ("deletions are expressed as commits of a null value").
func applyDelta(data map[string]types.Value, delta types.Delta) map[string]types.Value {
	out := types.CloneData(data)
	for k, v := range delta {
		if v.IsNull() {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// replay reconstructs the full context state by folding an ordered commit
// history, per spec.md §3 ("committed deltas are append-only and
// reconstruct the full state").
func replay(commits []types.ContextCommit) map[string]types.Value {
	data := make(map[string]types.Value)
	for _, c := range commits {
		data = applyDelta(data, c.Delta)
	}
	return data
}

// versionConflict builds the standard VersionConflict error for a failed
// conditional commit.
func versionConflict(executionID string, expected, current int64) error {
	return apperror.NewVersionConflict(executionID, expected, current)
}
