package contextstore

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

// MemoryStore is an in-process Store, safe for concurrent use. It backs
// tests and the CLI's standalone mode; pkg/storage/postgres provides the
// durable equivalent used in production (SPEC_FULL.md §2).
type MemoryStore struct {
	mu      sync.Mutex
	commits map[string][]types.ContextCommit // executionID -> ordered commits
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		commits: make(map[string][]types.ContextCommit),
		clock:   time.Now,
	}
}

func (m *MemoryStore) Snapshot(_ context.Context, executionID string) (types.ContextSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.commits[executionID]
	data := replay(history)
	var lastWriter string
	if len(history) > 0 {
		lastWriter = history[len(history)-1].StepID
	}
	return types.ContextSnapshot{
		Data: data,
		Metadata: types.ContextMetadata{
			Version:        int64(len(history)),
			LastWriterStep: lastWriter,
		},
	}, nil
}

func (m *MemoryStore) Commit(_ context.Context, executionID, stepID string, delta types.Delta, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := int64(len(m.commits[executionID]))
	if expectedVersion != current {
		return 0, versionConflict(executionID, expectedVersion, current)
	}

	commit := types.ContextCommit{
		ExecutionID: executionID,
		Version:     current + 1,
		StepID:      stepID,
		Delta:       delta,
		CommittedAt: m.clock().UTC(),
	}
	m.commits[executionID] = append(m.commits[executionID], commit)
	return commit.Version, nil
}

func (m *MemoryStore) History(_ context.Context, executionID string) ([]types.ContextCommit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.commits[executionID]
	out := make([]types.ContextCommit, len(history))
	copy(out, history)
	return out, nil
}

func (m *MemoryStore) Purge(_ context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.commits, executionID)
	return nil
}
