package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// ContextStore implements contextstore.Store over context_commits, replaying
// a row's worth of commits into a snapshot on every read — the same
// replay-on-read model pkg/contextstore.MemoryStore uses, just backed by a
// durable append-only table (spec.md §4.2).
type ContextStore struct {
	db *sqlx.DB
}

func NewContextStore(db *sqlx.DB) *ContextStore {
	return &ContextStore{db: db}
}

type commitRow struct {
	Version     int64  `db:"version"`
	StepID      string `db:"step_id"`
	Delta       []byte `db:"delta"`
	CommittedAt sql.NullTime `db:"committed_at"`
}

func (s *ContextStore) loadCommits(ctx context.Context, executionID string) ([]types.ContextCommit, error) {
	var rows []commitRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT version, step_id, delta, committed_at FROM context_commits
		WHERE execution_id = $1 ORDER BY version ASC`, executionID)
	if err != nil {
		return nil, err
	}

	out := make([]types.ContextCommit, 0, len(rows))
	for _, r := range rows {
		var delta types.Delta
		if err := json.Unmarshal(r.Delta, &delta); err != nil {
			return nil, err
		}
		out = append(out, types.ContextCommit{
			ExecutionID: executionID,
			Version:     r.Version,
			StepID:      r.StepID,
			Delta:       delta,
			CommittedAt: r.CommittedAt.Time,
		})
	}
	return out, nil
}

func (s *ContextStore) Snapshot(ctx context.Context, executionID string) (types.ContextSnapshot, error) {
	commits, err := s.loadCommits(ctx, executionID)
	if err != nil {
		return types.ContextSnapshot{}, err
	}
	data := make(map[string]types.Value)
	var lastWriter string
	for _, c := range commits {
		for k, v := range c.Delta {
			if v.IsNull() {
				delete(data, k)
				continue
			}
			data[k] = v
		}
		lastWriter = c.StepID
	}
	version := int64(0)
	if n := len(commits); n > 0 {
		version = commits[n-1].Version
	}
	return types.ContextSnapshot{
		Data:     data,
		Metadata: types.ContextMetadata{Version: version, LastWriterStep: lastWriter},
	}, nil
}

// Commit performs the conditional append inside a serializable transaction:
// it locks the execution's latest commit row, checks expectedVersion against
// that row's version, and inserts the next row atomically, so two concurrent
// writers racing on the same executionID can't both "win" (spec.md §4.2).
func (s *ContextStore) Commit(ctx context.Context, executionID, stepID string, delta types.Delta, expectedVersion int64) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// Postgres rejects FOR UPDATE combined with an aggregate (MAX), so the
	// row lock has to land on the latest row directly: order by version
	// descending and take the first one. An execution with no commits yet
	// locks nothing here; the surrounding SERIALIZABLE transaction still
	// catches a concurrent first-insert race at commit time.
	var current sql.NullInt64
	err = tx.GetContext(ctx, &current, `
		SELECT version FROM context_commits WHERE execution_id = $1
		ORDER BY version DESC LIMIT 1 FOR UPDATE`, executionID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	currentVersion := int64(0)
	if current.Valid {
		currentVersion = current.Int64
	}
	if currentVersion != expectedVersion {
		return 0, apperror.NewVersionConflict(executionID, expectedVersion, currentVersion)
	}

	raw, err := json.Marshal(delta)
	if err != nil {
		return 0, err
	}
	next := currentVersion + 1
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO context_commits (execution_id, version, step_id, delta)
		VALUES ($1, $2, $3, $4)`, executionID, next, stepID, raw); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *ContextStore) History(ctx context.Context, executionID string) ([]types.ContextCommit, error) {
	return s.loadCommits(ctx, executionID)
}

func (s *ContextStore) Purge(ctx context.Context, executionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM context_commits WHERE execution_id = $1`, executionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
