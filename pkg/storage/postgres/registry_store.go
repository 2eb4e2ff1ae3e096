package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

// RegistryStore implements registry.Store over workflow_definitions.
type RegistryStore struct {
	db *sqlx.DB
}

func NewRegistryStore(db *sqlx.DB) *RegistryStore {
	return &RegistryStore{db: db}
}

func (s *RegistryStore) NextVersion(ctx context.Context, id string) (int, error) {
	var max sql.NullInt32
	err := s.db.GetContext(ctx, &max, `SELECT MAX(version) FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int32) + 1, nil
}

func (s *RegistryStore) Save(ctx context.Context, def *types.WorkflowDefinition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_definitions (id, version, name, description, category, definition, ai_configurable, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		def.ID, def.Version, def.Name, def.Description, def.Category, raw, def.AIConfigurable, def.PublishedAt)
	return err
}

func (s *RegistryStore) Get(ctx context.Context, id string, version int) (*types.WorkflowDefinition, bool, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, `SELECT definition FROM workflow_definitions WHERE id = $1 AND version = $2`, id, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var def types.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, false, err
	}
	return &def, true, nil
}

func (s *RegistryStore) GetLatest(ctx context.Context, id string) (*types.WorkflowDefinition, bool, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, `
		SELECT definition FROM workflow_definitions
		WHERE id = $1 ORDER BY version DESC LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var def types.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, false, err
	}
	return &def, true, nil
}

func (s *RegistryStore) List(ctx context.Context, category string) ([]types.WorkflowSummary, error) {
	query := `
		SELECT DISTINCT ON (id) id, version, name, category, published_at
		FROM workflow_definitions`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY id, version DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.WorkflowSummary
	for rows.Next() {
		var row types.WorkflowSummary
		if err := rows.Scan(&row.ID, &row.Version, &row.Name, &row.Category, &row.PublishedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
