package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// ExecutionStore implements engine.ExecutionStore over executions and
// step_executions, mirroring pkg/engine.MemoryExecutionStore's shape one
// row per execution, one row per (execution_id, step_id) latest attempt.
type ExecutionStore struct {
	db *sqlx.DB
}

func NewExecutionStore(db *sqlx.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

type executionRow struct {
	ExecutionID     string         `db:"execution_id"`
	WorkflowID      string         `db:"workflow_id"`
	WorkflowVersion int            `db:"workflow_version"`
	PrincipalID     string         `db:"principal_id"`
	SessionID       string         `db:"session_id"`
	Status          string         `db:"status"`
	CurrentSteps    []byte         `db:"current_steps"`
	ContextVersion  int64          `db:"context_version"`
	StartedAt       sql.NullTime   `db:"started_at"`
	UpdatedAt       sql.NullTime   `db:"updated_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	ErrorCode       sql.NullString `db:"error_code"`
	ErrorMessage    sql.NullString `db:"error_message"`
	ErrorRetryable  sql.NullBool   `db:"error_retryable"`
	ErrorDetails    sql.NullString `db:"error_details"`
}

func (r executionRow) toDomain() (types.WorkflowExecution, error) {
	var steps []string
	if len(r.CurrentSteps) > 0 {
		if err := json.Unmarshal(r.CurrentSteps, &steps); err != nil {
			return types.WorkflowExecution{}, err
		}
	}
	exec := types.WorkflowExecution{
		ExecutionID:     r.ExecutionID,
		WorkflowID:      r.WorkflowID,
		WorkflowVersion: r.WorkflowVersion,
		PrincipalID:     r.PrincipalID,
		SessionID:       r.SessionID,
		Status:          types.ExecutionStatus(r.Status),
		CurrentSteps:    steps,
		ContextVersion:  r.ContextVersion,
		StartedAt:       r.StartedAt.Time,
		UpdatedAt:       r.UpdatedAt.Time,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		exec.CompletedAt = &t
	}
	if r.ErrorCode.Valid {
		exec.Error = &types.ExecutionError{
			Code:      r.ErrorCode.String,
			Message:   r.ErrorMessage.String,
			Retryable: r.ErrorRetryable.Bool,
			Details:   r.ErrorDetails.String,
		}
	}
	return exec, nil
}

func (s *ExecutionStore) CreateExecution(ctx context.Context, exec types.WorkflowExecution) error {
	steps, err := json.Marshal(exec.CurrentSteps)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (
			execution_id, workflow_id, workflow_version, principal_id, session_id,
			status, current_steps, context_version, started_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		exec.ExecutionID, exec.WorkflowID, exec.WorkflowVersion, exec.PrincipalID, exec.SessionID,
		string(exec.Status), steps, exec.ContextVersion, exec.StartedAt, exec.UpdatedAt)
	return err
}

func (s *ExecutionStore) GetExecution(ctx context.Context, executionID string) (types.WorkflowExecution, error) {
	var row executionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT execution_id, workflow_id, workflow_version, principal_id, session_id,
		       status, current_steps, context_version, started_at, updated_at,
		       completed_at, error_code, error_message, error_retryable, error_details
		FROM executions WHERE execution_id = $1`, executionID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.WorkflowExecution{}, apperror.NewNotFound("execution " + executionID)
	}
	if err != nil {
		return types.WorkflowExecution{}, err
	}
	return row.toDomain()
}

func (s *ExecutionStore) UpdateExecution(ctx context.Context, exec types.WorkflowExecution) error {
	steps, err := json.Marshal(exec.CurrentSteps)
	if err != nil {
		return err
	}
	var errCode, errMessage, errDetails sql.NullString
	var errRetryable sql.NullBool
	if exec.Error != nil {
		errCode = sql.NullString{String: exec.Error.Code, Valid: true}
		errMessage = sql.NullString{String: exec.Error.Message, Valid: true}
		errDetails = sql.NullString{String: exec.Error.Details, Valid: true}
		errRetryable = sql.NullBool{Bool: exec.Error.Retryable, Valid: true}
	}
	var completedAt sql.NullTime
	if exec.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *exec.CompletedAt, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE executions SET
			status = $2, current_steps = $3, context_version = $4, updated_at = $5,
			completed_at = $6, error_code = $7, error_message = $8, error_retryable = $9, error_details = $10
		WHERE execution_id = $1`,
		exec.ExecutionID, string(exec.Status), steps, exec.ContextVersion, exec.UpdatedAt,
		completedAt, errCode, errMessage, errRetryable, errDetails)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("execution " + exec.ExecutionID)
	}
	return nil
}

func (s *ExecutionStore) ListExecutions(ctx context.Context, principalID string, page types.Page) (types.PageResult[types.WorkflowExecution], error) {
	size := page.Size
	if size <= 0 {
		size = 50
	}

	query := `
		SELECT execution_id, workflow_id, workflow_version, principal_id, session_id,
		       status, current_steps, context_version, started_at, updated_at,
		       completed_at, error_code, error_message, error_retryable, error_details
		FROM executions WHERE ($1 = '' OR principal_id = $1) AND execution_id > $2
		ORDER BY execution_id ASC LIMIT $3`

	var rows []executionRow
	if err := s.db.SelectContext(ctx, &rows, query, principalID, page.Token, size+1); err != nil {
		return types.PageResult[types.WorkflowExecution]{}, err
	}

	var next string
	if len(rows) > size {
		next = rows[size-1].ExecutionID
		rows = rows[:size]
	}

	out := make([]types.WorkflowExecution, 0, len(rows))
	for _, r := range rows {
		exec, err := r.toDomain()
		if err != nil {
			return types.PageResult[types.WorkflowExecution]{}, err
		}
		out = append(out, exec)
	}
	return types.PageResult[types.WorkflowExecution]{Items: out, NextPageToken: next}, nil
}

type stepExecutionRow struct {
	ExecutionID    string          `db:"execution_id"`
	StepID         string          `db:"step_id"`
	Attempt        int             `db:"attempt"`
	Status         string          `db:"status"`
	StartedAt      sql.NullTime    `db:"started_at"`
	FinishedAt     sql.NullTime    `db:"finished_at"`
	DurationMS     int64           `db:"duration_ms"`
	InputSnapshot  []byte          `db:"input_snapshot"`
	Output         []byte          `db:"output"`
	ErrorCode      sql.NullString  `db:"error_code"`
	ErrorMessage   sql.NullString  `db:"error_message"`
	ErrorRetryable sql.NullBool    `db:"error_retryable"`
	ErrorDetails   sql.NullString  `db:"error_details"`
}

func (r stepExecutionRow) toDomain() (types.StepExecution, error) {
	step := types.StepExecution{
		ExecutionID: r.ExecutionID,
		StepID:      r.StepID,
		Attempt:     r.Attempt,
		Status:      types.StepStatus(r.Status),
		StartedAt:   r.StartedAt.Time,
		DurationMS:  r.DurationMS,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		step.FinishedAt = &t
	}
	if len(r.InputSnapshot) > 0 {
		if err := json.Unmarshal(r.InputSnapshot, &step.InputSnapshot); err != nil {
			return types.StepExecution{}, err
		}
	}
	if len(r.Output) > 0 {
		if err := json.Unmarshal(r.Output, &step.Output); err != nil {
			return types.StepExecution{}, err
		}
	}
	if r.ErrorCode.Valid {
		step.Error = &types.ExecutionError{
			Code:      r.ErrorCode.String,
			Message:   r.ErrorMessage.String,
			Retryable: r.ErrorRetryable.Bool,
			Details:   r.ErrorDetails.String,
		}
	}
	return step, nil
}

func (s *ExecutionStore) UpsertStepExecution(ctx context.Context, step types.StepExecution) error {
	input, err := json.Marshal(step.InputSnapshot)
	if err != nil {
		return err
	}
	output, err := json.Marshal(step.Output)
	if err != nil {
		return err
	}
	var errCode, errMessage, errDetails sql.NullString
	var errRetryable sql.NullBool
	if step.Error != nil {
		errCode = sql.NullString{String: step.Error.Code, Valid: true}
		errMessage = sql.NullString{String: step.Error.Message, Valid: true}
		errDetails = sql.NullString{String: step.Error.Details, Valid: true}
		errRetryable = sql.NullBool{Bool: step.Error.Retryable, Valid: true}
	}
	var finishedAt sql.NullTime
	if step.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *step.FinishedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO step_executions (
			execution_id, step_id, attempt, status, started_at, finished_at, duration_ms,
			input_snapshot, output, error_code, error_message, error_retryable, error_details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (execution_id, step_id) DO UPDATE SET
			attempt = EXCLUDED.attempt, status = EXCLUDED.status, started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at, duration_ms = EXCLUDED.duration_ms,
			input_snapshot = EXCLUDED.input_snapshot, output = EXCLUDED.output,
			error_code = EXCLUDED.error_code, error_message = EXCLUDED.error_message,
			error_retryable = EXCLUDED.error_retryable, error_details = EXCLUDED.error_details`,
		step.ExecutionID, step.StepID, step.Attempt, string(step.Status), step.StartedAt, finishedAt, step.DurationMS,
		input, output, errCode, errMessage, errRetryable, errDetails)
	return err
}

func (s *ExecutionStore) GetStepExecution(ctx context.Context, executionID, stepID string) (types.StepExecution, bool, error) {
	var row stepExecutionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT execution_id, step_id, attempt, status, started_at, finished_at, duration_ms,
		       input_snapshot, output, error_code, error_message, error_retryable, error_details
		FROM step_executions WHERE execution_id = $1 AND step_id = $2`, executionID, stepID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.StepExecution{}, false, nil
	}
	if err != nil {
		return types.StepExecution{}, false, err
	}
	step, err := row.toDomain()
	if err != nil {
		return types.StepExecution{}, false, err
	}
	return step, true, nil
}

func (s *ExecutionStore) ListStepExecutions(ctx context.Context, executionID string) ([]types.StepExecution, error) {
	var rows []stepExecutionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT execution_id, step_id, attempt, status, started_at, finished_at, duration_ms,
		       input_snapshot, output, error_code, error_message, error_retryable, error_details
		FROM step_executions WHERE execution_id = $1 ORDER BY step_id ASC`, executionID)
	if err != nil {
		return nil, err
	}
	out := make([]types.StepExecution, 0, len(rows))
	for _, r := range rows {
		step, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, nil
}

func (s *ExecutionStore) PurgeExecution(ctx context.Context, executionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE execution_id = $1`, executionID)
	return err
}

// ListTerminalBefore backs the retention sweeper (pkg/retention): it finds
// every execution whose terminal status was reached before cutoff.
func (s *ExecutionStore) ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT execution_id FROM executions
		WHERE status IN ($1, $2, $3) AND completed_at IS NOT NULL AND completed_at < $4
		ORDER BY execution_id ASC`,
		string(types.ExecutionCompleted), string(types.ExecutionFailed), string(types.ExecutionCancelled), cutoff)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
