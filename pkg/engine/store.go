package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// ExecutionStore persists WorkflowExecution and StepExecution records. Every
// status transition must be durable before it is acknowledged to the caller
// (spec.md §4.5); pkg/storage/postgres provides the production
// implementation over the same pool C2 uses.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec types.WorkflowExecution) error
	GetExecution(ctx context.Context, executionID string) (types.WorkflowExecution, error)
	UpdateExecution(ctx context.Context, exec types.WorkflowExecution) error
	ListExecutions(ctx context.Context, principalID string, page types.Page) (types.PageResult[types.WorkflowExecution], error)

	UpsertStepExecution(ctx context.Context, step types.StepExecution) error
	GetStepExecution(ctx context.Context, executionID, stepID string) (types.StepExecution, bool, error)
	ListStepExecutions(ctx context.Context, executionID string) ([]types.StepExecution, error)

	PurgeExecution(ctx context.Context, executionID string) error

	// ListTerminalBefore returns the ids of every execution in a terminal
	// status (COMPLETED/FAILED/CANCELLED) whose CompletedAt is strictly
	// before cutoff, for the retention sweeper (spec.md §6 retention;
	// pkg/retention.Sweeper).
	ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// MemoryExecutionStore is an in-process ExecutionStore, safe for concurrent
// use; it backs tests and the CLI's standalone mode.
type MemoryExecutionStore struct {
	mu         sync.Mutex
	executions map[string]types.WorkflowExecution
	steps      map[string]map[string]types.StepExecution // executionID -> stepID -> latest attempt
	clock      func() time.Time
}

func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		executions: make(map[string]types.WorkflowExecution),
		steps:      make(map[string]map[string]types.StepExecution),
		clock:      time.Now,
	}
}

func (s *MemoryExecutionStore) CreateExecution(_ context.Context, exec types.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ExecutionID] = exec
	return nil
}

func (s *MemoryExecutionStore) GetExecution(_ context.Context, executionID string) (types.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[executionID]
	if !ok {
		return types.WorkflowExecution{}, apperror.NewNotFound("execution " + executionID)
	}
	return exec, nil
}

func (s *MemoryExecutionStore) UpdateExecution(_ context.Context, exec types.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[exec.ExecutionID]; !ok {
		return apperror.NewNotFound("execution " + exec.ExecutionID)
	}
	s.executions[exec.ExecutionID] = exec
	return nil
}

func (s *MemoryExecutionStore) ListExecutions(_ context.Context, principalID string, page types.Page) (types.PageResult[types.WorkflowExecution], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []types.WorkflowExecution
	for _, e := range s.executions {
		if principalID == "" || e.PrincipalID == principalID {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ExecutionID < matched[j].ExecutionID })
	return types.PageResult[types.WorkflowExecution]{Items: matched}, nil
}

func (s *MemoryExecutionStore) UpsertStepExecution(_ context.Context, step types.StepExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.steps[step.ExecutionID] == nil {
		s.steps[step.ExecutionID] = make(map[string]types.StepExecution)
	}
	s.steps[step.ExecutionID][step.StepID] = step
	return nil
}

func (s *MemoryExecutionStore) GetStepExecution(_ context.Context, executionID, stepID string) (types.StepExecution, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[executionID][stepID]
	return step, ok, nil
}

func (s *MemoryExecutionStore) ListStepExecutions(_ context.Context, executionID string) ([]types.StepExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.StepExecution, 0, len(s.steps[executionID]))
	for _, step := range s.steps[executionID] {
		out = append(out, step)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepID < out[j].StepID })
	return out, nil
}

func (s *MemoryExecutionStore) PurgeExecution(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.executions, executionID)
	delete(s.steps, executionID)
	return nil
}

func (s *MemoryExecutionStore) ListTerminalBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, exec := range s.executions {
		if !exec.Status.IsTerminal() || exec.CompletedAt == nil {
			continue
		}
		if exec.CompletedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
