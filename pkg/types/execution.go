package types

import "time"

// ExecutionStatus is the top-level status of a WorkflowExecution (spec.md §4.5).
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionPaused    ExecutionStatus = "PAUSED"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal reports whether s is a write-once terminal status.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// StepStatus is the status of one StepExecution (spec.md §4.5).
type StepStatus string

const (
	StepPending        StepStatus = "PENDING"
	StepRunning        StepStatus = "RUNNING"
	StepAwaitingInput  StepStatus = "AWAITING_INPUT"
	StepCompleted      StepStatus = "COMPLETED"
	StepFailed         StepStatus = "FAILED"
	StepSkipped        StepStatus = "SKIPPED"
)

// IsTerminal reports whether s is a step's final status for a given attempt.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}

// ExecutionError is populated on a WorkflowExecution iff Status == ExecutionFailed.
type ExecutionError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   string `json:"details,omitempty"`
}

// WorkflowExecution is the mutable, C5-owned record of one run of a
// WorkflowDefinition (spec.md §3).
type WorkflowExecution struct {
	ExecutionID     string          `json:"execution_id"`
	WorkflowID      string          `json:"workflow_id"`
	WorkflowVersion int             `json:"workflow_version"`
	PrincipalID     string          `json:"principal_id"`
	SessionID       string          `json:"session_id"`
	Status          ExecutionStatus `json:"status"`
	CurrentSteps    []string        `json:"current_steps"`
	ContextVersion  int64           `json:"version"`
	StartedAt       time.Time       `json:"started_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Error           *ExecutionError `json:"error,omitempty"`
}

// StepExecution is one (execution_id, step_id) attempt record (spec.md §3).
type StepExecution struct {
	ExecutionID    string          `json:"execution_id"`
	StepID         string          `json:"step_id"`
	Attempt        int             `json:"attempt"`
	Status         StepStatus      `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	DurationMS     int64           `json:"duration_ms"`
	InputSnapshot  map[string]Value `json:"input_snapshot,omitempty"`
	Output         map[string]Value `json:"output,omitempty"`
	Error          *ExecutionError `json:"error,omitempty"`
}

// ContextCommit is one append-only row of the Context Store (spec.md §4.2, §6).
type ContextCommit struct {
	ExecutionID string    `json:"execution_id"`
	Version     int64     `json:"version"`
	StepID      string    `json:"step_id"`
	Delta       Delta     `json:"delta"`
	CommittedAt time.Time `json:"committed_at"`
}

// ContextMetadata is the engine-controlled metadata accompanying Context.data
// (spec.md §3): version plus the id of the step that wrote it most recently.
type ContextMetadata struct {
	Version        int64  `json:"version"`
	LastWriterStep string `json:"last_writer_step_id"`
}

// ContextSnapshot is a consistent, repeatable-read view of a Context at a
// point in time (spec.md §4.2 Snapshot).
type ContextSnapshot struct {
	Data     map[string]Value `json:"data"`
	Metadata ContextMetadata   `json:"metadata"`
}
