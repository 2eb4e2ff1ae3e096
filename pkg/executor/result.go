// Package executor is C3: the deterministic-when-possible step executors
// dispatched by the scheduler, one per types.StepKind (spec.md §4.3).
package executor

import (
	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// ResultKind tags the variant of a StepResult.
type ResultKind string

const (
	ResultDone       ResultKind = "DONE"
	ResultAwaitInput ResultKind = "AWAIT_INPUT"
	ResultFailed     ResultKind = "FAILED"
	ResultSkipped    ResultKind = "SKIPPED"
)

// StepResult is the executor contract's return value (spec.md §4.3): exactly
// one of Done, AwaitInput, Failed, Skipped.
type StepResult struct {
	Kind ResultKind

	// ResultDone
	Delta   types.Delta
	Outputs map[string]types.Value

	// ResultAwaitInput
	Prompt       string
	ExpectedKeys []string

	// ResultFailed
	ErrorKind apperror.Kind
	Message   string
	Retryable bool

	// ResultSkipped
	Reason string
}

func Done(delta types.Delta, outputs map[string]types.Value) StepResult {
	return StepResult{Kind: ResultDone, Delta: delta, Outputs: outputs}
}

func AwaitInput(prompt string, expectedKeys []string) StepResult {
	return StepResult{Kind: ResultAwaitInput, Prompt: prompt, ExpectedKeys: expectedKeys}
}

func Failed(kind apperror.Kind, message string, retryable bool) StepResult {
	return StepResult{Kind: ResultFailed, ErrorKind: kind, Message: message, Retryable: retryable}
}

func Skipped(reason string) StepResult {
	return StepResult{Kind: ResultSkipped, Reason: reason}
}

// AsError converts a ResultFailed into an *apperror.Error the engine can
// record on the step/execution, or nil if r is not a failure.
func (r StepResult) AsError() error {
	if r.Kind != ResultFailed {
		return nil
	}
	return apperror.New(r.ErrorKind, r.Message).WithRetryable(r.Retryable)
}
