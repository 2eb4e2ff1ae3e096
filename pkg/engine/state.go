// Package engine is C5: the execution state machine governing a
// WorkflowExecution's status and its per-step statuses (spec.md §4.5).
package engine

import (
	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// executionTransitions enumerates the allowed execution-status transitions
// of spec.md §4.5. A transition not present here is rejected.
var executionTransitions = map[types.ExecutionStatus][]types.ExecutionStatus{
	types.ExecutionPending: {types.ExecutionRunning},
	types.ExecutionRunning: {types.ExecutionPaused, types.ExecutionCompleted, types.ExecutionFailed, types.ExecutionCancelled},
	types.ExecutionPaused:  {types.ExecutionRunning, types.ExecutionCancelled},
}

// CanTransitionExecution reports whether from -> to is an allowed
// execution-status transition.
func CanTransitionExecution(from, to types.ExecutionStatus) bool {
	for _, allowed := range executionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// stepTransitions enumerates the allowed per-step transitions of spec.md
// §4.5. RUNNING -> FAILED and PENDING -> SKIPPED each have two distinct
// triggers but one transition edge; the trigger is recorded by the caller,
// not by this table.
var stepTransitions = map[types.StepStatus][]types.StepStatus{
	types.StepPending:       {types.StepRunning, types.StepSkipped},
	types.StepRunning:       {types.StepCompleted, types.StepAwaitingInput, types.StepFailed},
	types.StepAwaitingInput: {types.StepRunning},
}

// CanTransitionStep reports whether from -> to is an allowed step-status
// transition.
func CanTransitionStep(from, to types.StepStatus) bool {
	for _, allowed := range stepTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// checkExecutionTransition validates a transition and returns TerminalState
// if the execution is already in a write-once terminal status, or Internal
// if the transition isn't in the allowed table.
func checkExecutionTransition(executionID string, from, to types.ExecutionStatus) error {
	if from.IsTerminal() {
		return apperror.NewTerminalState(executionID, string(from))
	}
	if !CanTransitionExecution(from, to) {
		return apperror.Newf(apperror.KindInternal, "execution %s: illegal transition %s -> %s", executionID, from, to)
	}
	return nil
}
