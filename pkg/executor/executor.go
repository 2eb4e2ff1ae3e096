package executor

import (
	"context"
	"fmt"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// Executor is the step executor contract of spec.md §4.3. Implementations
// other than AI_GENERATED must be deterministic functions of
// (spec, snapshot); none may perform I/O except through the provider
// interfaces passed at construction time.
type Executor interface {
	Execute(ctx context.Context, spec types.StepSpec, snapshot types.ContextSnapshot) StepResult
}

// Registry is the process-wide table of executors keyed by step kind,
// resolved by the scheduler at dispatch time (spec.md §4.1, §4.6).
type Registry struct {
	executors map[types.StepKind]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[types.StepKind]Executor)}
}

// Register adds or replaces the executor for kind.
func (r *Registry) Register(kind types.StepKind, exec Executor) {
	r.executors[kind] = exec
}

// IsRegistered reports whether kind has a registered executor.
func (r *Registry) IsRegistered(kind types.StepKind) bool {
	_, ok := r.executors[kind]
	return ok
}

// Count returns the number of registered executors.
func (r *Registry) Count() int {
	return len(r.executors)
}

// Lookup resolves the executor for kind, or UnknownStepKind.
func (r *Registry) Lookup(kind types.StepKind) (Executor, error) {
	exec, ok := r.executors[kind]
	if !ok {
		return nil, apperror.Newf(apperror.KindUnknownStepKind, "no executor registered for step kind %q", kind)
	}
	return exec, nil
}

// Execute resolves and invokes the executor for spec.Kind, converting an
// UnknownStepKind lookup miss into a Failed(UnknownStepKind, ...) result so
// callers always receive a StepResult rather than a bare error.
func (r *Registry) Execute(ctx context.Context, spec types.StepSpec, snapshot types.ContextSnapshot) StepResult {
	exec, err := r.Lookup(spec.Kind)
	if err != nil {
		return Failed(apperror.KindUnknownStepKind, fmt.Sprintf("step %s: %v", spec.ID, err), false)
	}
	return exec.Execute(ctx, spec, snapshot)
}

// NewDefaultRegistry returns a Registry pre-seeded with the six built-in
// executors, wired to the given provider implementations.
func NewDefaultRegistry(providers Providers) *Registry {
	r := NewRegistry()
	r.Register(types.StepKindDataCollection, NewDataCollectionExecutor())
	r.Register(types.StepKindDecision, NewDecisionExecutor())
	r.Register(types.StepKindValidation, NewValidationExecutor(providers.Predicates))
	r.Register(types.StepKindUserInteraction, NewUserInteractionExecutor())
	r.Register(types.StepKindAIGenerated, NewAIGeneratedExecutor(providers.AI))
	r.Register(types.StepKindAutomated, NewAutomatedExecutor(providers.MarketData, providers.PostConditions))
	return r
}
