package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/engine"
	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/metrics"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// DefaultPerExecutionParallelism and DefaultStepDeadline are spec.md §4.6's
// defaults: 4 concurrent steps per execution, 60s per automated-kind step.
// DefaultCancellationBudget is how long an in-flight executor has to honour
// a cooperative cancellation signal (or a deadline) before the engine records
// the outcome without it and continues cleanup (spec.md §5).
const (
	DefaultPerExecutionParallelism = 4
	DefaultStepDeadline            = 60 * time.Second
	DefaultCancellationBudget      = 5 * time.Second
)

// Scheduler is C6. One Scheduler instance serves every execution; a global
// semaphore bounds total in-flight step dispatches across all of them, and
// each Tick additionally bounds itself to the execution's own parallelism
// limit (spec.md §4.6).
type Scheduler struct {
	engine       *engine.Engine
	executors    *executor.Registry
	library      *steplibrary.Library
	global       chan struct{}
	log          *logrus.Logger
	rng          *rand.Rand
	perExecMax   int
	cancelBudget time.Duration
	metrics      *metrics.Registry
}

// WithMetrics attaches a metrics.Registry that dispatchStep reports step
// dispatch counts/latency and context-version conflicts against. Optional:
// passing nil leaves every record call below a no-op.
func (s *Scheduler) WithMetrics(reg *metrics.Registry) *Scheduler {
	s.metrics = reg
	return s
}

// WithCancellationBudget overrides DefaultCancellationBudget, mainly so tests
// don't wait five real seconds for a misbehaving executor.
func (s *Scheduler) WithCancellationBudget(d time.Duration) *Scheduler {
	if d > 0 {
		s.cancelBudget = d
	}
	return s
}

// New builds a Scheduler with globalParallelism as the process-wide bound on
// concurrent step dispatches (spec.md §4.6: "a global bound
// (implementation-configured)").
func New(eng *engine.Engine, executors *executor.Registry, library *steplibrary.Library, globalParallelism int, log *logrus.Logger) *Scheduler {
	if globalParallelism <= 0 {
		globalParallelism = 64
	}
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{
		engine:       eng,
		executors:    executors,
		library:      library,
		global:       make(chan struct{}, globalParallelism),
		log:          log,
		rng:          rand.New(rand.NewSource(1)),
		perExecMax:   DefaultPerExecutionParallelism,
		cancelBudget: DefaultCancellationBudget,
	}
}

// Tick runs one scheduling pass for executionID: it marks unreachable
// PENDING steps SKIPPED, computes the ready set, dispatches write-key-safe
// groups concurrently up to the per-execution bound, and checks for overall
// completion. Callers loop Tick until the execution reaches a terminal
// status (the scheduler does not busy-loop internally, per spec.md §5).
func (s *Scheduler) Tick(ctx context.Context, executionID string, def types.WorkflowDefinition) error {
	exec, err := s.engine.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != types.ExecutionRunning {
		return nil
	}

	statuses, err := s.engine.StepStatuses(ctx, executionID)
	if err != nil {
		return err
	}
	stateMap := make(map[string]stepState, len(statuses))
	for id, st := range statuses {
		stateMap[id] = stepState{ID: id, Status: st}
	}

	for _, id := range unreachableSteps(&def, stateMap) {
		if err := s.engine.CompleteStepSkipped(ctx, executionID, id, "all dependencies were skipped"); err != nil {
			return err
		}
		stateMap[id] = stepState{ID: id, Status: types.StepSkipped}
	}

	ready := readySteps(&def, stateMap)
	if len(ready) == 0 {
		return s.engine.CheckCompletion(ctx, executionID, def)
	}

	outputKeys := make(map[string][]string, len(ready))
	for _, id := range ready {
		spec, _ := def.StepByID(id)
		keys, err := s.library.OutputKeysFor(spec)
		if err != nil {
			keys = nil // an unknown kind surfaces via the executor dispatch instead
		}
		outputKeys[id] = keys
	}
	positions := make(map[string]int, len(def.Steps))
	for i, step := range def.Steps {
		positions[step.ID] = i
	}
	groups := partitionByWriteKeys(ready, outputKeys, positions)

	perExecSem := make(chan struct{}, s.perExecMax)
	g, gctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			for _, stepID := range group {
				select {
				case perExecSem <- struct{}{}:
				case <-gctx.Done():
					return gctx.Err()
				}
				select {
				case s.global <- struct{}{}:
				case <-gctx.Done():
					<-perExecSem
					return gctx.Err()
				}

				err := s.dispatchStep(gctx, executionID, def, stepID)

				<-s.global
				<-perExecSem
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return s.engine.CheckCompletion(ctx, executionID, def)
}

// dispatchStep runs one step to its next synchronous outcome: a single
// executor invocation, with VersionConflict re-dispatched against a fresh
// snapshot up to the step's retry budget, and a deadline enforced for
// non-AWAITING_INPUT kinds.
func (s *Scheduler) dispatchStep(ctx context.Context, executionID string, def types.WorkflowDefinition, stepID string) error {
	spec, ok := def.StepByID(stepID)
	if !ok {
		return apperror.Newf(apperror.KindInternal, "step %s not found in definition %s", stepID, def.ID)
	}

	var retryCfg *steplibrary.RetryPolicy
	if cfg, err := s.decodeRetryOverride(spec); err == nil {
		retryCfg = cfg
	}
	policy := engine.PolicyFor(retryCfg)

	attempt, snapshot, err := s.engine.BeginStep(ctx, executionID, stepID)
	if err != nil {
		return err
	}

	stepCtx := ctx
	var cancel context.CancelFunc
	if spec.Kind != types.StepKindUserInteraction && spec.Kind != types.StepKindDataCollection && spec.Kind != types.StepKindDecision {
		stepCtx, cancel = context.WithTimeout(ctx, DefaultStepDeadline)
		defer cancel()
	}

	// The executor runs off this goroutine so a cancellation signal (or a
	// deadline) can be acted on even when the executor ignores its context.
	dispatchStart := time.Now()
	resultCh := make(chan executor.StepResult, 1)
	go func() { resultCh <- s.executors.Execute(stepCtx, spec, snapshot) }()

	var result executor.StepResult
	recorded := false
	select {
	case result = <-resultCh:
	case <-stepCtx.Done():
		// Signalled: the executor gets its documented budget to return
		// before the engine moves on without it.
		select {
		case result = <-resultCh:
		case <-time.After(s.cancelBudget):
			s.recordDispatch(spec.Kind, executor.ResultFailed, time.Since(dispatchStart))
			recorded = true
			if s.executionCancelled(executionID) {
				return s.engine.FinalizeCancelledStep(context.Background(), executionID, stepID, attempt, false)
			}
			result = executor.Failed(apperror.KindTimeout, "step deadline exceeded", true)
		}
	}
	if !recorded {
		s.recordDispatch(spec.Kind, result.Kind, time.Since(dispatchStart))
	}

	if ctx.Err() != nil && s.executionCancelled(executionID) {
		// The executor honoured the signal; its result is dropped and the
		// step closes out as SKIPPED (spec.md §4.6: "an in-flight step that
		// completes after cancellation has its result dropped").
		return s.engine.FinalizeCancelledStep(context.Background(), executionID, stepID, attempt, true)
	}

	switch result.Kind {
	case executor.ResultDone:
		if err := s.engine.CompleteStepDone(ctx, executionID, spec, attempt, result.Delta, result.Outputs, snapshot.Metadata.Version); err != nil {
			if apperror.Is(err, apperror.KindVersionConflict) {
				if s.metrics != nil {
					s.metrics.ContextConflicts.Inc()
				}
				return s.retryOnConflict(ctx, executionID, def, stepID, attempt, policy)
			}
			return err
		}
		return nil

	case executor.ResultAwaitInput:
		return s.engine.CompleteStepAwaitInput(ctx, executionID, stepID, attempt, result.Prompt, result.ExpectedKeys)

	case executor.ResultSkipped:
		return s.engine.CompleteStepSkipped(ctx, executionID, stepID, result.Reason)

	case executor.ResultFailed:
		retryable := result.Retryable
		if stepCtx.Err() == context.DeadlineExceeded {
			result.ErrorKind, result.Message, retryable = apperror.KindTimeout, "step deadline exceeded", true
		}
		shouldRetry, err := s.engine.CompleteStepFailed(ctx, executionID, stepID, attempt, policy, result.Outputs, result.ErrorKind, result.Message, retryable)
		if err != nil {
			return err
		}
		if shouldRetry {
			time.Sleep(policy.Backoff(attempt, s.rng))
			return s.dispatchStep(ctx, executionID, def, stepID)
		}
		return nil
	}
	return nil
}

// executionCancelled reports whether the execution has reached CANCELLED; it
// reads with a background context because the caller's own context is the
// one that was just cancelled.
func (s *Scheduler) executionCancelled(executionID string) bool {
	exec, err := s.engine.GetExecution(context.Background(), executionID)
	return err == nil && exec.Status == types.ExecutionCancelled
}

// ValidateInput dry-runs stepID's executor against the current snapshot
// overlaid with input, without committing anything. Steps that reach
// AWAITING_INPUT are deterministic kinds, so the dry run has no side
// effects; a Failed result rejects the input before it is ever committed,
// keeping the execution paused rather than failing it on re-dispatch.
func (s *Scheduler) ValidateInput(ctx context.Context, executionID string, def types.WorkflowDefinition, stepID string, input types.Delta) error {
	spec, ok := def.StepByID(stepID)
	if !ok {
		return apperror.NewNotFound("step " + stepID)
	}
	statuses, err := s.engine.StepStatuses(ctx, executionID)
	if err != nil {
		return err
	}
	if statuses[stepID] != types.StepAwaitingInput {
		return apperror.NewValidationFailed(fmt.Sprintf("step %s/%s is not awaiting input", executionID, stepID))
	}
	snapshot, err := s.engine.Snapshot(ctx, executionID)
	if err != nil {
		return err
	}
	merged := types.CloneData(snapshot.Data)
	for k, v := range input {
		merged[k] = v
	}
	snapshot.Data = merged

	result := s.executors.Execute(ctx, spec, snapshot)
	if result.Kind == executor.ResultFailed {
		return apperror.New(result.ErrorKind, result.Message).WithRetryable(result.Retryable)
	}
	return nil
}

// recordDispatch reports one executor invocation against s.metrics, a no-op
// when none is attached.
func (s *Scheduler) recordDispatch(kind types.StepKind, outcome executor.ResultKind, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.StepDispatches.WithLabelValues(string(kind), string(outcome)).Inc()
	s.metrics.StepDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (s *Scheduler) retryOnConflict(ctx context.Context, executionID string, def types.WorkflowDefinition, stepID string, attempt int, policy engine.RetryPolicy) error {
	if policy.ExhaustedAt(attempt) {
		_, err := s.engine.CompleteStepFailed(ctx, executionID, stepID, attempt, policy, nil, apperror.KindVersionConflict, "context commit lost the race and retries were exhausted", false)
		return err
	}
	return s.dispatchStep(ctx, executionID, def, stepID)
}

func (s *Scheduler) decodeRetryOverride(spec types.StepSpec) (*steplibrary.RetryPolicy, error) {
	cfg, err := s.library.DecodeConfig(spec)
	if err != nil {
		return nil, err
	}
	switch c := cfg.(type) {
	case *steplibrary.DecisionConfig:
		return c.Retry, nil
	case *steplibrary.AIGeneratedConfig:
		return c.Retry, nil
	}
	return nil, nil
}

// idlePollInterval is how long Drive waits after each Tick while the
// execution is still RUNNING — the scheduler suspends between Ticks rather
// than busy-looping (spec.md §5).
const idlePollInterval = 250 * time.Millisecond

// Drive ticks executionID to completion: it loops Tick until the execution
// reaches a terminal status, a step pauses it on AWAITING_INPUT, or ctx is
// cancelled. The boundary layer's StartExecution/ProvideStepInput handlers
// launch Drive in a goroutine rather than ticking synchronously, so an RPC
// caller is never blocked on the full run.
func (s *Scheduler) Drive(ctx context.Context, executionID string, def types.WorkflowDefinition) error {
	for {
		if err := s.Tick(ctx, executionID, def); err != nil {
			return err
		}
		exec, err := s.engine.GetExecution(ctx, executionID)
		if err != nil {
			return err
		}
		if exec.Status != types.ExecutionRunning {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idlePollInterval):
		}
	}
}
