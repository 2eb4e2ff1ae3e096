package scheduler_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/contextstore"
	"github.com/ledgerflow/workflowengine/pkg/engine"
	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/scheduler"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

func TestScheduler(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "scheduler Suite")
}

// stubExecutor always returns a fixed StepResult regardless of input, so
// tests can drive the scheduler's dispatch/retry/skip bookkeeping without
// any real business logic. resultWithSnapshot takes priority when set, for
// the rare test that needs to branch on the dispatch-time snapshot (e.g.
// resuming a step after ProvideStepInput committed its answer).
type stubExecutor struct {
	result             func(spec types.StepSpec) executor.StepResult
	resultWithSnapshot func(spec types.StepSpec, snapshot types.ContextSnapshot) executor.StepResult
	calls              int
}

func (s *stubExecutor) Execute(_ context.Context, spec types.StepSpec, snapshot types.ContextSnapshot) executor.StepResult {
	s.calls++
	if s.resultWithSnapshot != nil {
		return s.resultWithSnapshot(spec, snapshot)
	}
	return s.result(spec)
}

// ctxBoundExecutor blocks until its context is signalled, then returns a
// fixed result — the shape of an executor that honours cooperative
// cancellation at its suspension point.
type ctxBoundExecutor struct{ result executor.StepResult }

func (c *ctxBoundExecutor) Execute(ctx context.Context, _ types.StepSpec, _ types.ContextSnapshot) executor.StepResult {
	<-ctx.Done()
	return c.result
}

// sleepyExecutor ignores its context entirely and sleeps — the shape of an
// executor that misses the cancellation budget.
type sleepyExecutor struct{ d time.Duration }

func (s *sleepyExecutor) Execute(context.Context, types.StepSpec, types.ContextSnapshot) executor.StepResult {
	time.Sleep(s.d)
	return executor.Done(nil, nil)
}

func linearDef() types.WorkflowDefinition {
	return types.WorkflowDefinition{
		ID:   "W1",
		Name: "risk profile",
		Steps: []types.StepSpec{
			{ID: "a", Kind: types.StepKindDataCollection, Config: map[string]interface{}{
				"fields": []map[string]interface{}{{"key": "risk_tolerance", "type": "string", "required": true}},
			}},
			{ID: "b", Kind: types.StepKindDecision, Dependencies: []string{"a"}, Config: map[string]interface{}{
				"inputType": "single", "options": []string{"low", "high"},
			}},
		},
		EntryPoints: []string{"a"},
		ExitPoints:  []string{"b"},
	}
}

func branchingDef() types.WorkflowDefinition {
	return types.WorkflowDefinition{
		ID:   "W2",
		Name: "branching",
		Steps: []types.StepSpec{
			{ID: "a", Kind: types.StepKindDataCollection, Config: map[string]interface{}{
				"fields": []map[string]interface{}{{"key": "x", "type": "string", "required": true}},
			}},
			{ID: "b", Kind: types.StepKindValidation, Dependencies: []string{"a"}, Config: map[string]interface{}{
				"checks": []map[string]interface{}{{"name": "n", "predicate": "p", "engine": "gojq"}},
			}},
			{ID: "c", Kind: types.StepKindDecision, Dependencies: []string{"b"}, Config: map[string]interface{}{
				"inputType": "single", "options": []string{"low", "high"},
			}},
		},
		EntryPoints: []string{"a"},
		ExitPoints:  []string{"c"},
	}
}

// diamondDef has two independent entry steps feeding one dependent, so a
// test can skip one entry and complete the other and assert the dependent
// still becomes ready (spec.md §4.6's "otherwise it proceeds").
func diamondDef() types.WorkflowDefinition {
	return types.WorkflowDefinition{
		ID:   "W3",
		Name: "diamond",
		Steps: []types.StepSpec{
			{ID: "a1", Kind: types.StepKindDataCollection, Config: map[string]interface{}{
				"fields": []map[string]interface{}{{"key": "x", "type": "string", "required": true}},
			}},
			{ID: "a2", Kind: types.StepKindDataCollection, Config: map[string]interface{}{
				"fields": []map[string]interface{}{{"key": "y", "type": "string", "required": true}},
			}},
			{ID: "d", Kind: types.StepKindDecision, Dependencies: []string{"a1", "a2"}, Config: map[string]interface{}{
				"inputType": "single", "options": []string{"low", "high"},
			}},
		},
		EntryPoints: []string{"a1", "a2"},
		ExitPoints:  []string{"d"},
	}
}

func newHarness() (*engine.Engine, *steplibrary.Library) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	eng := engine.NewEngine(engine.NewMemoryExecutionStore(), contextstore.NewMemoryStore(), nil, logger)
	return eng, steplibrary.New()
}

var _ = Describe("Scheduler", func() {
	var (
		ctx     context.Context
		eng     *engine.Engine
		library *steplibrary.Library
	)

	BeforeEach(func() {
		ctx = context.Background()
		eng, library = newHarness()
	})

	It("dispatches entry steps, then the newly-ready successor, to completion", func() {
		def := linearDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(types.Delta{"risk_tolerance": types.String("moderate")}, nil)
		}})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(types.Delta{"decision_b": types.String("low")}, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, err := eng.StartExecution(ctx, def, nil, "p1", "s1")
		Expect(err).NotTo(HaveOccurred())

		Expect(sched.Tick(ctx, id, def)).To(Succeed())
		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionRunning))

		Expect(sched.Tick(ctx, id, def)).To(Succeed())
		exec, _ = eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionCompleted))
	})

	It("pauses the execution when a step awaits input, and leaves it paused across Ticks", func() {
		def := linearDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.AwaitInput("need risk tolerance", []string{"risk_tolerance"})
		}})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")

		Expect(sched.Tick(ctx, id, def)).To(Succeed())
		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionPaused))

		Expect(sched.Tick(ctx, id, def)).To(Succeed())
		exec, _ = eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionPaused))
	})

	It("re-dispatches and completes a step after ProvideStepInput resumes it from AWAITING_INPUT", func() {
		def := linearDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{resultWithSnapshot: func(_ types.StepSpec, snapshot types.ContextSnapshot) executor.StepResult {
			if _, ok := snapshot.Data["risk_tolerance"]; ok {
				return executor.Done(nil, nil)
			}
			return executor.AwaitInput("need risk tolerance", []string{"risk_tolerance"})
		}})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(types.Delta{"decision_b": types.String("low")}, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")

		Expect(sched.Tick(ctx, id, def)).To(Succeed()) // a -> AWAITING_INPUT, execution PAUSED
		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionPaused))
		steps, _ := eng.StepStatuses(ctx, id)
		Expect(steps["a"]).To(Equal(types.StepAwaitingInput))

		Expect(eng.ProvideStepInput(ctx, id, "a", types.Delta{"risk_tolerance": types.String("moderate")})).To(Succeed())
		steps, _ = eng.StepStatuses(ctx, id)
		Expect(steps["a"]).To(Equal(types.StepRunning))

		Expect(eng.Resume(ctx, id)).To(Succeed())
		Expect(sched.Tick(ctx, id, def)).To(Succeed()) // a re-dispatched -> COMPLETED, b becomes ready
		Expect(sched.Tick(ctx, id, def)).To(Succeed()) // b -> COMPLETED, exit reached

		exec, _ = eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionCompleted))
		steps, _ = eng.StepStatuses(ctx, id)
		Expect(steps["a"]).To(Equal(types.StepCompleted))
		Expect(steps["b"]).To(Equal(types.StepCompleted))
	})

	It("retries a retryable failure until the executor starts succeeding", func() {
		def := linearDef()
		registry := executor.NewRegistry()
		flaky := &stubExecutor{}
		attempt := 0
		flaky.result = func(types.StepSpec) executor.StepResult {
			attempt++
			if attempt < 2 {
				return executor.Failed(apperror.KindTransient, "flaky provider", true)
			}
			return executor.Done(types.Delta{"risk_tolerance": types.String("moderate")}, nil)
		}
		registry.Register(types.StepKindDataCollection, flaky)
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")

		Expect(sched.Tick(ctx, id, def)).To(Succeed())
		Expect(attempt).To(BeNumerically(">=", 2))

		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionRunning))
	})

	It("fails the execution once a non-retryable step error is reported", func() {
		def := linearDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Failed(apperror.KindValidationFailed, "bad input", false)
		}})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")

		Expect(sched.Tick(ctx, id, def)).To(Succeed())
		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionFailed))
		Expect(exec.Error.Code).To(Equal(string(apperror.KindValidationFailed)))
	})

	It("cascades SKIPPED through a dependent whose only dependency was explicitly skipped", func() {
		def := branchingDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Skipped("not applicable to this principal")
		}})
		registry.Register(types.StepKindValidation, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")

		Expect(sched.Tick(ctx, id, def)).To(Succeed()) // a -> SKIPPED
		Expect(sched.Tick(ctx, id, def)).To(Succeed()) // b unreachable -> SKIPPED
		Expect(sched.Tick(ctx, id, def)).To(Succeed()) // c unreachable -> SKIPPED, then completion check

		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionCompleted))

		steps, err := eng.StepStatuses(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(steps["a"]).To(Equal(types.StepSkipped))
		Expect(steps["b"]).To(Equal(types.StepSkipped))
		Expect(steps["c"]).To(Equal(types.StepSkipped))
	})

	It("dispatches a step whose dependencies are a mix of COMPLETED and SKIPPED", func() {
		def := diamondDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{result: func(spec types.StepSpec) executor.StepResult {
			if spec.ID == "a2" {
				return executor.Skipped("not applicable to this principal")
			}
			return executor.Done(types.Delta{"x": types.String("v")}, nil)
		}})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")

		Expect(sched.Tick(ctx, id, def)).To(Succeed()) // a1 -> COMPLETED, a2 -> SKIPPED
		Expect(sched.Tick(ctx, id, def)).To(Succeed()) // d ready despite a2 SKIPPED -> COMPLETED

		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionCompleted))

		steps, err := eng.StepStatuses(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(steps["a1"]).To(Equal(types.StepCompleted))
		Expect(steps["a2"]).To(Equal(types.StepSkipped))
		Expect(steps["d"]).To(Equal(types.StepCompleted))
	})

	It("is a no-op on an already-terminal execution", func() {
		def := linearDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(types.Delta{"risk_tolerance": types.String("moderate")}, nil)
		}})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")
		eng.Cancel(ctx, id)

		Expect(sched.Tick(ctx, id, def)).To(Succeed())
		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionCancelled))
	})

	It("Drive runs every Tick needed to reach a terminal status on its own", func() {
		def := linearDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(types.Delta{"risk_tolerance": types.String("moderate")}, nil)
		}})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(types.Delta{"decision_b": types.String("low")}, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, err := eng.StartExecution(ctx, def, nil, "p1", "s1")
		Expect(err).NotTo(HaveOccurred())

		Expect(sched.Drive(ctx, id, def)).To(Succeed())
		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionCompleted))
	})

	It("ValidateInput rejects input below minSelections without touching the context", func() {
		def := types.WorkflowDefinition{
			ID:   "W4",
			Name: "catalogue selection",
			Steps: []types.StepSpec{
				{ID: "sel", Kind: types.StepKindUserInteraction, Config: map[string]interface{}{
					"items":         []string{"v", "w", "x", "y", "z"},
					"minSelections": 2,
				}},
			},
			EntryPoints: []string{"sel"},
			ExitPoints:  []string{"sel"},
		}
		registry := executor.NewRegistry()
		registry.Register(types.StepKindUserInteraction, executor.NewUserInteractionExecutor())

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")
		Expect(sched.Tick(ctx, id, def)).To(Succeed()) // sel -> AWAITING_INPUT

		tooFew := types.Delta{"selection_input_sel": types.List([]types.Value{types.String("x")})}
		err := sched.ValidateInput(ctx, id, def, "sel", tooFew)
		Expect(apperror.Is(err, apperror.KindValidationFailed)).To(BeTrue())

		snap, _ := eng.Snapshot(ctx, id)
		Expect(snap.Metadata.Version).To(Equal(int64(0)))

		enough := types.Delta{"selection_input_sel": types.List([]types.Value{types.String("x"), types.String("y")})}
		Expect(sched.ValidateInput(ctx, id, def, "sel", enough)).To(Succeed())
		Expect(eng.ProvideStepInput(ctx, id, "sel", enough)).To(Succeed())
		Expect(eng.Resume(ctx, id)).To(Succeed())
		Expect(sched.Tick(ctx, id, def)).To(Succeed())

		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionCompleted))
	})

	It("serializes steps with overlapping output keys in definition order, not id order", func() {
		// "z-writer" precedes "a-writer" in Steps; both declare the field
		// "notes", so they share a write-key group and must run z first even
		// though id order says otherwise.
		def := types.WorkflowDefinition{
			ID:   "W5",
			Name: "conflicting writers",
			Steps: []types.StepSpec{
				{ID: "z-writer", Kind: types.StepKindDataCollection, Config: map[string]interface{}{
					"fields": []map[string]interface{}{{"key": "notes", "type": "string"}},
				}},
				{ID: "a-writer", Kind: types.StepKindDataCollection, Config: map[string]interface{}{
					"fields": []map[string]interface{}{{"key": "notes", "type": "string"}},
				}},
			},
			EntryPoints: []string{"z-writer", "a-writer"},
			ExitPoints:  []string{"z-writer", "a-writer"},
		}

		var order []string
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{result: func(spec types.StepSpec) executor.StepResult {
			order = append(order, spec.ID)
			return executor.Done(types.Delta{"notes": types.String(spec.ID)}, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")
		Expect(sched.Tick(ctx, id, def)).To(Succeed())

		Expect(order).To(Equal([]string{"z-writer", "a-writer"}))

		snap, _ := eng.Snapshot(ctx, id)
		Expect(snap.Data["notes"].StrVal).To(Equal("a-writer"))
	})

	It("persists a halting step's outputs on the failed StepExecution record", func() {
		logger := logrus.New()
		logger.SetLevel(logrus.ErrorLevel)
		store := engine.NewMemoryExecutionStore()
		eng := engine.NewEngine(store, contextstore.NewMemoryStore(), nil, logger)

		def := linearDef()
		checks := types.List([]types.Value{types.Map(map[string]types.Value{
			"name": types.String("age_ok"), "passed": types.Bool(false),
		})})
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.StepResult{
				Kind:      executor.ResultFailed,
				ErrorKind: apperror.KindValidationFailed,
				Message:   `check "age_ok" failed`,
				Outputs:   map[string]types.Value{"validation_a": types.Bool(false), "validation_a_checks": checks},
			}
		}})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")
		Expect(sched.Tick(ctx, id, def)).To(Succeed())

		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionFailed))

		step, found, err := store.GetStepExecution(ctx, id, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(step.Status).To(Equal(types.StepFailed))
		Expect(step.Output).To(HaveKey("validation_a_checks"))
		Expect(step.Output["validation_a"].BoolVal).To(BeFalse())
	})

	It("finalizes an in-flight step as SKIPPED when the executor honours Cancel", func() {
		def := linearDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &ctxBoundExecutor{result: executor.Done(types.Delta{"risk_tolerance": types.String("late")}, nil)})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")

		driveCtx, cancel := context.WithCancel(ctx)
		eng.RegisterCancel(id, cancel)
		defer eng.UnregisterCancel(id)

		done := make(chan error, 1)
		go func() { done <- sched.Drive(driveCtx, id, def) }()

		Eventually(func() types.StepStatus {
			statuses, _ := eng.StepStatuses(ctx, id)
			return statuses["a"]
		}).Should(Equal(types.StepRunning))

		Expect(eng.Cancel(ctx, id)).To(Succeed())
		Eventually(done).Should(Receive(BeNil()))

		statuses, _ := eng.StepStatuses(ctx, id)
		Expect(statuses["a"]).To(Equal(types.StepSkipped))

		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionCancelled))
		Expect(exec.CurrentSteps).To(BeEmpty())

		// The honoured executor's result was dropped, not committed.
		snap, _ := eng.Snapshot(ctx, id)
		Expect(snap.Metadata.Version).To(Equal(int64(0)))
	})

	It("records CancellationTimedOut when the executor ignores Cancel past its budget", func() {
		logger := logrus.New()
		logger.SetLevel(logrus.ErrorLevel)
		store := engine.NewMemoryExecutionStore()
		eng := engine.NewEngine(store, contextstore.NewMemoryStore(), nil, logger)

		def := linearDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &sleepyExecutor{d: 500 * time.Millisecond})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil).WithCancellationBudget(20 * time.Millisecond)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")

		driveCtx, cancel := context.WithCancel(ctx)
		eng.RegisterCancel(id, cancel)
		defer eng.UnregisterCancel(id)

		done := make(chan error, 1)
		go func() { done <- sched.Drive(driveCtx, id, def) }()

		Eventually(func() types.StepStatus {
			statuses, _ := eng.StepStatuses(ctx, id)
			return statuses["a"]
		}).Should(Equal(types.StepRunning))

		Expect(eng.Cancel(ctx, id)).To(Succeed())
		Eventually(done).Should(Receive(BeNil()))

		step, found, err := store.GetStepExecution(ctx, id, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(step.Status).To(Equal(types.StepFailed))
		Expect(step.Error.Code).To(Equal(string(apperror.KindCancellationTimeout)))
	})

	It("Drive returns once a step pauses the execution on AWAITING_INPUT", func() {
		def := linearDef()
		registry := executor.NewRegistry()
		registry.Register(types.StepKindDataCollection, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.AwaitInput("need risk tolerance", []string{"risk_tolerance"})
		}})
		registry.Register(types.StepKindDecision, &stubExecutor{result: func(types.StepSpec) executor.StepResult {
			return executor.Done(nil, nil)
		}})

		sched := scheduler.New(eng, registry, library, 8, nil)
		id, _ := eng.StartExecution(ctx, def, nil, "p1", "s1")
		Expect(sched.Drive(ctx, id, def)).To(Succeed())

		exec, _ := eng.GetExecution(ctx, id)
		Expect(exec.Status).To(Equal(types.ExecutionPaused))
	})
})
