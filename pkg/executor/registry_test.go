package executor_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

type doneExecutor struct{}

func (doneExecutor) Execute(context.Context, types.StepSpec, types.ContextSnapshot) executor.StepResult {
	return executor.Done(types.Delta{"x": types.Integer(1)}, nil)
}

var _ = Describe("Registry", func() {
	It("starts empty", func() {
		r := executor.NewRegistry()
		Expect(r.Count()).To(Equal(0))
	})

	It("registers and resolves an executor by kind", func() {
		r := executor.NewRegistry()
		r.Register(types.StepKindAutomated, doneExecutor{})
		Expect(r.Count()).To(Equal(1))
		Expect(r.IsRegistered(types.StepKindAutomated)).To(BeTrue())

		exec, err := r.Lookup(types.StepKindAutomated)
		Expect(err).NotTo(HaveOccurred())
		Expect(exec).NotTo(BeNil())
	})

	It("returns UnknownStepKind for an unregistered kind", func() {
		r := executor.NewRegistry()
		_, err := r.Lookup(types.StepKindDecision)
		Expect(apperror.Is(err, apperror.KindUnknownStepKind)).To(BeTrue())
	})

	It("Execute converts an unknown-kind lookup miss into a Failed result", func() {
		r := executor.NewRegistry()
		result := r.Execute(context.Background(), types.StepSpec{ID: "z", Kind: types.StepKindDecision}, types.ContextSnapshot{})
		Expect(result.Kind).To(Equal(executor.ResultFailed))
		Expect(result.ErrorKind).To(Equal(apperror.KindUnknownStepKind))
	})

	It("Execute dispatches to the registered executor", func() {
		r := executor.NewRegistry()
		r.Register(types.StepKindAutomated, doneExecutor{})
		result := r.Execute(context.Background(), types.StepSpec{ID: "z", Kind: types.StepKindAutomated}, types.ContextSnapshot{})
		Expect(result.Kind).To(Equal(executor.ResultDone))
	})

	It("NewDefaultRegistry seeds all six built-in kinds", func() {
		r := executor.NewDefaultRegistry(executor.Providers{})
		for _, kind := range []types.StepKind{
			types.StepKindDataCollection, types.StepKindDecision, types.StepKindValidation,
			types.StepKindUserInteraction, types.StepKindAIGenerated, types.StepKindAutomated,
		} {
			Expect(r.IsRegistered(kind)).To(BeTrue(), "expected %s to be registered", kind)
		}
		Expect(r.Count()).To(Equal(6))
	})
})
