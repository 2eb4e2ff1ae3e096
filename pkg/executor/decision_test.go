package executor_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

var _ = Describe("DecisionExecutor", func() {
	var (
		ctx context.Context
		e   *executor.DecisionExecutor
	)

	BeforeEach(func() {
		ctx = context.Background()
		e = executor.NewDecisionExecutor()
	})

	spec := types.StepSpec{
		ID:   "b",
		Kind: types.StepKindDecision,
		Config: map[string]interface{}{
			"inputType": "single",
			"options":   []interface{}{"conservative", "balanced", "aggressive"},
		},
	}

	It("awaits input when no decision has been provided yet", func() {
		result := e.Execute(ctx, spec, types.ContextSnapshot{Data: map[string]types.Value{}})
		Expect(result.Kind).To(Equal(executor.ResultAwaitInput))
	})

	It("emits decision_<step_id> for a valid single selection", func() {
		snapshot := types.ContextSnapshot{Data: map[string]types.Value{
			"decision_input_b": types.String("balanced"),
		}}
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.Kind).To(Equal(executor.ResultDone))
		Expect(result.Delta["decision_b"].StrVal).To(Equal("balanced"))
	})

	It("rejects an option outside the configured set", func() {
		snapshot := types.ContextSnapshot{Data: map[string]types.Value{
			"decision_input_b": types.String("yolo"),
		}}
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.Kind).To(Equal(executor.ResultFailed))
	})

	Context("multi-select with bounds", func() {
		multiSpec := types.StepSpec{
			ID:   "b2",
			Kind: types.StepKindDecision,
			Config: map[string]interface{}{
				"inputType":     "multi",
				"options":       []interface{}{"stocks", "bonds", "cash"},
				"minSelections": 1.0,
				"maxSelections": 2.0,
			},
		}

		It("rejects too many selections", func() {
			snapshot := types.ContextSnapshot{Data: map[string]types.Value{
				"decision_input_b2": types.List([]types.Value{
					types.String("stocks"), types.String("bonds"), types.String("cash"),
				}),
			}}
			result := e.Execute(ctx, multiSpec, snapshot)
			Expect(result.Kind).To(Equal(executor.ResultFailed))
		})

		It("accepts a selection count within bounds", func() {
			snapshot := types.ContextSnapshot{Data: map[string]types.Value{
				"decision_input_b2": types.List([]types.Value{types.String("stocks"), types.String("bonds")}),
			}}
			result := e.Execute(ctx, multiSpec, snapshot)
			Expect(result.Kind).To(Equal(executor.ResultDone))
		})
	})
})
