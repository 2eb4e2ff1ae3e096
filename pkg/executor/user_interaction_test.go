package executor_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

var _ = Describe("UserInteractionExecutor", func() {
	var (
		ctx context.Context
		e   *executor.UserInteractionExecutor
	)

	BeforeEach(func() {
		ctx = context.Background()
		e = executor.NewUserInteractionExecutor()
	})

	spec := types.StepSpec{
		ID:   "d",
		Kind: types.StepKindUserInteraction,
		Config: map[string]interface{}{
			"items":         []interface{}{"mutual_fund", "etf", "bond"},
			"minSelections": 1.0,
			"maxSelections": 2.0,
		},
	}

	It("awaits selection when none has been provided", func() {
		result := e.Execute(ctx, spec, types.ContextSnapshot{})
		Expect(result.Kind).To(Equal(executor.ResultAwaitInput))
	})

	It("emits selection_<step_id> for a valid in-bounds selection", func() {
		snapshot := types.ContextSnapshot{Data: map[string]types.Value{
			"selection_input_d": types.List([]types.Value{types.String("etf")}),
		}}
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.Kind).To(Equal(executor.ResultDone))
		Expect(result.Delta["selection_d"].ListVal).To(HaveLen(1))
	})

	It("rejects a selection outside the catalogue", func() {
		snapshot := types.ContextSnapshot{Data: map[string]types.Value{
			"selection_input_d": types.List([]types.Value{types.String("crypto")}),
		}}
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.Kind).To(Equal(executor.ResultFailed))
	})

	It("resolves the catalogue from a prior step's output when itemsFromStep is set", func() {
		dynSpec := spec
		dynSpec.Config = map[string]interface{}{"itemsFromStep": "candidate_funds", "minSelections": 1.0}
		snapshot := types.ContextSnapshot{Data: map[string]types.Value{
			"candidate_funds":    types.List([]types.Value{types.String("fund_a"), types.String("fund_b")}),
			"selection_input_d": types.List([]types.Value{types.String("fund_a")}),
		}}
		result := e.Execute(ctx, dynSpec, snapshot)
		Expect(result.Kind).To(Equal(executor.ResultDone))
	})
})
