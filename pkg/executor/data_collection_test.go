package executor_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

var _ = Describe("DataCollectionExecutor", func() {
	var (
		ctx context.Context
		e   *executor.DataCollectionExecutor
	)

	BeforeEach(func() {
		ctx = context.Background()
		e = executor.NewDataCollectionExecutor()
	})

	spec := types.StepSpec{
		ID:   "a",
		Kind: types.StepKindDataCollection,
		Config: map[string]interface{}{
			"fields": []interface{}{
				map[string]interface{}{"key": "risk_tolerance", "type": "string", "required": true},
				map[string]interface{}{"key": "age", "type": "integer", "required": true, "min": 18.0, "max": 120.0},
			},
		},
	}

	It("requests input when a required field is absent", func() {
		result := e.Execute(ctx, spec, types.ContextSnapshot{Data: map[string]types.Value{}})
		Expect(result.Kind).To(Equal(executor.ResultAwaitInput))
		Expect(result.ExpectedKeys).To(ConsistOf("risk_tolerance", "age"))
	})

	It("emits the collected values once every field is present and valid", func() {
		snapshot := types.ContextSnapshot{Data: map[string]types.Value{
			"risk_tolerance": types.String("moderate"),
			"age":             types.Integer(30),
		}}
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.Kind).To(Equal(executor.ResultDone))
		Expect(result.Delta["risk_tolerance"].StrVal).To(Equal("moderate"))
		Expect(result.Delta["age"].IntVal).To(Equal(int64(30)))
	})

	It("fails with ValidationFailed when a numeric field is out of range", func() {
		snapshot := types.ContextSnapshot{Data: map[string]types.Value{
			"risk_tolerance": types.String("moderate"),
			"age":             types.Integer(5),
		}}
		result := e.Execute(ctx, spec, snapshot)
		Expect(result.Kind).To(Equal(executor.ResultFailed))
		Expect(result.Retryable).To(BeFalse())
	})
})
