package executor_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// fakePredicateEvaluator evaluates canned results keyed by predicate string,
// so tests can drive pass/fail without a real gojq/opa engine.
type fakePredicateEvaluator struct {
	results map[string]bool
}

func (f *fakePredicateEvaluator) Evaluate(_ context.Context, _ string, predicate string, _ map[string]interface{}, _ map[string]interface{}) (bool, error) {
	return f.results[predicate], nil
}

var _ = Describe("ValidationExecutor", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	spec := types.StepSpec{
		ID:   "c",
		Kind: types.StepKindValidation,
		Config: map[string]interface{}{
			"checks": []interface{}{
				map[string]interface{}{"name": "age_ok", "predicate": ".age >= 18", "engine": "gojq"},
				map[string]interface{}{"name": "risk_set", "predicate": ".risk_tolerance != null", "engine": "gojq"},
			},
			"halt_on_fail": false,
		},
	}

	It("reports Done with all checks passing", func() {
		e := executor.NewValidationExecutor(&fakePredicateEvaluator{results: map[string]bool{
			".age >= 18": true, ".risk_tolerance != null": true,
		}})
		result := e.Execute(ctx, spec, types.ContextSnapshot{})
		Expect(result.Kind).To(Equal(executor.ResultDone))
		Expect(result.Delta["validation_c"].BoolVal).To(BeTrue())
	})

	It("reports Done (not Failed) on a failing check when halt_on_fail is false", func() {
		e := executor.NewValidationExecutor(&fakePredicateEvaluator{results: map[string]bool{
			".age >= 18": false, ".risk_tolerance != null": true,
		}})
		result := e.Execute(ctx, spec, types.ContextSnapshot{})
		Expect(result.Kind).To(Equal(executor.ResultDone))
		Expect(result.Delta["validation_c"].BoolVal).To(BeFalse())
	})

	It("returns Failed(ValidationFailed, retryable=true) when halt_on_fail is true", func() {
		haltSpec := spec
		haltSpec.Config = map[string]interface{}{
			"checks":       spec.Config["checks"],
			"halt_on_fail": true,
		}
		e := executor.NewValidationExecutor(&fakePredicateEvaluator{results: map[string]bool{
			".age >= 18": false, ".risk_tolerance != null": true,
		}})
		result := e.Execute(ctx, haltSpec, types.ContextSnapshot{})
		Expect(result.Kind).To(Equal(executor.ResultFailed))
		Expect(result.Retryable).To(BeTrue())
		Expect(result.Message).To(ContainSubstring("age_ok"))

		// The per-check breakdown still accompanies the failure.
		Expect(result.Outputs).To(HaveKey("validation_c_checks"))
		Expect(result.Outputs["validation_c"].BoolVal).To(BeFalse())
		Expect(result.Outputs["validation_c_checks"].ListVal).To(HaveLen(2))
	})
})
