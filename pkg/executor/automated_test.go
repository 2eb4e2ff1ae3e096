package executor_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

type fakeMarketDataProvider struct {
	series []float64
	err    error
}

func (f *fakeMarketDataProvider) FetchSeries(_ context.Context, _ string, _ string) ([]float64, error) {
	return f.series, f.err
}

var _ = Describe("AutomatedExecutor", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("normalize_profile", func() {
		spec := types.StepSpec{
			ID:   "f",
			Kind: types.StepKindAutomated,
			Config: map[string]interface{}{
				"transform": "normalize_profile",
				"params":    map[string]interface{}{"weights_key": "weights"},
			},
		}

		It("normalizes a weight list to sum to 1 within tolerance", func() {
			snapshot := types.ContextSnapshot{Data: map[string]types.Value{
				"weights": types.List([]types.Value{types.Integer(1), types.Integer(1), types.Integer(2)}),
			}}
			e := executor.NewAutomatedExecutor(nil, nil)
			result := e.Execute(ctx, spec, snapshot)
			Expect(result.Kind).To(Equal(executor.ResultDone))

			normalized := result.Delta["normalized_weights"].ListVal
			sum := 0.0
			for _, w := range normalized {
				f, _ := w.DecVal.Float64()
				sum += f
			}
			Expect(sum).To(BeNumerically("~", 1.0, 1e-6))
		})

		It("fails when weights sum to zero", func() {
			snapshot := types.ContextSnapshot{Data: map[string]types.Value{
				"weights": types.List([]types.Value{types.Integer(0), types.Integer(0)}),
			}}
			e := executor.NewAutomatedExecutor(nil, nil)
			result := e.Execute(ctx, spec, snapshot)
			Expect(result.Kind).To(Equal(executor.ResultFailed))
		})

		It("enforces the weight-sum post-condition when one is registered", func() {
			pc := executor.NewPostConditionRegistry(logrus.New())
			pc.Register(string(types.StepKindAutomated), executor.PostCondition{
				Type: executor.PostConditionWeightSum, Name: "sums_to_one", Key: "normalized_weights", Critical: true, Enabled: true,
			})
			snapshot := types.ContextSnapshot{Data: map[string]types.Value{
				"weights": types.List([]types.Value{types.Integer(1), types.Integer(1), types.Integer(2)}),
			}}
			e := executor.NewAutomatedExecutor(nil, pc)
			result := e.Execute(ctx, spec, snapshot)
			Expect(result.Kind).To(Equal(executor.ResultDone))
		})
	})

	Describe("fetch_market_series", func() {
		spec := types.StepSpec{
			ID:   "g",
			Kind: types.StepKindAutomated,
			Config: map[string]interface{}{
				"transform": "fetch_market_series",
				"params":    map[string]interface{}{"symbol": "SPY", "window": "1M"},
			},
		}

		It("delegates to the injected market data provider", func() {
			provider := &fakeMarketDataProvider{series: []float64{1.1, 2.2, 3.3}}
			e := executor.NewAutomatedExecutor(provider, nil)
			result := e.Execute(ctx, spec, types.ContextSnapshot{})
			Expect(result.Kind).To(Equal(executor.ResultDone))
			Expect(result.Delta["series_SPY"].ListVal).To(HaveLen(3))
		})

		It("surfaces a provider error as Failed", func() {
			provider := &fakeMarketDataProvider{err: errors.New("upstream unavailable")}
			e := executor.NewAutomatedExecutor(provider, nil)
			result := e.Execute(ctx, spec, types.ContextSnapshot{})
			Expect(result.Kind).To(Equal(executor.ResultFailed))
		})
	})

	It("fails with IncompatibleStepConfig for an unregistered transform name", func() {
		spec := types.StepSpec{
			ID:     "h",
			Kind:   types.StepKindAutomated,
			Config: map[string]interface{}{"transform": "does_not_exist"},
		}
		e := executor.NewAutomatedExecutor(nil, nil)
		result := e.Execute(ctx, spec, types.ContextSnapshot{})
		Expect(result.Kind).To(Equal(executor.ResultFailed))
	})
})
