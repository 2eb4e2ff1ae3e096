package executor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// Transform is one deterministic-or-provider-backed in-process function an
// AUTOMATED step can invoke (spec.md §4.3: "escape hatch ... must not
// perform I/O other than through supplied provider interfaces").
type Transform func(ctx context.Context, marketData MarketDataProvider, snapshot types.ContextSnapshot, params map[string]interface{}) (types.Delta, error)

// AutomatedExecutor dispatches to a named Transform and runs the kind's
// registered post-conditions against the result.
type AutomatedExecutor struct {
	marketData     MarketDataProvider
	postConditions *PostConditionRegistry
	transforms     map[string]Transform
}

func NewAutomatedExecutor(marketData MarketDataProvider, postConditions *PostConditionRegistry) *AutomatedExecutor {
	e := &AutomatedExecutor{
		marketData:     marketData,
		postConditions: postConditions,
		transforms:     make(map[string]Transform),
	}
	e.RegisterTransform("normalize_profile", normalizeProfileTransform)
	e.RegisterTransform("fetch_market_series", fetchMarketSeriesTransform)
	return e
}

// RegisterTransform adds a named transform, available for config.transform
// to reference. Built-in transforms are seeded by NewAutomatedExecutor.
func (e *AutomatedExecutor) RegisterTransform(name string, t Transform) {
	e.transforms[name] = t
}

func (e *AutomatedExecutor) Execute(ctx context.Context, spec types.StepSpec, snapshot types.ContextSnapshot) StepResult {
	var cfg steplibrary.AutomatedConfig
	if err := decodeConfig(spec.Config, &cfg); err != nil {
		return Failed(apperror.KindIncompatibleConfig, err.Error(), false)
	}

	transform, ok := e.transforms[cfg.Transform]
	if !ok {
		return Failed(apperror.KindIncompatibleConfig, fmt.Sprintf("unknown transform %q", cfg.Transform), false)
	}

	delta, err := transform(ctx, e.marketData, snapshot, cfg.Params)
	if err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return Failed(appErr.Kind, appErr.Error(), appErr.Retryable)
		}
		return Failed(apperror.KindTransient, err.Error(), true)
	}

	plain := make(map[string]interface{}, len(delta))
	outputs := make(map[string]types.Value, len(delta))
	for k, v := range delta {
		plain[k] = valueToPlain(v)
		outputs[k] = v
	}

	if e.postConditions != nil {
		ok, results := e.postConditions.Evaluate(string(types.StepKindAutomated), plain)
		if !ok {
			var failed []string
			for _, r := range results {
				if !r.Passed && r.Critical {
					failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Message))
				}
			}
			return Failed(apperror.KindValidationFailed, fmt.Sprintf("post-condition failed: %v", failed), false)
		}
	}

	return Done(delta, outputs)
}

// normalizeProfileTransform is the spec.md §4.3 example: normalise a set of
// weights (declared by params.weights_key) to sum to 1 at
// types.DefaultWeightPrecision fractional digits.
func normalizeProfileTransform(_ context.Context, _ MarketDataProvider, snapshot types.ContextSnapshot, params map[string]interface{}) (types.Delta, error) {
	key, _ := params["weights_key"].(string)
	if key == "" {
		key = "weights"
	}
	outKey, _ := params["output_key"].(string)
	if outKey == "" {
		outKey = "normalized_" + key
	}

	v, ok := snapshot.Data[key]
	if !ok || v.Kind != types.ValueList {
		return nil, apperror.Newf(apperror.KindValidationFailed, "%s is not a list of weights", key)
	}

	total := decimal.Zero
	weights := make([]decimal.Decimal, len(v.ListVal))
	for i, e := range v.ListVal {
		d, err := asDecimal(e)
		if err != nil {
			return nil, apperror.Wrapf(err, apperror.KindValidationFailed, "weight %d is not numeric", i)
		}
		weights[i] = d
		total = total.Add(d)
	}
	if total.IsZero() {
		return nil, apperror.Newf(apperror.KindValidationFailed, "weights in %s sum to zero", key)
	}

	normalized := make([]types.Value, len(weights))
	for i, w := range weights {
		normalized[i] = types.Decimal(w.Div(total).Round(types.DefaultWeightPrecision))
	}
	return types.Delta{outKey: types.List(normalized)}, nil
}

// fetchMarketSeriesTransform demonstrates the marketdata.Provider contract
// (spec.md §6): it is the only built-in transform that performs I/O, and
// only through the injected MarketDataProvider.
func fetchMarketSeriesTransform(ctx context.Context, provider MarketDataProvider, _ types.ContextSnapshot, params map[string]interface{}) (types.Delta, error) {
	symbol, _ := params["symbol"].(string)
	window, _ := params["window"].(string)
	outKey, _ := params["output_key"].(string)
	if symbol == "" {
		return nil, apperror.New(apperror.KindIncompatibleConfig, "fetch_market_series requires params.symbol")
	}
	if outKey == "" {
		outKey = "series_" + symbol
	}
	if provider == nil {
		return nil, apperror.New(apperror.KindInternal, "no market data provider configured")
	}

	series, err := provider.FetchSeries(ctx, symbol, window)
	if err != nil {
		return nil, err
	}
	values := make([]types.Value, len(series))
	for i, f := range series {
		values[i] = types.DecimalFromFloat(f, types.DefaultCurrencyPrecision)
	}
	return types.Delta{outKey: types.List(values)}, nil
}

func asDecimal(v types.Value) (decimal.Decimal, error) {
	switch v.Kind {
	case types.ValueDecimal:
		return v.DecVal, nil
	case types.ValueInteger:
		return decimal.NewFromInt(v.IntVal), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("value of kind %s is not numeric", v.Kind)
	}
}
