package executor

import "context"

// AIProvider is the external completion contract of spec.md §6: Complete
// returns the raw model text for prompt, or a TransientError/PermanentError
// surfaced as an *apperror.Error by the concrete implementation
// (pkg/ai backs this with an Anthropic and a Bedrock client).
type AIProvider interface {
	Complete(ctx context.Context, prompt string, schemaHash string) (text string, modelID string, err error)
}

// MarketDataProvider is spec.md §6's market-data contract, consumed only by
// the AUTOMATED executor.
type MarketDataProvider interface {
	FetchSeries(ctx context.Context, symbol string, window string) ([]float64, error)
}

// PredicateEvaluator evaluates one named check (spec.md §4.3 VALIDATION)
// against a context snapshot rendered as a plain map. pkg/predicate provides
// a gojq-backed and an opa-backed implementation behind this interface.
type PredicateEvaluator interface {
	Evaluate(ctx context.Context, engine string, predicate string, params map[string]interface{}, data map[string]interface{}) (bool, error)
}

// Providers bundles the external dependencies the built-in executors need,
// so NewDefaultRegistry can wire them in one call.
type Providers struct {
	AI             AIProvider
	MarketData     MarketDataProvider
	Predicates     PredicateEvaluator
	PostConditions *PostConditionRegistry
}
