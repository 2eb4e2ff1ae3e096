package steplibrary

// Config schema structs for each built-in step kind (spec.md §4.1, §4.3). C1
// validates a StepSpec's raw config map against the schema for its Kind by
// round-tripping it through JSON into one of these structs and then running
// github.com/go-playground/validator/v10 over it.

// FieldSpec declares one DATA_COLLECTION field: its type, whether it's
// required, and optional numeric range / regex constraints.
type FieldSpec struct {
	Key      string   `json:"key" validate:"required"`
	Type     string   `json:"type" validate:"required,oneof=string integer decimal bool timestamp"`
	Required bool     `json:"required"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Regex    string   `json:"regex,omitempty"`
}

// DataCollectionConfig is StepSpec.Config for kind DATA_COLLECTION.
type DataCollectionConfig struct {
	Fields []FieldSpec `json:"fields" validate:"required,min=1,dive"`
}

// RetryPolicy overrides the default retry policy of spec.md §4.5 for a
// single step.
type RetryPolicy struct {
	MaxAttempts int     `json:"max_attempts" validate:"omitempty,min=1"`
	BackoffMS   int     `json:"backoff_ms" validate:"omitempty,min=1"`
	BackoffCapMS int    `json:"backoff_cap_ms" validate:"omitempty,min=1"`
	JitterFrac  float64 `json:"jitter_frac" validate:"omitempty,min=0,max=1"`
}

// DecisionConfig is StepSpec.Config for kind DECISION.
type DecisionConfig struct {
	InputType     string      `json:"inputType" validate:"required,oneof=single multi dropdown"`
	Options       []string    `json:"options" validate:"required,min=1"`
	MinSelections int         `json:"minSelections,omitempty"`
	MaxSelections int         `json:"maxSelections,omitempty"`
	Retry         *RetryPolicy `json:"retry,omitempty"`
}

// CheckDescriptor is one named check evaluated by a VALIDATION step
// (spec.md §4.3): a predicate identifier plus the engine ("gojq" or "opa")
// that evaluates it and any parameters it needs.
type CheckDescriptor struct {
	Name      string                 `json:"name" validate:"required"`
	Predicate string                 `json:"predicate" validate:"required"`
	Engine    string                 `json:"engine" validate:"required,oneof=gojq opa"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// ValidationConfig is StepSpec.Config for kind VALIDATION.
type ValidationConfig struct {
	Checks     []CheckDescriptor `json:"checks" validate:"required,min=1,dive"`
	HaltOnFail bool              `json:"halt_on_fail"`
}

// UserInteractionConfig is StepSpec.Config for kind USER_INTERACTION.
type UserInteractionConfig struct {
	Items         []string `json:"items,omitempty"`
	ItemsFromStep string   `json:"itemsFromStep,omitempty"`
	MinSelections int      `json:"minSelections" validate:"min=0"`
	MaxSelections int      `json:"maxSelections,omitempty"`
}

// AIGeneratedConfig is StepSpec.Config for kind AI_GENERATED.
// AllowedContextKeys, when non-empty, is the sole allowlist of context keys
// forwarded to the provider; SensitiveKeys are stripped from that subset even
// when explicitly allowlisted (spec.md §4.3 "strip any key flagged
// sensitive=true").
type AIGeneratedConfig struct {
	ResponseSchema     map[string]interface{} `json:"response_schema" validate:"required"`
	AllowedContextKeys []string               `json:"allowed_context_keys,omitempty"`
	SensitiveKeys      []string               `json:"sensitive_keys,omitempty"`
	Model              string                 `json:"model,omitempty"`
	Retry              *RetryPolicy           `json:"retry,omitempty"`
}

// AutomatedConfig is StepSpec.Config for kind AUTOMATED.
type AutomatedConfig struct {
	Transform string                 `json:"transform" validate:"required"`
	Params    map[string]interface{} `json:"params,omitempty"`
}
