package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// PromptRenderer fills a prompt template with a context subset. The
// zero-value AIGeneratedExecutor falls back to plain {{key}} substitution;
// pkg/ai.TemplateRenderer swaps in langchaingo's prompt templates for
// production use.
type PromptRenderer interface {
	Render(template string, contextSubset map[string]types.Value) (string, error)
}

// AIGeneratedExecutor builds a prompt from spec.AIPrompt and a
// caller-allowlisted, sensitivity-stripped subset of the context, calls the
// external completion provider, and parses the response against
// config.response_schema (spec.md §4.3).
type AIGeneratedExecutor struct {
	provider AIProvider
	renderer PromptRenderer
}

func NewAIGeneratedExecutor(provider AIProvider) *AIGeneratedExecutor {
	return &AIGeneratedExecutor{provider: provider}
}

// WithPromptRenderer overrides the default {{key}} substitution with r,
// returning the receiver for chaining at construction time.
func (e *AIGeneratedExecutor) WithPromptRenderer(r PromptRenderer) *AIGeneratedExecutor {
	e.renderer = r
	return e
}

func aiOutputKey(stepID string) string { return "ai_" + stepID }

func (e *AIGeneratedExecutor) Execute(ctx context.Context, spec types.StepSpec, snapshot types.ContextSnapshot) StepResult {
	var cfg steplibrary.AIGeneratedConfig
	if err := decodeConfig(spec.Config, &cfg); err != nil {
		return Failed(apperror.KindIncompatibleConfig, err.Error(), false)
	}

	contextSubset := sanitizedSubset(snapshot.Data, cfg.AllowedContextKeys, cfg.SensitiveKeys)
	prompt, err := e.renderPrompt(spec.AIPrompt, contextSubset)
	if err != nil {
		return Failed(apperror.KindIncompatibleConfig, fmt.Sprintf("prompt template: %v", err), false)
	}
	schemaHash := hashSchema(cfg.ResponseSchema)

	text, modelID, err := e.provider.Complete(ctx, prompt, schemaHash)
	if err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return Failed(appErr.Kind, appErr.Error(), appErr.Retryable)
		}
		return Failed(apperror.KindTransient, err.Error(), true)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Failed(apperror.KindAIResponseInvalid, fmt.Sprintf("response is not valid JSON: %v", err), true)
	}
	if missing := missingRequiredKeys(cfg.ResponseSchema, parsed); len(missing) > 0 {
		return Failed(apperror.KindAIResponseInvalid, fmt.Sprintf("response missing required keys: %v", missing), true)
	}
	if violations := schemaTypeViolations(cfg.ResponseSchema, parsed); len(violations) > 0 {
		return Failed(apperror.KindAIResponseInvalid, fmt.Sprintf("response does not match schema: %v", violations), true)
	}

	outKey := aiOutputKey(spec.ID)
	responseVal := plainToValue(parsed)
	delta := types.Delta{
		outKey:                responseVal,
		outKey + "_model":     types.String(modelID),
		outKey + "_content_hash": types.String(contentHash(prompt, schemaHash)),
	}
	return Done(delta, map[string]types.Value{outKey: responseVal})
}

// sanitizedSubset restricts data to allowedKeys (or all of data, when
// allowedKeys is empty) minus any key in sensitiveKeys.
func sanitizedSubset(data map[string]types.Value, allowedKeys, sensitiveKeys []string) map[string]types.Value {
	sensitive := make(map[string]bool, len(sensitiveKeys))
	for _, k := range sensitiveKeys {
		sensitive[k] = true
	}

	keys := allowedKeys
	if len(keys) == 0 {
		keys = make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
	}

	out := make(map[string]types.Value, len(keys))
	for _, k := range keys {
		if sensitive[k] {
			continue
		}
		if v, ok := data[k]; ok {
			out[k] = v
		}
	}
	return out
}

// renderPrompt delegates to e.renderer when set, else falls back to plain
// {{key}} substitution with the JSON-rendered context value. pkg/ai's
// production TemplateRenderer runs prompts through langchaingo instead.
func (e *AIGeneratedExecutor) renderPrompt(template string, contextSubset map[string]types.Value) (string, error) {
	if e.renderer != nil {
		return e.renderer.Render(template, contextSubset)
	}
	out := template
	for k, v := range contextSubset {
		raw, _ := json.Marshal(v)
		out = strings.ReplaceAll(out, "{{"+k+"}}", string(raw))
	}
	return out, nil
}

func hashSchema(schema map[string]interface{}) string {
	raw, _ := json.Marshal(sortedSchema(schema))
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func contentHash(prompt, schemaHash string) string {
	sum := sha256.Sum256([]byte(prompt + "|" + schemaHash))
	return hex.EncodeToString(sum[:])
}

// sortedSchema produces a key-ordered copy so Marshal output (and therefore
// the hash) is stable regardless of map iteration order.
func sortedSchema(schema map[string]interface{}) map[string]interface{} {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]interface{}, len(schema))
	for _, k := range keys {
		out[k] = schema[k]
	}
	return out
}

// schemaTypeViolations checks present response values against the declared
// "properties" type tags of a JSON-schema-shaped response_schema. Absent keys
// are the required-keys check's concern; nested schemas are not recursed into.
func schemaTypeViolations(schema, response map[string]interface{}) []string {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	var violations []string
	for key, raw := range props {
		decl, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		want, _ := decl["type"].(string)
		if want == "" {
			continue
		}
		got, present := response[key]
		if !present {
			continue
		}
		if !jsonTypeMatches(want, got) {
			violations = append(violations, fmt.Sprintf("%s must be %s", key, want))
		}
	}
	sort.Strings(violations)
	return violations
}

func jsonTypeMatches(want string, v interface{}) bool {
	switch want {
	case "object", "map":
		_, ok := v.(map[string]interface{})
		return ok
	case "array", "list":
		_, ok := v.([]interface{})
		return ok
	case "string":
		_, ok := v.(string)
		return ok
	case "number", "integer":
		_, ok := v.(float64)
		return ok
	case "boolean", "bool":
		_, ok := v.(bool)
		return ok
	case "null":
		return v == nil
	}
	return true
}

func missingRequiredKeys(schema map[string]interface{}, response map[string]interface{}) []string {
	required, ok := schema["required"].([]interface{})
	if !ok {
		return nil
	}
	var missing []string
	for _, r := range required {
		key, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := response[key]; !present {
			missing = append(missing, key)
		}
	}
	return missing
}

// plainToValue converts a JSON-decoded map into a types.Value map variant.
func plainToValue(m map[string]interface{}) types.Value {
	out := make(map[string]types.Value, len(m))
	for k, v := range m {
		out[k] = jsonToValue(v)
	}
	return types.Map(out)
}

func jsonToValue(v interface{}) types.Value {
	switch x := v.(type) {
	case nil:
		return types.Null()
	case bool:
		return types.Bool(x)
	case float64:
		return types.DecimalFromFloat(x, types.DefaultCurrencyPrecision)
	case string:
		return types.String(x)
	case []interface{}:
		out := make([]types.Value, len(x))
		for i, e := range x {
			out[i] = jsonToValue(e)
		}
		return types.List(out)
	case map[string]interface{}:
		return plainToValue(x)
	default:
		return types.Null()
	}
}
