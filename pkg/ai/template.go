package ai

import (
	"time"

	"github.com/tmc/langchaingo/prompts"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// TemplateRenderer renders AI_GENERATED prompt templates through
// langchaingo's Go-template-backed PromptTemplate, satisfying
// executor.PromptRenderer. Context values are flattened to plain Go values
// so a template can reference them with ordinary {{.key}} syntax.
type TemplateRenderer struct{}

func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

func (TemplateRenderer) Render(template string, contextSubset map[string]types.Value) (string, error) {
	inputVars := make([]string, 0, len(contextSubset))
	values := make(map[string]interface{}, len(contextSubset))
	for k, v := range contextSubset {
		inputVars = append(inputVars, k)
		values[k] = flatten(v)
	}

	pt := prompts.NewPromptTemplate(template, inputVars)
	pt.TemplateFormat = prompts.TemplateFormatGoTemplate
	rendered, err := pt.Format(values)
	if err != nil {
		return "", apperror.Wrapf(err, apperror.KindIncompatibleConfig, "prompt template render failed")
	}
	return rendered, nil
}

func flatten(v types.Value) interface{} {
	switch v.Kind {
	case types.ValueNull:
		return nil
	case types.ValueBool:
		return v.BoolVal
	case types.ValueInteger:
		return v.IntVal
	case types.ValueDecimal:
		return v.DecVal.String()
	case types.ValueString:
		return v.StrVal
	case types.ValueTimestamp:
		return v.TimeVal.Format(time.RFC3339)
	case types.ValueList:
		out := make([]interface{}, len(v.ListVal))
		for i, e := range v.ListVal {
			out[i] = flatten(e)
		}
		return out
	case types.ValueMap:
		out := make(map[string]interface{}, len(v.MapVal))
		for k, e := range v.MapVal {
			out[k] = flatten(e)
		}
		return out
	default:
		return nil
	}
}
