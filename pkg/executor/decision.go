package executor

import (
	"context"
	"fmt"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// DecisionExecutor expects a prior ProvideStepInput to have populated
// "decision_input_<step_id>" with the chosen value(s); it validates them
// against config.options/min/maxSelections and emits
// decision_{step_id} (spec.md §4.3).
type DecisionExecutor struct{}

func NewDecisionExecutor() *DecisionExecutor {
	return &DecisionExecutor{}
}

func decisionInputKey(stepID string) string { return "decision_input_" + stepID }
func decisionOutputKey(stepID string) string { return "decision_" + stepID }

func (e *DecisionExecutor) Execute(_ context.Context, spec types.StepSpec, snapshot types.ContextSnapshot) StepResult {
	var cfg steplibrary.DecisionConfig
	if err := decodeConfig(spec.Config, &cfg); err != nil {
		return Failed(apperror.KindIncompatibleConfig, err.Error(), false)
	}

	inputKey := decisionInputKey(spec.ID)
	chosen, ok := snapshot.Data[inputKey]
	if !ok {
		return AwaitInput(fmt.Sprintf("choose from: %v", cfg.Options), []string{inputKey})
	}

	allowed := make(map[string]bool, len(cfg.Options))
	for _, o := range cfg.Options {
		allowed[o] = true
	}

	var selections []string
	switch chosen.Kind {
	case types.ValueString:
		selections = []string{chosen.StrVal}
	case types.ValueList:
		for _, v := range chosen.ListVal {
			if v.Kind != types.ValueString {
				return Failed(apperror.KindValidationFailed, "decision selections must be strings", false)
			}
			selections = append(selections, v.StrVal)
		}
	default:
		return Failed(apperror.KindValidationFailed, "decision input must be a string or list of strings", false)
	}

	for _, s := range selections {
		if !allowed[s] {
			return Failed(apperror.KindValidationFailed, fmt.Sprintf("%q is not one of the configured options", s), false)
		}
	}

	if cfg.InputType == "multi" {
		if cfg.MinSelections > 0 && len(selections) < cfg.MinSelections {
			return Failed(apperror.KindValidationFailed, fmt.Sprintf("at least %d selections required", cfg.MinSelections), false)
		}
		if cfg.MaxSelections > 0 && len(selections) > cfg.MaxSelections {
			return Failed(apperror.KindValidationFailed, fmt.Sprintf("at most %d selections allowed", cfg.MaxSelections), false)
		}
	} else if len(selections) != 1 {
		return Failed(apperror.KindValidationFailed, fmt.Sprintf("%s expects exactly one selection", cfg.InputType), false)
	}

	outKey := decisionOutputKey(spec.ID)
	var outVal types.Value
	if cfg.InputType == "multi" {
		outVal = chosen
	} else {
		outVal = types.String(selections[0])
	}

	return Done(types.Delta{outKey: outVal}, map[string]types.Value{outKey: outVal})
}
