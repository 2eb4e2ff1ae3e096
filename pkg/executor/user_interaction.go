package executor

import (
	"context"
	"fmt"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// UserInteractionExecutor presents a catalogue (config.items, or produced by
// a prior step via config.itemsFromStep) and enforces min/maxSelections
// (spec.md §4.3).
type UserInteractionExecutor struct{}

func NewUserInteractionExecutor() *UserInteractionExecutor {
	return &UserInteractionExecutor{}
}

func selectionInputKey(stepID string) string  { return "selection_input_" + stepID }
func selectionOutputKey(stepID string) string { return "selection_" + stepID }

func (e *UserInteractionExecutor) Execute(_ context.Context, spec types.StepSpec, snapshot types.ContextSnapshot) StepResult {
	var cfg steplibrary.UserInteractionConfig
	if err := decodeConfig(spec.Config, &cfg); err != nil {
		return Failed(apperror.KindIncompatibleConfig, err.Error(), false)
	}

	catalogue := cfg.Items
	if cfg.ItemsFromStep != "" {
		v, ok := snapshot.Data[cfg.ItemsFromStep]
		if !ok {
			return Failed(apperror.KindValidationFailed, fmt.Sprintf("catalogue source %q is not yet in context", cfg.ItemsFromStep), true)
		}
		if v.Kind != types.ValueList {
			return Failed(apperror.KindValidationFailed, fmt.Sprintf("catalogue source %q is not a list", cfg.ItemsFromStep), false)
		}
		catalogue = make([]string, 0, len(v.ListVal))
		for _, e := range v.ListVal {
			catalogue = append(catalogue, e.StrVal)
		}
	}

	inputKey := selectionInputKey(spec.ID)
	chosen, ok := snapshot.Data[inputKey]
	if !ok {
		return AwaitInput(fmt.Sprintf("select from: %v", catalogue), []string{inputKey})
	}
	if chosen.Kind != types.ValueList {
		return Failed(apperror.KindValidationFailed, "selection input must be a list", false)
	}

	allowed := make(map[string]bool, len(catalogue))
	for _, c := range catalogue {
		allowed[c] = true
	}
	for _, v := range chosen.ListVal {
		if v.Kind != types.ValueString || !allowed[v.StrVal] {
			return Failed(apperror.KindValidationFailed, fmt.Sprintf("%v is not in the offered catalogue", v), false)
		}
	}

	n := len(chosen.ListVal)
	if n < cfg.MinSelections {
		return Failed(apperror.KindValidationFailed, fmt.Sprintf("at least %d selections required", cfg.MinSelections), false)
	}
	if cfg.MaxSelections > 0 && n > cfg.MaxSelections {
		return Failed(apperror.KindValidationFailed, fmt.Sprintf("at most %d selections allowed", cfg.MaxSelections), false)
	}

	outKey := selectionOutputKey(spec.ID)
	return Done(types.Delta{outKey: chosen}, map[string]types.Value{outKey: chosen})
}
