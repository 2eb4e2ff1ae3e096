package executor

import (
	"context"
	"fmt"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// CheckResult is one configured check's outcome, reported in
// outputs["validation_<step_id>_checks"] (spec.md §4.3 "all results are
// still reported").
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// ValidationExecutor runs a configured set of check descriptors against the
// current context snapshot (spec.md §4.3). Checks run in declaration order;
// the first failure becomes the primary error if config.halt_on_fail is set.
type ValidationExecutor struct {
	predicates PredicateEvaluator
}

func NewValidationExecutor(predicates PredicateEvaluator) *ValidationExecutor {
	return &ValidationExecutor{predicates: predicates}
}

func (e *ValidationExecutor) Execute(ctx context.Context, spec types.StepSpec, snapshot types.ContextSnapshot) StepResult {
	var cfg steplibrary.ValidationConfig
	if err := decodeConfig(spec.Config, &cfg); err != nil {
		return Failed(apperror.KindIncompatibleConfig, err.Error(), false)
	}

	data := make(map[string]interface{}, len(snapshot.Data))
	for k, v := range snapshot.Data {
		data[k] = valueToPlain(v)
	}

	results := make([]CheckResult, 0, len(cfg.Checks))
	var firstFailure *CheckResult
	for _, check := range cfg.Checks {
		passed, err := e.predicates.Evaluate(ctx, check.Engine, check.Predicate, check.Params, data)
		cr := CheckResult{Name: check.Name, Passed: passed}
		if err != nil {
			cr.Passed = false
			cr.Message = err.Error()
		}
		results = append(results, cr)
		if !cr.Passed && firstFailure == nil {
			failure := cr
			firstFailure = &failure
		}
	}

	outKey := "validation_" + spec.ID
	plainResults := make([]types.Value, len(results))
	for i, r := range results {
		plainResults[i] = types.Map(map[string]types.Value{
			"name":    types.String(r.Name),
			"passed":  types.Bool(r.Passed),
			"message": types.String(r.Message),
		})
	}
	outputs := map[string]types.Value{
		outKey:              types.Bool(firstFailure == nil),
		outKey + "_checks":  types.List(plainResults),
	}
	delta := types.Delta{outKey: outputs[outKey]}

	if firstFailure != nil && cfg.HaltOnFail {
		// Outputs (the per-check breakdown) are persisted on the failed
		// StepExecution record; Delta is carried for symmetry with Done but
		// the engine commits context only on COMPLETED, never on a failure.
		msg := fmt.Sprintf("check %q failed: %s", firstFailure.Name, firstFailure.Message)
		return StepResult{
			Kind:      ResultFailed,
			ErrorKind: apperror.KindValidationFailed,
			Message:   msg,
			Retryable: true,
			Delta:     delta,
			Outputs:   outputs,
		}
	}
	return Done(delta, outputs)
}

// valueToPlain converts a types.Value into a plain Go value suitable for
// gojq/opa input documents.
func valueToPlain(v types.Value) interface{} {
	switch v.Kind {
	case types.ValueNull:
		return nil
	case types.ValueBool:
		return v.BoolVal
	case types.ValueInteger:
		return v.IntVal
	case types.ValueDecimal:
		f, _ := v.DecVal.Float64()
		return f
	case types.ValueString:
		return v.StrVal
	case types.ValueTimestamp:
		return v.TimeVal
	case types.ValueList:
		out := make([]interface{}, len(v.ListVal))
		for i, e := range v.ListVal {
			out[i] = valueToPlain(e)
		}
		return out
	case types.ValueMap:
		out := make(map[string]interface{}, len(v.MapVal))
		for k, e := range v.MapVal {
			out[k] = valueToPlain(e)
		}
		return out
	}
	return nil
}
