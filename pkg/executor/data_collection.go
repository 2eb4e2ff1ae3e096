package executor

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// DataCollectionExecutor validates a declared field set against
// config.fields and emits the collected values as-is (spec.md §4.3). The
// values themselves arrive pre-populated in the snapshot by ProvideStepInput
// (mirroring AWAITING_INPUT for USER_INTERACTION); on first dispatch, absent
// values are requested via AwaitInput.
type DataCollectionExecutor struct{}

func NewDataCollectionExecutor() *DataCollectionExecutor {
	return &DataCollectionExecutor{}
}

func (e *DataCollectionExecutor) Execute(_ context.Context, spec types.StepSpec, snapshot types.ContextSnapshot) StepResult {
	var cfg steplibrary.DataCollectionConfig
	if err := decodeConfig(spec.Config, &cfg); err != nil {
		return Failed(apperror.KindIncompatibleConfig, err.Error(), false)
	}

	missing := make([]string, 0)
	for _, f := range cfg.Fields {
		if _, ok := snapshot.Data[f.Key]; !ok {
			missing = append(missing, f.Key)
		}
	}
	if len(missing) > 0 {
		return AwaitInput(fmt.Sprintf("provide values for: %v", missing), missing)
	}

	delta := types.Delta{}
	outputs := make(map[string]types.Value)
	for _, f := range cfg.Fields {
		v := snapshot.Data[f.Key]
		if failMsg, ok := validateField(f, v); !ok {
			// spec.md §4.3: "engine surfaces the first-failing field as ValidationFailed".
			return Failed(apperror.KindValidationFailed, failMsg, false)
		}
		delta[f.Key] = v
		outputs[f.Key] = v
	}
	return Done(delta, outputs)
}

func validateField(f steplibrary.FieldSpec, v types.Value) (string, bool) {
	if f.Required && v.IsNull() {
		return fmt.Sprintf("field %s is required", f.Key), false
	}
	switch f.Type {
	case "integer":
		if v.Kind != types.ValueInteger {
			return fmt.Sprintf("field %s must be an integer", f.Key), false
		}
		if f.Min != nil && float64(v.IntVal) < *f.Min {
			return fmt.Sprintf("field %s below minimum %v", f.Key, *f.Min), false
		}
		if f.Max != nil && float64(v.IntVal) > *f.Max {
			return fmt.Sprintf("field %s above maximum %v", f.Key, *f.Max), false
		}
	case "decimal":
		if v.Kind != types.ValueDecimal {
			return fmt.Sprintf("field %s must be a decimal", f.Key), false
		}
		dv, _ := v.DecVal.Float64()
		if f.Min != nil && dv < *f.Min {
			return fmt.Sprintf("field %s below minimum %v", f.Key, *f.Min), false
		}
		if f.Max != nil && dv > *f.Max {
			return fmt.Sprintf("field %s above maximum %v", f.Key, *f.Max), false
		}
	case "string":
		if v.Kind != types.ValueString {
			return fmt.Sprintf("field %s must be a string", f.Key), false
		}
		if f.Regex != "" {
			matched, err := regexp.MatchString(f.Regex, v.StrVal)
			if err != nil || !matched {
				return fmt.Sprintf("field %s does not match pattern %s", f.Key, f.Regex), false
			}
		}
	case "bool":
		if v.Kind != types.ValueBool {
			return fmt.Sprintf("field %s must be a bool", f.Key), false
		}
	case "timestamp":
		if v.Kind != types.ValueTimestamp {
			return fmt.Sprintf("field %s must be a timestamp", f.Key), false
		}
	}
	return "", true
}
