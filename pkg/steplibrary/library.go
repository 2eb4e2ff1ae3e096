// Package steplibrary is C1: the static catalogue of step kinds, their
// input/output schemas, and dispatch keys (spec.md §4.1).
package steplibrary

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// KindDescriptor is everything C4 and C6 need to know about one step kind:
// the required input keys, the output keys it produces, and a factory for a
// zero-value config struct that NewConfig-decoded values are validated
// against.
type KindDescriptor struct {
	Kind          types.StepKind
	RequiredInput []string
	OutputKeys    func(stepID string) []string
	NewConfig     func() interface{}
}

// Library is the process-wide, read-only table of registered step kinds.
// Registration is static: new kinds may be added at process start via
// Register, never during execution (spec.md §4.1).
type Library struct {
	kinds    map[types.StepKind]KindDescriptor
	validate *validator.Validate
}

// New returns a Library pre-seeded with the six built-in step kinds.
func New() *Library {
	lib := &Library{
		kinds:    make(map[types.StepKind]KindDescriptor),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, d := range builtinDescriptors() {
		lib.kinds[d.Kind] = d
	}
	return lib
}

func builtinDescriptors() []KindDescriptor {
	return []KindDescriptor{
		{
			Kind:          types.StepKindDataCollection,
			RequiredInput: nil,
			OutputKeys:    func(stepID string) []string { return []string{} }, // dynamic: one per configured field
			NewConfig:     func() interface{} { return &DataCollectionConfig{} },
		},
		{
			Kind:          types.StepKindDecision,
			RequiredInput: nil,
			OutputKeys:    func(stepID string) []string { return []string{"decision_" + stepID} },
			NewConfig:     func() interface{} { return &DecisionConfig{} },
		},
		{
			Kind:          types.StepKindValidation,
			RequiredInput: nil,
			OutputKeys:    func(stepID string) []string { return []string{"validation_" + stepID} },
			NewConfig:     func() interface{} { return &ValidationConfig{} },
		},
		{
			Kind:          types.StepKindUserInteraction,
			RequiredInput: nil,
			OutputKeys:    func(stepID string) []string { return []string{"selection_" + stepID} },
			NewConfig:     func() interface{} { return &UserInteractionConfig{} },
		},
		{
			Kind:          types.StepKindAIGenerated,
			RequiredInput: nil,
			OutputKeys:    func(stepID string) []string { return []string{"ai_" + stepID} },
			NewConfig:     func() interface{} { return &AIGeneratedConfig{} },
		},
		{
			Kind:          types.StepKindAutomated,
			RequiredInput: nil,
			OutputKeys:    func(stepID string) []string { return []string{"automated_" + stepID} },
			NewConfig:     func() interface{} { return &AutomatedConfig{} },
		},
	}
}

// Register adds a new step kind at process start. Calling it after the
// library is in use by a running scheduler is a programming error the
// caller must avoid; the Library itself enforces no such runtime guard
// (spec.md §4.1: "no runtime registration during execution").
func (l *Library) Register(d KindDescriptor) {
	l.kinds[d.Kind] = d
}

// Lookup returns the descriptor for kind, or UnknownStepKind.
func (l *Library) Lookup(kind types.StepKind) (KindDescriptor, error) {
	d, ok := l.kinds[kind]
	if !ok {
		return KindDescriptor{}, apperror.Newf(apperror.KindUnknownStepKind, "unknown step kind %q", kind)
	}
	return d, nil
}

// DecodeConfig decodes and validates spec.Config against its kind's schema,
// returning the typed config value (a pointer to one of the *Config structs
// in config.go) or IncompatibleStepConfig.
func (l *Library) DecodeConfig(spec types.StepSpec) (interface{}, error) {
	descriptor, err := l.Lookup(spec.Kind)
	if err != nil {
		return nil, err
	}
	target := descriptor.NewConfig()

	raw, err := json.Marshal(spec.Config)
	if err != nil {
		return nil, apperror.Wrapf(err, apperror.KindIncompatibleConfig, "step %s: config is not JSON-encodable", spec.ID)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, apperror.Wrapf(err, apperror.KindIncompatibleConfig, "step %s: config does not match %s schema", spec.ID, spec.Kind)
	}
	if err := l.validate.Struct(target); err != nil {
		return nil, apperror.Wrapf(err, apperror.KindIncompatibleConfig, "step %s: config failed validation", spec.ID)
	}
	return target, nil
}

// OutputKeysFor returns the context keys a step of the given kind/id writes.
// For DATA_COLLECTION this depends on the decoded config's field list.
func (l *Library) OutputKeysFor(spec types.StepSpec) ([]string, error) {
	descriptor, err := l.Lookup(spec.Kind)
	if err != nil {
		return nil, err
	}
	if spec.Kind == types.StepKindDataCollection {
		cfg, err := l.DecodeConfig(spec)
		if err != nil {
			return nil, err
		}
		dc := cfg.(*DataCollectionConfig)
		keys := make([]string, 0, len(dc.Fields))
		for _, f := range dc.Fields {
			keys = append(keys, f.Key)
		}
		return keys, nil
	}
	return descriptor.OutputKeys(spec.ID), nil
}

// Kinds returns every registered step kind, for diagnostics and tests.
func (l *Library) Kinds() []types.StepKind {
	out := make([]types.StepKind, 0, len(l.kinds))
	for k := range l.kinds {
		out = append(out, k)
	}
	return out
}
