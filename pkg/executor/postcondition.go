package executor

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

// PostConditionType is the kind of built-in invariant a step kind can
// declare, distinct from author-written StepSpec.validation_rules.
type PostConditionType string

const (
	// PostConditionWeightSum asserts a list-of-decimals output sums to 1
	// within types.WeightSumTolerance (spec.md §4.3 numerics).
	PostConditionWeightSum PostConditionType = "weight_sum"
	// PostConditionNonEmpty asserts a delta key is present and non-null.
	PostConditionNonEmpty PostConditionType = "non_empty"
)

// PostCondition is one built-in invariant check, tagged Critical so a
// non-critical failure is recorded but doesn't fail the step.
type PostCondition struct {
	Type     PostConditionType
	Name     string
	Key      string
	Critical bool
	Enabled  bool
}

// PostConditionResult is one evaluated PostCondition's outcome.
type PostConditionResult struct {
	Name     string
	Passed   bool
	Critical bool
	Message  string
}

// PostConditionRegistry evaluates a step kind's declared built-in invariants
// against an executor's delta/outputs after it returns Done, in addition to
// the author-declared validation_rules the engine runs separately.
type PostConditionRegistry struct {
	log        *logrus.Logger
	conditions map[string][]PostCondition // keyed by step kind
}

func NewPostConditionRegistry(log *logrus.Logger) *PostConditionRegistry {
	return &PostConditionRegistry{log: log, conditions: make(map[string][]PostCondition)}
}

// Register declares conditions that apply to every step of the given kind.
func (r *PostConditionRegistry) Register(kind string, conditions ...PostCondition) {
	r.conditions[kind] = append(r.conditions[kind], conditions...)
}

// Evaluate runs every registered condition for kind against delta, returning
// overall success (false iff any Critical condition fails) and per-condition
// results.
func (r *PostConditionRegistry) Evaluate(kind string, delta map[string]interface{}) (bool, []PostConditionResult) {
	conditions := r.conditions[kind]
	if len(conditions) == 0 {
		return true, nil
	}

	results := make([]PostConditionResult, 0, len(conditions))
	passed, failed, criticalFailed := 0, 0, 0
	for _, c := range conditions {
		if !c.Enabled {
			continue
		}
		ok, msg := r.evaluateOne(c, delta)
		results = append(results, PostConditionResult{Name: c.Name, Passed: ok, Critical: c.Critical, Message: msg})
		if ok {
			passed++
		} else {
			failed++
			if c.Critical {
				criticalFailed++
			}
		}
	}

	if r.log != nil {
		r.log.WithFields(logrus.Fields{"kind": kind, "passed": passed, "failed": failed, "critical_failed": criticalFailed}).
			Debug("post-condition validation complete")
	}
	return criticalFailed == 0, results
}

func (r *PostConditionRegistry) evaluateOne(c PostCondition, delta map[string]interface{}) (bool, string) {
	switch c.Type {
	case PostConditionNonEmpty:
		v, ok := delta[c.Key]
		if !ok || v == nil {
			return false, fmt.Sprintf("%s is missing from the step's output", c.Key)
		}
		return true, ""
	case PostConditionWeightSum:
		sum, ok := sumWeights(delta[c.Key])
		if !ok {
			return false, fmt.Sprintf("%s is not a list of weights", c.Key)
		}
		if diff := sum - 1.0; diff > types.WeightSumTolerance || diff < -types.WeightSumTolerance {
			return false, fmt.Sprintf("weights in %s sum to %.10f, expected 1", c.Key, sum)
		}
		return true, ""
	default:
		return false, fmt.Sprintf("unknown post-condition type %q", c.Type)
	}
}

func sumWeights(v interface{}) (float64, bool) {
	list, ok := v.([]interface{})
	if !ok {
		return 0, false
	}
	var sum float64
	for _, e := range list {
		f, ok := e.(float64)
		if !ok {
			return 0, false
		}
		sum += f
	}
	return sum, true
}
