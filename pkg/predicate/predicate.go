// Package predicate implements C3's PredicateEvaluator contract: named
// checks declared on a VALIDATION step are compiled and run against a
// context snapshot by one of two backends, selected per-check by
// CheckDescriptor.Engine (spec.md §4.3).
package predicate

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"
	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/ledgerflow/workflowengine/internal/apperror"
)

// Dispatcher routes each predicate to the gojq or opa backend named by
// engine, caching compiled gojq queries by source text so a check
// referenced by many executions across many steps is parsed once. Rego
// modules are not cached; evalOPA compiles one on every call.
type Dispatcher struct {
	mu        sync.Mutex
	gojqCache map[string]*gojq.Code
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{gojqCache: make(map[string]*gojq.Code)}
}

// Evaluate satisfies executor.PredicateEvaluator.
func (d *Dispatcher) Evaluate(ctx context.Context, engine string, predicate string, params map[string]interface{}, data map[string]interface{}) (bool, error) {
	switch engine {
	case "gojq":
		return d.evalGojq(ctx, predicate, params, data)
	case "opa":
		return d.evalOPA(ctx, predicate, params, data)
	default:
		return false, apperror.Newf(apperror.KindIncompatibleConfig, "unknown predicate engine %q", engine)
	}
}

func (d *Dispatcher) evalGojq(ctx context.Context, query string, params, data map[string]interface{}) (bool, error) {
	code, err := d.compileGojq(query)
	if err != nil {
		return false, apperror.Wrapf(err, apperror.KindValidationFailed, "predicate %q failed to compile", query)
	}

	input := map[string]interface{}{"context": data, "params": params}
	iter := code.RunWithContext(ctx, input)
	v, ok := iter.Next()
	if !ok {
		return false, apperror.Newf(apperror.KindValidationFailed, "predicate %q produced no result", query)
	}
	if err, ok := v.(error); ok {
		return false, apperror.Wrapf(err, apperror.KindValidationFailed, "predicate %q errored", query)
	}
	result, ok := v.(bool)
	if !ok {
		return false, apperror.Newf(apperror.KindValidationFailed, "predicate %q must produce a boolean, got %T", query, v)
	}
	return result, nil
}

func (d *Dispatcher) compileGojq(query string) (*gojq.Code, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if code, ok := d.gojqCache[query]; ok {
		return code, nil
	}
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, err
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, err
	}
	d.gojqCache[query] = code
	return code, nil
}

// evalOPA compiles and evaluates a Rego module on every call: OPA modules
// are expected to be short, per-check bundles, not worth a cross-request
// cache the way a gojq query is. Every module is queried as
// data.check.allow, so it must declare `package check` and define `allow`.
func (d *Dispatcher) evalOPA(ctx context.Context, module string, params, data map[string]interface{}) (bool, error) {
	r := rego.New(
		rego.Query("data.check.allow"),
		rego.Module("check.rego", module),
		rego.SetRegoVersion(ast.RegoV1),
		rego.Input(map[string]interface{}{"context": data, "params": params}),
	)
	rs, err := r.Eval(ctx)
	if err != nil {
		return false, apperror.Wrapf(err, apperror.KindValidationFailed, "opa predicate errored")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, apperror.Newf(apperror.KindValidationFailed, "opa predicate produced no result")
	}
	allow, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, apperror.Newf(apperror.KindValidationFailed, "opa predicate's data.check.allow must be boolean")
	}
	return allow, nil
}
