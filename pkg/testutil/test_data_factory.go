// Package testutil centralizes test fixture construction so individual
// package tests don't each hand-roll WorkflowDefinition/execution literals.
package testutil

import (
	"time"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

const (
	DefaultWorkflowID   = "refund-review"
	DefaultWorkflowName = "Refund Review"
	DefaultCategory     = "refunds"
	DefaultPrincipalID  = "principal-1"
	DefaultSessionID    = "session-1"
	DefaultExecutionID  = "exec-1"
)

// Factory builds representative WorkflowDefinition, execution, and value
// fixtures for package test suites; the boundary server tests use it.
type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

// LinearDefinition returns a three-step, single-chain workflow: collect an
// amount, evaluate a decision against it, then run an automated disbursement.
func (f *Factory) LinearDefinition() *types.WorkflowDefinition {
	return &types.WorkflowDefinition{
		ID:          DefaultWorkflowID,
		Version:     1,
		Name:        DefaultWorkflowName,
		Description: "Collects a refund amount, evaluates it, then disburses.",
		Category:    DefaultCategory,
		Steps: []types.StepSpec{
			{ID: "collect-amount", Name: "Collect Amount", Kind: types.StepKindDataCollection, Config: map[string]interface{}{
				"fields": []map[string]interface{}{{"key": "amount", "type": "decimal", "required": true}},
			}},
			{ID: "evaluate", Name: "Evaluate", Kind: types.StepKindDecision, Dependencies: []string{"collect-amount"}, Config: map[string]interface{}{
				"inputType": "single", "options": []string{"approve", "deny"},
			}},
			{ID: "disburse", Name: "Disburse", Kind: types.StepKindAutomated, Dependencies: []string{"evaluate"}, Config: map[string]interface{}{
				"transform": "normalize_profile",
			}},
		},
		EntryPoints: []string{"collect-amount"},
		ExitPoints:  []string{"disburse"},
		PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// BranchingDefinition returns a workflow whose middle step (b) depends on a
// step (a) that may resolve to either COMPLETED or SKIPPED, and whose exit
// point (c) depends only on b — exercising both the readiness and the
// SKIPPED-cascade paths through the same three-step shape.
func (f *Factory) BranchingDefinition() *types.WorkflowDefinition {
	return &types.WorkflowDefinition{
		ID:          "branching-sample",
		Version:     1,
		Name:        "Branching Sample",
		Category:    DefaultCategory,
		Steps: []types.StepSpec{
			{ID: "a", Name: "A", Kind: types.StepKindValidation, Config: map[string]interface{}{
				"checks": []map[string]interface{}{{"name": "has-amount", "predicate": ".context.amount != null", "engine": "gojq"}},
			}},
			{ID: "b", Name: "B", Kind: types.StepKindAutomated, Dependencies: []string{"a"}, Config: map[string]interface{}{
				"transform": "normalize_profile",
			}},
			{ID: "c", Name: "C", Kind: types.StepKindAutomated, Dependencies: []string{"b"}, Config: map[string]interface{}{
				"transform": "normalize_profile",
			}},
		},
		EntryPoints: []string{"a"},
		ExitPoints:  []string{"c"},
		PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// NewExecution starts a fresh WorkflowExecution for def at its entry points.
func (f *Factory) NewExecution(def *types.WorkflowDefinition) types.WorkflowExecution {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return types.WorkflowExecution{
		ExecutionID:     DefaultExecutionID,
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		PrincipalID:     DefaultPrincipalID,
		SessionID:       DefaultSessionID,
		Status:          types.ExecutionPending,
		CurrentSteps:    append([]string(nil), def.EntryPoints...),
		StartedAt:       now,
		UpdatedAt:       now,
	}
}

// RefundContext returns a representative context snapshot for a refund
// workflow: an amount, a risk tolerance, and an approver list.
func (f *Factory) RefundContext() map[string]types.Value {
	return map[string]types.Value{
		"amount":         types.DecimalFromFloat(125.50, types.DefaultCurrencyPrecision),
		"risk_tolerance": types.DecimalFromFloat(0.5, types.DefaultWeightPrecision),
		"approvers":      types.List([]types.Value{types.String("alice"), types.String("bob")}),
		"auto_approved":  types.Bool(false),
	}
}
