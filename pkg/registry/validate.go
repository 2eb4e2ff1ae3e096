package registry

import (
	"fmt"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// ValidationResult is one rule's outcome within a ValidationReport
// (SPEC_FULL.md §3).
type ValidationResult struct {
	Rule    string `json:"rule"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// ValidationSummary aggregates a ValidationReport's results.
type ValidationSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ValidationReport is returned by Validate (and by Register on failure),
// per SPEC_FULL.md §3's workflow-definition validation report feature.
type ValidationReport struct {
	Summary *ValidationSummary  `json:"summary"`
	Results []*ValidationResult `json:"results"`
}

func newReport() *ValidationReport {
	return &ValidationReport{Summary: &ValidationSummary{}, Results: nil}
}

func (r *ValidationReport) record(rule string, passed bool, message string) {
	r.Summary.Total++
	if passed {
		r.Summary.Passed++
	} else {
		r.Summary.Failed++
	}
	r.Results = append(r.Results, &ValidationResult{Rule: rule, Passed: passed, Message: message})
}

func (r *ValidationReport) ok() bool {
	return r.Summary.Failed == 0
}

// Validate runs every invariant spec.md §3/§4.4 names against def and
// returns a ValidationReport. It never mutates def or the registry; Register
// calls this internally and rejects defs whose report is not ok().
func Validate(def *types.WorkflowDefinition, lib *steplibrary.Library) (*ValidationReport, error) {
	report := newReport()

	if len(def.Steps) == 0 {
		report.record("non_empty_steps", false, "workflow must declare at least one step")
		return report, apperror.New(apperror.KindInvalidEntryExit, "workflow has no steps")
	}
	report.record("non_empty_steps", true, "")

	seen := make(map[string]bool, len(def.Steps))
	var dup []string
	for _, s := range def.Steps {
		if seen[s.ID] {
			dup = append(dup, s.ID)
		}
		seen[s.ID] = true
	}
	if len(dup) > 0 {
		msg := fmt.Sprintf("duplicate step ids: %v", dup)
		report.record("unique_step_ids", false, msg)
		return report, apperror.New(apperror.KindDuplicateStepId, msg)
	}
	report.record("unique_step_ids", true, "")

	stepIDs := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		stepIDs[s.ID] = true
	}

	refsValid := true
	checkRefs := func(label string, ids []string) {
		for _, id := range ids {
			if !stepIDs[id] {
				refsValid = false
				report.record("valid_references", false, fmt.Sprintf("%s references unknown step %q", label, id))
			}
		}
	}
	checkRefs("entry_points", def.EntryPoints)
	checkRefs("exit_points", def.ExitPoints)
	for _, s := range def.Steps {
		checkRefs("dependencies of "+s.ID, s.Dependencies)
	}
	if !refsValid {
		return report, apperror.New(apperror.KindInvalidEntryExit, "definition references unknown step ids")
	}
	report.record("valid_references", true, "")

	if len(def.EntryPoints) == 0 || len(def.ExitPoints) == 0 {
		report.record("non_empty_entry_exit", false, "entry_points and exit_points must both be non-empty")
		return report, apperror.New(apperror.KindInvalidEntryExit, "entry_points and exit_points must both be non-empty")
	}
	report.record("non_empty_entry_exit", true, "")

	entrySet := make(map[string]bool, len(def.EntryPoints))
	for _, e := range def.EntryPoints {
		entrySet[e] = true
	}
	exitSet := make(map[string]bool, len(def.ExitPoints))
	for _, e := range def.ExitPoints {
		exitSet[e] = true
	}
	for e := range entrySet {
		if exitSet[e] {
			report.record("disjoint_entry_exit", false, fmt.Sprintf("step %q is both an entry and an exit point", e))
			return report, apperror.New(apperror.KindInvalidEntryExit, "entry_points and exit_points must be disjoint")
		}
	}
	report.record("disjoint_entry_exit", true, "")

	for _, s := range def.Steps {
		if entrySet[s.ID] && len(s.Dependencies) > 0 {
			msg := fmt.Sprintf("entry step %q must have no declared dependencies", s.ID)
			report.record("entry_has_no_inbound_edges", false, msg)
			return report, apperror.New(apperror.KindInvalidEntryExit, msg)
		}
		if !entrySet[s.ID] && len(s.Dependencies) == 0 {
			msg := fmt.Sprintf("non-entry step %q must declare at least one dependency", s.ID)
			report.record("non_entry_has_dependency", false, msg)
			return report, apperror.New(apperror.KindInvalidEntryExit, msg)
		}
	}
	report.record("entry_has_no_inbound_edges", true, "")
	report.record("non_entry_has_dependency", true, "")

	order, acyclic := topologicalSort(def)
	if !acyclic {
		report.record("acyclic", false, "dependency graph contains a cycle")
		return report, apperror.New(apperror.KindCyclicDependencies, "workflow dependency graph contains a cycle")
	}
	report.record("acyclic", true, "")
	_ = order

	reachable := reachableFrom(def, def.EntryPoints)
	for _, s := range def.Steps {
		if !reachable[s.ID] {
			msg := fmt.Sprintf("step %q is not reachable from any entry point", s.ID)
			report.record("every_step_reachable", false, msg)
			return report, apperror.New(apperror.KindUnreachableStep, msg)
		}
	}
	report.record("every_step_reachable", true, "")

	for _, exit := range def.ExitPoints {
		if !reachable[exit] {
			msg := fmt.Sprintf("exit point %q is not reachable from any entry point", exit)
			report.record("every_exit_reachable", false, msg)
			return report, apperror.New(apperror.KindUnreachableStep, msg)
		}
	}
	report.record("every_exit_reachable", true, "")

	for _, s := range def.Steps {
		if _, err := lib.DecodeConfig(s); err != nil {
			report.record("step_config_schema:"+s.ID, false, err.Error())
			return report, err
		}
	}
	report.record("step_config_schemas", true, "")

	return report, nil
}
