// Package scheduler is C6: it computes, per execution, the set of ready
// steps and dispatches them within the concurrency and write-key-conflict
// bounds of spec.md §4.6.
package scheduler

import (
	"sort"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

// stepState is the minimal view the scheduler needs of a step's current
// status to compute readiness.
type stepState struct {
	ID     string
	Status types.StepStatus
}

// readySteps returns, in lexicographic order, the ids of redispatchable steps
// whose dependencies have all reached COMPLETED or SKIPPED. It does not
// itself exclude a step whose dependency set is entirely SKIPPED (that case
// makes it logically unreachable; spec.md §4.6: "a step with all-SKIPPED
// dependencies is SKIPPED; otherwise it proceeds"): Tick runs
// unreachableSteps first, which marks such a step SKIPPED, so by the time
// readySteps runs it is no longer redispatchable.
//
// A step is redispatchable if it is PENDING (never attempted), or if its
// latest recorded status is RUNNING. The latter covers two cases that never
// go through PENDING again: ProvideStepInput moves a step straight from
// AWAITING_INPUT to RUNNING (spec.md §4.5) with nothing else to demote it
// back to PENDING, and a crash between an executor's return and the
// matching status transition leaves a step RUNNING for the next tick to
// re-evaluate. Tick computes readySteps once at the start of
// a pass, before any of that pass's own dispatches run, so a step already
// RUNNING at that point is never one this same pass put there — it's always
// left over from a prior tick or an external call, never an in-flight
// dispatch to double-run.
func readySteps(def *types.WorkflowDefinition, statuses map[string]stepState) []string {
	var ready []string
	for _, step := range def.Steps {
		cur, ok := statuses[step.ID]
		if ok && cur.Status != types.StepPending && cur.Status != types.StepRunning {
			continue
		}
		if allSatisfied(step.Dependencies, statuses) {
			ready = append(ready, step.ID)
		}
	}
	sort.Strings(ready)
	return ready
}

// unreachableSteps returns PENDING steps whose every dependency resolved to
// SKIPPED (so they can never become ready) and are themselves not yet
// SKIPPED, per spec.md §4.6's default unreachability rule.
func unreachableSteps(def *types.WorkflowDefinition, statuses map[string]stepState) []string {
	var unreachable []string
	for _, step := range def.Steps {
		if len(step.Dependencies) == 0 {
			continue
		}
		cur, ok := statuses[step.ID]
		if ok && cur.Status != types.StepPending {
			continue
		}
		if allSkipped(step.Dependencies, statuses) {
			unreachable = append(unreachable, step.ID)
		}
	}
	sort.Strings(unreachable)
	return unreachable
}

// allSatisfied reports whether every dependency has reached a status that
// unblocks its dependent: COMPLETED, or SKIPPED-but-reachable (spec.md §4.6:
// a step is never RUNNING until every step in its dependencies is COMPLETED
// or SKIPPED-but-reachable). It also returns true for a dependency set that
// is entirely SKIPPED — that case makes the dependent itself unreachable and
// is handled by unreachableSteps, which runs first in Tick and marks it
// SKIPPED before readySteps is computed.
func allSatisfied(deps []string, statuses map[string]stepState) bool {
	for _, d := range deps {
		s, ok := statuses[d]
		if !ok || (s.Status != types.StepCompleted && s.Status != types.StepSkipped) {
			return false
		}
	}
	return true
}

func allSkipped(deps []string, statuses map[string]stepState) bool {
	if len(deps) == 0 {
		return false
	}
	for _, d := range deps {
		s, ok := statuses[d]
		if !ok || s.Status != types.StepSkipped {
			return false
		}
	}
	return true
}

// partitionByWriteKeys groups readyIDs so that steps sharing a declared
// output key land in the same group, to be run serially within that group
// (spec.md §4.6: "if declared output-keys overlap, they are serialized in
// definition order (a tie-break by step id lexicographic when the definition
// order does not disambiguate)"). positions maps each step id to its index
// in WorkflowDefinition.Steps — the primary sort key within a group. Groups
// themselves are independent and may run concurrently.
func partitionByWriteKeys(readyIDs []string, outputKeys map[string][]string, positions map[string]int) [][]string {
	keyOwner := make(map[string]int) // output key -> group index
	groups := make([][]string, 0, len(readyIDs))

	for _, id := range readyIDs {
		assigned := -1
		for _, k := range outputKeys[id] {
			g, ok := keyOwner[k]
			if !ok || g == assigned {
				continue
			}
			if assigned == -1 {
				assigned = g
				continue
			}
			// id shares keys with two groups: fold g into assigned.
			for _, member := range groups[g] {
				for _, mk := range outputKeys[member] {
					keyOwner[mk] = assigned
				}
			}
			groups[assigned] = append(groups[assigned], groups[g]...)
			groups[g] = nil
		}
		if assigned == -1 {
			assigned = len(groups)
			groups = append(groups, nil)
		}
		groups[assigned] = append(groups[assigned], id)
		for _, k := range outputKeys[id] {
			keyOwner[k] = assigned
		}
	}

	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			pi, pj := positions[g[i]], positions[g[j]]
			if pi != pj {
				return pi < pj
			}
			return g[i] < g[j]
		})
	}
	return groups
}
