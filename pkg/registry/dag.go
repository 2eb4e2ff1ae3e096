package registry

import (
	"sort"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

// topologicalSort runs Kahn's algorithm over the dependency graph implied by
// def.Steps[*].Dependencies. It returns the steps in a valid dependency order
// and false if the graph contains a cycle (spec.md §4.4: "Kahn topological
// sort must consume all nodes").
func topologicalSort(def *types.WorkflowDefinition) ([]string, bool) {
	inDegree := make(map[string]int, len(def.Steps))
	dependents := make(map[string][]string, len(def.Steps))

	for _, step := range def.Steps {
		if _, ok := inDegree[step.ID]; !ok {
			inDegree[step.ID] = 0
		}
		for _, dep := range step.Dependencies {
			inDegree[step.ID]++
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue) // deterministic order

	var order []string
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		order = append(order, next)

		children := append([]string(nil), dependents[next]...)
		sort.Strings(children)
		for _, child := range children {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
				sort.Strings(queue)
			}
		}
	}

	return order, len(order) == len(inDegree)
}

// reachableFrom returns the set of step ids reachable by following
// Dependencies edges forward (dependency -> dependent) starting at roots.
func reachableFrom(def *types.WorkflowDefinition, roots []string) map[string]bool {
	dependents := make(map[string][]string, len(def.Steps))
	for _, step := range def.Steps {
		for _, dep := range step.Dependencies {
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	visited := make(map[string]bool, len(def.Steps))
	queue := append([]string(nil), roots...)
	for _, r := range roots {
		visited[r] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range dependents[cur] {
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}
	return visited
}
