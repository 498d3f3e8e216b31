package workflow

import (
	"fmt"
)

// Graph is an immutable dependency graph built from task declarations.
// Tasks are held in an index-based arena keyed by id; edges are plain id
// lists, so a malformed (cyclic) declaration is still just data and is
// reported by Validate rather than being unrepresentable.
type Graph struct {
	// tasks maps task ids to their specs.
	tasks map[string]*TaskSpec

	// order preserves declaration order for deterministic iteration.
	order []string

	// index maps task ids to their declaration position.
	index map[string]int

	// dependents maps a task id to the ids that depend on it, in the
	// dependents' declaration order. Only edges whose endpoint exists are
	// recorded; dangling references are reported by Validate.
	dependents map[string][]string

	// indegree counts resolvable incoming edges per task.
	indegree map[string]int
}

// NewGraph constructs a graph from task specs. Duplicate or empty ids and
// negative retry counts are rejected at build time; referential integrity
// and acyclicity are checked by Validate.
func NewGraph(specs []TaskSpec) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]*TaskSpec, len(specs)),
		order:      make([]string, 0, len(specs)),
		index:      make(map[string]int, len(specs)),
		dependents: make(map[string][]string),
		indegree:   make(map[string]int, len(specs)),
	}

	for i := range specs {
		spec := specs[i]
		if spec.ID == "" {
			return nil, NewConfigurationError("task has empty id", nil).
				WithCode(ErrCodeValidation)
		}
		if _, exists := g.tasks[spec.ID]; exists {
			return nil, NewConfigurationError(
				fmt.Sprintf("duplicate task id: %s", spec.ID), nil).
				WithCode(ErrCodeAlreadyExists).WithTask(spec.ID)
		}
		if spec.Retries < 0 {
			return nil, NewConfigurationError(
				fmt.Sprintf("task %s has negative retries: %d", spec.ID, spec.Retries), nil).
				WithCode(ErrCodeValidation).WithTask(spec.ID)
		}
		if spec.Timeout <= 0 {
			spec.Timeout = DefaultTaskTimeout
		}
		spec.DependsOn = append([]string(nil), spec.DependsOn...)

		g.index[spec.ID] = len(g.order)
		g.order = append(g.order, spec.ID)
		g.tasks[spec.ID] = &spec
		g.indegree[spec.ID] = 0
	}

	// Second pass: record edges between declared tasks.
	for _, id := range g.order {
		for _, dep := range g.tasks[id].DependsOn {
			if _, exists := g.tasks[dep]; !exists {
				continue
			}
			g.dependents[dep] = append(g.dependents[dep], id)
			g.indegree[id]++
		}
	}

	return g, nil
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// IDs returns the task ids in declaration order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Task returns the spec for the given id.
func (g *Graph) Task(id string) (TaskSpec, bool) {
	if t, ok := g.tasks[id]; ok {
		return *t, true
	}
	return TaskSpec{}, false
}

// Dependents returns the ids of tasks that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}
