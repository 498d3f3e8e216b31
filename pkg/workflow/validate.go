package workflow

import (
	"fmt"
	"strings"
)

// ValidationResult reports every violation found in a graph, not just the
// first one.
type ValidationResult struct {
	// Valid is true when no violations were found.
	Valid bool `json:"valid"`

	// Errors lists human-readable violation messages in a deterministic
	// order (declaration order of the offending tasks).
	Errors []string `json:"errors,omitempty"`

	// Cycles holds the path of each detected cycle, closing node
	// repeated, in the order the cycles were found.
	Cycles [][]string `json:"cycles,omitempty"`
}

// Err converts an invalid result into a configuration error carrying the
// first detected cycle path, if any. It returns nil when the result is
// valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	err := NewConfigurationError(strings.Join(r.Errors, "; "), nil).
		WithCode(ErrCodeValidation)
	if len(r.Cycles) > 0 {
		err = err.WithCycle(r.Cycles[0])
	}
	return err
}

// Validate checks referential integrity and acyclicity. An empty graph is
// valid. Missing dependencies are reported per task and id, independently
// of cycle checking; cycles are reported with their full path
// (e.g. "circular dependency: A -> B -> A"), where a self-referencing task
// forms a one-element cycle.
func (g *Graph) Validate() ValidationResult {
	res := ValidationResult{Valid: true}

	for _, id := range g.order {
		for _, dep := range g.tasks[id].DependsOn {
			if _, exists := g.tasks[dep]; !exists {
				res.Errors = append(res.Errors,
					fmt.Sprintf("node '%s' has missing dependency: %s", id, dep))
			}
		}
	}

	msgs, cycles := g.findCycles()
	res.Errors = append(res.Errors, msgs...)
	res.Cycles = cycles
	res.Valid = len(res.Errors) == 0
	return res
}

// findCycles walks dependency edges depth-first from every task, tracking
// the active path. Revisiting a task still on the path is a cycle. Tasks
// proven acyclic are marked cleared and never re-walked; that is a
// performance optimization only.
func (g *Graph) findCycles() ([]string, [][]string) {
	var msgs []string
	var cycles [][]string
	cleared := make(map[string]bool, len(g.order))
	onPath := make(map[string]bool)
	path := make([]string, 0, len(g.order))

	var walk func(id string)
	walk = func(id string) {
		onPath[id] = true
		path = append(path, id)

		for _, dep := range g.tasks[id].DependsOn {
			if _, exists := g.tasks[dep]; !exists {
				// Dangling reference, reported separately.
				continue
			}
			if cleared[dep] {
				continue
			}
			if onPath[dep] {
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), dep)
				msgs = append(msgs,
					"circular dependency: "+strings.Join(cycle, " -> "))
				cycles = append(cycles, cycle)
				continue
			}
			walk(dep)
		}

		onPath[id] = false
		path = path[:len(path)-1]
		cleared[id] = true
	}

	for _, id := range g.order {
		if !cleared[id] {
			walk(id)
		}
	}

	return msgs, cycles
}
