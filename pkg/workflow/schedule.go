package workflow

import (
	"sort"
)

// ReadyLayers peels the graph into successive sets of task ids whose
// dependencies have all been peeled already (Kahn's algorithm). Tasks in
// the same layer share no ordering constraints and may run concurrently.
// Within a layer, ties are broken by declaration order.
//
// The graph must have passed Validate; calling this on a cyclic or
// dangling graph is a programming error and yields a configuration error.
func (g *Graph) ReadyLayers() ([][]string, error) {
	if vr := g.Validate(); !vr.Valid {
		return nil, vr.Err()
	}

	indegree := make(map[string]int, len(g.indegree))
	for id, d := range g.indegree {
		indegree[id] = d
	}

	layer := make([]string, 0)
	for _, id := range g.order {
		if indegree[id] == 0 {
			layer = append(layer, id)
		}
	}

	layers := make([][]string, 0)
	processed := 0
	for len(layer) > 0 {
		layers = append(layers, layer)
		processed += len(layer)

		next := make([]string, 0)
		for _, id := range layer {
			for _, dependent := range g.dependents[id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Slice(next, func(i, j int) bool {
			return g.index[next[i]] < g.index[next[j]]
		})
		layer = next
	}

	// Unreachable once Validate passed; kept as an internal guard.
	if processed != len(g.order) {
		return nil, NewConfigurationError("failed to layer all tasks, graph has a cycle", nil).
			WithCode(ErrCodeInternal)
	}

	return layers, nil
}

// TopologicalOrder returns a linear order of task ids in which every task
// appears after all of its dependencies. The order is deterministic: it is
// the concatenation of the ready layers, declaration order within a layer.
func (g *Graph) TopologicalOrder() ([]string, error) {
	layers, err := g.ReadyLayers()
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(g.order))
	for _, layer := range layers {
		order = append(order, layer...)
	}
	return order, nil
}
