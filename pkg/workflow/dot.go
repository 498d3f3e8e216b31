package workflow

import (
	"fmt"
	"strings"
)

// DOT renders the graph in Graphviz DOT format, grouping tasks by ready
// layer so the rendering mirrors the parallel execution order. The graph
// must be valid.
func (g *Graph) DOT(name string) (string, error) {
	layers, err := g.ReadyLayers()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", name)
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, layer := range layers {
		fmt.Fprintf(&sb, "  subgraph cluster_layer_%d {\n", level)
		fmt.Fprintf(&sb, "    label=\"Layer %d\";\n", level)
		sb.WriteString("    style=dashed;\n")
		for _, id := range layer {
			task, _ := g.Task(id)
			attrs := ""
			if task.Optional {
				attrs = ", style=\"dashed,rounded\""
			}
			fmt.Fprintf(&sb, "    %q [label=%q%s];\n", id, id, attrs)
		}
		sb.WriteString("  }\n\n")
	}

	for _, id := range g.IDs() {
		task, _ := g.Task(id)
		for _, dep := range task.DependsOn {
			fmt.Fprintf(&sb, "  %q -> %q;\n", dep, id)
		}
	}

	sb.WriteString("}\n")
	return sb.String(), nil
}
