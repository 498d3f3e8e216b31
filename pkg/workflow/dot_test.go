package workflow

import (
	"strings"
	"testing"
)

func TestGraph_DOT(t *testing.T) {
	g := mustGraph(t, []TaskSpec{
		{ID: "sync"},
		{ID: "test", DependsOn: []string{"sync"}, Optional: true},
	})

	out, err := g.DOT("ci")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for _, want := range []string{
		`digraph "ci"`,
		"cluster_layer_0",
		"cluster_layer_1",
		`"sync" -> "test";`,
		"dashed,rounded", // optional tasks rendered dashed
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected DOT output to contain %q:\n%s", want, out)
		}
	}
}

func TestGraph_DOT_InvalidGraph(t *testing.T) {
	g := mustGraph(t, []TaskSpec{{ID: "a", DependsOn: []string{"a"}}})

	if _, err := g.DOT("bad"); !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}
