package workflow

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewGraph_Empty(t *testing.T) {
	g, err := NewGraph(nil)
	if err != nil {
		t.Fatalf("Expected no error for empty graph, got: %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("Expected 0 tasks, got %d", g.Len())
	}

	vr := g.Validate()
	if !vr.Valid {
		t.Errorf("Expected empty graph to be valid, got errors: %v", vr.Errors)
	}
}

func TestNewGraph_DuplicateID(t *testing.T) {
	_, err := NewGraph([]TaskSpec{
		{ID: "sync"},
		{ID: "sync"},
	})
	if err == nil {
		t.Fatal("Expected error for duplicate task id")
	}
	if !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "duplicate task id: sync") {
		t.Errorf("Expected duplicate id message, got: %v", err)
	}
}

func TestNewGraph_EmptyID(t *testing.T) {
	_, err := NewGraph([]TaskSpec{{ID: ""}})
	if err == nil {
		t.Fatal("Expected error for empty task id")
	}
	if !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}

func TestNewGraph_NegativeRetries(t *testing.T) {
	_, err := NewGraph([]TaskSpec{{ID: "a", Retries: -1}})
	if err == nil {
		t.Fatal("Expected error for negative retries")
	}
}

func TestNewGraph_DefaultTimeout(t *testing.T) {
	g, err := NewGraph([]TaskSpec{{ID: "a"}, {ID: "b", Timeout: time.Second}})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	a, _ := g.Task("a")
	if a.Timeout != DefaultTaskTimeout {
		t.Errorf("Expected default timeout %s, got %s", DefaultTaskTimeout, a.Timeout)
	}
	b, _ := g.Task("b")
	if b.Timeout != time.Second {
		t.Errorf("Expected declared timeout to be kept, got %s", b.Timeout)
	}
}

func TestGraph_Dependents(t *testing.T) {
	g, err := NewGraph([]TaskSpec{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"a"}},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	deps := g.Dependents("a")
	if len(deps) != 2 || deps[0] != "b" || deps[1] != "c" {
		t.Errorf("Expected dependents [b c] in declaration order, got %v", deps)
	}
}

func TestValidate_MissingDependency(t *testing.T) {
	g, err := NewGraph([]TaskSpec{
		{ID: "A", DependsOn: []string{"ghost"}},
	})
	if err != nil {
		t.Fatalf("Expected no build error, got: %v", err)
	}

	vr := g.Validate()
	if vr.Valid {
		t.Fatal("Expected graph to be invalid")
	}
	if len(vr.Errors) != 1 {
		t.Fatalf("Expected 1 error, got %d: %v", len(vr.Errors), vr.Errors)
	}
	want := "node 'A' has missing dependency: ghost"
	if vr.Errors[0] != want {
		t.Errorf("Expected %q, got %q", want, vr.Errors[0])
	}
}

func TestValidate_Cycle(t *testing.T) {
	g, err := NewGraph([]TaskSpec{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"A"}},
	})
	if err != nil {
		t.Fatalf("Expected no build error, got: %v", err)
	}

	vr := g.Validate()
	if vr.Valid {
		t.Fatal("Expected graph to be invalid")
	}
	if len(vr.Errors) != 1 {
		t.Fatalf("Expected 1 error, got %d: %v", len(vr.Errors), vr.Errors)
	}
	want := "circular dependency: A -> B -> A"
	if vr.Errors[0] != want {
		t.Errorf("Expected %q, got %q", want, vr.Errors[0])
	}
}

func TestValidate_SelfReference(t *testing.T) {
	g, err := NewGraph([]TaskSpec{
		{ID: "A", DependsOn: []string{"A"}},
	})
	if err != nil {
		t.Fatalf("Expected no build error, got: %v", err)
	}

	vr := g.Validate()
	if vr.Valid {
		t.Fatal("Expected graph to be invalid")
	}
	want := "circular dependency: A -> A"
	if len(vr.Errors) != 1 || vr.Errors[0] != want {
		t.Errorf("Expected [%q], got %v", want, vr.Errors)
	}
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	g, err := NewGraph([]TaskSpec{
		{ID: "A", DependsOn: []string{"ghost"}},
		{ID: "B", DependsOn: []string{"C"}},
		{ID: "C", DependsOn: []string{"B"}},
	})
	if err != nil {
		t.Fatalf("Expected no build error, got: %v", err)
	}

	vr := g.Validate()
	if vr.Valid {
		t.Fatal("Expected graph to be invalid")
	}
	if len(vr.Errors) != 2 {
		t.Fatalf("Expected 2 errors, got %d: %v", len(vr.Errors), vr.Errors)
	}
	if !strings.Contains(vr.Errors[0], "missing dependency") {
		t.Errorf("Expected missing dependency reported first, got %v", vr.Errors)
	}
	if !strings.Contains(vr.Errors[1], "circular dependency") {
		t.Errorf("Expected circular dependency reported, got %v", vr.Errors)
	}
}

func TestValidate_LongCycleNamesFullPath(t *testing.T) {
	g, err := NewGraph([]TaskSpec{
		{ID: "A", DependsOn: []string{"C"}},
		{ID: "B", DependsOn: []string{"A"}},
		{ID: "C", DependsOn: []string{"B"}},
	})
	if err != nil {
		t.Fatalf("Expected no build error, got: %v", err)
	}

	vr := g.Validate()
	if vr.Valid {
		t.Fatal("Expected graph to be invalid")
	}
	want := "circular dependency: A -> C -> B -> A"
	if len(vr.Errors) != 1 || vr.Errors[0] != want {
		t.Errorf("Expected [%q], got %v", want, vr.Errors)
	}
}

func TestValidationResult_Err(t *testing.T) {
	valid := ValidationResult{Valid: true}
	if valid.Err() != nil {
		t.Error("Expected nil error for valid result")
	}

	invalid := ValidationResult{Valid: false, Errors: []string{"boom"}}
	err := invalid.Err()
	if err == nil || !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}

func TestValidationResult_ErrCarriesCyclePath(t *testing.T) {
	g, err := NewGraph([]TaskSpec{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"A"}},
	})
	if err != nil {
		t.Fatalf("Expected no build error, got: %v", err)
	}

	vr := g.Validate()
	if len(vr.Cycles) != 1 {
		t.Fatalf("Expected 1 cycle path, got %d: %v", len(vr.Cycles), vr.Cycles)
	}

	var werr *Error
	if !errors.As(vr.Err(), &werr) {
		t.Fatalf("Expected *Error, got: %v", vr.Err())
	}
	want := []string{"A", "B", "A"}
	if len(werr.Cycle) != len(want) {
		t.Fatalf("Expected cycle %v, got %v", want, werr.Cycle)
	}
	for i := range want {
		if werr.Cycle[i] != want[i] {
			t.Errorf("Cycle[%d] = %q, want %q", i, werr.Cycle[i], want[i])
		}
	}
}
