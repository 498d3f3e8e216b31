// Package step defines the uniform contract through which Conveyor invokes
// external tools, plus the thin wrappers implementing it. The orchestration
// core consumes collaborators (sync, analyze, test, deploy, ...) strictly
// through this contract and knows nothing about their internals.
package step

import (
	"context"
	"fmt"
	"sort"
)

// Context carries the invocation target and mode-specific options into a
// step.
type Context struct {
	// Target is the path the pipeline operates on.
	Target string `json:"target"`

	// Mode is the orchestration mode the step runs under.
	Mode string `json:"mode"`

	// Options are mode-specific key/value options.
	Options map[string]string `json:"options,omitempty"`
}

// Option returns the named option or a fallback.
func (c Context) Option(key, fallback string) string {
	if v, ok := c.Options[key]; ok {
		return v
	}
	return fallback
}

// Result is the uniform outcome a step reports.
type Result struct {
	// Success is the step's own verdict.
	Success bool `json:"success"`

	// Data is the step's typed output, if any.
	Data *Payload `json:"data,omitempty"`

	// Errors are human-readable failure details.
	Errors []string `json:"errors,omitempty"`

	// Warnings are non-fatal findings.
	Warnings []string `json:"warnings,omitempty"`
}

// ExecutableStep is the only interface the orchestration core requires
// from a collaborator.
type ExecutableStep interface {
	// ID returns the step name.
	ID() string

	// Run executes the step against the invocation context.
	Run(ctx context.Context, sc Context) (Result, error)
}

// FuncStep adapts a plain function to the ExecutableStep contract.
type FuncStep struct {
	id string
	fn func(ctx context.Context, sc Context) (Result, error)
}

// NewFuncStep wraps fn as a step with the given id.
func NewFuncStep(id string, fn func(ctx context.Context, sc Context) (Result, error)) *FuncStep {
	return &FuncStep{id: id, fn: fn}
}

// ID returns the step name.
func (s *FuncStep) ID() string { return s.id }

// Run invokes the wrapped function.
func (s *FuncStep) Run(ctx context.Context, sc Context) (Result, error) {
	return s.fn(ctx, sc)
}

// Set is a named collection of steps, passed explicitly to whoever needs
// to resolve step names.
type Set struct {
	steps map[string]ExecutableStep
}

// NewSet creates an empty step set.
func NewSet() *Set {
	return &Set{steps: make(map[string]ExecutableStep)}
}

// Add registers a step under its id. Duplicate ids are rejected.
func (s *Set) Add(st ExecutableStep) error {
	if st == nil || st.ID() == "" {
		return fmt.Errorf("step has no id")
	}
	if _, exists := s.steps[st.ID()]; exists {
		return fmt.Errorf("duplicate step: %s", st.ID())
	}
	s.steps[st.ID()] = st
	return nil
}

// Get returns the step registered under id.
func (s *Set) Get(id string) (ExecutableStep, bool) {
	st, ok := s.steps[id]
	return st, ok
}

// Names returns the registered step ids, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.steps))
	for id := range s.steps {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}
