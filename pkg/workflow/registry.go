package workflow

import (
	"fmt"
)

// Registry holds reusable workflow definitions keyed by name. It is a
// plain value passed explicitly to whatever constructs graphs from it;
// there is no process-wide registry.
//
// Templates usually carry nil actions; Graph binds actions by task id at
// construction time.
type Registry struct {
	templates map[string][]TaskSpec
	names     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string][]TaskSpec)}
}

// Register stores a named workflow definition. Re-registering a name is
// rejected.
func (r *Registry) Register(name string, specs []TaskSpec) error {
	if name == "" {
		return NewConfigurationError("template name is empty", nil).
			WithCode(ErrCodeValidation)
	}
	if _, exists := r.templates[name]; exists {
		return NewConfigurationError(
			fmt.Sprintf("template already registered: %s", name), nil).
			WithCode(ErrCodeAlreadyExists)
	}
	r.templates[name] = append([]TaskSpec(nil), specs...)
	r.names = append(r.names, name)
	return nil
}

// MustRegister is Register for static template tables; it panics on error.
func (r *Registry) MustRegister(name string, specs []TaskSpec) {
	if err := r.Register(name, specs); err != nil {
		panic(err)
	}
}

// Lookup returns a copy of the named definition.
func (r *Registry) Lookup(name string) ([]TaskSpec, bool) {
	specs, ok := r.templates[name]
	if !ok {
		return nil, false
	}
	return append([]TaskSpec(nil), specs...), true
}

// Names returns the registered template names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Graph builds a runnable graph from the named template, attaching an
// action to every task. Every task id must have an action; templates that
// already carry an action for a task keep it when the map has no entry.
func (r *Registry) Graph(name string, actions map[string]Action) (*Graph, error) {
	specs, ok := r.Lookup(name)
	if !ok {
		return nil, NewConfigurationError(
			fmt.Sprintf("unknown workflow template: %s", name), nil).
			WithCode(ErrCodeNotFound)
	}

	for i := range specs {
		if action, ok := actions[specs[i].ID]; ok {
			specs[i].Action = action
		}
		if specs[i].Action == nil {
			return nil, NewConfigurationError(
				fmt.Sprintf("template %s: no action bound for task %s", name, specs[i].ID), nil).
				WithCode(ErrCodeValidation).WithTask(specs[i].ID)
		}
	}

	return NewGraph(specs)
}
