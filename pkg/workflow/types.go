package workflow

import (
	"context"
	"fmt"
	"time"
)

// DefaultTaskTimeout is applied to task specs that declare no timeout.
const DefaultTaskTimeout = 10 * time.Minute

// Action is the opaque unit of work attached to a task. It receives a
// context that carries the attempt deadline; an action that wants to stop
// early on timeout or cancellation must observe the context itself.
type Action func(ctx context.Context) (any, error)

// TaskSpec declares a single task of a workflow graph.
type TaskSpec struct {
	// ID is the task identifier, unique within its graph.
	ID string `json:"id"`

	// Action is the work to perform. Templates stored in a Registry may
	// leave it nil until bound.
	Action Action `json:"-"`

	// DependsOn lists the ids of tasks that must succeed before this one
	// is attempted.
	DependsOn []string `json:"depends_on,omitempty"`

	// Optional marks a task whose failure does not fail the run.
	Optional bool `json:"optional,omitempty"`

	// Retries is the number of additional attempts after a failure.
	// A task with Retries = N is attempted at most N+1 times.
	Retries int `json:"retries,omitempty"`

	// Timeout bounds each individual attempt. Zero means DefaultTaskTimeout.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// TaskStatus represents the execution status of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not been attempted yet.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning indicates the task is currently executing.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusSucceeded indicates the task completed successfully.
	TaskStatusSucceeded TaskStatus = "succeeded"

	// TaskStatusFailed indicates all attempts of the task failed.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusSkipped indicates the task was never attempted because a
	// dependency failed or the run halted.
	TaskStatusSkipped TaskStatus = "skipped"
)

// IsTerminal returns true if the status represents a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusSkipped
}

// Validate checks if the task status is valid.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusSucceeded,
		TaskStatusFailed, TaskStatusSkipped:
		return nil
	default:
		return fmt.Errorf("invalid task status: %s", s)
	}
}

// Policy selects how the engine walks a graph.
type Policy string

const (
	// PolicySequential runs tasks one at a time in topological order.
	PolicySequential Policy = "sequential"

	// PolicyParallel runs ready layers concurrently with a join barrier
	// between layers.
	PolicyParallel Policy = "parallel"
)

// Validate checks if the policy is valid.
func (p Policy) Validate() error {
	switch p {
	case PolicySequential, PolicyParallel:
		return nil
	default:
		return fmt.Errorf("invalid execution policy: %s", p)
	}
}

// Outcome is the per-task result of one graph execution.
type Outcome struct {
	// TaskID is the id of the task this outcome belongs to.
	TaskID string `json:"task_id"`

	// Status is the terminal status of the task.
	Status TaskStatus `json:"status"`

	// Attempts is the number of attempts actually made.
	Attempts int `json:"attempts"`

	// Value is the value produced by the final successful attempt.
	Value any `json:"value,omitempty"`

	// Err is the error of the final attempt, or the skip reason.
	Err error `json:"-"`

	// StartedAt is when the first attempt was dispatched.
	StartedAt time.Time `json:"started_at"`

	// Duration spans all attempts of the task.
	Duration time.Duration `json:"duration"`
}

// Result is the aggregate outcome of one graph execution.
type Result struct {
	// RunID uniquely identifies this execution.
	RunID string `json:"run_id"`

	// Success is true iff no required task failed.
	Success bool `json:"success"`

	// Outcomes maps task id to its outcome.
	Outcomes map[string]Outcome `json:"outcomes"`

	// StartedAt is when the run dispatched its first task.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall clock time of the whole run.
	Duration time.Duration `json:"duration"`

	// Summary provides counts by terminal status.
	Summary Summary `json:"summary"`
}

// Summary provides statistics about a run.
type Summary struct {
	// Total is the number of tasks in the graph.
	Total int `json:"total"`

	// Succeeded is the number of tasks that succeeded.
	Succeeded int `json:"succeeded"`

	// Failed is the number of tasks that failed.
	Failed int `json:"failed"`

	// Skipped is the number of tasks that were never attempted.
	Skipped int `json:"skipped"`
}
