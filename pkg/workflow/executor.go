package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MetricsSink receives task execution signals from the engine. All methods
// must be safe for concurrent use.
type MetricsSink interface {
	TaskStarted(id string)
	TaskCompleted(id string, status string, d time.Duration)
	TaskRetried(id string, attempt int)
}

// Engine executes a validated graph under a chosen policy, applying
// per-task timeout and retry. Engines hold no per-run state and may be
// shared across runs.
type Engine struct {
	log         zerolog.Logger
	metrics     MetricsSink
	parallelism int
}

// NewEngine creates an execution engine logging through the given logger.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// WithMetrics attaches a metrics sink and returns the engine.
func (e *Engine) WithMetrics(m MetricsSink) *Engine {
	e.metrics = m
	return e
}

// WithParallelism caps how many tasks of a layer run at once under the
// parallel policy. Zero means unbounded.
func (e *Engine) WithParallelism(n int) *Engine {
	e.parallelism = n
	return e
}

// Execute runs the graph under the given policy and returns the aggregate
// result. An invalid graph or policy yields a configuration error before
// any task is attempted; task failures are reported through the result,
// not the error return.
func (e *Engine) Execute(ctx context.Context, g *Graph, policy Policy) (*Result, error) {
	if g == nil {
		return nil, NewConfigurationError("graph is nil", nil).WithCode(ErrCodeValidation)
	}
	if err := policy.Validate(); err != nil {
		return nil, NewConfigurationError("invalid policy", err).WithCode(ErrCodeValidation)
	}
	if err := g.Validate().Err(); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     uuid.New().String(),
		Outcomes:  make(map[string]Outcome, g.Len()),
		StartedAt: time.Now(),
	}

	log := e.log.With().Str("run_id", res.RunID).Str("policy", string(policy)).Logger()
	log.Debug().Int("tasks", g.Len()).Msg("executing graph")

	switch policy {
	case PolicySequential:
		e.executeSequential(ctx, log, g, res)
	case PolicyParallel:
		e.executeParallel(ctx, log, g, res)
	}

	res.Duration = time.Since(res.StartedAt)
	e.aggregate(g, res)

	log.Debug().
		Bool("success", res.Success).
		Int("succeeded", res.Summary.Succeeded).
		Int("failed", res.Summary.Failed).
		Int("skipped", res.Summary.Skipped).
		Dur("duration", res.Duration).
		Msg("graph execution finished")

	return res, nil
}

// executeSequential processes tasks one at a time in topological order.
// The first failure of a required task halts the run; everything not yet
// attempted is marked skipped.
func (e *Engine) executeSequential(ctx context.Context, log zerolog.Logger, g *Graph, res *Result) {
	order, err := g.TopologicalOrder()
	if err != nil {
		// Validate ran before scheduling, so this cannot happen.
		return
	}

	halted := false
	for _, id := range order {
		task, _ := g.Task(id)

		if halted {
			res.Outcomes[id] = skippedOutcome(id, "run halted by earlier failure")
			continue
		}
		if blocked, dep := e.blockedBy(g, id, res); blocked {
			res.Outcomes[id] = skippedOutcome(id, fmt.Sprintf("dependency %s did not succeed", dep))
			continue
		}

		out := e.runTask(ctx, log, task)
		res.Outcomes[id] = out

		if out.Status == TaskStatusFailed && !task.Optional {
			log.Warn().Str("task", id).Msg("required task failed, halting sequential run")
			halted = true
		}
	}
}

// executeParallel processes ready layers one at a time, launching the whole
// layer concurrently and joining before the next layer starts. The layer
// barrier is what enforces dependency order; siblings of a failed task run
// to completion, while its dependents in later layers are skipped.
func (e *Engine) executeParallel(ctx context.Context, log zerolog.Logger, g *Graph, res *Result) {
	layers, err := g.ReadyLayers()
	if err != nil {
		return
	}

	var sem chan struct{}
	if e.parallelism > 0 {
		sem = make(chan struct{}, e.parallelism)
	}

	var mu sync.Mutex
	for _, layer := range layers {
		runnable := make([]TaskSpec, 0, len(layer))
		for _, id := range layer {
			if blocked, dep := e.blockedBy(g, id, res); blocked {
				res.Outcomes[id] = skippedOutcome(id, fmt.Sprintf("dependency %s did not succeed", dep))
				continue
			}
			task, _ := g.Task(id)
			runnable = append(runnable, task)
		}

		var wg sync.WaitGroup
		for _, task := range runnable {
			wg.Add(1)
			go func(task TaskSpec) {
				defer wg.Done()
				if sem != nil {
					sem <- struct{}{}
					defer func() { <-sem }()
				}
				out := e.runTask(ctx, log, task)
				mu.Lock()
				res.Outcomes[task.ID] = out
				mu.Unlock()
			}(task)
		}
		wg.Wait()
	}
}

// blockedBy reports whether a task must be skipped because one of its
// dependencies did not end in success, and names the first such dependency.
func (e *Engine) blockedBy(g *Graph, id string, res *Result) (bool, string) {
	task, _ := g.Task(id)
	for _, dep := range task.DependsOn {
		if out, ok := res.Outcomes[dep]; !ok || out.Status != TaskStatusSucceeded {
			return true, dep
		}
	}
	return false, ""
}

// runTask executes a single task, racing each attempt against the task's
// timeout. A task with Retries = N is attempted at most N+1 times with no
// inter-attempt delay; the recorded outcome reflects the final attempt.
func (e *Engine) runTask(ctx context.Context, log zerolog.Logger, task TaskSpec) Outcome {
	out := Outcome{
		TaskID:    task.ID,
		Status:    TaskStatusRunning,
		StartedAt: time.Now(),
	}

	if e.metrics != nil {
		e.metrics.TaskStarted(task.ID)
	}

	if task.Action == nil {
		out.Status = TaskStatusFailed
		out.Err = NewConfigurationError("task has no action", nil).
			WithCode(ErrCodeValidation).WithTask(task.ID)
		out.Duration = time.Since(out.StartedAt)
		return out
	}

	maxAttempts := task.Retries + 1
	var value any
	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.Attempts = attempt
		value, err = e.attempt(ctx, task)
		if err == nil {
			break
		}

		// Run-level cancellation is terminal; per-attempt timeouts and
		// application errors consume the retry budget.
		if ctx.Err() != nil && !IsTimeout(err) {
			break
		}
		if attempt < maxAttempts {
			log.Debug().
				Str("task", task.ID).
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts).
				Err(err).
				Msg("task attempt failed, retrying")
			if e.metrics != nil {
				e.metrics.TaskRetried(task.ID, attempt)
			}
		}
	}

	out.Duration = time.Since(out.StartedAt)
	if err != nil {
		out.Status = TaskStatusFailed
		out.Err = classify(err, task.ID)
	} else {
		out.Status = TaskStatusSucceeded
		out.Value = value
	}

	if e.metrics != nil {
		e.metrics.TaskCompleted(task.ID, string(out.Status), out.Duration)
	}
	return out
}

// attempt races one invocation of the action against the task timeout.
// Firing the timer does not interrupt the action; it keeps running in the
// background and its eventual result is discarded.
func (e *Engine) attempt(ctx context.Context, task TaskSpec) (any, error) {
	actx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()

	type attemptResult struct {
		value any
		err   error
	}
	done := make(chan attemptResult, 1)
	go func() {
		value, err := task.Action(actx)
		done <- attemptResult{value: value, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-actx.Done():
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, NewTimeoutError(
				fmt.Sprintf("attempt exceeded timeout of %s", task.Timeout), actx.Err()).
				WithTask(task.ID)
		}
		return nil, NewExecutionError("attempt cancelled", actx.Err()).WithTask(task.ID)
	}
}

// aggregate fills the result summary and the overall success flag.
func (e *Engine) aggregate(g *Graph, res *Result) {
	res.Summary = Summary{Total: g.Len()}
	res.Success = true

	for _, id := range g.IDs() {
		out, ok := res.Outcomes[id]
		if !ok {
			continue
		}
		switch out.Status {
		case TaskStatusSucceeded:
			res.Summary.Succeeded++
		case TaskStatusFailed:
			res.Summary.Failed++
			if task, found := g.Task(id); found && !task.Optional {
				res.Success = false
			}
		case TaskStatusSkipped:
			res.Summary.Skipped++
		}
	}
}

// classify wraps raw action errors in the workflow taxonomy. Errors that
// already carry a class pass through unchanged.
func classify(err error, taskID string) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewExecutionError("task failed", err).
		WithCode(ErrCodeStepFailed).WithTask(taskID)
}

func skippedOutcome(id, reason string) Outcome {
	return Outcome{
		TaskID: id,
		Status: TaskStatusSkipped,
		Err: NewExecutionError(reason, nil).
			WithCode(ErrCodeDependencyFailed).WithTask(id),
	}
}
