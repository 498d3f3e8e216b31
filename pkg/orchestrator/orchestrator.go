// Package orchestrator sequences pipeline steps into named modes.
//
// A mode is a fixed ordered list of step names. The orchestrator runs
// each step through the workflow engine as a single-task graph, so
// per-step retries and timeouts behave exactly like any other task,
// then applies the mode's stop rule between steps.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/conveyorci/conveyor/pkg/config"
	"github.com/conveyorci/conveyor/pkg/step"
	"github.com/conveyorci/conveyor/pkg/telemetry"
	"github.com/conveyorci/conveyor/pkg/workflow"
)

// Orchestrator runs step sequences for a target directory.
type Orchestrator struct {
	cfg      *config.Config
	steps    *step.Set
	registry *workflow.Registry
	engine   *workflow.Engine
	log      zerolog.Logger
	tracer   *telemetry.Tracer
	metrics  *telemetry.Metrics
	events   *telemetry.EventPublisher
}

// New creates an orchestrator over the given step set. A nil telemetry
// bundle disables logging, tracing, metrics, and events.
func New(cfg *config.Config, steps *step.Set, tel *telemetry.Telemetry) (*Orchestrator, error) {
	if cfg == nil {
		return nil, workflow.NewConfigurationError("orchestrator requires a configuration", nil)
	}
	if steps == nil {
		return nil, workflow.NewConfigurationError("orchestrator requires a step set", nil)
	}
	if tel == nil {
		var err error
		disabled := telemetry.DefaultConfig("conveyor", "dev")
		disabled.Logging.Level = "disabled"
		disabled.Metrics.Enabled = false
		disabled.Events.Enabled = false
		tel, err = telemetry.New(disabled)
		if err != nil {
			return nil, err
		}
	}
	log := telemetry.ComponentLogger(tel.Logger, "orchestrator")
	return &Orchestrator{
		cfg:      cfg,
		steps:    steps,
		registry: DefaultRegistry(cfg),
		engine:   workflow.NewEngine(log).WithMetrics(tel.Metrics).WithParallelism(cfg.Parallelism),
		log:      log,
		tracer:   tel.Tracer,
		metrics:  tel.Metrics,
		events:   tel.Events,
	}, nil
}

// Registry exposes the mode flow templates, for validation and graph
// rendering.
func (o *Orchestrator) Registry() *workflow.Registry {
	return o.registry
}

// Orchestrate runs every step of the mode against the target, in order,
// and returns a report of all of them. The returned error is non-nil
// only for configuration problems; step failures are reported in the
// Result.
func (o *Orchestrator) Orchestrate(ctx context.Context, mode Mode, target string) (*Result, error) {
	specs, ok := o.registry.Lookup(string(mode))
	if !ok {
		return nil, workflow.NewConfigurationError(fmt.Sprintf("unknown mode: %s", mode), nil)
	}
	for _, spec := range specs {
		if _, ok := o.steps.Get(spec.ID); !ok {
			return nil, workflow.NewConfigurationError(
				fmt.Sprintf("mode %s references unregistered step %q", mode, spec.ID), nil).
				WithCode(workflow.ErrCodeNotFound)
		}
	}

	runID := uuid.New().String()
	log := o.log.With().
		Str("run_id", runID).
		Str("mode", string(mode)).
		Str("target", target).
		Logger()

	ctx, runSpan := o.tracer.StartRun(ctx, string(mode), target)
	defer runSpan.End()
	o.metrics.RunStarted(string(mode))
	o.events.Publish(telemetry.Event{
		Type:    telemetry.EventTypeRunStarted,
		RunID:   runID,
		Message: fmt.Sprintf("%s run started for %s", mode, target),
	})
	log.Info().Int("steps", len(specs)).Msg("run started")

	result := &Result{
		RunID:     runID,
		Mode:      mode,
		Target:    target,
		StartedAt: time.Now(),
		Success:   true,
	}
	halted := ""
	for _, spec := range specs {
		name := spec.ID
		if err := ctx.Err(); err != nil && halted == "" {
			halted = "run cancelled"
			result.Success = false
			result.setErr(workflow.NewExecutionError("run cancelled", err))
		}
		if halted != "" {
			result.Steps = append(result.Steps, skippedStep(name, halted))
			o.publishStepEvent(telemetry.EventTypeStepSkipped, runID, name, halted, telemetry.EventLevelWarning)
			continue
		}
		if mode == ModeDeployment && name == StepDeploy && !result.stepSucceeded(StepTest) {
			perr := workflow.NewPreconditionError("tests must pass before deploy", nil).WithTask(name)
			result.Steps = append(result.Steps, StepReport{
				Name:   name,
				Status: workflow.TaskStatusSkipped,
				Errors: []string{perr.Error()},
			})
			result.Success = false
			result.setErr(perr)
			o.publishStepEvent(telemetry.EventTypeStepSkipped, runID, name, perr.Error(), telemetry.EventLevelError)
			log.Error().Str("step", name).Msg("deploy precondition failed")
			continue
		}

		report := o.runStep(ctx, log, runID, mode, target, spec)
		result.Steps = append(result.Steps, report)
		if report.Status == workflow.TaskStatusFailed {
			if !spec.Optional {
				halted = fmt.Sprintf("required step %s failed", name)
				result.Success = false
				if len(report.Errors) > 0 {
					result.setErr(workflow.NewExecutionError(report.Errors[0], nil).
						WithCode(workflow.ErrCodeStepFailed).WithTask(name))
				}
				log.Warn().Str("step", name).Msg("required step failed, aborting run")
			} else {
				log.Warn().Str("step", name).Msg("step failed, continuing")
			}
		}
	}

	result.Duration = time.Since(result.StartedAt)
	status := "succeeded"
	level := telemetry.EventLevelInfo
	if !result.Success {
		status = "failed"
		level = telemetry.EventLevelError
		o.tracer.RecordError(runSpan, result.Err)
	}
	o.metrics.RunCompleted(string(mode), status, result.Duration)
	o.events.Publish(telemetry.Event{
		Type:    telemetry.EventTypeRunCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("%s run %s in %s", mode, status, result.Duration.Round(time.Millisecond)),
		Level:   level,
	})
	log.Info().
		Bool("success", result.Success).
		Dur("duration", result.Duration).
		Msg("run completed")
	return result, nil
}

// runStep executes one step as a single-task graph so the engine's
// retry and timeout handling applies unchanged.
func (o *Orchestrator) runStep(ctx context.Context, log zerolog.Logger, runID string, mode Mode, target string, spec workflow.TaskSpec) StepReport {
	name := spec.ID
	st, _ := o.steps.Get(name)
	sc := step.Context{
		Target:  target,
		Mode:    string(mode),
		Options: o.modeOptions(mode),
	}

	stepCtx, span := o.tracer.StartStep(ctx, name)
	defer span.End()
	o.publishStepEvent(telemetry.EventTypeStepStarted, runID, name, "step started", telemetry.EventLevelInfo)

	g, err := workflow.NewGraph([]workflow.TaskSpec{{
		ID:       name,
		Action:   stepAction(st, sc),
		Optional: spec.Optional,
		Retries:  spec.Retries,
		Timeout:  spec.Timeout,
	}})
	if err != nil {
		return failedStep(name, err)
	}
	res, err := o.engine.Execute(stepCtx, g, workflow.PolicySequential)
	if err != nil {
		return failedStep(name, err)
	}

	out := res.Outcomes[name]
	report := StepReport{
		Name:     name,
		Status:   out.Status,
		Attempts: out.Attempts,
		Duration: out.Duration,
	}
	if sr, ok := out.Value.(step.Result); ok {
		report.Data = sr.Data
		report.Warnings = sr.Warnings
		if !sr.Success {
			report.Errors = sr.Errors
		}
	}
	if out.Err != nil && len(report.Errors) == 0 {
		report.Errors = []string{out.Err.Error()}
	}

	level := telemetry.EventLevelInfo
	if out.Status == workflow.TaskStatusFailed {
		level = telemetry.EventLevelError
		o.tracer.RecordError(span, out.Err)
	}
	o.publishStepEvent(telemetry.EventTypeStepCompleted, runID, name,
		fmt.Sprintf("step %s after %d attempt(s)", out.Status, out.Attempts), level)
	log.Debug().
		Str("step", name).
		Str("status", string(out.Status)).
		Int("attempts", out.Attempts).
		Dur("duration", out.Duration).
		Msg("step finished")
	return report
}

// modeOptions carries mode-scoped settings into step contexts.
func (o *Orchestrator) modeOptions(mode Mode) map[string]string {
	opts := map[string]string{}
	switch mode {
	case ModeComponents:
		opts["scope"] = "components"
		if len(o.cfg.Components) > 0 {
			opts["components"] = strings.Join(o.cfg.Components, ",")
		}
	case ModeDeployment:
		opts["environment"] = o.cfg.Deploy.Environment
	case ModeFull:
		if o.cfg.Deploy.Enabled {
			opts["environment"] = o.cfg.Deploy.Environment
		}
	}
	return opts
}

func (o *Orchestrator) publishStepEvent(eventType, runID, name, message, level string) {
	o.events.Publish(telemetry.Event{
		Type:    eventType,
		RunID:   runID,
		Step:    name,
		Message: message,
		Level:   level,
	})
}

// stepAction adapts an ExecutableStep to a workflow action. A step
// result reporting failure becomes an error so the engine's retry
// policy sees it; the result itself rides along as the task value.
func stepAction(st step.ExecutableStep, sc step.Context) workflow.Action {
	return func(ctx context.Context) (any, error) {
		res, err := st.Run(ctx, sc)
		if err != nil {
			return res, err
		}
		if !res.Success {
			msg := "step reported failure"
			if len(res.Errors) > 0 {
				msg = strings.Join(res.Errors, "; ")
			}
			return res, workflow.NewExecutionError(msg, nil).
				WithCode(workflow.ErrCodeStepFailed).
				WithTask(st.ID())
		}
		return res, nil
	}
}

func skippedStep(name, reason string) StepReport {
	return StepReport{
		Name:   name,
		Status: workflow.TaskStatusSkipped,
		Errors: []string{reason},
	}
}

func failedStep(name string, err error) StepReport {
	return StepReport{
		Name:   name,
		Status: workflow.TaskStatusFailed,
		Errors: []string{err.Error()},
	}
}
