package orchestrator

import (
	"fmt"
	"strings"

	"github.com/conveyorci/conveyor/pkg/config"
	"github.com/conveyorci/conveyor/pkg/workflow"
)

// Mode names a fixed sequence of pipeline steps with its own stop rule.
type Mode string

const (
	// ModeFull runs the whole pipeline, deploying when configured.
	ModeFull Mode = "full"

	// ModeDevelopment is the inner-loop subset of full.
	ModeDevelopment Mode = "development"

	// ModeCI runs analysis and tests; a failing test aborts the run.
	ModeCI Mode = "ci"

	// ModeDeployment runs tests as a precondition, then deploys.
	ModeDeployment Mode = "deployment"

	// ModeComponents configures and syncs components.
	ModeComponents Mode = "components"
)

// Step names used across modes.
const (
	StepSync               = "sync"
	StepConfigure          = "configure"
	StepAnalyze            = "analyze"
	StepRepair             = "repair"
	StepFix                = "fix"
	StepTest               = "test"
	StepComment            = "comment"
	StepDeploy             = "deploy"
	StepComponentConfigure = "components.configure"
	StepComponentSync      = "components.sync"
	StepDatabaseSync       = "database.sync"
)

// Modes lists all orchestration modes.
func Modes() []Mode {
	return []Mode{ModeFull, ModeDevelopment, ModeCI, ModeDeployment, ModeComponents}
}

// ParseMode converts a CLI argument into a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q (expected one of: %s)", s, joinModes())
}

func joinModes() string {
	names := make([]string, 0, len(Modes()))
	for _, m := range Modes() {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

// modeSteps returns each mode's ordered step names together with whether
// the step is required by default in that mode. Best-effort modes (full,
// development) record failures without aborting; ci makes test fatal;
// deployment requires both steps.
func modeSteps(mode Mode, cfg *config.Config) []struct {
	name     string
	required bool
} {
	type ms = struct {
		name     string
		required bool
	}
	switch mode {
	case ModeFull:
		steps := []ms{
			{StepSync, false},
			{StepConfigure, false},
			{StepAnalyze, false},
			{StepRepair, false},
			{StepFix, false},
			{StepTest, false},
			{StepComment, false},
		}
		if cfg.Deploy.Enabled {
			steps = append(steps, ms{StepDeploy, true})
		}
		return steps
	case ModeDevelopment:
		return []ms{
			{StepSync, false},
			{StepAnalyze, false},
			{StepRepair, false},
			{StepTest, false},
			{StepComment, false},
		}
	case ModeCI:
		return []ms{
			{StepAnalyze, false},
			{StepRepair, false},
			{StepTest, true},
		}
	case ModeDeployment:
		// test is gated by the deploy precondition rule rather than the
		// generic required-step abort, so the run reports a precondition
		// failure when tests fail.
		return []ms{
			{StepTest, false},
			{StepDeploy, true},
		}
	case ModeComponents:
		steps := []ms{
			{StepComponentConfigure, false},
			{StepComponentSync, false},
		}
		if cfg.Database.SyncEnabled {
			steps = append(steps, ms{StepDatabaseSync, false})
		}
		return steps
	default:
		return nil
	}
}

// DefaultRegistry builds the named flow templates for every mode from the
// configuration. Each template chains its steps in sequence; per-step
// retries, timeouts, and required overrides come from the config.
func DefaultRegistry(cfg *config.Config) *workflow.Registry {
	reg := workflow.NewRegistry()
	for _, mode := range Modes() {
		specs := make([]workflow.TaskSpec, 0)
		prev := ""
		for _, s := range modeSteps(mode, cfg) {
			sc := cfg.Step(s.name)
			required := s.required
			if sc.Required != nil {
				required = *sc.Required
			}
			spec := workflow.TaskSpec{
				ID:       s.name,
				Optional: !required,
				Retries:  sc.Retries,
				Timeout:  sc.Timeout.Std(),
			}
			if prev != "" {
				spec.DependsOn = []string{prev}
			}
			specs = append(specs, spec)
			prev = s.name
		}
		reg.MustRegister(string(mode), specs)
	}
	return reg
}
