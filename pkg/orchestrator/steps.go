package orchestrator

import (
	"github.com/rs/zerolog"

	"github.com/conveyorci/conveyor/pkg/config"
	"github.com/conveyorci/conveyor/pkg/step"
	"github.com/conveyorci/conveyor/pkg/workflow"
)

// allStepNames is the union of step names any mode can reference.
var allStepNames = []string{
	StepSync,
	StepConfigure,
	StepAnalyze,
	StepRepair,
	StepFix,
	StepTest,
	StepComment,
	StepDeploy,
	StepComponentConfigure,
	StepComponentSync,
	StepDatabaseSync,
}

// DefaultSteps builds the command-backed step set from the config's
// per-step command table. Steps with no configured command are not
// registered, which surfaces as a configuration error when a mode
// needs them.
func DefaultSteps(cfg *config.Config, log zerolog.Logger) (*step.Set, error) {
	set := step.NewSet()
	for _, name := range allStepNames {
		sc := cfg.Step(name)
		if len(sc.Command) == 0 {
			continue
		}
		cs := step.NewCommandStep(name, sc.Command, log)
		if err := set.Add(cs); err != nil {
			return nil, workflow.NewConfigurationError("register step "+name, err)
		}
	}
	return set, nil
}
