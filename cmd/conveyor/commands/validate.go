package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/pkg/config"
	"github.com/conveyorci/conveyor/pkg/orchestrator"
	"github.com/conveyorci/conveyor/pkg/workflow"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [target]",
		Short: "Validate the configuration and every mode's flow graph",
		Long: `Validate the target's conveyor.yaml and the flow graph of every
orchestration mode built from it.

This command checks:
  - configuration syntax and constraints
  - that every mode's steps have configured commands
  - that every mode's graph is acyclic and fully referenced`,
		Example: `  # Validate the current directory
  conveyor validate

  # Validate a specific project
  conveyor validate ./services/api`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) > 0 {
				target = args[0]
			}

			var (
				cfg *config.Config
				err error
			)
			if configPath != "" {
				cfg, err = config.Load(configPath)
			} else {
				cfg, err = config.LoadFromTarget(target)
			}
			if err != nil {
				return err
			}

			log.Info().Str("target", target).Msg("Validating configuration")

			reg := orchestrator.DefaultRegistry(cfg)
			failed := false
			for _, name := range reg.Names() {
				specs, _ := reg.Lookup(name)
				for _, spec := range specs {
					if len(cfg.Step(spec.ID).Command) == 0 {
						fmt.Printf("%-12s step %s has no configured command\n", name, spec.ID)
						failed = true
					}
				}
				g, err := reg.Graph(name, noopActions(specs))
				if err != nil {
					fmt.Printf("%-12s %v\n", name, err)
					failed = true
					continue
				}
				if vr := g.Validate(); !vr.Valid {
					for _, msg := range vr.Errors {
						fmt.Printf("%-12s %s\n", name, msg)
					}
					failed = true
					continue
				}
				fmt.Printf("%-12s ok (%d steps)\n", name, g.Len())
			}
			if failed {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}

	return cmd
}

func noopActions(specs []workflow.TaskSpec) map[string]workflow.Action {
	actions := make(map[string]workflow.Action, len(specs))
	for _, spec := range specs {
		actions[spec.ID] = func(context.Context) (any, error) { return nil, nil }
	}
	return actions
}
