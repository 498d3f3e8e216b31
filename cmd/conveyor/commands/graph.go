package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/pkg/config"
	"github.com/conveyorci/conveyor/pkg/orchestrator"
)

func newGraphCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "graph <mode> [target]",
		Short: "Render a mode's flow graph in Graphviz DOT format",
		Example: `  # Print the ci flow to stdout
  conveyor graph ci

  # Render the full flow for a project
  conveyor graph full ./services/api | dot -Tsvg -o flow.svg`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := orchestrator.ParseMode(args[0])
			if err != nil {
				return err
			}
			target := "."
			if len(args) > 1 {
				target = args[1]
			}

			var cfg *config.Config
			if configPath != "" {
				cfg, err = config.Load(configPath)
			} else {
				cfg, err = config.LoadFromTarget(target)
			}
			if err != nil {
				return err
			}

			reg := orchestrator.DefaultRegistry(cfg)
			specs, _ := reg.Lookup(string(mode))
			g, err := reg.Graph(string(mode), noopActions(specs))
			if err != nil {
				return err
			}
			dot, err := g.DOT(string(mode))
			if err != nil {
				return err
			}

			if output != "" {
				return os.WriteFile(output, []byte(dot), 0o644)
			}
			fmt.Print(dot)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write DOT to a file instead of stdout")

	return cmd
}
