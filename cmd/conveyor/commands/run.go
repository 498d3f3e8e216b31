package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/pkg/config"
	"github.com/conveyorci/conveyor/pkg/orchestrator"
	"github.com/conveyorci/conveyor/pkg/telemetry"
)

func newModeCommand(mode orchestrator.Mode) *cobra.Command {
	var (
		watch       bool
		interval    time.Duration
		parallelism int
	)

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s [target]", mode),
		Short: modeShort(mode),
		Example: fmt.Sprintf(`  # Run against the current directory
  conveyor %[1]s

  # Run against a specific project
  conveyor %[1]s ./services/api

  # Re-run on an interval and on file changes
  conveyor %[1]s --watch`, mode),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) > 0 {
				target = args[0]
			}

			cfg, tel, err := setup(target)
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())

			if verbose {
				tel.Events.Subscribe(verboseSubscriber(tel.Logger))
			}
			if interval > 0 {
				cfg.Watch.Interval = config.Duration(interval)
			}
			if parallelism > 0 {
				cfg.Parallelism = parallelism
			}

			steps, err := orchestrator.DefaultSteps(cfg, tel.Logger)
			if err != nil {
				return err
			}
			orch, err := orchestrator.New(cfg, steps, tel)
			if err != nil {
				return err
			}
			if tel.Metrics.Enabled() {
				go func() {
					if err := tel.Metrics.Serve(); err != nil {
						log.Warn().Err(err).Msg("metrics endpoint stopped")
					}
				}()
			}

			if watch {
				w := orchestrator.NewWatcher(orch, mode, target)
				w.OnResult = printResult
				if err := w.Run(cmd.Context()); !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}

			res, err := orch.Orchestrate(cmd.Context(), mode, target)
			if err != nil {
				return err
			}
			printResult(res)
			if !res.Success {
				return fmt.Errorf("%s run failed", mode)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "re-run indefinitely on the configured interval")
	cmd.Flags().DurationVar(&interval, "interval", 0, "override the watch interval")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "override the configured parallelism cap")

	return cmd
}

func modeShort(mode orchestrator.Mode) string {
	switch mode {
	case orchestrator.ModeFull:
		return "Run the full pipeline"
	case orchestrator.ModeDevelopment:
		return "Run the inner development loop"
	case orchestrator.ModeCI:
		return "Run analysis and tests, aborting on test failure"
	case orchestrator.ModeDeployment:
		return "Run tests, then deploy"
	case orchestrator.ModeComponents:
		return "Configure and sync components"
	default:
		return string(mode)
	}
}

// verboseSubscriber returns an event subscriber that prints run, step,
// and watch lifecycle events through the given logger as they happen.
func verboseSubscriber(logger zerolog.Logger) telemetry.EventSubscriber {
	return func(ev telemetry.Event) {
		var entry *zerolog.Event
		switch ev.Level {
		case telemetry.EventLevelError:
			entry = logger.Error()
		case telemetry.EventLevelWarning:
			entry = logger.Warn()
		default:
			entry = logger.Info()
		}
		if ev.Step != "" {
			entry = entry.Str("step", ev.Step)
		}
		entry.Str("event", ev.Type).Msg(ev.Message)
	}
}

func printResult(res *orchestrator.Result) {
	if jsonOutput {
		if err := res.WriteJSON(os.Stdout); err != nil {
			log.Error().Err(err).Msg("Failed to encode result")
		}
		return
	}
	res.Print(os.Stdout)
}

// setup loads configuration for the target and builds the telemetry
// stack from it.
func setup(target string) (*config.Config, *telemetry.Telemetry, error) {
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
		return nil, nil, err
	}

	telCfg := telemetry.DefaultConfig("conveyor", cliVersion)
	telCfg.Logging.Level = cfg.Telemetry.LogLevel
	if verbose {
		telCfg.Logging.Level = "debug"
	}
	telCfg.Logging.Format = cfg.Telemetry.LogFormat
	telCfg.Metrics.Enabled = cfg.Telemetry.Metrics.Enabled
	if cfg.Telemetry.Metrics.ListenAddress != "" {
		telCfg.Metrics.ListenAddress = cfg.Telemetry.Metrics.ListenAddress
	}
	telCfg.Tracing.Enabled = cfg.Telemetry.Tracing.Enabled
	telCfg.Tracing.Exporter = cfg.Telemetry.Tracing.Exporter
	telCfg.Tracing.Endpoint = cfg.Telemetry.Tracing.Endpoint
	telCfg.Tracing.SamplingRate = cfg.Telemetry.Tracing.SamplingRate
	telCfg.Tracing.Insecure = cfg.Telemetry.Tracing.Insecure

	tel, err := telemetry.New(telCfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, tel, nil
}
