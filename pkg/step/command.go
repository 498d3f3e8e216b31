package step

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// stderrTailLines bounds how much tool stderr is copied into Result.Errors.
const stderrTailLines = 10

// CommandStep invokes an external tool as a subprocess in the target
// directory. Exit status zero means success; anything else is a failure
// with the stderr tail attached. The step does not interpret tool output
// beyond the exit code.
type CommandStep struct {
	id   string
	argv []string
	env  []string
	log  zerolog.Logger
}

// NewCommandStep creates a step that runs argv with the given id.
func NewCommandStep(id string, argv []string, log zerolog.Logger) *CommandStep {
	return &CommandStep{
		id:   id,
		argv: append([]string(nil), argv...),
		log:  log.With().Str("step", id).Logger(),
	}
}

// WithEnv appends extra KEY=VALUE pairs to the subprocess environment.
func (s *CommandStep) WithEnv(env []string) *CommandStep {
	s.env = append([]string(nil), env...)
	return s
}

// ID returns the step name.
func (s *CommandStep) ID() string { return s.id }

// Argv returns the configured command line.
func (s *CommandStep) Argv() []string {
	return append([]string(nil), s.argv...)
}

// Run executes the command. The context bounds the subprocess lifetime:
// when it fires, the process is killed and the attempt fails.
func (s *CommandStep) Run(ctx context.Context, sc Context) (Result, error) {
	if len(s.argv) == 0 {
		return Result{}, fmt.Errorf("step %s: no command configured", s.id)
	}

	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.Dir = sc.Target
	if len(s.env) > 0 {
		cmd.Env = append(cmd.Environ(), s.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.log.Debug().Strs("argv", s.argv).Str("dir", sc.Target).Msg("running command")
	err := cmd.Run()

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	res := Result{
		Success: err == nil,
		Data:    NewCommandPayload(exitCode, strings.TrimSpace(stdout.String())),
	}

	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", strings.Join(s.argv, " "), err))
		res.Errors = append(res.Errors, tail(stderr.String(), stderrTailLines)...)
		s.log.Debug().Int("exit_code", exitCode).Msg("command failed")
		return res, nil
	}

	if stderr.Len() > 0 {
		res.Warnings = tail(stderr.String(), stderrTailLines)
	}
	return res, nil
}

// tail returns up to n trailing non-empty lines of s.
func tail(s string, n int) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return kept
}
