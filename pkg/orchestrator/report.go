package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/conveyorci/conveyor/pkg/step"
	"github.com/conveyorci/conveyor/pkg/workflow"
)

// StepReport records one step's outcome within a run.
type StepReport struct {
	Name     string              `json:"name"`
	Status   workflow.TaskStatus `json:"status"`
	Attempts int                 `json:"attempts"`
	Duration time.Duration       `json:"duration"`
	Errors   []string            `json:"errors,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
	Data     *step.Payload       `json:"data,omitempty"`
}

// Result is the full report of one orchestration run. Steps appear in
// execution order, including skipped ones.
type Result struct {
	RunID     string        `json:"run_id"`
	Mode      Mode          `json:"mode"`
	Target    string        `json:"target"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Steps     []StepReport  `json:"steps"`

	// Err holds the run-ending error, if any.
	Err error `json:"-"`

	// Error mirrors Err for serialization.
	Error string `json:"error,omitempty"`
}

func (r *Result) setErr(err error) {
	if r.Err != nil || err == nil {
		return
	}
	r.Err = err
	r.Error = err.Error()
}

// Step returns the report for the named step, or nil if the run never
// reached it.
func (r *Result) Step(name string) *StepReport {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

func (r *Result) stepSucceeded(name string) bool {
	s := r.Step(name)
	return s != nil && s.Status == workflow.TaskStatusSucceeded
}

// WriteJSON writes the result as indented JSON.
func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Print writes a human-readable run summary.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "Run %s (%s) on %s\n\n", r.RunID, r.Mode, r.Target)

	width := len("STEP")
	for _, s := range r.Steps {
		if len(s.Name) > width {
			width = len(s.Name)
		}
	}
	fmt.Fprintf(w, "  %-*s  %-9s  %-8s  %s\n", width, "STEP", "STATUS", "ATTEMPTS", "DURATION")
	for _, s := range r.Steps {
		fmt.Fprintf(w, "  %-*s  %-9s  %-8d  %s\n",
			width, s.Name, s.Status, s.Attempts, s.Duration.Round(time.Millisecond))
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %-*s    error: %s\n", width, "", firstLine(e))
		}
		for _, warn := range s.Warnings {
			fmt.Fprintf(w, "  %-*s    warning: %s\n", width, "", firstLine(warn))
		}
	}

	outcome := "succeeded"
	if !r.Success {
		outcome = "failed"
	}
	fmt.Fprintf(w, "\nRun %s in %s\n", outcome, r.Duration.Round(time.Millisecond))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
