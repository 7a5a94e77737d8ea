package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending  StepStatus = iota // Not yet started
	StepRunning                    // Currently executing
	StepComplete                   // Successfully completed
	StepFailed                     // Failed
	StepSkipped                    // Skipped
)

// Step is one stage of a command exchange, e.g. "Waiting for ACK".
type Step struct {
	Number  int
	Name    string
	Status  StepStatus
	Message string // e.g. "seq 3", "OK in 4ms"
}

// StepCallback reports progress of step number (1-based). An empty name
// keeps the configured one.
type StepCallback func(stepNumber int, name string, status StepStatus, message string)

// RunnerConfig describes a multi-step command.
type RunnerConfig struct {
	Title           string            // e.g., "Calibration"
	Command         string            // e.g., "kinectl calibrate --mode 1"
	Params          map[string]string // shown in the header
	StepNames       []string
	Troubleshooting []string  // printed on failure
	Output          io.Writer // default: os.Stdout
}

// Runner prints header, step lines and a result box around an operation
// that talks to the device.
type Runner struct {
	config RunnerConfig
	steps  []Step
	out    io.Writer
	width  int
}

// NewRunner creates a runner for one command execution
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	steps := make([]Step, len(config.StepNames))
	for i, name := range config.StepNames {
		steps[i] = Step{Number: i + 1, Name: name}
	}
	return &Runner{
		config: config,
		steps:  steps,
		out:    config.Output,
		width:  GetTerminalWidth(),
	}
}

// SetWidth overrides the detected terminal width.
func (r *Runner) SetWidth(width int) *Runner {
	r.width = width
	return r
}

// Operation does the work and returns details for the success box.
type Operation func(onStep StepCallback) (map[string]string, error)

// Run prints the header, executes op and prints the result box.
func (r *Runner) Run(op Operation) (map[string]string, error) {
	start := time.Now()

	_, _ = fmt.Fprintln(r.out, NewHeader(r.config.Title, r.config.Command, r.config.Params).SetWidth(r.width).Render())
	_, _ = fmt.Fprintln(r.out)

	details, err := op(r.onStep)
	elapsed := time.Since(start).Round(time.Millisecond).String()

	_, _ = fmt.Fprintln(r.out)
	if err != nil {
		res := NewFailureResult(r.config.Title+" failed", err, r.config.Troubleshooting).SetWidth(r.width)
		res.AddDetail("Duration", elapsed)
		_, _ = fmt.Fprintln(r.out, res.Render())
		return details, err
	}

	if details == nil {
		details = make(map[string]string)
	}
	details["Duration"] = elapsed
	_, _ = fmt.Fprintln(r.out, NewSuccessResult(r.config.Title+" complete", details).SetWidth(r.width).Render())
	return details, nil
}

// Steps returns a copy of the step list.
func (r *Runner) Steps() []Step {
	return append([]Step(nil), r.steps...)
}

func (r *Runner) onStep(n int, name string, status StepStatus, message string) {
	if n < 1 || n > len(r.steps) {
		return
	}
	step := &r.steps[n-1]
	if name != "" {
		step.Name = name
	}
	step.Status = status
	step.Message = message

	switch status {
	case StepRunning:
		// Overwritten by the final line for this step.
		_, _ = fmt.Fprint(r.out, r.renderStepLine(*step)+"\r")
	case StepComplete, StepFailed, StepSkipped:
		_, _ = fmt.Fprintln(r.out, r.renderStepLine(*step))
	}
}

func (r *Runner) renderStepLine(step Step) string {
	var marker string
	var style lipgloss.Style
	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = "⊘", StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  [%d/%d] ", step.Number, len(r.steps))
	b.WriteString(style.Render(step.Name))
	b.WriteString(strings.Repeat(" ", max(36-lipgloss.Width(step.Name), 1)))
	b.WriteString(style.Render(marker))
	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}
