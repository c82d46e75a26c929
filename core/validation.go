package core

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// StepStatus represents the status of a startup validation step.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ValidationStep is a single named startup check. Run returns the resulting
// status and a short human-readable message.
type ValidationStep struct {
	Name string
	Run  func() (StepStatus, string)
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	Name    string
	Status  StepStatus
	Message string
	Latency time.Duration
}

// ValidationSuite runs an ordered list of startup checks and prints a
// colored summary to the console before the server starts. A failed step
// means the process should not continue; warnings (e.g., payments disabled)
// are informational.
type ValidationSuite struct {
	steps []ValidationStep
	out   io.Writer
}

// NewValidationSuite creates a suite writing to stdout.
func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{out: os.Stdout}
}

// NewValidationSuiteWithWriter creates a suite writing to the given writer.
// Used by tests to capture output.
func NewValidationSuiteWithWriter(out io.Writer) *ValidationSuite {
	return &ValidationSuite{out: out}
}

// AddStep appends a named check to the suite.
func (v *ValidationSuite) AddStep(name string, run func() (StepStatus, string)) {
	v.steps = append(v.steps, ValidationStep{Name: name, Run: run})
}

// Execute runs every step in order, printing one line per step, and returns
// the results plus true when no step failed. Steps after a failure still run
// so the operator sees the full picture in one pass.
func (v *ValidationSuite) Execute() ([]StepResult, bool) {
	passed := color.New(color.FgGreen).SprintFunc()
	failed := color.New(color.FgRed, color.Bold).SprintFunc()
	warned := color.New(color.FgYellow).SprintFunc()
	dimmed := color.New(color.Faint).SprintFunc()

	fmt.Fprintln(v.out, "Startup validation:")

	results := make([]StepResult, 0, len(v.steps))
	ok := true
	for _, step := range v.steps {
		start := time.Now()
		status, message := step.Run()
		latency := time.Since(start)

		var marker string
		switch status {
		case StepPassed:
			marker = passed("✓")
		case StepFailed:
			marker = failed("✗")
			ok = false
		case StepWarning:
			marker = warned("!")
		case StepSkipped:
			marker = dimmed("-")
		}

		line := fmt.Sprintf("  %s %s", marker, step.Name)
		if message != "" {
			line += dimmed(" (" + message + ")")
		}
		fmt.Fprintln(v.out, line)

		results = append(results, StepResult{
			Name:    step.Name,
			Status:  status,
			Message: message,
			Latency: latency,
		})
	}

	if ok {
		fmt.Fprintln(v.out, passed("All startup checks passed."))
	} else {
		fmt.Fprintln(v.out, failed("Startup validation failed; see above."))
	}

	return results, ok
}
