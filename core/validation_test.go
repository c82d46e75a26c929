package core

import (
	"bytes"
	"strings"
	"testing"
)

func TestValidationSuite_AllPassing(t *testing.T) {
	var buf bytes.Buffer
	suite := NewValidationSuiteWithWriter(&buf)
	suite.AddStep("configuration", func() (StepStatus, string) {
		return StepPassed, "loaded"
	})
	suite.AddStep("database", func() (StepStatus, string) {
		return StepPassed, ""
	})

	results, ok := suite.Execute()
	if !ok {
		t.Fatal("Execute() reported failure for passing steps")
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !strings.Contains(buf.String(), "configuration") {
		t.Error("output missing step name")
	}
}

func TestValidationSuite_FailureStopsStartupButRunsAllSteps(t *testing.T) {
	var buf bytes.Buffer
	ranSecond := false

	suite := NewValidationSuiteWithWriter(&buf)
	suite.AddStep("broken", func() (StepStatus, string) {
		return StepFailed, "nope"
	})
	suite.AddStep("after failure", func() (StepStatus, string) {
		ranSecond = true
		return StepPassed, ""
	})

	results, ok := suite.Execute()
	if ok {
		t.Fatal("Execute() reported success despite a failed step")
	}
	if !ranSecond {
		t.Error("steps after a failure did not run")
	}
	if results[0].Status != StepFailed {
		t.Errorf("first step status = %v, want failed", results[0].Status)
	}
}

func TestValidationSuite_WarningDoesNotFail(t *testing.T) {
	var buf bytes.Buffer
	suite := NewValidationSuiteWithWriter(&buf)
	suite.AddStep("payments", func() (StepStatus, string) {
		return StepWarning, "stripe keys not configured"
	})

	_, ok := suite.Execute()
	if !ok {
		t.Error("a warning step should not fail the suite")
	}
}

func TestStepStatus_String(t *testing.T) {
	tests := []struct {
		status StepStatus
		want   string
	}{
		{StepPassed, "passed"},
		{StepFailed, "failed"},
		{StepWarning, "warning"},
		{StepSkipped, "skipped"},
		{StepStatus(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("StepStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
