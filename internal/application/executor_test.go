package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/visprobe/internal/domain"
	"github.com/probelab/visprobe/internal/ports"
)

func probeAccount() domain.Account {
	return domain.Account{Email: "a@probe.test", Password: "pw"}
}

func pageWithResponse(body string) string {
	return fmt.Sprintf(`<html><body>ChatGPT said:%saria-label="Copy"</body></html>`, body)
}

func TestRunAttemptExtractsMarkedContent(t *testing.T) {
	t.Parallel()

	handle := &scriptedHandle{content: pageWithResponse("The best CRM is Acme [acme.com].")}
	executor := NewSessionExecutor(&scriptedDriver{handle: handle}, ExecutorConfig{}, nil)

	result := executor.RunAttempt(context.Background(), probeAccount(), "best crm")
	assert.Equal(t, domain.AttemptSuccess, result.Kind)
	assert.Equal(t, "The best CRM is Acme [acme.com].", result.RawOutput)
	assert.True(t, handle.closed, "driver handle must be closed after the attempt")
}

func TestRunAttemptMissingMarkersIsRecoverable(t *testing.T) {
	t.Parallel()

	handle := &scriptedHandle{content: "<html><body>nothing here</body></html>"}
	executor := NewSessionExecutor(&scriptedDriver{handle: handle}, ExecutorConfig{}, nil)

	result := executor.RunAttempt(context.Background(), probeAccount(), "best crm")
	assert.Equal(t, domain.AttemptRecoverable, result.Kind)
	assert.Equal(t, "extraction failed", result.Reason)
	assert.True(t, handle.closed)
}

func TestRunAttemptMissingEndMarkerIsRecoverable(t *testing.T) {
	t.Parallel()

	handle := &scriptedHandle{content: "<html>ChatGPT said: truncated"}
	executor := NewSessionExecutor(&scriptedDriver{handle: handle}, ExecutorConfig{}, nil)

	result := executor.RunAttempt(context.Background(), probeAccount(), "best crm")
	assert.Equal(t, domain.AttemptRecoverable, result.Kind)
	assert.Equal(t, "extraction failed", result.Reason)
}

func TestRunAttemptConnectFailureIsRecoverable(t *testing.T) {
	t.Parallel()

	driver := &scriptedDriver{connectErr: errors.New("endpoint unreachable")}
	executor := NewSessionExecutor(driver, ExecutorConfig{}, nil)

	result := executor.RunAttempt(context.Background(), probeAccount(), "best crm")
	assert.Equal(t, domain.AttemptRecoverable, result.Kind)
	assert.Contains(t, result.Reason, "connect")
}

func TestRunAttemptToggleFailureMarksAccountUnusable(t *testing.T) {
	t.Parallel()

	handle := &scriptedHandle{
		content: pageWithResponse("ignored"),
		selectorErrs: map[string]error{
			`button[aria-label="Turn on temporary chat"]`: errors.New("element not found"),
		},
	}
	executor := NewSessionExecutor(&scriptedDriver{handle: handle}, ExecutorConfig{}, nil)

	result := executor.RunAttempt(context.Background(), probeAccount(), "best crm")
	assert.Equal(t, domain.AttemptUnusableAccount, result.Kind)
	assert.Equal(t, "feature unavailable", result.Reason)
	assert.True(t, handle.closed)
}

func TestRunAttemptLoginFailureIsRecoverable(t *testing.T) {
	t.Parallel()

	handle := &scriptedHandle{
		selectorErrs: map[string]error{
			`button[data-testid="login-button"]`: errors.New("element not found"),
		},
	}
	executor := NewSessionExecutor(&scriptedDriver{handle: handle}, ExecutorConfig{}, nil)

	result := executor.RunAttempt(context.Background(), probeAccount(), "best crm")
	assert.Equal(t, domain.AttemptRecoverable, result.Kind)
	assert.Contains(t, result.Reason, "open login")
	assert.True(t, handle.closed)
}

func TestRunAttemptVerificationRequiredMarksAccountUnusable(t *testing.T) {
	t.Parallel()

	handle := &scriptedHandle{
		stepErrs: map[ports.StepKind]error{
			ports.StepFill: fmt.Errorf("element blocked: %w", ports.ErrVerificationRequired),
		},
	}
	executor := NewSessionExecutor(&scriptedDriver{handle: handle}, ExecutorConfig{}, nil)

	result := executor.RunAttempt(context.Background(), probeAccount(), "best crm")
	assert.Equal(t, domain.AttemptUnusableAccount, result.Kind)
	assert.Equal(t, "verification required", result.Reason)
	assert.True(t, handle.closed, "handle must be closed on the unusable path too")
}

func TestClassifyStepErrorUnusableStep(t *testing.T) {
	t.Parallel()

	scripted := scriptStep{
		name:           "toggle temporary chat",
		unusableReason: "feature unavailable",
	}

	result := classifyStepError(scripted, errors.New("element not found"))
	assert.Equal(t, domain.AttemptUnusableAccount, result.Kind)
	assert.Equal(t, "feature unavailable", result.Reason)
}

func TestScriptSubmitsQueryWithConfiguredDwell(t *testing.T) {
	t.Parallel()

	handle := &scriptedHandle{content: pageWithResponse("ok")}
	executor := NewSessionExecutor(&scriptedDriver{handle: handle}, ExecutorConfig{Dwell: DefaultDwell}, nil)

	result := executor.RunAttempt(context.Background(), probeAccount(), "best crm for startups")
	require.Equal(t, domain.AttemptSuccess, result.Kind)

	var typed, dwelled bool
	for _, step := range handle.steps {
		if step.Kind == ports.StepType && step.Text == "best crm for startups" {
			typed = true
		}
		if step.Kind == ports.StepWait && step.Dwell == DefaultDwell {
			dwelled = true
		}
	}
	assert.True(t, typed, "query must be typed into the editor")
	assert.True(t, dwelled, "dwell wait must use the configured duration")
}

func TestExtractBetween(t *testing.T) {
	t.Parallel()

	raw, ok := extractBetween("aaSTARTbbENDcc", "START", "END")
	require.True(t, ok)
	assert.Equal(t, "bb", raw)

	_, ok = extractBetween("no markers", "START", "END")
	assert.False(t, ok)

	_, ok = extractBetween("STARTonly", "START", "END")
	assert.False(t, ok)

	// End marker before start does not count.
	_, ok = extractBetween("ENDxxSTART", "START", "END")
	assert.False(t, ok)
}
