package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/probelab/visprobe/internal/domain"
	"github.com/probelab/visprobe/internal/ports"
)

const (
	DefaultStartMarker = "ChatGPT said:"
	DefaultEndMarker   = `aria-label="Copy"`

	DefaultDwell    = 30 * time.Second
	DefaultKeyDelay = 50 * time.Millisecond

	settleWait = time.Second
)

// ExecutorConfig tunes the interactive step sequence. Zero values fall
// back to the defaults observed against the live target.
type ExecutorConfig struct {
	TargetURL   string
	StartMarker string
	EndMarker   string
	Dwell       time.Duration
	KeyDelay    time.Duration
}

func (c *ExecutorConfig) applyDefaults() {
	if c.TargetURL == "" {
		c.TargetURL = "https://www.chatgpt.com"
	}
	if c.StartMarker == "" {
		c.StartMarker = DefaultStartMarker
	}
	if c.EndMarker == "" {
		c.EndMarker = DefaultEndMarker
	}
	if c.Dwell <= 0 {
		c.Dwell = DefaultDwell
	}
	if c.KeyDelay <= 0 {
		c.KeyDelay = DefaultKeyDelay
	}
}

// SessionExecutor runs exactly one attempt: drive the interactive
// steps, extract raw output between the configured markers, and
// classify what happened. It never retries; that is the retry
// machine's job.
type SessionExecutor struct {
	driver ports.Driver
	config ExecutorConfig
	logger *slog.Logger
}

func NewSessionExecutor(driver ports.Driver, config ExecutorConfig, logger *slog.Logger) *SessionExecutor {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionExecutor{driver: driver, config: config, logger: logger}
}

// scriptStep names a driver step so failures classify by where in the
// sequence they happened. A non-empty unusableReason marks steps whose
// failure means the account itself is broken.
type scriptStep struct {
	name           string
	step           ports.Step
	unusableReason string
}

func (e *SessionExecutor) RunAttempt(ctx context.Context, account domain.Account, query string) domain.AttemptResult {
	handle, err := e.driver.Connect(ctx)
	if err != nil {
		return domain.AttemptRecoverableFailure(fmt.Sprintf("connect: %v", err))
	}
	// Release the live connection on every path, success included.
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			e.logger.Warn("close driver handle failed", "account", account.Email, "error", closeErr)
		}
	}()

	var content string
	for _, scripted := range e.script(account, query) {
		result, err := handle.Perform(ctx, scripted.step)
		if err != nil {
			return classifyStepError(scripted, err)
		}
		if scripted.step.Kind == ports.StepExtract {
			content = result.Content
		}
	}

	raw, ok := extractBetween(content, e.config.StartMarker, e.config.EndMarker)
	if !ok {
		return domain.AttemptRecoverableFailure("extraction failed")
	}

	return domain.AttemptSucceeded(raw)
}

func (e *SessionExecutor) script(account domain.Account, query string) []scriptStep {
	return []scriptStep{
		{name: "navigate", step: ports.Step{Kind: ports.StepNavigate, URL: e.config.TargetURL}},
		{name: "open login", step: ports.Step{Kind: ports.StepClick, Selector: `button[data-testid="login-button"]`}},
		{name: "settle", step: ports.Step{Kind: ports.StepWait, Dwell: settleWait}},
		{name: "fill email", step: ports.Step{Kind: ports.StepFill, Selector: `input[name="email"]`, Text: account.Email}},
		{name: "continue email", step: ports.Step{Kind: ports.StepClick, Selector: loginContinueSelector}},
		{name: "fill password", step: ports.Step{Kind: ports.StepFill, Selector: `input[name="password"]`, Text: account.Password}},
		{name: "settle", step: ports.Step{Kind: ports.StepWait, Dwell: settleWait}},
		{name: "continue password", step: ports.Step{Kind: ports.StepClick, Selector: loginContinueSelector}},
		{name: "settle", step: ports.Step{Kind: ports.StepWait, Dwell: settleWait}},
		{
			name:           "toggle temporary chat",
			step:           ports.Step{Kind: ports.StepClick, Selector: `button[aria-label="Turn on temporary chat"]`},
			unusableReason: "feature unavailable",
		},
		{name: "focus editor", step: ports.Step{Kind: ports.StepClick, Selector: `div.ProseMirror[contenteditable="true"]`}},
		{name: "type query", step: ports.Step{Kind: ports.StepType, Text: query, KeyDelay: e.config.KeyDelay}},
		{name: "submit", step: ports.Step{Kind: ports.StepPress, Key: "Enter"}},
		{name: "dwell", step: ports.Step{Kind: ports.StepWait, Dwell: e.config.Dwell}},
		{name: "extract", step: ports.Step{Kind: ports.StepExtract}},
	}
}

const loginContinueSelector = `button[type="submit"]`

func classifyStepError(scripted scriptStep, err error) domain.AttemptResult {
	if errors.Is(err, ports.ErrVerificationRequired) {
		return domain.AttemptUnusable("verification required")
	}
	if scripted.unusableReason != "" {
		return domain.AttemptUnusable(scripted.unusableReason)
	}

	return domain.AttemptRecoverableFailure(fmt.Sprintf("%s: %v", scripted.name, err))
}

func extractBetween(content, startMarker, endMarker string) (string, bool) {
	start := strings.Index(content, startMarker)
	if start < 0 {
		return "", false
	}

	rest := content[start+len(startMarker):]
	end := strings.Index(rest, endMarker)
	if end < 0 {
		return "", false
	}

	return rest[:end], true
}
