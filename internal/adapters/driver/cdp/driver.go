// Package cdp drives a remote browser over the Chrome DevTools
// protocol, typically a Browserbase endpoint of the form
// wss://connect.browserbase.com?apiKey=… . It executes the declarative
// step sequences the orchestration core composes, keeping every
// target-specific detail out of the core.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/probelab/visprobe/internal/ports"
)

type Driver struct {
	endpoint string
}

var _ ports.Driver = (*Driver)(nil)

func NewDriver(endpoint string) (*Driver, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("browser endpoint is empty")
	}

	return &Driver{endpoint: endpoint}, nil
}

func (d *Driver) Connect(ctx context.Context) (ports.Handle, error) {
	c, err := dial(ctx, d.endpoint)
	if err != nil {
		return nil, err
	}

	sessionID, err := attachToPage(ctx, c)
	if err != nil {
		_ = c.close()
		return nil, err
	}

	return &handle{conn: c, sessionID: sessionID}, nil
}

type targetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
}

func attachToPage(ctx context.Context, c *conn) (string, error) {
	var targets struct {
		TargetInfos []targetInfo `json:"targetInfos"`
	}
	if err := c.call(ctx, "", "Target.getTargets", nil, &targets); err != nil {
		return "", err
	}

	var pageID string
	for _, target := range targets.TargetInfos {
		if target.Type == "page" {
			pageID = target.TargetID
			break
		}
	}
	if pageID == "" {
		return "", fmt.Errorf("no page target available")
	}

	var attached struct {
		SessionID string `json:"sessionId"`
	}
	err := c.call(ctx, "", "Target.attachToTarget", map[string]any{
		"targetId": pageID,
		"flatten":  true,
	}, &attached)
	if err != nil {
		return "", err
	}
	if attached.SessionID == "" {
		return "", fmt.Errorf("attach to page: empty session id")
	}

	return attached.SessionID, nil
}

type handle struct {
	conn      *conn
	sessionID string
}

func (h *handle) Perform(ctx context.Context, step ports.Step) (ports.StepResult, error) {
	switch step.Kind {
	case ports.StepNavigate:
		return ports.StepResult{}, h.navigate(ctx, step.URL)
	case ports.StepClick:
		return ports.StepResult{}, h.click(ctx, step.Selector)
	case ports.StepFill:
		return ports.StepResult{}, h.fill(ctx, step.Selector, step.Text)
	case ports.StepType:
		return ports.StepResult{}, h.typeText(ctx, step.Text, step.KeyDelay)
	case ports.StepPress:
		return ports.StepResult{}, h.press(ctx, step.Key)
	case ports.StepWait:
		return ports.StepResult{}, wait(ctx, step.Dwell)
	case ports.StepExtract:
		content, err := h.pageContent(ctx)
		return ports.StepResult{Content: content}, err
	default:
		return ports.StepResult{}, fmt.Errorf("unsupported step kind %q", step.Kind)
	}
}

func (h *handle) Close() error {
	return h.conn.close()
}

func (h *handle) navigate(ctx context.Context, url string) error {
	var result struct {
		ErrorText string `json:"errorText"`
	}
	err := h.conn.call(ctx, h.sessionID, "Page.navigate", map[string]any{"url": url}, &result)
	if err != nil {
		return err
	}
	if result.ErrorText != "" {
		return fmt.Errorf("navigate %s: %s", url, result.ErrorText)
	}

	return nil
}

func (h *handle) click(ctx context.Context, selector string) error {
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); if (!el) return "missing"; el.click(); return "ok"; })()`,
		jsString(selector),
	)

	status, err := h.evaluateString(ctx, script)
	if err != nil {
		return err
	}
	if status != "ok" {
		return h.missingElement(ctx, selector)
	}

	return nil
}

func (h *handle) fill(ctx context.Context, selector, text string) error {
	script := fmt.Sprintf(
		`(() => {
			const el = document.querySelector(%s);
			if (!el) return "missing";
			el.focus();
			el.value = %s;
			el.dispatchEvent(new Event("input", { bubbles: true }));
			return "ok";
		})()`,
		jsString(selector), jsString(text),
	)

	status, err := h.evaluateString(ctx, script)
	if err != nil {
		return err
	}
	if status != "ok" {
		return h.missingElement(ctx, selector)
	}

	return nil
}

// typeText inserts one character at a time with a per-key delay, the
// way a person would.
func (h *handle) typeText(ctx context.Context, text string, keyDelay time.Duration) error {
	for _, r := range text {
		err := h.conn.call(ctx, h.sessionID, "Input.insertText", map[string]any{"text": string(r)}, nil)
		if err != nil {
			return err
		}
		if keyDelay > 0 {
			if err := wait(ctx, keyDelay); err != nil {
				return err
			}
		}
	}

	return nil
}

func (h *handle) press(ctx context.Context, key string) error {
	down := map[string]any{"type": "keyDown", "key": key}
	up := map[string]any{"type": "keyUp", "key": key}
	if key == "Enter" {
		down["windowsVirtualKeyCode"] = 13
		down["text"] = "\r"
		up["windowsVirtualKeyCode"] = 13
	}

	if err := h.conn.call(ctx, h.sessionID, "Input.dispatchKeyEvent", down, nil); err != nil {
		return err
	}

	return h.conn.call(ctx, h.sessionID, "Input.dispatchKeyEvent", up, nil)
}

func (h *handle) pageContent(ctx context.Context) (string, error) {
	return h.evaluateString(ctx, "document.documentElement.outerHTML")
}

// missingElement distinguishes a verification interstitial from a
// plain missing element, so the core can retire the account instead of
// retrying pointlessly.
func (h *handle) missingElement(ctx context.Context, selector string) error {
	probe := `(() => {
		const text = (document.body && document.body.innerText) || "";
		return /verify (you are|your)|verification (code|required)|unusual activity/i.test(text) ? "verification" : "none";
	})()`

	status, probeErr := h.evaluateString(ctx, probe)
	if probeErr == nil && status == "verification" {
		return fmt.Errorf("element %s blocked: %w", selector, ports.ErrVerificationRequired)
	}

	return fmt.Errorf("element not found: %s", selector)
}

func (h *handle) evaluateString(ctx context.Context, expression string) (string, error) {
	var result struct {
		Result struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}

	err := h.conn.call(ctx, h.sessionID, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.ExceptionDetails != nil {
		return "", fmt.Errorf("evaluate: %s", result.ExceptionDetails.Text)
	}
	if result.Result.Type != "string" {
		return "", fmt.Errorf("evaluate: expected string result, got %s", result.Result.Type)
	}

	var value string
	if err := json.Unmarshal(result.Result.Value, &value); err != nil {
		return "", fmt.Errorf("evaluate: decode value: %w", err)
	}

	return value, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jsString(value string) string {
	encoded, _ := json.Marshal(value)
	return string(encoded)
}
