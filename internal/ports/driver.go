package ports

import (
	"context"
	"errors"
	"time"
)

// ErrVerificationRequired is returned by a driver when the target asks
// for an out-of-band verification step that cannot be completed
// automatically.
var ErrVerificationRequired = errors.New("verification required")

type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepClick    StepKind = "click"
	StepFill     StepKind = "fill"
	StepType     StepKind = "type"
	StepPress    StepKind = "press"
	StepWait     StepKind = "wait"
	StepExtract  StepKind = "extract"
)

// Step is one declarative instruction for the interactive driver. The
// core composes step sequences and consumes typed results; everything
// target-specific stays behind the driver.
type Step struct {
	Kind     StepKind
	URL      string
	Selector string
	Text     string
	Key      string
	KeyDelay time.Duration
	// Dwell is how long a wait step pauses for the target to finish
	// producing output. A tunable, not a constant.
	Dwell time.Duration
}

type StepResult struct {
	Content string
}

// Handle is one live connection to the interactive target. It is owned
// exclusively by the attempt that opened it and must be closed before
// the attempt's result is finalized.
type Handle interface {
	Perform(ctx context.Context, step Step) (StepResult, error)
	Close() error
}

type Driver interface {
	Connect(ctx context.Context) (Handle, error)
}
