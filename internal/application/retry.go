package application

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/probelab/visprobe/internal/domain"
	"github.com/probelab/visprobe/internal/ports"
)

const (
	DefaultMaxRetries = 3

	DefaultBackoffMin = 5 * time.Second
	DefaultBackoffMax = 8 * time.Second
)

type RetryState string

const (
	StateIdle       RetryState = "idle"
	StateAttempting RetryState = "attempting"
	StateSucceeded  RetryState = "succeeded"
	StateExhausted  RetryState = "exhausted"
)

// AttemptFunc runs one attempt for the session driving this machine.
type AttemptFunc func(ctx context.Context) domain.AttemptResult

// RetryOutcome is the terminal state of one machine run, plus the
// failure-counter penalty the pool should apply for it.
type RetryOutcome struct {
	State       RetryState
	RawOutput   string
	Attempts    int
	FailureKind domain.FailureKind
	LastReason  string
	Penalty     int
}

// RetryMachine drives one session's attempts: Idle, Attempting, then
// Succeeded or Exhausted. Attempt-level errors never escape it.
type RetryMachine struct {
	maxRetries int
	backoffMin time.Duration
	backoffMax time.Duration
	sleeper    ports.Sleeper
	logger     *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

type RetryConfig struct {
	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = DefaultBackoffMin
	}
	if c.BackoffMax <= c.BackoffMin {
		c.BackoffMax = c.BackoffMin + (DefaultBackoffMax - DefaultBackoffMin)
	}
}

func NewRetryMachine(config RetryConfig, sleeper ports.Sleeper, logger *slog.Logger) *RetryMachine {
	config.applyDefaults()
	if sleeper == nil {
		sleeper = ports.SystemSleeper{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RetryMachine{
		maxRetries: config.MaxRetries,
		backoffMin: config.BackoffMin,
		backoffMax: config.BackoffMax,
		sleeper:    sleeper,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:     logger,
	}
}

// Run executes attempts until the session succeeds, the account proves
// unusable, or retries are exhausted. A canceled context surfaces as an
// exhausted run with a driver-error kind.
func (m *RetryMachine) Run(ctx context.Context, session *domain.Session, attempt AttemptFunc) RetryOutcome {
	outcome := RetryOutcome{State: StateIdle}
	account := session.Lease.Account.Email

	for outcome.Attempts < m.maxRetries {
		if err := ctx.Err(); err != nil {
			outcome.State = StateExhausted
			outcome.FailureKind = domain.FailureDriverError
			outcome.LastReason = err.Error()
			return outcome
		}

		outcome.State = StateAttempting
		outcome.Attempts++

		result := attempt(ctx)
		session.RecordAttempt(result)

		switch result.Kind {
		case domain.AttemptSuccess:
			outcome.State = StateSucceeded
			outcome.RawOutput = result.RawOutput
			return outcome

		case domain.AttemptUnusableAccount:
			// Continuing with a broken account is pointless. Exhaust
			// immediately and retire it with a large penalty.
			m.logger.Warn("account unusable",
				"account", account,
				"attempt", outcome.Attempts,
				"reason", result.Reason,
			)
			outcome.State = StateExhausted
			outcome.FailureKind = domain.FailureAccountUnusable
			outcome.LastReason = result.Reason
			outcome.Penalty = domain.UnusablePenalty
			return outcome

		default:
			m.logger.Info("attempt failed",
				"account", account,
				"attempt", outcome.Attempts,
				"reason", result.Reason,
			)
			outcome.LastReason = result.Reason

			if outcome.Attempts < m.maxRetries {
				if err := m.sleeper.Sleep(ctx, m.backoff()); err != nil {
					outcome.State = StateExhausted
					outcome.FailureKind = domain.FailureDriverError
					outcome.LastReason = err.Error()
					return outcome
				}
			}
		}
	}

	outcome.State = StateExhausted
	outcome.FailureKind = domain.FailureRetriesExhausted
	outcome.Penalty = 1
	return outcome
}

func (m *RetryMachine) backoff() time.Duration {
	spread := int64(m.backoffMax - m.backoffMin)
	if spread <= 0 {
		return m.backoffMin
	}

	m.rngMu.Lock()
	defer m.rngMu.Unlock()

	return m.backoffMin + time.Duration(m.rng.Int63n(spread))
}
