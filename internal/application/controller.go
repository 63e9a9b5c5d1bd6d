package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/probelab/visprobe/internal/domain"
)

const DefaultConcurrency = 20

type accountPool interface {
	FetchCandidates(ctx context.Context, limit int) ([]domain.Account, error)
	Lease(ctx context.Context) (domain.Lease, error)
	Release(lease domain.Lease)
	RecordFailure(ctx context.Context, email string, delta int)
}

type attemptRunner interface {
	RunAttempt(ctx context.Context, account domain.Account, query string) domain.AttemptResult
}

type finalizer interface {
	Finalize(ctx context.Context, session *domain.Session, rawOutput string) domain.Outcome
}

// SessionReport pairs one session spec with its terminal outcome.
type SessionReport struct {
	Spec         domain.SessionSpec
	AccountEmail string
	Attempts     int
	Outcome      domain.Outcome
}

// Controller fans session specs out over a bounded number of workers
// and joins every terminal outcome into a run summary. One session's
// failure never cancels or affects its siblings; only run-start errors
// escape to the caller.
type Controller struct {
	pool           accountPool
	runner         attemptRunner
	finalizer      finalizer
	machine        *RetryMachine
	concurrency    int
	candidateLimit int
	logger         *slog.Logger
}

type ControllerConfig struct {
	Concurrency    int
	CandidateLimit int
}

func NewController(pool accountPool, runner attemptRunner, fin finalizer, machine *RetryMachine, config ControllerConfig, logger *slog.Logger) *Controller {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = DefaultCandidateLimit
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		pool:           pool,
		runner:         runner,
		finalizer:      fin,
		machine:        machine,
		concurrency:    config.Concurrency,
		candidateLimit: config.CandidateLimit,
		logger:         logger,
	}
}

// RunAll executes every spec to a terminal outcome and reports the
// aggregate. It returns an error only when the run cannot start: the
// datastore is unreachable or the pool is empty.
func (c *Controller) RunAll(ctx context.Context, specs []domain.SessionSpec) (domain.RunSummary, []SessionReport, error) {
	candidates, err := c.pool.FetchCandidates(ctx, c.candidateLimit)
	if err != nil {
		return domain.RunSummary{}, nil, err
	}
	if len(candidates) == 0 {
		return domain.RunSummary{}, nil, domain.ErrEmptyPool
	}

	// Capping in-flight sessions at the candidate count guarantees a
	// free account exists whenever a session starts, since each
	// in-flight session holds exactly one lease.
	workers := c.concurrency
	if workers > len(candidates) {
		workers = len(candidates)
	}

	reports := make([]SessionReport, len(specs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec domain.SessionSpec) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			reports[i] = c.runSession(ctx, spec)
		}(i, spec)
	}

	wg.Wait()

	var summary domain.RunSummary
	for _, report := range reports {
		summary.Add(report.Outcome)
	}

	c.logger.Info("run complete",
		"sessions", len(specs),
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)

	return summary, reports, nil
}

func (c *Controller) runSession(ctx context.Context, spec domain.SessionSpec) (report SessionReport) {
	report.Spec = spec

	lease, err := c.pool.Lease(ctx)
	if err != nil {
		report.Outcome = domain.OutcomeFailure(domain.FailureDriverError, "lease account: "+err.Error())
		return report
	}
	report.AccountEmail = lease.Account.Email

	// The lease is released on every exit path, a panicking session
	// included.
	defer c.pool.Release(lease)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session panicked", "account", lease.Account.Email, "panic", r)
			report.Outcome = domain.OutcomeFailure(domain.FailureDriverError, fmt.Sprintf("session panic: %v", r))
		}
	}()

	session := &domain.Session{Spec: spec, Lease: lease}

	retry := c.machine.Run(ctx, session, func(ctx context.Context) domain.AttemptResult {
		return c.runner.RunAttempt(ctx, lease.Account, spec.Query)
	})
	report.Attempts = retry.Attempts

	if retry.State != StateSucceeded {
		if retry.Penalty > 0 {
			c.pool.RecordFailure(ctx, lease.Account.Email, retry.Penalty)
		}
		c.logger.Warn("session failed",
			"account", lease.Account.Email,
			"attempts", retry.Attempts,
			"kind", retry.FailureKind,
			"reason", retry.LastReason,
		)
		report.Outcome = domain.OutcomeFailure(retry.FailureKind, retry.LastReason)
		return report
	}

	report.Outcome = c.finalizer.Finalize(ctx, session, retry.RawOutput)
	return report
}
