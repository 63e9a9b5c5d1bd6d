package application

import (
	"context"
	"log/slog"

	"github.com/probelab/visprobe/internal/domain"
	"github.com/probelab/visprobe/internal/ports"
)

// CitationPolicy decides what happens to a session whose analysis
// cites zero sources. Both variants count it as a failure and penalize
// the account; lenient additionally persists the record.
type CitationPolicy string

const (
	CitationPolicyStrict  CitationPolicy = "strict"
	CitationPolicyLenient CitationPolicy = "lenient"
)

func (p CitationPolicy) Valid() bool {
	switch p {
	case CitationPolicyStrict, CitationPolicyLenient:
		return true
	default:
		return false
	}
}

type counterRecorder interface {
	RecordFailure(ctx context.Context, email string, delta int)
	RecordUsage(ctx context.Context, email string, delta int)
}

// Aggregator turns a structurally successful session into a terminal
// outcome: analyze the raw output, apply the citation policy, persist
// the record, and adjust the account's counters.
type Aggregator struct {
	analyzer ports.Analyzer
	store    ports.AccountStore
	counters counterRecorder
	policy   CitationPolicy
	clock    ports.Clock
	logger   *slog.Logger
}

func NewAggregator(analyzer ports.Analyzer, store ports.AccountStore, counters counterRecorder, policy CitationPolicy, clock ports.Clock, logger *slog.Logger) *Aggregator {
	if !policy.Valid() {
		policy = CitationPolicyStrict
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		analyzer: analyzer,
		store:    store,
		counters: counters,
		policy:   policy,
		clock:    clock,
		logger:   logger,
	}
}

func (a *Aggregator) Finalize(ctx context.Context, session *domain.Session, rawOutput string) domain.Outcome {
	account := session.Lease.Account.Email

	analysis, err := a.analyzer.Analyze(ctx, session.Spec.Customer, rawOutput)
	if err != nil {
		a.logger.Error("analysis failed", "account", account, "error", err)
		return domain.OutcomeFailure(domain.FailurePersistError, "analyze output: "+err.Error())
	}

	if !analysis.HasCitations() {
		a.counters.RecordFailure(ctx, account, 1)

		if a.policy == CitationPolicyLenient {
			if _, err := a.store.InsertResult(ctx, a.record(session, analysis)); err != nil {
				a.logger.Warn("persist zero-citation record failed", "account", account, "error", err)
			}
		}

		return domain.OutcomeFailure(domain.FailureNoCitations, "analysis cited no sources")
	}

	if _, err := a.store.InsertResult(ctx, a.record(session, analysis)); err != nil {
		a.logger.Error("persist record failed", "account", account, "error", err)
		return domain.OutcomeFailure(domain.FailurePersistError, "insert result: "+err.Error())
	}

	// Once per session, not per attempt.
	a.counters.RecordUsage(ctx, account, 1)

	return domain.OutcomeSuccess(analysis)
}

func (a *Aggregator) record(session *domain.Session, analysis domain.Analysis) domain.Record {
	return domain.Record{
		Customer:          session.Spec.Customer,
		AccountEmail:      session.Lease.Account.Email,
		Query:             session.Spec.Query,
		CitedSources:      analysis.CitedSources,
		Candidates:        analysis.Candidates,
		BestCandidate:     analysis.BestCandidate,
		CustomerMentioned: analysis.CustomerMentioned,
		CustomerTopRanked: analysis.CustomerBest,
		CreatedAt:         a.clock.Now(),
	}
}
