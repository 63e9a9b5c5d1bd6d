package domain

type FailureKind string

const (
	FailureDriverError      FailureKind = "driver_error"
	FailureAccountUnusable  FailureKind = "account_unusable"
	FailureNoCitations      FailureKind = "no_citations"
	FailurePersistError     FailureKind = "persist_error"
	FailureRetriesExhausted FailureKind = "retries_exhausted"
)

// Outcome is the terminal result of a session. Immutable once produced.
type Outcome struct {
	Analysis *Analysis
	Failure  FailureKind
	Reason   string
}

func OutcomeSuccess(analysis Analysis) Outcome {
	return Outcome{Analysis: &analysis}
}

func OutcomeFailure(kind FailureKind, reason string) Outcome {
	return Outcome{Failure: kind, Reason: reason}
}

func (o Outcome) Succeeded() bool {
	return o.Analysis != nil
}

// RunSummary aggregates terminal outcomes over all sessions in one
// invocation. Valid only after every session has joined.
type RunSummary struct {
	Succeeded int
	Failed    int
}

func (s *RunSummary) Add(outcome Outcome) {
	if outcome.Succeeded() {
		s.Succeeded++
		return
	}
	s.Failed++
}

func (s RunSummary) Total() int {
	return s.Succeeded + s.Failed
}
