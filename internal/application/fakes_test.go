package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/probelab/visprobe/internal/domain"
	"github.com/probelab/visprobe/internal/ports"
)

type adjustCall struct {
	email string
	delta ports.CounterDelta
}

type fakeStore struct {
	mu        sync.Mutex
	accounts  []domain.Account
	queryErr  error
	adjustErr error
	insertErr error
	adjusts   []adjustCall
	inserted  []domain.Record
}

func (s *fakeStore) QueryLeasable(_ context.Context, failuresLessThan, limit int) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queryErr != nil {
		return nil, s.queryErr
	}

	leasable := make([]domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if account.Failures < failuresLessThan {
			leasable = append(leasable, account)
		}
	}

	sort.SliceStable(leasable, func(i, j int) bool {
		return leasable[i].CreatedAt.After(leasable[j].CreatedAt)
	})

	if limit > 0 && len(leasable) > limit {
		leasable = leasable[:limit]
	}

	return leasable, nil
}

func (s *fakeStore) AdjustCounters(_ context.Context, email string, delta ports.CounterDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adjustErr != nil {
		return s.adjustErr
	}

	s.adjusts = append(s.adjusts, adjustCall{email: email, delta: delta})
	return nil
}

func (s *fakeStore) InsertResult(_ context.Context, record domain.Record) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return domain.Record{}, s.insertErr
	}

	record.ID = "record-1"
	s.inserted = append(s.inserted, record)
	return record, nil
}

func (s *fakeStore) failureAdjusts() []adjustCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	var calls []adjustCall
	for _, call := range s.adjusts {
		if call.delta.Failures != 0 {
			calls = append(calls, call)
		}
	}
	return calls
}

func (s *fakeStore) usageAdjusts() []adjustCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	var calls []adjustCall
	for _, call := range s.adjusts {
		if call.delta.Usages != 0 {
			calls = append(calls, call)
		}
	}
	return calls
}

func (s *fakeStore) insertedRecords() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.Record(nil), s.inserted...)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

// fakeSleeper records requested backoff waits without sleeping.
type fakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
	err   error
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.slept = append(s.slept, d)
	return nil
}

func (s *fakeSleeper) waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Duration(nil), s.slept...)
}

type fakeAnalyzer struct {
	analysis domain.Analysis
	err      error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _, _ string) (domain.Analysis, error) {
	if a.err != nil {
		return domain.Analysis{}, a.err
	}
	return a.analysis, nil
}

type fakeCounters struct {
	mu       sync.Mutex
	failures map[string]int
	usages   map[string]int
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{failures: map[string]int{}, usages: map[string]int{}}
}

func (c *fakeCounters) RecordFailure(_ context.Context, email string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[email] += delta
}

func (c *fakeCounters) RecordUsage(_ context.Context, email string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usages[email] += delta
}

// scriptedHandle replays configured errors per step kind and tracks
// whether it was closed.
type scriptedHandle struct {
	mu           sync.Mutex
	content      string
	stepErrs     map[ports.StepKind]error
	selectorErrs map[string]error
	steps        []ports.Step
	closed       bool
}

func (h *scriptedHandle) Perform(_ context.Context, step ports.Step) (ports.StepResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.steps = append(h.steps, step)
	if err, ok := h.selectorErrs[step.Selector]; ok && err != nil {
		return ports.StepResult{}, err
	}
	if err, ok := h.stepErrs[step.Kind]; ok && err != nil {
		return ports.StepResult{}, err
	}
	if step.Kind == ports.StepExtract {
		return ports.StepResult{Content: h.content}, nil
	}
	return ports.StepResult{}, nil
}

func (h *scriptedHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	return nil
}

type scriptedDriver struct {
	handle     *scriptedHandle
	connectErr error
}

func (d *scriptedDriver) Connect(_ context.Context) (ports.Handle, error) {
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	return d.handle, nil
}

// scriptedRunner returns a fixed sequence of attempt results per
// session, tracking peak concurrency across sessions.
type scriptedRunner struct {
	mu       sync.Mutex
	results  []domain.AttemptResult
	next     int
	inFlight int
	peak     int
	holdFor  time.Duration
}

func (r *scriptedRunner) RunAttempt(_ context.Context, _ domain.Account, _ string) domain.AttemptResult {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.peak {
		r.peak = r.inFlight
	}
	index := r.next
	if index >= len(r.results) {
		index = len(r.results) - 1
	}
	r.next++
	result := r.results[index]
	r.mu.Unlock()

	if r.holdFor > 0 {
		time.Sleep(r.holdFor)
	}

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()

	return result
}

type recordingFinalizer struct {
	mu       sync.Mutex
	outcome  domain.Outcome
	sessions []*domain.Session
}

func (f *recordingFinalizer) Finalize(_ context.Context, session *domain.Session, _ string) domain.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions = append(f.sessions, session)
	return f.outcome
}
