package application

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/probelab/visprobe/internal/domain"
	"github.com/probelab/visprobe/internal/ports"
)

const DefaultCandidateLimit = 1000

// PoolService leases accounts out of the leasable candidate set and
// pushes counter adjustments back to the datastore. Within one run an
// account is never leased twice concurrently; across processes no such
// exclusivity is attempted.
type PoolService struct {
	store     ports.AccountStore
	clock     ports.Clock
	threshold int
	logger    *slog.Logger
	rng       *rand.Rand

	mu         sync.Mutex
	candidates []domain.Account
	leased     map[string]struct{}
}

func NewPoolService(store ports.AccountStore, clock ports.Clock, threshold int, logger *slog.Logger) *PoolService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if threshold <= 0 {
		threshold = domain.DefaultFailureThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PoolService{
		store:     store,
		clock:     clock,
		threshold: threshold,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		leased:    map[string]struct{}{},
	}
}

// FetchCandidates loads the leasable candidate set from the datastore
// and primes the pool with it. Datastore failures propagate to the
// caller; they are fatal to run start and retried nowhere.
func (s *PoolService) FetchCandidates(ctx context.Context, limit int) ([]domain.Account, error) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	accounts, err := s.store.QueryLeasable(ctx, s.threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("query leasable accounts: %w", err)
	}

	s.mu.Lock()
	s.candidates = accounts
	s.leased = make(map[string]struct{}, len(accounts))
	s.mu.Unlock()

	return accounts, nil
}

// SelectRandom picks uniformly from a non-empty candidate sequence.
func (s *PoolService) SelectRandom(candidates []domain.Account) (domain.Account, error) {
	if len(candidates) == 0 {
		return domain.Account{}, domain.ErrEmptyPool
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return candidates[s.rng.Intn(len(candidates))], nil
}

// Lease claims a random account that is not currently leased by a
// sibling session. The caller owns the lease and must Release it on
// every exit path.
func (s *PoolService) Lease(ctx context.Context) (domain.Lease, error) {
	if err := ctx.Err(); err != nil {
		return domain.Lease{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	free := make([]domain.Account, 0, len(s.candidates))
	for _, account := range s.candidates {
		if _, taken := s.leased[account.Email]; taken {
			continue
		}
		free = append(free, account)
	}

	if len(free) == 0 {
		return domain.Lease{}, domain.ErrEmptyPool
	}

	account := free[s.rng.Intn(len(free))]
	s.leased[account.Email] = struct{}{}

	return domain.Lease{Account: account, AcquiredAt: s.clock.Now()}, nil
}

func (s *PoolService) Release(lease domain.Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.leased, lease.Account.Email)
}

// RecordFailure is a best-effort counter increment. A failure to
// persist it is logged and swallowed: counter drift is tolerable,
// losing a completed result is not.
func (s *PoolService) RecordFailure(ctx context.Context, email string, delta int) {
	s.adjust(ctx, email, ports.CounterDelta{Failures: delta})
}

// RecordUsage is a best-effort usage increment, applied once per
// session on success.
func (s *PoolService) RecordUsage(ctx context.Context, email string, delta int) {
	s.adjust(ctx, email, ports.CounterDelta{Usages: delta})
}

func (s *PoolService) adjust(ctx context.Context, email string, delta ports.CounterDelta) {
	if err := s.store.AdjustCounters(ctx, email, delta); err != nil {
		s.logger.Warn("adjust account counters failed",
			"account", email,
			"failures_delta", delta.Failures,
			"usages_delta", delta.Usages,
			"error", err,
		)
	}
}
