package ports

import (
	"context"

	"github.com/probelab/visprobe/internal/domain"
)

// CounterDelta is a best-effort increment request for one account's
// advisory counters. Serialization of concurrent deltas is the
// datastore's job, not the caller's.
type CounterDelta struct {
	Failures int
	Usages   int
}

type AccountStore interface {
	// QueryLeasable returns accounts with failures < failuresLessThan,
	// most recently created first, truncated to limit.
	QueryLeasable(ctx context.Context, failuresLessThan, limit int) ([]domain.Account, error)

	// AdjustCounters applies a delta update to one account's counters.
	// Must be idempotent-safe under retries.
	AdjustCounters(ctx context.Context, email string, delta CounterDelta) error

	// InsertResult persists a probe record and returns it with its
	// generated identifier.
	InsertResult(ctx context.Context, record domain.Record) (domain.Record, error)
}
