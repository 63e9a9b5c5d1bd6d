package ports

import (
	"context"

	"github.com/probelab/visprobe/internal/domain"
)

// Analyzer turns raw probe output into a structured judgment about the
// customer. Implementations must fail loudly on malformed output
// rather than silently defaulting fields.
type Analyzer interface {
	Analyze(ctx context.Context, customer, rawText string) (domain.Analysis, error)
}
