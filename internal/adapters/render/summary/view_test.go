package summary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/probelab/visprobe/internal/application"
	"github.com/probelab/visprobe/internal/domain"
)

func TestRenderRunShowsCountsAndReports(t *testing.T) {
	t.Parallel()

	runSummary := domain.RunSummary{Succeeded: 1, Failed: 1}
	reports := []application.SessionReport{
		{
			Spec:         domain.SessionSpec{Query: "best crm", Customer: "acme"},
			AccountEmail: "a@example.com",
			Attempts:     1,
			Outcome: domain.OutcomeSuccess(domain.Analysis{
				CitedSources: []string{"acme.com", "review.example.com"},
				CustomerBest: true,
			}),
		},
		{
			Spec:         domain.SessionSpec{Query: "best crm", Customer: "acme"},
			AccountEmail: "b@example.com",
			Attempts:     3,
			Outcome:      domain.OutcomeFailure(domain.FailureRetriesExhausted, "element not found: div.ProseMirror"),
		},
	}

	out := RenderRun(runSummary, reports)

	assert.Contains(t, out, "Probe Run Summary")
	assert.Contains(t, out, "sessions: 2")
	assert.Contains(t, out, "1 succeeded")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "a@example.com")
	assert.Contains(t, out, "2 sources cited")
	assert.Contains(t, out, "customer ranked best")
	assert.Contains(t, out, "3 attempts")
	assert.Contains(t, out, string(domain.FailureRetriesExhausted))
	assert.Contains(t, out, "element not found")
}

func TestRenderRunEmpty(t *testing.T) {
	t.Parallel()

	out := RenderRun(domain.RunSummary{}, nil)

	assert.Contains(t, out, "sessions: 0")
	assert.NotContains(t, out, "█")
}

func TestRenderRunUnleasedSession(t *testing.T) {
	t.Parallel()

	reports := []application.SessionReport{
		{
			Outcome: domain.OutcomeFailure(domain.FailureDriverError, "lease account: no leasable accounts"),
		},
	}

	out := RenderRun(domain.RunSummary{Failed: 1}, reports)
	assert.Contains(t, out, "(no lease)")
}

func TestRenderAccountsListsCounters(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	accounts := []domain.Account{
		{Email: "fresh@example.com", Failures: 0, Usages: 2, CreatedAt: created},
		{Email: "retired@example.com", Failures: 103, Usages: 9, CreatedAt: created},
	}

	out := RenderAccounts(accounts, domain.DefaultFailureThreshold)

	assert.Contains(t, out, "accounts: 2")
	assert.Contains(t, out, "fresh@example.com")
	assert.Contains(t, out, "retired@example.com")
	assert.Contains(t, out, "failures: 103")
	assert.Contains(t, out, "2026-08-20")
}

func TestRenderAccountsEmpty(t *testing.T) {
	t.Parallel()

	out := RenderAccounts(nil, domain.DefaultFailureThreshold)
	assert.Contains(t, out, "No leasable accounts available.")
}
