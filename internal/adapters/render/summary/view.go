// Package summary renders run results and account listings for the
// terminal.
package summary

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/probelab/visprobe/internal/application"
	"github.com/probelab/visprobe/internal/domain"
)

// RenderRun renders the run-level summary plus one line per session.
func RenderRun(runSummary domain.RunSummary, reports []application.SessionReport) string {
	s := newStyles()

	lines := []string{
		s.title.Render("Probe Run Summary"),
		s.header.Render(fmt.Sprintf("sessions: %d", runSummary.Total())),
		renderCounts(runSummary, s),
	}

	if len(reports) > 0 {
		lines = append(lines, s.section.Render(renderReports(reports, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderCounts(runSummary domain.RunSummary, s styles) string {
	succeeded := s.success.Render(fmt.Sprintf("%d succeeded", runSummary.Succeeded))
	failed := s.failure.Render(fmt.Sprintf("%d failed", runSummary.Failed))

	return lipgloss.JoinHorizontal(lipgloss.Top, renderBar(runSummary, 24, s), " ", succeeded, "  ", failed)
}

func renderBar(runSummary domain.RunSummary, width int, s styles) string {
	total := runSummary.Total()
	if total == 0 || width <= 0 {
		return ""
	}

	filled := width * runSummary.Succeeded / total
	return s.barFill.Render(strings.Repeat("█", filled)) + s.barEmpty.Render(strings.Repeat("░", width-filled))
}

func renderReports(reports []application.SessionReport, s styles) string {
	lines := make([]string, 0, len(reports))
	for _, report := range reports {
		lines = append(lines, renderReport(report, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderReport(report application.SessionReport, s styles) string {
	account := report.AccountEmail
	if account == "" {
		account = "(no lease)"
	}

	attempts := fmt.Sprintf("%d attempt", report.Attempts)
	if report.Attempts != 1 {
		attempts += "s"
	}

	if report.Outcome.Succeeded() {
		status := s.success.Render("ok")
		detail := fmt.Sprintf("%d sources cited", len(report.Outcome.Analysis.CitedSources))
		if report.Outcome.Analysis.CustomerBest {
			detail += ", customer ranked best"
		} else if report.Outcome.Analysis.CustomerMentioned {
			detail += ", customer mentioned"
		}
		return fmt.Sprintf("%s %s  %s  %s", status, s.account.Render(account), s.detail.Render(attempts), s.detail.Render(detail))
	}

	status := s.failure.Render(string(report.Outcome.Failure))
	return fmt.Sprintf("%s %s  %s  %s", status, s.account.Render(account), s.detail.Render(attempts), s.detail.Render(report.Outcome.Reason))
}

// RenderAccounts lists the leasable pool with its advisory counters.
func RenderAccounts(accounts []domain.Account, threshold int) string {
	s := newStyles()

	lines := []string{
		s.title.Render("Probe Accounts"),
		s.header.Render(fmt.Sprintf("accounts: %d", len(accounts))),
	}

	if len(accounts) == 0 {
		lines = append(lines, s.empty.Render("No leasable accounts available."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, account := range accounts {
		lines = append(lines, renderAccount(account, threshold, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAccount(account domain.Account, threshold int, s styles) string {
	email := s.account.Render(account.Email)
	if !account.Leasable(threshold) {
		email = s.retired.Render(account.Email)
	}

	counters := s.detail.Render(fmt.Sprintf("failures: %d  usages: %d", account.Failures, account.Usages))
	created := s.header.Render(account.CreatedAt.Format("2006-01-02"))

	return fmt.Sprintf("%s  %s  %s", email, counters, created)
}
