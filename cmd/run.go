package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/probelab/visprobe/internal/adapters/render/summary"
	"github.com/probelab/visprobe/internal/application"
	"github.com/probelab/visprobe/internal/domain"
)

func newRunCmd(app *app) *cobra.Command {
	var (
		query       string
		customer    string
		sessions    int
		concurrency int
		retries     int
		asJSON      bool
		plain       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run probe sessions against the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if query == "" {
				query = app.config.Query
			}
			if customer == "" {
				customer = app.config.Customer
			}
			if query == "" {
				return fmt.Errorf("query is required (--query or VP_QUERY)")
			}
			if customer == "" {
				return fmt.Errorf("customer is required (--customer or VP_CUSTOMER)")
			}
			if sessions < 1 {
				return fmt.Errorf("sessions must be at least 1")
			}

			controller, err := buildController(app, concurrency, retries)
			if err != nil {
				return err
			}

			specs := make([]domain.SessionSpec, sessions)
			for i := range specs {
				specs[i] = domain.SessionSpec{Query: query, Customer: customer}
			}

			var (
				runSummary domain.RunSummary
				reports    []application.SessionReport
			)
			runAll := func(ctx context.Context) error {
				var runErr error
				runSummary, reports, runErr = controller.RunAll(ctx, specs)
				return runErr
			}

			if asJSON || plain {
				err = runAll(cmd.Context())
			} else {
				label := fmt.Sprintf("Probing %q for %s...", query, customer)
				err = runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), label, runAll)
			}
			if err != nil {
				return fmt.Errorf("start run: %w", err)
			}

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(struct {
					Summary  domain.RunSummary
					Sessions []application.SessionReport
				}{runSummary, reports}); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), summary.RenderRun(runSummary, reports))
			}

			if sessions == 1 && runSummary.Succeeded == 0 {
				return fmt.Errorf("session failed: %s", reports[0].Outcome.Reason)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "Query text to submit (default: VP_QUERY)")
	cmd.Flags().StringVar(&customer, "customer", "", "Customer name to analyze for (default: VP_CUSTOMER)")
	cmd.Flags().IntVar(&sessions, "sessions", 1, "Number of probe sessions to run")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Max sessions in flight (default: VP_CONCURRENCY)")
	cmd.Flags().IntVar(&retries, "retries", 0, "Max attempts per session (default: VP_MAX_RETRIES)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable the progress spinner")

	return cmd
}

func buildController(app *app, concurrency, retries int) (*application.Controller, error) {
	driver, err := wireDriver(app.config)
	if err != nil {
		return nil, err
	}
	analyzer, err := wireAnalyzer(app.config)
	if err != nil {
		return nil, err
	}

	if concurrency <= 0 {
		concurrency = app.config.Concurrency
	}
	if retries <= 0 {
		retries = app.config.MaxRetries
	}

	pool := application.NewPoolService(app.store, app.clock, app.config.FailureThreshold, app.logger)
	executor := application.NewSessionExecutor(driver, application.ExecutorConfig{Dwell: app.config.Dwell}, app.logger)
	machine := application.NewRetryMachine(application.RetryConfig{
		MaxRetries: retries,
		BackoffMin: app.config.BackoffMin,
		BackoffMax: app.config.BackoffMax,
	}, nil, app.logger)
	aggregator := application.NewAggregator(analyzer, app.store, pool, app.config.CitationPolicy, app.clock, app.logger)

	return application.NewController(pool, executor, aggregator, machine, application.ControllerConfig{
		Concurrency:    concurrency,
		CandidateLimit: app.config.CandidateLimit,
	}, app.logger), nil
}
