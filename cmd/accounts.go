package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/probelab/visprobe/internal/adapters/render/summary"
	"github.com/probelab/visprobe/internal/application"
	"github.com/probelab/visprobe/internal/domain"
)

func newAccountsCmd(app *app) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List leasable probe accounts and their counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			threshold := app.config.FailureThreshold
			if threshold <= 0 {
				threshold = domain.DefaultFailureThreshold
			}

			accounts, err := app.store.QueryLeasable(cmd.Context(), threshold, limit)
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(accounts)
			}

			_, err = cmd.OutOrStdout().Write([]byte(summary.RenderAccounts(accounts, threshold) + "\n"))
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", application.DefaultCandidateLimit, "Max accounts to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}
