package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vp",
		Short:         "visprobe: probe ChatGPT for brand visibility at scale",
		Long:          "vp runs concurrent probe sessions against ChatGPT using a pool of credentialed accounts, analyzes each response for customer visibility, and persists the results.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(app),
		newAccountsCmd(app),
	)

	return rootCmd
}
