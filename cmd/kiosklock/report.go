package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiosklock/kiosklock/internal/database"
	"github.com/kiosklock/kiosklock/internal/reporter"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:       "report [day|week|month]",
		Short:     "Summarize incidents over a period",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"day", "week", "month"},
		RunE: func(cmd *cobra.Command, args []string) error {
			period := "day"
			if len(args) > 0 {
				period = args[0]
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}

			db, err := database.Connect(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Initialize(); err != nil {
				return err
			}

			rep := reporter.New(database.NewRepository(db))
			report, err := rep.GenerateReport(period)
			if err != nil {
				return err
			}

			if jsonOutput {
				s, err := rep.FormatReportJSON(report)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), s)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), rep.FormatReportText(report))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	return cmd
}
