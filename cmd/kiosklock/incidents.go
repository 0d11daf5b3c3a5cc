package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kiosklock/kiosklock/internal/database"
)

func newIncidentsCmd(opts *rootOptions) *cobra.Command {
	var (
		since    time.Duration
		limit    int
		prune    time.Duration
		clearAll bool
	)
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "List journaled incidents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			repo := database.NewRepository(db)
			out := cmd.OutOrStdout()

			if clearAll {
				if err := repo.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(out, "Journal cleared")
				return nil
			}

			if prune > 0 {
				n, err := repo.DeleteBefore(time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %d incidents older than %v\n", n, prune)
				return nil
			}

			if limit < 0 {
				return errors.New("limit cannot be negative")
			}
			incidents, err := repo.ListSince(time.Now().Add(-since), limit)
			if err != nil {
				return err
			}
			if len(incidents) == 0 {
				fmt.Fprintln(out, "No incidents recorded")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tKIND\tSIGNATURE\tDISPLAYS\tSESSION\tDETAIL")
			for _, inc := range incidents {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					inc.Timestamp.Format("2006-01-02 15:04:05"),
					inc.Kind, inc.Signature, inc.Displays, shortID(inc.SessionID), inc.Detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to list")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "show at most this many of the newest incidents, 0 for all")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete incidents older than this instead of listing")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete every incident and audit error")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
