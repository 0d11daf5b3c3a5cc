package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiosklock/kiosklock/internal/daemon"
	"github.com/kiosklock/kiosklock/internal/database"
	"github.com/kiosklock/kiosklock/internal/eventloop"
	"github.com/kiosklock/kiosklock/pkg/integrations/x11"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show instance status and the last incident",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			dm := daemon.New(cfg.Daemon.PIDFile)
			running, pid, err := dm.IsRunning()
			if err != nil {
				return err
			}
			if running {
				fmt.Fprintf(out, "Status: Running (PID: %d)\n", pid)
			} else {
				fmt.Fprintln(out, "Status: Not running")
			}

			family, err := cfg.Family()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Family: %s\n", family)
			fmt.Fprintf(out, "Audit Interval: %v\n", cfg.Audit.Interval)

			if xc, err := x11.Connect(cfg.Platform.Display, eventloop.New(nil), nil); err != nil {
				fmt.Fprintf(out, "Displays: unavailable (%v)\n", err)
			} else {
				n, err := xc.Count()
				xc.Close()
				if err != nil {
					fmt.Fprintf(out, "Displays: unavailable (%v)\n", err)
				} else {
					fmt.Fprintf(out, "Displays: %d\n", n)
				}
			}

			db, err := database.Connect(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Initialize(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Database: %s\n", db.Path())

			last, err := database.NewRepository(db).Latest()
			if err != nil {
				return err
			}
			if last != nil {
				fmt.Fprintf(out, "\nLast Incident:\n  %s  %s  %s\n",
					last.Timestamp.Format("2006-01-02 15:04:05"), last.Kind, last.Detail)
			}
			return nil
		},
	}
}
