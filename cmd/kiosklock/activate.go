package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiosklock/kiosklock/internal/daemon"
)

func newActivateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Bring the running lock to the front, relocking an idle session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := daemon.New(cfg.Daemon.PIDFile).Activate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Activation requested")
			return nil
		},
	}
}
