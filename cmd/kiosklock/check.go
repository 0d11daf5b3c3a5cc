package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kiosklock/kiosklock/internal/audit"
	"github.com/kiosklock/kiosklock/internal/eventloop"
	"github.com/kiosklock/kiosklock/internal/kiosk"
	"github.com/kiosklock/kiosklock/internal/logging"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the startup audit once without locking",
		Long:  "Run the environment audit the lock is gated on and print its outcome. Exits 2 when the lock would be refused.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Format, level)

			sess, err := openSession(cfg, eventloop.New(logger), logger)
			if err != nil {
				return err
			}
			defer sess.Close()

			result := sess.auditor.Gate(cmd.Context())
			printResult(cmd.OutOrStdout(), result)
			if !result.Passed() {
				return errors.Wrap(kiosk.ErrGateRefused, "environment check failed")
			}
			return nil
		},
	}
}

func printResult(w io.Writer, r audit.Result) {
	fmt.Fprintf(w, "Family:   %s\n", r.Family)
	if r.DisplayErr != nil {
		fmt.Fprintf(w, "Displays: unknown (%v)\n", r.DisplayErr)
	} else {
		fmt.Fprintf(w, "Displays: %d\n", r.Displays)
	}
	if r.RemoteAccessDetected {
		fmt.Fprintf(w, "Remote access: %s (%d processes)\n", r.Signature, len(r.Processes))
		for _, p := range r.Processes {
			fmt.Fprintf(w, "  %6d  %s\n", p.PID, p.Name)
		}
	} else {
		fmt.Fprintln(w, "Remote access: none")
	}
	if r.ScanErr != nil {
		fmt.Fprintf(w, "Scan errors: %v\n", r.ScanErr)
	}
	if r.Passed() {
		fmt.Fprintln(w, "Result: pass")
	} else {
		fmt.Fprintln(w, "Result: refused")
	}
	slog.Debug("Environment check done", "passed", r.Passed())
}
