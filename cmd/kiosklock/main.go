// kiosklock confines a desktop session to a single full-screen surface and
// keeps auditing the environment for remote-access tools and extra displays.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kiosklock/kiosklock/internal/config"
	"github.com/kiosklock/kiosklock/internal/kiosk"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

const appName = "kiosklock"

const (
	exitFailure         = 1
	exitGateRefused     = 2
	exitPolicyViolation = 3
)

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, kiosk.ErrGateRefused):
		return exitGateRefused
	case errors.Is(err, kiosk.ErrPolicyViolation):
		return exitPolicyViolation
	default:
		return exitFailure
	}
}

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Kiosk integrity enforcement loop",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (.toml, .yaml or .yml)")

	root.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newStatusCmd(opts),
		newActivateCmd(opts),
		newIncidentsCmd(opts),
		newReportCmd(opts),
		newVersionCmd(),
	)
	return root
}
