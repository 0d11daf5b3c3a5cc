package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kiosklock/kiosklock/internal/config"
	"github.com/kiosklock/kiosklock/internal/daemon"
	"github.com/kiosklock/kiosklock/internal/database"
	"github.com/kiosklock/kiosklock/internal/eventloop"
	"github.com/kiosklock/kiosklock/internal/focuslock"
	"github.com/kiosklock/kiosklock/internal/kiosk"
	"github.com/kiosklock/kiosklock/internal/logging"
	"github.com/kiosklock/kiosklock/pkg/integrations/cups"
	"github.com/kiosklock/kiosklock/pkg/integrations/x11"
	"github.com/kiosklock/kiosklock/pkg/platform"
	"github.com/kiosklock/kiosklock/pkg/surface"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Lock the session",
		Long: `Run the startup audit and, when it passes, lock the session behind the
configured surface. Exits 2 when the audit refuses the lock and 3 when a
remote-access tool is found during the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runLock(cmd.Context(), cfg)
		},
	}
}

// flushTimeout bounds the wait for journal writes on exit.
const flushTimeout = 5 * time.Second

func runLock(parent context.Context, cfg *config.Config) error {
	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	dm := daemon.New(cfg.Daemon.PIDFile)
	if err := dm.Acquire(); err != nil {
		return err
	}
	defer dm.Release()

	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		return err
	}
	repo := database.NewRepository(db)

	inputPolicy, err := cfg.InputPolicy()
	if err != nil {
		return err
	}

	ctx, terminate := context.WithCancelCause(parent)
	defer terminate(nil)

	loop := eventloop.New(logger)

	sess, err := openSession(cfg, loop, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	clipboard, err := sess.x.NewClipboard()
	if err != nil {
		return err
	}

	factory := &x11.Factory{
		Client:  sess.x,
		Browser: cfg.Lock.BrowserCommand,
		Grabs:   x11.GrabsForPolicy(inputPolicy),
		Logger:  logger,
	}

	displayServer := platform.DetectDisplayServer()
	if displayServer == "xwayland" {
		logger.Warn("Running under XWayland: grabs and stacking only apply to X clients")
	}

	ctrl := kiosk.New(kiosk.Options{
		Family:        sess.family,
		DisplayServer: displayServer,
		Surface: surface.Options{
			Title:         cfg.Lock.Title,
			Width:         cfg.Lock.Width,
			Height:        cfg.Lock.Height,
			FullScreen:    true,
			AlwaysOnTop:   true,
			SkipTaskbar:   true,
			AllWorkspaces: true,
		},
		URL:       cfg.Lock.URL,
		UserAgent: cfg.Lock.UserAgent,
		Interval:  cfg.Audit.Interval,
		FocusPolicy: focuslock.Policy{
			RefocusOnBlur:     cfg.Lock.RefocusOnBlur,
			RestoreOnMinimize: cfg.Lock.RestoreOnMinimize,
		},
		InputPolicy:    inputPolicy,
		IdleWhenClosed: cfg.Lock.IdleWhenClosedOnMac,
		Printer:        cfg.Print.Printer,
		Copies:         cfg.Print.Copies,
	}, kiosk.Deps{
		Auditor:    sess.auditor,
		Surfaces:   factory,
		Clipboard:  clipboard,
		Printer:    cups.New(logger),
		Journal:    repo,
		Alerter:    sess.alerter(),
		Dispatcher: loop,
		Terminate:  kiosk.Terminator(terminate),
		Logger:     logger,
	})

	go func() {
		if err := sess.x.Run(ctx); err != nil {
			logger.Error("X event pump stopped", "error", err)
			loop.Post(func() {
				ctrl.Shutdown()
				terminate(err)
			})
		}
	}()

	sigs := []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	if s := daemon.ActivateSignal(); s != nil {
		sigs = append(sigs, s)
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)
	defer signal.Stop(sigChan)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				if sig == daemon.ActivateSignal() {
					loop.Post(ctrl.Activate)
					continue
				}
				logger.Info("Received shutdown signal", "signal", sig.String())
				loop.Post(func() {
					ctrl.Shutdown()
					terminate(nil)
				})
			}
		}
	}()

	loop.Post(func() {
		if err := ctrl.Start(ctx); err != nil {
			terminate(err)
			return
		}
		logger.Info("Session locked", "session", ctrl.SessionID(), "family", sess.family.String())
	})

	logger.Info("Starting kiosklock", "version", version)
	logger.Debug(cfg.String())

	runErr := loop.Run(ctx)

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), flushTimeout)
	defer cancelFlush()
	if err := ctrl.Flush(flushCtx); err != nil {
		logger.Warn("Incidents may be missing from the journal", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		logger.Info("Stopped kiosklock")
		return nil
	}
	logger.Error("Terminated kiosklock", "cause", cause)
	return cause
}
