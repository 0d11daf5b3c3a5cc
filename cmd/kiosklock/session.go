package main

import (
	"log/slog"

	"github.com/kiosklock/kiosklock/internal/audit"
	"github.com/kiosklock/kiosklock/internal/clock"
	"github.com/kiosklock/kiosklock/internal/config"
	"github.com/kiosklock/kiosklock/internal/eventloop"
	"github.com/kiosklock/kiosklock/pkg/alert"
	"github.com/kiosklock/kiosklock/pkg/integrations/notify"
	"github.com/kiosklock/kiosklock/pkg/integrations/process"
	"github.com/kiosklock/kiosklock/pkg/integrations/x11"
	"github.com/kiosklock/kiosklock/pkg/platform"
)

// session bundles the platform adapters shared by run and check.
type session struct {
	family   platform.Family
	x        *x11.Client
	notifier alert.Notifier
	auditor  *audit.Auditor
	closers  []func() error
}

func openSession(cfg *config.Config, loop eventloop.Dispatcher, logger *slog.Logger) (*session, error) {
	family, err := cfg.Family()
	if err != nil {
		return nil, err
	}

	xc, err := x11.Connect(cfg.Platform.Display, loop, logger)
	if err != nil {
		return nil, err
	}
	s := &session{family: family, x: xc}
	s.closers = append(s.closers, func() error { xc.Close(); return nil })

	fallback := alert.LogNotifier{Logger: logger}
	s.notifier = fallback
	if n, err := notify.Connect(appName, fallback, logger); err != nil {
		logger.Warn("Desktop notifications unavailable, logging them instead", "error", err)
	} else {
		s.notifier = n
		s.closers = append(s.closers, n.Close)
	}

	lister, err := process.New(cfg.Audit.Lister, family, cfg.Audit.ProcessTimeout)
	if err != nil {
		s.Close()
		return nil, err
	}

	matcher := audit.NewMatcher(lister, s.notifier, logger)
	topology := audit.NewTopologyChecker(xc)
	s.auditor = audit.NewAuditor(family, cfg.SignatureSets(), matcher, topology, xc, loop, clock.Real(), logger)
	return s, nil
}

func (s *session) alerter() alert.Alerter {
	return alert.Composite{Notifier: s.notifier, Beeper: s.x}
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}
