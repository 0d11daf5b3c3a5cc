// Package kiosk owns the lock session: it gates startup on the environment
// audit, creates and guards the surface, and reacts to audit outcomes.
package kiosk

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/internal/audit"
	"github.com/kiosklock/kiosklock/internal/eventloop"
	"github.com/kiosklock/kiosklock/internal/focuslock"
	"github.com/kiosklock/kiosklock/internal/input"
	"github.com/kiosklock/kiosklock/internal/models"
	"github.com/kiosklock/kiosklock/pkg/alert"
	"github.com/kiosklock/kiosklock/pkg/platform"
	"github.com/kiosklock/kiosklock/pkg/surface"
)

const (
	displaysTitle     = "Critical Alert"
	displaysBody      = "Cannot initiate with multiple displays attached!"
	enumerationBody   = "Cannot verify the attached displays!"
	remoteAccessBody  = "Cannot initiate while a remote access application is running!"
	printFailedTitle  = "Print failed"
	defaultPrintTitle = "kiosklock snapshot"
)

// Options configure a Controller.
type Options struct {
	Family        platform.Family
	DisplayServer string

	Surface   surface.Options
	URL       string
	UserAgent string

	Interval    time.Duration
	FocusPolicy focuslock.Policy
	InputPolicy input.Policy

	// IdleWhenClosed keeps a macOS session idle after its surface closed
	// instead of relocking at once.
	IdleWhenClosed bool

	Printer string
	Copies  int
}

// Deps are the capabilities the controller drives.
type Deps struct {
	Auditor    *audit.Auditor
	Surfaces   surface.Factory
	Clipboard  Clipboard
	Printer    Printer
	Journal    Journal
	Alerter    alert.Alerter
	Dispatcher eventloop.Dispatcher
	Terminate  Terminator
	Logger     *slog.Logger
}

// Controller runs one lock session. Every method must be called on the
// event loop.
type Controller struct {
	opts     Options
	deps     Deps
	logger   *slog.Logger
	enforcer *focuslock.Enforcer

	ctx       context.Context
	state     LockState
	surface   surface.Surface
	sessionID string
	locks     int

	// writes counts journal writes still running off the loop.
	writes sync.WaitGroup
}

// New creates a controller and installs it as the auditor's handler.
func New(opts Options, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Copies < 1 {
		opts.Copies = 1
	}
	c := &Controller{
		opts:     opts,
		deps:     deps,
		logger:   logger,
		enforcer: focuslock.New(opts.FocusPolicy, logger),
		ctx:      context.Background(),
	}
	deps.Auditor.SetHandler(c)
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() LockState {
	return c.state
}

// SessionID identifies the current lock. It changes on every relock.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Locks counts how many times a surface was locked, the first lock included.
func (c *Controller) Locks() int {
	return c.locks
}

// Start runs the startup gate and, when it passes, locks the session. A
// refused gate performs the refusal alert and returns an error wrapping
// ErrGateRefused; no surface is created and no audit runs.
func (c *Controller) Start(ctx context.Context) error {
	if c.state != StateStarting {
		return errors.Errorf("controller already started (state %s)", c.state)
	}
	c.ctx = ctx

	result := c.deps.Auditor.Gate(ctx)
	c.journalErrors(result)
	if !result.Passed() {
		reason := c.refuse(result)
		c.state = StateTerminating
		return errors.Wrap(ErrGateRefused, reason)
	}

	if err := c.lock(); err != nil {
		c.state = StateTerminating
		c.teardown()
		return err
	}
	return nil
}

// refuse performs the multiple-displays action whichever check failed: a
// beep and one critical notification. A remote-access refusal also carries
// the matcher's own alert.
func (c *Controller) refuse(r audit.Result) string {
	c.beep()

	var reasons []string
	body := displaysBody
	if r.RemoteAccessDetected {
		reasons = append(reasons, "remote access tool "+r.Signature+" running")
		body = remoteAccessBody
	}
	switch {
	case r.MultipleDisplaysDetected:
		body = displaysBody
		reasons = append(reasons, "multiple displays attached")
	case r.DisplayErr != nil:
		body = enumerationBody
		reasons = append(reasons, r.DisplayErr.Error())
	}
	c.notify(displaysTitle, body, alert.UrgencyCritical)
	reason := strings.Join(reasons, "; ")

	c.logger.Error("Lock refused", "reason", reason)
	c.record(&models.Incident{
		Kind:      models.KindGateRefused,
		Signature: r.Signature,
		Processes: len(r.Processes),
		Displays:  r.Displays,
		Detail:    reason,
	})
	return reason
}

// lock creates the surface, clears and claims the clipboard and starts the
// audit under a new session id.
func (c *Controller) lock() error {
	s, err := c.deps.Surfaces.Create(c.opts.Surface)
	if err != nil {
		return errors.Wrap(err, "failed to create lock surface")
	}

	c.enforcer.Attach(s)
	s.SetInputFilter(input.Filter(c.opts.InputPolicy, c.escape, c.logger))
	s.Subscribe(surface.EventClosed, c.onSurfaceClosed)

	if err := s.LoadResource(c.opts.URL, surface.LoadOptions{UserAgent: c.opts.UserAgent}); err != nil {
		c.logger.Error("Failed to load lock content", "url", c.opts.URL, "error", err)
	}
	if err := s.Show(); err != nil {
		c.logger.Warn("Show surface failed", "error", err)
	}
	if err := s.MoveTop(); err != nil {
		c.logger.Warn("Raise surface failed", "error", err)
	}
	if err := s.Focus(); err != nil {
		c.logger.Warn("Focus surface failed", "error", err)
	}

	c.surface = s
	c.resetClipboard(true)

	c.sessionID = uuid.NewString()
	c.locks++
	c.state = StateLocked

	if err := c.deps.Auditor.Start(c.ctx, c.opts.Interval); err != nil {
		return errors.Wrap(err, "failed to start environment audit")
	}

	c.logger.Info("Session locked", "session", c.sessionID, "lock", c.locks, "url", c.opts.URL)
	return nil
}

func (c *Controller) onSurfaceClosed() {
	if c.state != StateLocked {
		return
	}
	c.logger.Warn("Lock surface closed", "session", c.sessionID)

	c.deps.Auditor.Stop()
	c.resetClipboard(false)
	c.surface = nil
	c.record(&models.Incident{Kind: models.KindRelock, Detail: "surface closed"})

	if c.opts.Family == platform.FamilyMac && c.opts.IdleWhenClosed {
		c.state = StateIdle
		c.logger.Info("Session idle until activated")
		return
	}

	c.relock()
}

func (c *Controller) relock() {
	if err := c.lock(); err != nil {
		c.logger.Error("Relock failed", "error", err)
		c.state = StateTerminating
		c.teardown()
		c.terminate(errors.Wrap(err, "relock"))
	}
}

// Activate recreates the surface of an idle session, or brings the existing
// surface to the front.
func (c *Controller) Activate() {
	switch c.state {
	case StateIdle:
		c.logger.Info("Activated from idle")
		c.relock()
	case StateLocked:
		_ = c.surface.Show()
		_ = c.surface.MoveTop()
		_ = c.surface.Focus()
	}
}

// Navigate loads url into the locked surface with the configured user agent.
func (c *Controller) Navigate(url string) error {
	if c.state != StateLocked {
		return errors.Errorf("cannot navigate while %s", c.state)
	}
	c.logger.Info("Navigating", "url", url)
	if err := c.surface.LoadResource(url, surface.LoadOptions{UserAgent: c.opts.UserAgent}); err != nil {
		return errors.Wrapf(err, "failed to load %s", url)
	}
	return nil
}

// Shutdown ends the session on behalf of the system, for instance when the
// desktop session sends SIGTERM. There is no user-initiated quit.
func (c *Controller) Shutdown() {
	if c.state == StateTerminating {
		return
	}
	c.logger.Info("Shutting down", "state", c.state.String())
	c.state = StateTerminating
	c.teardown()
}

// Flush waits for pending journal writes. Call it after the event loop has
// stopped and before the journal's storage is closed.
func (c *Controller) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.writes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "journal writes still pending")
	}
}

func (c *Controller) teardown() {
	c.deps.Auditor.Stop()
	if c.surface != nil {
		if err := c.surface.Destroy(); err != nil {
			c.logger.Warn("Destroy surface failed", "error", err)
		}
		c.surface = nil
	}
	c.resetClipboard(false)
}

// OnPolicyViolation tears the session down and requests process exit.
func (c *Controller) OnPolicyViolation(v *audit.PolicyViolation) {
	if c.state == StateCompromised || c.state == StateTerminating {
		return
	}
	c.state = StateCompromised
	c.logger.Error("Policy violation", "signature", v.Signature, "processes", len(v.Processes), "session", c.sessionID)
	c.record(&models.Incident{
		Kind:      models.KindRemoteAccess,
		Signature: v.Signature,
		Processes: len(v.Processes),
		Detail:    v.Error(),
	})

	c.state = StateTerminating
	c.teardown()
	c.terminate(errors.Wrap(ErrPolicyViolation, v.Error()))
}

// OnTransientCondition performs the multiple-displays alert. The session
// stays locked.
func (c *Controller) OnTransientCondition(tc *audit.TransientCondition) {
	if c.state != StateLocked {
		return
	}
	c.logger.Warn("Multiple displays attached", "displays", tc.Displays, "session", c.sessionID)
	c.beep()
	c.notify(displaysTitle, displaysBody, alert.UrgencyCritical)
	c.record(&models.Incident{Kind: models.KindMultipleDisplays, Displays: tc.Displays})
}

// OnAuditResult journals the checks that could not run.
func (c *Controller) OnAuditResult(r audit.Result) {
	c.logger.Debug("Audit tick",
		"tick", r.Tick,
		"passed", r.Passed(),
		"displays", r.Displays,
		"remote_access", r.RemoteAccessDetected)
	c.journalErrors(r)
}

func (c *Controller) journalErrors(r audit.Result) {
	if r.ScanErr != nil {
		c.recordError("process_scan", r.At, r.ScanErr)
	}
	if r.DisplayErr != nil {
		c.recordError("display_count", r.At, r.DisplayErr)
	}
}

// escape prints a snapshot of the surface. It runs from the input filter.
func (c *Controller) escape() {
	if c.state != StateLocked {
		return
	}
	img, err := c.surface.Snapshot()
	if err != nil {
		c.logger.Error("Snapshot failed", "error", err)
		c.notify(printFailedTitle, err.Error(), alert.UrgencyNormal)
		return
	}
	c.record(&models.Incident{Kind: models.KindEscape, Detail: "print requested"})

	if c.deps.Printer == nil {
		return
	}
	ctx := c.ctx
	job := Job{Printer: c.opts.Printer, Title: defaultPrintTitle, Image: img, Copies: c.opts.Copies}
	printer := c.deps.Printer
	logger := c.logger
	c.deps.Dispatcher.Async(func() func() {
		names, err := printer.ListPrinters(ctx)
		if err != nil {
			logger.Warn("Failed to list printers", "error", err)
		}
		for _, name := range names {
			logger.Info("Printer available", "name", name)
		}
		err = printer.Print(ctx, job)
		return func() {
			if err != nil {
				c.logger.Error("Print failed", "printer", job.Printer, "error", err)
				c.notify(printFailedTitle, err.Error(), alert.UrgencyNormal)
				return
			}
			c.logger.Info("Snapshot printed", "printer", job.Printer, "copies", job.Copies)
		}
	})
}

func (c *Controller) resetClipboard(claim bool) {
	cb := c.deps.Clipboard
	if cb == nil {
		return
	}
	if !claim {
		if err := cb.Release(); err != nil {
			c.logger.Warn("Release clipboard failed", "error", err)
		}
	}
	if err := cb.Clear(); err != nil {
		c.logger.Warn("Clear clipboard failed", "error", err)
	}
	if claim {
		if err := cb.Claim(); err != nil {
			c.logger.Warn("Claim clipboard failed", "error", err)
		}
	}
}

func (c *Controller) beep() {
	if c.deps.Alerter != nil {
		c.deps.Alerter.Beep()
	}
}

func (c *Controller) notify(title, body string, urgency alert.Urgency) {
	if c.deps.Alerter != nil {
		c.deps.Alerter.Notify(title, body, urgency)
	}
}

func (c *Controller) terminate(cause error) {
	if c.deps.Terminate != nil {
		c.deps.Terminate(cause)
	}
}

// record journals an incident off the loop.
func (c *Controller) record(inc *models.Incident) {
	if c.deps.Journal == nil {
		return
	}
	inc.SessionID = c.sessionID
	inc.Family = c.opts.Family.String()
	inc.DisplayServer = c.opts.DisplayServer
	if inc.Timestamp.IsZero() {
		inc.Timestamp = time.Now()
	}
	journal := c.deps.Journal
	c.writes.Add(1)
	c.deps.Dispatcher.Async(func() func() {
		defer c.writes.Done()
		if err := journal.Create(inc); err != nil {
			return func() { c.logger.Warn("Failed to journal incident", "kind", inc.Kind, "error", err) }
		}
		return nil
	})
}

func (c *Controller) recordError(check string, at time.Time, err error) {
	if c.deps.Journal == nil {
		return
	}
	entry := &models.ErrorLog{SessionID: c.sessionID, Timestamp: at, Check: check, ErrorMsg: err.Error()}
	journal := c.deps.Journal
	c.writes.Add(1)
	c.deps.Dispatcher.Async(func() func() {
		defer c.writes.Done()
		if err := journal.CreateErrorLog(entry); err != nil {
			return func() { c.logger.Warn("Failed to journal audit error", "check", check, "error", err) }
		}
		return nil
	})
}
