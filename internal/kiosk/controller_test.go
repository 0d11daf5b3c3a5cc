package kiosk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiosklock/kiosklock/internal/audit"
	"github.com/kiosklock/kiosklock/internal/clock/clocktest"
	"github.com/kiosklock/kiosklock/internal/eventloop"
	"github.com/kiosklock/kiosklock/internal/eventloop/eventlooptest"
	"github.com/kiosklock/kiosklock/internal/focuslock"
	"github.com/kiosklock/kiosklock/internal/input"
	"github.com/kiosklock/kiosklock/internal/models"
	"github.com/kiosklock/kiosklock/pkg/alert"
	"github.com/kiosklock/kiosklock/pkg/platform"
	"github.com/kiosklock/kiosklock/pkg/surface"
	"github.com/kiosklock/kiosklock/pkg/surface/surfacetest"
)

type fixture struct {
	clock      *clocktest.Fake
	lister     *fakeLister
	displays   *fakeDisplays
	alerter    *fakeAlerter
	clipboard  *fakeClipboard
	printer    *fakePrinter
	journal    *fakeJournal
	surfaces   *surfacetest.Factory
	auditor    *audit.Auditor
	controller *Controller
	causes     []error
}

func newFixture(t *testing.T, family platform.Family, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		clock:     clocktest.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		lister:    &fakeLister{outputs: map[string]string{}},
		displays:  &fakeDisplays{n: 1},
		alerter:   &fakeAlerter{},
		clipboard: &fakeClipboard{contents: "exam answers"},
		printer:   &fakePrinter{printers: []string{"office", "lab"}},
		journal:   &fakeJournal{},
		surfaces:  &surfacetest.Factory{},
	}

	sigs := audit.Signatures{
		platform.FamilyWindows: {"TeamViewer", "AnyDesk"},
		platform.FamilyMac:     {"TeamViewer", "AnyDesk"},
		platform.FamilyLinux:   {"teamviewer", "anydesk"},
	}
	dispatcher := eventlooptest.Inline{}
	f.auditor = audit.NewAuditor(family, sigs,
		audit.NewMatcher(f.lister, f.alerter, nil),
		audit.NewTopologyChecker(f.displays),
		f.alerter, dispatcher, f.clock, nil)

	opts := Options{
		Family:        family,
		DisplayServer: "x11",
		Surface: surface.Options{
			Title:         "QPD",
			FullScreen:    true,
			AlwaysOnTop:   true,
			SkipTaskbar:   true,
			AllWorkspaces: true,
		},
		URL:            "file:///opt/kiosklock/index.html",
		UserAgent:      "UniApps-1.0",
		Interval:       5 * time.Second,
		FocusPolicy:    focuslock.DefaultPolicy(),
		InputPolicy:    input.DefaultPolicy(),
		IdleWhenClosed: true,
		Printer:        "office",
	}
	if mutate != nil {
		mutate(&opts)
	}

	f.controller = New(opts, Deps{
		Auditor:    f.auditor,
		Surfaces:   f.surfaces,
		Clipboard:  f.clipboard,
		Printer:    f.printer,
		Journal:    f.journal,
		Alerter:    f.alerter,
		Dispatcher: dispatcher,
		Terminate:  func(cause error) { f.causes = append(f.causes, cause) },
	})
	return f
}

func (f *fixture) start(t *testing.T) *surfacetest.Surface {
	t.Helper()
	require.NoError(t, f.controller.Start(context.Background()))
	require.Equal(t, StateLocked, f.controller.State())
	return f.surfaces.Last()
}

func TestStartLocksSurface(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	s := f.start(t)

	require.Len(t, f.surfaces.Created, 1)
	assert.True(t, s.Opts.FullScreen)
	assert.True(t, s.Opts.AlwaysOnTop)
	assert.True(t, s.Opts.SkipTaskbar)
	assert.True(t, s.Opts.AllWorkspaces)
	assert.True(t, s.Visible)
	assert.True(t, s.Top)
	assert.Equal(t, []string{"file:///opt/kiosklock/index.html"}, s.Loaded)
	assert.Equal(t, "UniApps-1.0", s.UserAgent)
	assert.NotNil(t, s.Filter)

	assert.NotEmpty(t, f.controller.SessionID())
	assert.True(t, f.auditor.Running())
	assert.Empty(t, f.alerter.notifications)
	assert.Zero(t, f.alerter.beeps)

	f.clock.Advance(30 * time.Second)
	assert.EqualValues(t, 6, f.auditor.Ticks())
	assert.Equal(t, StateLocked, f.controller.State())
}

func TestStartTwice(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	f.start(t)
	assert.Error(t, f.controller.Start(context.Background()))
}

func TestGateRefusedOnMultipleDisplays(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	f.displays.n = 2

	err := f.controller.Start(context.Background())

	require.True(t, errors.Is(err, ErrGateRefused))
	assert.Empty(t, f.surfaces.Created)
	assert.Equal(t, 1, f.alerter.beeps)
	require.Len(t, f.alerter.notifications, 1)
	assert.Equal(t, "Critical Alert", f.alerter.notifications[0].title)
	assert.Equal(t, "Cannot initiate with multiple displays attached!", f.alerter.notifications[0].body)
	assert.Equal(t, alert.UrgencyCritical, f.alerter.notifications[0].urgency)

	assert.False(t, f.auditor.Running())
	assert.Zero(t, f.clock.Pending())
	assert.Equal(t, StateTerminating, f.controller.State())
	assert.Equal(t, []string{models.KindGateRefused}, f.journal.kinds())
}

func TestGateRefusedOnRemoteAccess(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	f.lister.outputs["anydesk"] = "811 anydesk\n"

	err := f.controller.Start(context.Background())

	require.True(t, errors.Is(err, ErrGateRefused))
	assert.Contains(t, err.Error(), "anydesk")
	assert.Empty(t, f.surfaces.Created)
	assert.Equal(t, 1, f.alerter.beeps)
	require.Len(t, f.alerter.notifications, 2)
	assert.Equal(t, "REMOTE ACCESS ALERT", f.alerter.notifications[0].title)
	assert.Equal(t, "Critical Alert", f.alerter.notifications[1].title)
	assert.Equal(t, alert.UrgencyCritical, f.alerter.notifications[1].urgency)
	assert.Zero(t, f.clock.Pending())
}

func TestGateRefusedWhenDisplaysUnknown(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	f.displays.n = 0

	err := f.controller.Start(context.Background())

	require.True(t, errors.Is(err, ErrGateRefused))
	assert.Empty(t, f.surfaces.Created)
	require.Len(t, f.alerter.notifications, 1)
	assert.Equal(t, "Cannot verify the attached displays!", f.alerter.notifications[0].body)
	assert.Len(t, f.journal.errorLogs, 1)
}

func TestSurfaceCreationFailure(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	f.surfaces.Err = errors.New("no X server")

	err := f.controller.Start(context.Background())

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGateRefused))
	assert.False(t, f.auditor.Running())
}

func TestRemoteAccessMidSession(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	s := f.start(t)
	f.clock.Advance(10 * time.Second)

	f.lister.outputs["teamviewer"] = "4312 teamviewerd\n"
	f.clock.Advance(5 * time.Second)

	assert.Equal(t, 1, f.alerter.beeps)
	require.Len(t, f.alerter.notifications, 1)
	assert.Equal(t, "REMOTE ACCESS ALERT", f.alerter.notifications[0].title)

	assert.True(t, s.Destroyed)
	assert.Equal(t, StateTerminating, f.controller.State())
	require.Len(t, f.causes, 1)
	assert.True(t, errors.Is(f.causes[0], ErrPolicyViolation))
	assert.False(t, f.auditor.Running())
	assert.False(t, f.clipboard.owned)

	f.clock.Advance(time.Minute)
	assert.EqualValues(t, 3, f.auditor.Ticks())
	assert.Len(t, f.causes, 1)
	assert.Equal(t, 1, f.alerter.beeps)
	assert.Len(t, f.surfaces.Created, 1)
	assert.Contains(t, f.journal.kinds(), models.KindRemoteAccess)
}

func TestMultipleDisplaysMidSession(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	s := f.start(t)

	f.displays.n = 2
	f.clock.Advance(5 * time.Second)

	assert.Equal(t, StateLocked, f.controller.State())
	assert.False(t, s.Destroyed)
	assert.True(t, s.Visible)
	assert.Equal(t, 1, f.alerter.beeps)
	require.Len(t, f.alerter.notifications, 1)
	assert.Equal(t, "Cannot initiate with multiple displays attached!", f.alerter.notifications[0].body)
	assert.Empty(t, f.causes)
	assert.True(t, f.auditor.Running())

	incidents := f.journal.incidents
	require.Len(t, incidents, 1)
	assert.Equal(t, 2, incidents[0].Displays)
	assert.Equal(t, f.controller.SessionID(), incidents[0].SessionID)
	assert.Equal(t, "linux", incidents[0].Family)
}

func TestEscapeComboPrintsOnce(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	s := f.start(t)

	batch := []surface.InputEvent{
		{Key: "a"},
		{Modifiers: surface.ModControl, Key: "p"},
		{Modifiers: surface.ModAlt, Key: "Tab"},
		{Key: "b"},
	}
	var consumed []bool
	for _, ev := range batch {
		consumed = append(consumed, s.Press(ev))
	}

	assert.Equal(t, []bool{false, true, true, false}, consumed)
	require.Len(t, f.printer.jobs, 1)
	job := f.printer.jobs[0]
	assert.Equal(t, "office", job.Printer)
	assert.Equal(t, 1, job.Copies)
	assert.NotNil(t, job.Image)
	assert.Equal(t, 1, f.printer.listed)
	assert.Contains(t, f.journal.kinds(), models.KindEscape)
}

func TestEscapePrintFailureNotifies(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	s := f.start(t)
	f.printer.err = errors.New("printer offline")

	s.Press(surface.InputEvent{Modifiers: surface.ModControl, Key: "P"})

	require.Len(t, f.alerter.notifications, 1)
	assert.Equal(t, "Print failed", f.alerter.notifications[0].title)
	assert.Equal(t, StateLocked, f.controller.State())
}

func TestClipboardClearedAcrossRelock(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	first := f.start(t)

	assert.Empty(t, f.clipboard.contents)
	assert.True(t, f.clipboard.owned)
	firstSession := f.controller.SessionID()

	f.clock.Advance(7 * time.Second)
	f.clipboard.contents = "copied inside the page"

	first.Emit(surface.EventClosed)

	require.Len(t, f.surfaces.Created, 2)
	second := f.surfaces.Last()
	assert.True(t, second.Visible)
	assert.True(t, second.Top)
	assert.Empty(t, f.clipboard.contents)
	assert.True(t, f.clipboard.owned)
	assert.Equal(t, 1, f.clipboard.releases)
	assert.Equal(t, StateLocked, f.controller.State())
	assert.NotEqual(t, firstSession, f.controller.SessionID())
	assert.Equal(t, 2, f.controller.Locks())

	// the audit restarted with a fresh cadence
	assert.True(t, f.auditor.Running())
	f.clock.Advance(5 * time.Second)
	assert.EqualValues(t, 1, f.auditor.Ticks())
	assert.Contains(t, f.journal.kinds(), models.KindRelock)
}

func TestMacIdleUntilActivated(t *testing.T) {
	f := newFixture(t, platform.FamilyMac, nil)
	s := f.start(t)

	s.Emit(surface.EventClosed)

	assert.Equal(t, StateIdle, f.controller.State())
	assert.Len(t, f.surfaces.Created, 1)
	assert.False(t, f.auditor.Running())
	f.clock.Advance(time.Minute)
	assert.Zero(t, f.auditor.Ticks())

	f.controller.Activate()

	assert.Equal(t, StateLocked, f.controller.State())
	require.Len(t, f.surfaces.Created, 2)
	assert.True(t, f.auditor.Running())
	assert.Empty(t, f.clipboard.contents)
}

func TestMacRelocksWhenIdleDisabled(t *testing.T) {
	f := newFixture(t, platform.FamilyMac, func(o *Options) { o.IdleWhenClosed = false })
	s := f.start(t)

	s.Emit(surface.EventClosed)

	assert.Equal(t, StateLocked, f.controller.State())
	assert.Len(t, f.surfaces.Created, 2)
}

func TestActivateRaisesLockedSurface(t *testing.T) {
	f := newFixture(t, platform.FamilyMac, nil)
	s := f.start(t)
	s.Emit(surface.EventBlur)
	s.ResetCalls()

	f.controller.Activate()

	assert.Equal(t, []string{"show", "movetop", "focus"}, s.Calls)
	assert.Len(t, f.surfaces.Created, 1)
}

func TestRelockFailureTerminates(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	s := f.start(t)
	f.surfaces.Err = errors.New("display gone")

	s.Emit(surface.EventClosed)

	require.Len(t, f.causes, 1)
	assert.Contains(t, f.causes[0].Error(), "display gone")
	assert.False(t, f.auditor.Running())
	assert.Equal(t, StateTerminating, f.controller.State())
}

func TestNavigate(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	assert.Error(t, f.controller.Navigate("https://exam.example.org"))

	s := f.start(t)
	require.NoError(t, f.controller.Navigate("https://exam.example.org"))

	assert.Equal(t, "https://exam.example.org", s.Loaded[len(s.Loaded)-1])
	assert.Equal(t, "UniApps-1.0", s.UserAgent)
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	s := f.start(t)

	f.controller.Shutdown()
	f.controller.Shutdown()

	assert.True(t, s.Destroyed)
	assert.False(t, f.clipboard.owned)
	assert.False(t, f.auditor.Running())
	assert.Equal(t, StateTerminating, f.controller.State())
	assert.Empty(t, f.causes)

	f.clock.Advance(time.Minute)
	assert.Zero(t, f.auditor.Ticks())
}

func TestFocusLockWired(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	s := f.start(t)

	s.Emit(surface.EventMinimize)
	assert.False(t, s.Visible)

	s.Emit(surface.EventResize)
	assert.True(t, s.Visible)
	assert.True(t, s.Top)
}

func TestAuditErrorsJournaled(t *testing.T) {
	f := newFixture(t, platform.FamilyLinux, nil)
	f.start(t)

	f.lister.errs = map[string]error{"teamviewer": errors.New("pgrep: not found")}
	f.clock.Advance(5 * time.Second)

	require.Len(t, f.journal.errorLogs, 1)
	assert.Equal(t, "process_scan", f.journal.errorLogs[0].Check)
	assert.Equal(t, StateLocked, f.controller.State())
}

type slowJournal struct {
	mu        sync.Mutex
	delay     time.Duration
	incidents []*models.Incident
}

func (j *slowJournal) Create(incident *models.Incident) error {
	time.Sleep(j.delay)
	j.mu.Lock()
	defer j.mu.Unlock()
	j.incidents = append(j.incidents, incident)
	return nil
}

func (j *slowJournal) CreateErrorLog(errorLog *models.ErrorLog) error {
	time.Sleep(j.delay)
	return nil
}

func (j *slowJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.incidents)
}

func TestFlushWaitsForJournalOnRefusal(t *testing.T) {
	loop := eventloop.New(nil)
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	lister := &fakeLister{outputs: map[string]string{}}
	sigs := audit.Signatures{platform.FamilyLinux: {"anydesk"}}
	auditor := audit.NewAuditor(platform.FamilyLinux, sigs,
		audit.NewMatcher(lister, nil, nil),
		audit.NewTopologyChecker(&fakeDisplays{n: 2}),
		nil, loop, clocktest.NewFake(time.Now()), nil)

	journal := &slowJournal{delay: 20 * time.Millisecond}
	ctrl := New(Options{Family: platform.FamilyLinux, Interval: time.Second}, Deps{
		Auditor:    auditor,
		Surfaces:   &surfacetest.Factory{},
		Journal:    journal,
		Dispatcher: loop,
		Terminate:  Terminator(cancel),
	})

	loop.Post(func() {
		if err := ctrl.Start(ctx); err != nil {
			cancel(err)
		}
	})
	require.ErrorIs(t, loop.Run(ctx), context.Canceled)
	assert.ErrorIs(t, context.Cause(ctx), ErrGateRefused)

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFlush()
	require.NoError(t, ctrl.Flush(flushCtx))
	assert.Equal(t, 1, journal.count())
}

func TestFlushGivesUp(t *testing.T) {
	loop := eventloop.New(nil)
	auditor := audit.NewAuditor(platform.FamilyLinux, audit.Signatures{platform.FamilyLinux: {"anydesk"}},
		audit.NewMatcher(&fakeLister{}, nil, nil),
		audit.NewTopologyChecker(&fakeDisplays{n: 1}),
		nil, loop, clocktest.NewFake(time.Now()), nil)
	journal := &slowJournal{delay: time.Second}
	ctrl := New(Options{Family: platform.FamilyLinux}, Deps{
		Auditor:    auditor,
		Journal:    journal,
		Dispatcher: loop,
	})

	ctrl.record(&models.Incident{Kind: models.KindRelock})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ctrl.Flush(ctx), context.DeadlineExceeded)
}
