package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kiosklock/kiosklock/internal/clock/clocktest"
	"github.com/kiosklock/kiosklock/internal/eventloop"
	"github.com/kiosklock/kiosklock/internal/eventloop/eventlooptest"
	"github.com/kiosklock/kiosklock/pkg/platform"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// heldScans runs posts inline but keeps scan continuations until release.
type heldScans struct {
	held []func()
}

func (h *heldScans) Post(fn func()) { fn() }

func (h *heldScans) Async(work func() func()) {
	if cont := work(); cont != nil {
		h.held = append(h.held, cont)
	}
}

func (h *heldScans) release() {
	held := h.held
	h.held = nil
	for _, fn := range held {
		fn()
	}
}

type auditorFixture struct {
	clock    *clocktest.Fake
	lister   *fakeLister
	displays *fakeDisplays
	alerter  *fakeAlerter
	handler  *recordingHandler
	auditor  *Auditor
}

func newAuditorFixture(d eventloop.Dispatcher) *auditorFixture {
	f := &auditorFixture{
		clock:    clocktest.NewFake(epoch),
		lister:   newFakeLister(),
		displays: &fakeDisplays{n: 1},
		alerter:  &fakeAlerter{},
		handler:  &recordingHandler{},
	}
	sigs := Signatures{platform.FamilyLinux: {"teamviewer", "anydesk"}}
	f.auditor = NewAuditor(platform.FamilyLinux, sigs,
		NewMatcher(f.lister, f.alerter, nil),
		NewTopologyChecker(f.displays),
		f.alerter, d, f.clock, nil)
	f.auditor.SetHandler(f.handler)
	f.handler.onViolation = func(*PolicyViolation) { f.auditor.Stop() }
	return f
}

func TestAuditorTickCadence(t *testing.T) {
	f := newAuditorFixture(eventlooptest.Inline{})
	require.NoError(t, f.auditor.Start(context.Background(), 5*time.Second))

	f.clock.Advance(30 * time.Second)

	assert.EqualValues(t, 6, f.auditor.Ticks())
	assert.Len(t, f.handler.results, 6)
	assert.Equal(t, 6, f.displays.calls)
	for i, r := range f.handler.results {
		assert.EqualValues(t, i+1, r.Tick)
		assert.Equal(t, epoch.Add(time.Duration(i+1)*5*time.Second), r.At)
		assert.True(t, r.Passed())
	}
}

func TestAuditorTickCadenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		interval := time.Duration(rapid.IntRange(1, 60).Draw(t, "interval_s")) * time.Second
		elapsed := time.Duration(rapid.IntRange(0, 600).Draw(t, "elapsed_s")) * time.Second

		f := newAuditorFixture(eventlooptest.Inline{})
		require.NoError(t, f.auditor.Start(context.Background(), interval))
		f.clock.Advance(elapsed)

		assert.EqualValues(t, elapsed/interval, f.auditor.Ticks())
	})
}

func TestAuditorNoTicksAfterStop(t *testing.T) {
	f := newAuditorFixture(eventlooptest.Inline{})
	require.NoError(t, f.auditor.Start(context.Background(), 5*time.Second))
	f.clock.Advance(10 * time.Second)
	require.EqualValues(t, 2, f.auditor.Ticks())

	f.auditor.Stop()
	f.clock.Advance(time.Minute)

	assert.False(t, f.auditor.Running())
	assert.EqualValues(t, 2, f.auditor.Ticks())
	assert.Len(t, f.handler.results, 2)
	assert.Zero(t, f.clock.Pending())
}

func TestAuditorQueuedTickAfterStopIsNoop(t *testing.T) {
	q := &eventlooptest.Queue{}
	f := newAuditorFixture(q)
	require.NoError(t, f.auditor.Start(context.Background(), 5*time.Second))

	f.clock.Advance(5 * time.Second)
	require.Equal(t, 1, q.Len())

	f.auditor.Stop()
	q.Drain()

	assert.Zero(t, f.auditor.Ticks())
	assert.Empty(t, f.handler.results)
	assert.Zero(t, f.displays.calls)
	assert.Empty(t, f.lister.calls)
}

func TestAuditorStaleScanResultDropped(t *testing.T) {
	h := &heldScans{}
	f := newAuditorFixture(h)
	f.lister.outputs["teamviewer"] = "4312 teamviewerd\n"
	require.NoError(t, f.auditor.Start(context.Background(), 5*time.Second))

	f.clock.Advance(5 * time.Second)
	require.Len(t, h.held, 1)

	f.auditor.Stop()
	h.release()

	assert.Empty(t, f.handler.results)
	assert.Empty(t, f.handler.violations)
	assert.Zero(t, f.alerter.beeps)
}

func TestAuditorRestartDropsPreviousRunScan(t *testing.T) {
	h := &heldScans{}
	f := newAuditorFixture(h)
	require.NoError(t, f.auditor.Start(context.Background(), 5*time.Second))
	f.clock.Advance(5 * time.Second)
	require.Len(t, h.held, 1)

	f.auditor.Stop()
	require.NoError(t, f.auditor.Start(context.Background(), 5*time.Second))
	h.release()

	assert.Empty(t, f.handler.results)
	assert.True(t, f.auditor.Running())
}

func TestAuditorPolicyViolation(t *testing.T) {
	f := newAuditorFixture(eventlooptest.Inline{})
	require.NoError(t, f.auditor.Start(context.Background(), 5*time.Second))
	f.clock.Advance(12 * time.Second)

	f.lister.outputs["teamviewer"] = "4312 teamviewerd\n"
	f.clock.Advance(3 * time.Second)

	require.Len(t, f.handler.violations, 1)
	v := f.handler.violations[0]
	assert.Equal(t, "teamviewer", v.Signature)
	assert.Equal(t, platform.FamilyLinux, v.Family)
	assert.Equal(t, 1, f.alerter.beeps)
	assert.Len(t, f.alerter.notifications, 1)

	f.clock.Advance(time.Minute)
	assert.EqualValues(t, 3, f.auditor.Ticks())
	assert.Len(t, f.handler.violations, 1)
}

func TestAuditorMidSessionSecondDisplay(t *testing.T) {
	f := newAuditorFixture(eventlooptest.Inline{})
	require.NoError(t, f.auditor.Start(context.Background(), 5*time.Second))
	f.clock.Advance(5 * time.Second)

	f.displays.n = 2
	f.clock.Advance(10 * time.Second)

	require.Len(t, f.handler.transients, 2)
	assert.Equal(t, 2, f.handler.transients[0].Displays)
	assert.True(t, f.auditor.Running())
	assert.Empty(t, f.handler.violations)

	f.displays.n = 1
	f.clock.Advance(5 * time.Second)
	assert.Len(t, f.handler.transients, 2)
	assert.EqualValues(t, 4, f.auditor.Ticks())
}

func TestAuditorDisplayErrorStillScans(t *testing.T) {
	f := newAuditorFixture(eventlooptest.Inline{})
	f.displays.n = 0
	require.NoError(t, f.auditor.Start(context.Background(), 5*time.Second))

	f.clock.Advance(5 * time.Second)

	require.Len(t, f.handler.results, 1)
	assert.Error(t, f.handler.results[0].DisplayErr)
	assert.Equal(t, []string{"teamviewer", "anydesk"}, f.lister.calls)
	assert.Empty(t, f.handler.transients)
}

func TestAuditorStartValidation(t *testing.T) {
	f := newAuditorFixture(eventlooptest.Inline{})

	assert.Error(t, f.auditor.Start(context.Background(), 0))

	require.NoError(t, f.auditor.Start(context.Background(), time.Second))
	assert.Error(t, f.auditor.Start(context.Background(), time.Second))

	bare := NewAuditor(platform.FamilyLinux, nil, nil, nil, nil, eventlooptest.Inline{}, f.clock, nil)
	assert.Error(t, bare.Start(context.Background(), time.Second))
}

func TestAuditorGate(t *testing.T) {
	tests := []struct {
		name       string
		displays   int
		running    string
		wantPassed bool
	}{
		{name: "Clean environment", displays: 1, wantPassed: true},
		{name: "Two displays", displays: 2, wantPassed: false},
		{name: "No displays", displays: 0, wantPassed: false},
		{name: "Remote access running", displays: 1, running: "anydesk", wantPassed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuditorFixture(eventlooptest.Inline{})
			f.displays.n = tt.displays
			if tt.running != "" {
				f.lister.outputs[tt.running] = "1 " + tt.running + "\n"
			}

			r := f.auditor.Gate(context.Background())

			assert.Equal(t, tt.wantPassed, r.Passed())
			assert.Equal(t, tt.running != "", r.RemoteAccessDetected)
			assert.Zero(t, r.Tick)
			assert.Empty(t, f.handler.results)
			assert.Zero(t, f.alerter.beeps)
		})
	}
}
