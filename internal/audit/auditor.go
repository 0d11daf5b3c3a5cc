package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/internal/clock"
	"github.com/kiosklock/kiosklock/internal/eventloop"
	"github.com/kiosklock/kiosklock/pkg/alert"
	"github.com/kiosklock/kiosklock/pkg/platform"
)

// Result is the outcome of one audit. A fresh value is built for every tick.
type Result struct {
	Family platform.Family
	At     time.Time
	// Tick is the 1-based tick number within the current Start, 0 for the gate.
	Tick uint64

	RemoteAccessDetected bool
	Signature            string
	Processes            []Process
	ScanErr              error

	MultipleDisplaysDetected bool
	Displays                 int
	DisplayErr               error
}

// Passed reports whether the environment is acceptable for locking. An
// unavailable display count fails the gate.
func (r Result) Passed() bool {
	return !r.RemoteAccessDetected && !r.MultipleDisplaysDetected && r.DisplayErr == nil
}

// Handler receives audit outcomes on the event loop.
type Handler interface {
	// OnPolicyViolation is called after the alert beep when a remote-access
	// tool is found. It must not return control to a locked session.
	OnPolicyViolation(v *PolicyViolation)

	// OnTransientCondition is called on every tick that sees more than one display.
	OnTransientCondition(c *TransientCondition)

	// OnAuditResult is called once per completed tick.
	OnAuditResult(r Result)
}

// Auditor runs the environment checks once as a startup gate and then on a
// fixed interval. All methods must be called on the event loop.
type Auditor struct {
	family     platform.Family
	signatures Signatures
	matcher    *Matcher
	topology   *TopologyChecker
	beeper     alert.Beeper
	dispatcher eventloop.Dispatcher
	clock      clock.Clock
	logger     *slog.Logger
	handler    Handler

	running  bool
	gen      uint64
	ticks    uint64
	interval time.Duration
	timer    clock.Timer
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewAuditor wires the two checks. A handler must be set before Start.
func NewAuditor(family platform.Family, signatures Signatures, matcher *Matcher, topology *TopologyChecker,
	beeper alert.Beeper, dispatcher eventloop.Dispatcher, clk clock.Clock, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Auditor{
		family:     family,
		signatures: signatures,
		matcher:    matcher,
		topology:   topology,
		beeper:     beeper,
		dispatcher: dispatcher,
		clock:      clk,
		logger:     logger,
	}
}

// SetHandler installs the receiver of audit outcomes.
func (a *Auditor) SetHandler(h Handler) {
	a.handler = h
}

// Gate runs both checks synchronously.
func (a *Auditor) Gate(ctx context.Context) Result {
	result := Result{Family: a.family, At: a.clock.Now()}

	n, err := a.topology.Displays()
	if err != nil {
		result.DisplayErr = err
	} else {
		result.Displays = n
		result.MultipleDisplaysDetected = n > 1
	}

	det, err := a.matcher.Detect(ctx, a.family, a.signatures)
	result.ScanErr = err
	result.RemoteAccessDetected = det.Matched
	result.Signature = det.Signature
	result.Processes = det.Processes

	a.logger.Info("Startup environment audit",
		"passed", result.Passed(),
		"displays", result.Displays,
		"remote_access", result.RemoteAccessDetected,
		"signature", result.Signature)
	return result
}

// Start begins auditing every interval. Process scans started by a tick run
// off the loop; their results are delivered back as a later callback.
func (a *Auditor) Start(ctx context.Context, interval time.Duration) error {
	if a.running {
		return errors.New("auditor is already running")
	}
	if interval <= 0 {
		return errors.Errorf("audit interval must be positive, got %v", interval)
	}
	if a.handler == nil {
		return errors.New("auditor has no handler")
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.running = true
	a.gen++
	a.ticks = 0
	a.interval = interval
	a.logger.Info("Starting environment audit", "interval", interval)
	a.schedule(a.gen)
	return nil
}

// Stop cancels the recurring audit. Once Stop returns no tick body and no
// scan result of the stopped run is delivered, even if its timer already
// fired.
func (a *Auditor) Stop() {
	if !a.running {
		return
	}
	a.running = false
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.logger.Info("Environment audit stopped", "ticks", a.ticks)
}

// Running reports whether the recurring audit is active.
func (a *Auditor) Running() bool {
	return a.running
}

// Ticks returns the number of ticks run since the last Start.
func (a *Auditor) Ticks() uint64 {
	return a.ticks
}

func (a *Auditor) current(gen uint64) bool {
	return a.running && gen == a.gen
}

func (a *Auditor) schedule(gen uint64) {
	if !a.current(gen) {
		return
	}
	a.timer = a.clock.AfterFunc(a.interval, func() {
		a.dispatcher.Post(func() { a.tick(gen) })
	})
}

func (a *Auditor) tick(gen uint64) {
	if !a.current(gen) {
		return
	}
	a.ticks++

	result := Result{Family: a.family, At: a.clock.Now(), Tick: a.ticks}

	n, err := a.topology.Displays()
	if err != nil {
		result.DisplayErr = err
		a.logger.Warn("Display check skipped for this tick", "tick", result.Tick, "error", err)
	} else {
		result.Displays = n
		if n > 1 {
			result.MultipleDisplaysDetected = true
			a.handler.OnTransientCondition(&TransientCondition{Displays: n})
		}
	}

	if !a.current(gen) {
		return
	}

	ctx := a.ctx
	family, signatures := a.family, a.signatures
	a.dispatcher.Async(func() func() {
		det, err := a.matcher.Detect(ctx, family, signatures)
		return func() { a.finishTick(gen, result, det, err) }
	})

	a.schedule(gen)
}

func (a *Auditor) finishTick(gen uint64, result Result, det Detection, err error) {
	if !a.current(gen) {
		a.logger.Debug("Discarding scan result of a stopped audit", "tick", result.Tick)
		return
	}

	result.ScanErr = err
	result.RemoteAccessDetected = det.Matched
	result.Signature = det.Signature
	result.Processes = det.Processes

	a.handler.OnAuditResult(result)

	if det.Matched {
		if a.beeper != nil {
			a.beeper.Beep()
		}
		a.handler.OnPolicyViolation(&PolicyViolation{
			Family:    a.family,
			Signature: det.Signature,
			Processes: det.Processes,
		})
	}
}
