package audit

import (
	"context"

	"github.com/kiosklock/kiosklock/pkg/alert"
)

type fakeLister struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		outputs: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (f *fakeLister) List(ctx context.Context, filter string) (string, error) {
	f.calls = append(f.calls, filter)
	if err, ok := f.errs[filter]; ok {
		return "", err
	}
	return f.outputs[filter], nil
}

type notification struct {
	title   string
	body    string
	urgency alert.Urgency
}

type fakeAlerter struct {
	notifications []notification
	beeps         int
}

func (f *fakeAlerter) Notify(title, body string, urgency alert.Urgency) {
	f.notifications = append(f.notifications, notification{title: title, body: body, urgency: urgency})
}

func (f *fakeAlerter) Beep() {
	f.beeps++
}

type fakeDisplays struct {
	n     int
	err   error
	calls int
}

func (f *fakeDisplays) Count() (int, error) {
	f.calls++
	return f.n, f.err
}

type recordingHandler struct {
	violations  []*PolicyViolation
	transients  []*TransientCondition
	results     []Result
	onViolation func(*PolicyViolation)
}

func (h *recordingHandler) OnPolicyViolation(v *PolicyViolation) {
	h.violations = append(h.violations, v)
	if h.onViolation != nil {
		h.onViolation(v)
	}
}

func (h *recordingHandler) OnTransientCondition(c *TransientCondition) {
	h.transients = append(h.transients, c)
}

func (h *recordingHandler) OnAuditResult(r Result) {
	h.results = append(h.results, r)
}
