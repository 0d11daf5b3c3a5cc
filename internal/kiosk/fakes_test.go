package kiosk

import (
	"context"

	"github.com/kiosklock/kiosklock/internal/models"
	"github.com/kiosklock/kiosklock/pkg/alert"
)

type fakeLister struct {
	outputs map[string]string
	errs    map[string]error
}

func (f *fakeLister) List(ctx context.Context, filter string) (string, error) {
	if err, ok := f.errs[filter]; ok {
		return "", err
	}
	return f.outputs[filter], nil
}

type fakeDisplays struct {
	n int
}

func (f *fakeDisplays) Count() (int, error) {
	return f.n, nil
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

type fakeClipboard struct {
	contents string
	owned    bool
	releases int
}

func (f *fakeClipboard) Clear() error {
	f.contents = ""
	return nil
}

func (f *fakeClipboard) Claim() error {
	f.owned = true
	return nil
}

func (f *fakeClipboard) Release() error {
	f.owned = false
	f.releases++
	return nil
}

type fakePrinter struct {
	printers []string
	jobs     []Job
	listed   int
	err      error
}

func (f *fakePrinter) ListPrinters(ctx context.Context) ([]string, error) {
	f.listed++
	return f.printers, nil
}

func (f *fakePrinter) Print(ctx context.Context, job Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeJournal struct {
	incidents []*models.Incident
	errorLogs []*models.ErrorLog
}

func (f *fakeJournal) Create(incident *models.Incident) error {
	f.incidents = append(f.incidents, incident)
	return nil
}

func (f *fakeJournal) CreateErrorLog(errorLog *models.ErrorLog) error {
	f.errorLogs = append(f.errorLogs, errorLog)
	return nil
}

func (f *fakeJournal) kinds() []string {
	var kinds []string
	for _, inc := range f.incidents {
		kinds = append(kinds, inc.Kind)
	}
	return kinds
}
