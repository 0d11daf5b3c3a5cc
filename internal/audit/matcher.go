package audit

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/pkg/alert"
	"github.com/kiosklock/kiosklock/pkg/platform"
)

const (
	remoteAccessTitle = "REMOTE ACCESS ALERT"
	remoteAccessBody  = "Close all remote access apps!"
)

// SignatureSet is an ordered list of process-name fragments for one family.
type SignatureSet []string

// Signatures maps every family to its signature set.
type Signatures map[platform.Family]SignatureSet

// ProcessLister lists running processes whose name matches filter.
// The output is the raw text of the platform listing tool.
type ProcessLister interface {
	List(ctx context.Context, filter string) (string, error)
}

// Detection is the outcome of one signature scan.
type Detection struct {
	Matched   bool
	Signature string
	Processes []Process
}

// Matcher decides whether a known remote-access tool is running.
type Matcher struct {
	lister   ProcessLister
	notifier alert.Notifier
	logger   *slog.Logger
}

// NewMatcher creates a matcher over lister. notifier receives the alert raised
// on the first match.
func NewMatcher(lister ProcessLister, notifier alert.Notifier, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		lister:   lister,
		notifier: notifier,
		logger:   logger,
	}
}

// Matches reports whether any signature of the family's set is running.
func (m *Matcher) Matches(ctx context.Context, family platform.Family, sigs Signatures) (bool, error) {
	d, err := m.Detect(ctx, family, sigs)
	return d.Matched, err
}

// Detect scans the family's signatures in order and stops at the first one
// with at least one running process. A signature whose listing fails is
// logged, treated as not matching, and the scan continues; the returned error
// then joins every *ExecutionError seen.
func (m *Matcher) Detect(ctx context.Context, family platform.Family, sigs Signatures) (Detection, error) {
	set, ok := sigs[family]
	if !ok || len(set) == 0 {
		return Detection{}, errors.Wrapf(ErrNoSignatureSet, "family %s", family)
	}

	var execErrs []error
	for _, sig := range set {
		if ctx.Err() != nil {
			execErrs = append(execErrs, &ExecutionError{Signature: sig, Err: ctx.Err()})
			break
		}

		raw, err := m.lister.List(ctx, sig)
		if err != nil {
			execErr := &ExecutionError{Signature: sig, Err: err}
			m.logger.Warn("Process listing failed", "signature", sig, "error", err)
			execErrs = append(execErrs, execErr)
			continue
		}

		procs := ParseListing(family, raw)
		if len(procs) == 0 {
			continue
		}

		m.logger.Warn("Remote access application running", "signature", sig, "family", family.String(), "processes", len(procs))
		if m.notifier != nil {
			m.notifier.Notify(remoteAccessTitle, remoteAccessBody, alert.UrgencyCritical)
		}
		return Detection{Matched: true, Signature: sig, Processes: procs}, joinErrors(execErrs)
	}

	m.logger.Debug("No remote access application running", "family", family.String())
	return Detection{}, joinErrors(execErrs)
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return stderrors.Join(errs...)
	}
}
