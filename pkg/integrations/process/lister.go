// Package process lists running processes by name for the remote-access audit.
package process

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/internal/audit"
	"github.com/kiosklock/kiosklock/pkg/platform"
)

const defaultTimeout = 3 * time.Second

// commLimit is the longest process name the kernel keeps. pgrep refuses to
// match a longer pattern against names, so those are matched against the
// full command line instead.
const commLimit = 15

// runFunc runs a command and returns its stdout and exit code. A non-nil
// error means the command could not be run at all.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, int, error)

// ExecLister runs the platform listing tool: pgrep on Linux and macOS,
// tasklist on Windows.
type ExecLister struct {
	Family  platform.Family
	Timeout time.Duration
	run     runFunc
}

// NewExecLister returns a lister for family. A zero timeout uses 3s.
func NewExecLister(family platform.Family, timeout time.Duration) *ExecLister {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ExecLister{Family: family, Timeout: timeout, run: runCommand}
}

// List implements audit.ProcessLister. No running process is an empty
// listing, not an error.
func (l *ExecLister) List(ctx context.Context, filter string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	name, args := l.command(filter)
	out, code, err := l.run(ctx, name, args...)
	if err != nil {
		return "", errors.Wrapf(err, "failed to run %s", name)
	}

	switch {
	case code == 0:
		return string(out), nil
	case code == 1 && l.Family != platform.FamilyWindows:
		// pgrep exits 1 when nothing matched
		return "", nil
	default:
		return "", errors.Errorf("%s exited with status %d", name, code)
	}
}

func (l *ExecLister) command(filter string) (string, []string) {
	if l.Family == platform.FamilyWindows {
		return "tasklist", []string{"/FO", "CSV", "/NH", "/FI", "IMAGENAME eq " + filter + "*"}
	}
	if len(filter) > commLimit {
		return "pgrep", []string{"-ilf", filter}
	}
	return "pgrep", []string{"-il", filter}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, -1, err
	}
	return stdout.Bytes(), 0, nil
}

// New returns the lister named by kind: "exec" or "procfs".
func New(kind string, family platform.Family, timeout time.Duration) (audit.ProcessLister, error) {
	switch kind {
	case "", "exec":
		return NewExecLister(family, timeout), nil
	case "procfs":
		if family == platform.FamilyWindows {
			return nil, errors.New("procfs lister is not available on windows")
		}
		return NewProcLister("/proc"), nil
	default:
		return nil, errors.Errorf("unknown process lister %q", kind)
	}
}
