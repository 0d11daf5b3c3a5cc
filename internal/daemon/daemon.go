package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// ErrAlreadyRunning is returned by Acquire when a live instance owns the PID file.
var ErrAlreadyRunning = errors.New("another kiosklock instance is running")

// Daemon guards a session against a second lock instance through a PID file.
type Daemon struct {
	pidFile string
}

func New(pidFile string) *Daemon {
	return &Daemon{pidFile: pidFile}
}

// PIDFile returns the guarded path.
func (d *Daemon) PIDFile() string {
	return d.pidFile
}

// Acquire records the current process as the running instance. A stale file
// left by a dead process is replaced.
func (d *Daemon) Acquire() error {
	running, pid, err := d.IsRunning()
	if err != nil {
		return err
	}
	if running && pid != os.Getpid() {
		return errors.Wrapf(ErrAlreadyRunning, "pid %d", pid)
	}
	return d.WritePID()
}

func (d *Daemon) WritePID() error {
	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0o755); err != nil {
		return errors.Wrap(err, "failed to create PID directory")
	}
	if err := os.WriteFile(d.pidFile, fmt.Appendf([]byte{}, "%d", os.Getpid()), 0o644); err != nil {
		return errors.Wrap(err, "failed to write PID file")
	}
	return nil
}

func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to read PID file")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrap(err, "invalid PID in file")
	}

	return pid, nil
}

// Release removes the PID file if it still names this process.
func (d *Daemon) Release() error {
	pid, err := d.ReadPID()
	if err != nil || pid != os.Getpid() {
		return err
	}
	return d.RemovePID()
}

func (d *Daemon) RemovePID() error {
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove PID file")
	}
	return nil
}

// IsRunning reports whether the recorded process is alive. A stale PID file
// is removed.
func (d *Daemon) IsRunning() (bool, int, error) {
	pid, err := d.ReadPID()
	if err != nil {
		return false, 0, err
	}

	if pid == 0 {
		return false, 0, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0, nil
	}

	if err := process.Signal(syscall.Signal(0)); err != nil {
		_ = d.RemovePID()
		return false, 0, nil
	}

	return true, pid, nil
}

// Activate asks the running instance to recreate its surface. It is only
// meaningful on macOS, where closing the surface leaves the lock idle.
func (d *Daemon) Activate() error {
	if activateSignal == nil {
		return errors.New("activate is not supported on this platform")
	}

	running, pid, err := d.IsRunning()
	if err != nil {
		return errors.Wrap(err, "error checking instance status")
	}
	if !running {
		return errors.New("kiosklock is not running or PID file is stale")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return errors.Wrap(err, "failed to find process")
	}
	if err := process.Signal(activateSignal); err != nil {
		return errors.Wrap(err, "failed to signal instance")
	}
	return nil
}

// ActivateSignal is the signal Activate sends, nil where unsupported.
func ActivateSignal() os.Signal {
	return activateSignal
}
