// Package cups prints through the CUPS command line tools.
package cups

import (
	"bytes"
	"context"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/internal/kiosk"
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Printer implements kiosk.Printer with lpstat and lp.
type Printer struct {
	TempDir string
	run     runFunc
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Printer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Printer{run: runCommand, logger: logger}
}

// ListPrinters returns the configured destinations.
func (p *Printer) ListPrinters(ctx context.Context) ([]string, error) {
	out, err := p.run(ctx, "lpstat", "-e")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list printers")
	}
	var printers []string
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			printers = append(printers, name)
		}
	}
	return printers, nil
}

// Print writes the job image to a temporary PNG and submits it. An empty
// job printer uses the CUPS default destination.
func (p *Printer) Print(ctx context.Context, job kiosk.Job) error {
	if job.Image == nil {
		return errors.New("print job has no image")
	}

	f, err := os.CreateTemp(p.TempDir, "kiosklock-print-*.png")
	if err != nil {
		return errors.Wrap(err, "failed to create print file")
	}
	defer os.Remove(f.Name())

	if err := png.Encode(f, job.Image); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to encode print image")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "failed to write print file")
	}

	out, err := p.run(ctx, "lp", lpArgs(job, f.Name())...)
	if err != nil {
		return errors.Wrap(err, "failed to submit print job")
	}
	p.logger.Info("Print job submitted", "printer", job.Printer, "copies", job.Copies, "lp", strings.TrimSpace(string(out)))
	return nil
}

func lpArgs(job kiosk.Job, path string) []string {
	var args []string
	if job.Printer != "" {
		args = append(args, "-d", job.Printer)
	}
	copies := job.Copies
	if copies < 1 {
		copies = 1
	}
	args = append(args, "-n", strconv.Itoa(copies))
	if job.Title != "" {
		args = append(args, "-t", job.Title)
	}
	return append(args, path)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.Wrap(err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
