package kiosk

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/internal/models"
)

var (
	// ErrGateRefused is returned by Start when the startup audit fails.
	ErrGateRefused = errors.New("environment audit refused the lock")

	// ErrPolicyViolation is the cause handed to the terminator when a
	// remote-access tool is detected during the session.
	ErrPolicyViolation = errors.New("remote access policy violated")
)

// Clipboard controls the system clipboard for the duration of a lock.
type Clipboard interface {
	// Clear empties every selection.
	Clear() error
	// Claim takes ownership so that other clients cannot offer content.
	Claim() error
	// Release gives ownership back.
	Release() error
}

// Job is a print request.
type Job struct {
	Printer string // empty means the system default
	Title   string
	Image   image.Image
	Copies  int
}

// Printer lists printers and prints jobs.
type Printer interface {
	ListPrinters(ctx context.Context) ([]string, error)
	Print(ctx context.Context, job Job) error
}

// Journal persists incidents. Calls are made off the event loop.
type Journal interface {
	Create(incident *models.Incident) error
	CreateErrorLog(errorLog *models.ErrorLog) error
}

// Terminator ends the process after the controller has torn the lock down.
type Terminator func(cause error)
