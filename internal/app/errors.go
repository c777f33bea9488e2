package app

import (
	"errors"

	"github.com/Sternrassler/vies-vat-checker/internal/config"
)

// Fatal run conditions.
var (
	// ErrServiceUnreachable means the status endpoint could not be reached.
	ErrServiceUnreachable = errors.New("VIES service unreachable")

	// ErrServiceUnavailable means VIES answered but reported itself down.
	ErrServiceUnavailable = errors.New("VIES service unavailable")

	// ErrSourceFolder means the input folder does not exist.
	ErrSourceFolder = errors.New("source folder not found")

	// ErrRunInProgress means another run holds the report folder.
	ErrRunInProgress = errors.New("another run is in progress")

	// ErrPersistence means results of at least one file could not be stored.
	// Reports were still written.
	ErrPersistence = errors.New("persistence failed")
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitPreflight   = 3
	ExitPersistence = 4
)

// ExitCode maps a run error onto the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrInvalid), errors.Is(err, ErrSourceFolder):
		return ExitConfig
	case errors.Is(err, ErrServiceUnreachable), errors.Is(err, ErrServiceUnavailable):
		return ExitPreflight
	case errors.Is(err, ErrPersistence):
		return ExitPersistence
	default:
		return ExitFailure
	}
}
