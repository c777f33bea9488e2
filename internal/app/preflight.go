package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/vies-vat-checker/pkg/client"
	"github.com/rs/zerolog"
)

// StatusChecker probes VIES availability.
type StatusChecker interface {
	CheckStatus(ctx context.Context) (*client.ServiceStatus, error)
}

// Preflight probes VIES once before any file is opened and logs the
// availability of every member state. It returns ErrServiceUnreachable or
// ErrServiceUnavailable when the run must not start.
func Preflight(ctx context.Context, checker StatusChecker, logger zerolog.Logger) error {
	status, err := checker.CheckStatus(ctx)
	if err != nil && !errors.Is(err, client.ErrServiceUnavailable) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Error().Err(err).Msg("VIES status check failed")
		return fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
	}

	if status != nil {
		for _, ms := range status.Countries {
			event := logger.Info()
			if !ms.Available() {
				event = logger.Warn()
			}
			event.
				Str("country_code", ms.CountryCode).
				Str("availability", ms.Availability).
				Msg("Member state status")
		}
	}

	if err != nil {
		logger.Error().Msg("VIES service reports itself unavailable")
		return ErrServiceUnavailable
	}

	logger.Info().Msg("VIES service available")
	return nil
}
