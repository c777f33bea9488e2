package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/vies-vat-checker/pkg/logging"
	"github.com/Sternrassler/vies-vat-checker/pkg/ratelimit"
	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
	"github.com/rs/zerolog"
)

// Lookuper validates one record against VIES. Ordinary failures are part of
// the returned result; an error means the batch must stop.
type Lookuper interface {
	Lookup(ctx context.Context, rec vat.RawRecord) (vat.LookupResult, error)
}

// QuotaRecorder receives every quota rejection observed by the runner.
type QuotaRecorder interface {
	RecordRejection(ctx context.Context, country vat.CountryCode) (*ratelimit.QuotaState, error)
}

// waiter gates one lookup.
type waiter interface {
	Wait(ctx context.Context) error
}

// Config holds the runner configuration.
type Config struct {
	// Tracker is optional; when set, quota rejections are counted per member state.
	Tracker QuotaRecorder

	// Logger overrides the component logger derived from the global logger.
	Logger *zerolog.Logger
}

// Runner looks up the records of a batch one after the other.
type Runner struct {
	lookuper    Lookuper
	tracker     QuotaRecorder
	logger      zerolog.Logger
	newThrottle func(pass Pass) waiter
}

// NewRunner creates a runner on top of lookuper.
func NewRunner(lookuper Lookuper, cfg Config) *Runner {
	logger := logging.NewLogger("batch")
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "batch").Logger()
	}
	return &Runner{
		lookuper: lookuper,
		tracker:  cfg.Tracker,
		logger:   logger,
		newThrottle: func(pass Pass) waiter {
			if pass.Cooldown {
				return ratelimit.NewCooldownThrottle(pass.Delay)
			}
			return ratelimit.NewThrottle(pass.Delay)
		},
	}
}

// WithLogger returns a copy of r that logs to logger.
func (r *Runner) WithLogger(logger zerolog.Logger) *Runner {
	c := *r
	c.logger = logger.With().Str("component", "batch").Logger()
	return &c
}

// Run looks up every record of b in order, at least pass.Delay apart (and
// pass.Delay after the start when pass.Cooldown is set), and
// returns one result per record in the same order. Each result carries
// pass.Number. Run stops only when ctx is done or the lookuper returns an
// error; no partial result set is returned in that case.
func (r *Runner) Run(ctx context.Context, b vat.Batch, pass Pass) (vat.ResultSet, error) {
	start := time.Now()
	defer func() {
		batchPassDuration.WithLabelValues(pass.label()).Observe(time.Since(start).Seconds())
	}()

	throttle := r.newThrottle(pass)
	results := make(vat.ResultSet, 0, len(b))
	total := len(b)

	r.logger.Info().
		Int("pass", pass.Number).
		Int("total", total).
		Dur("delay", pass.Delay).
		Msg("Starting batch pass")

	for i, rec := range b {
		if err := throttle.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pass %d: throttle: %w", pass.Number, err)
		}

		res, err := r.lookuper.Lookup(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("pass %d: lookup %s line %d: %w",
				pass.Number, rec.SourceFile, rec.LineNumber, err)
		}
		res.Pass = pass.Number
		results = append(results, res)

		batchRecordsTotal.WithLabelValues(pass.label(), outcome(res)).Inc()
		if res.QuotaRejected() {
			r.recordQuota(ctx, rec.CountryCode)
		}

		event := r.logger.Info()
		if res.Failed() {
			event = r.logger.Warn()
		}
		event.
			Int("pass", pass.Number).
			Str("file", rec.SourceFile).
			Int("line", rec.LineNumber).
			Str("country_code", string(rec.CountryCode)).
			Str("identifier", rec.Identifier).
			Str("status", string(res.Status)).
			Str("error_code", res.ErrorCode).
			Int("completed", i+1).
			Int("total", total).
			Msg("VIES lookup done")
	}

	r.logger.Info().
		Int("pass", pass.Number).
		Int("total", total).
		Dur("duration", time.Since(start)).
		Msg("Batch pass complete")

	return results, nil
}

func (r *Runner) recordQuota(ctx context.Context, country vat.CountryCode) {
	quotaRejectionsTotal.WithLabelValues(string(country)).Inc()
	if r.tracker == nil {
		return
	}
	if _, err := r.tracker.RecordRejection(ctx, country); err != nil {
		r.logger.Warn().Err(err).Str("country_code", string(country)).Msg("Quota tracker error")
	}
}

// Partition splits first pass results into settled results and quota
// rejections eligible for the retry pass. Relative order is kept in both.
func Partition(rs vat.ResultSet) (settled, rejected vat.ResultSet) {
	settled = make(vat.ResultSet, 0, len(rs))
	for _, res := range rs {
		if Retryable(res) {
			rejected = append(rejected, res)
			continue
		}
		settled = append(settled, res)
	}
	return settled, rejected
}
