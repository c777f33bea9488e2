package batch

import (
	"context"
	"time"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
	"github.com/rs/zerolog"
)

// Summary describes how a batch was reconciled.
type Summary struct {
	Records int

	// Settled is the number of results accepted after the first pass.
	Settled int

	// Retried is the number of records sent through the retry pass.
	Retried int

	// StillRejected counts retried records rejected for quota again. Their
	// second result is final.
	StillRejected int

	Valid   int
	Invalid int
	Unknown int

	Duration time.Duration
}

// Reconciler runs the first pass, the single retry pass and merges both.
type Reconciler struct {
	runner *Runner
	policy Policy
	logger zerolog.Logger
}

// NewReconciler creates a reconciler using runner for both passes.
func NewReconciler(runner *Runner, policy Policy) *Reconciler {
	return &Reconciler{
		runner: runner,
		policy: policy,
		logger: runner.logger,
	}
}

// Reconcile returns exactly one result per record of b, sorted by
// (SourceFile, LineNumber). A record rejected for quota in the first pass is
// looked up once more; its second result replaces the first whatever it is.
func (rc *Reconciler) Reconcile(ctx context.Context, b vat.Batch) (vat.ResultSet, Summary, error) {
	start := time.Now()
	summary := Summary{Records: len(b)}
	if len(b) == 0 {
		return vat.ResultSet{}, summary, nil
	}

	first, err := rc.runner.Run(ctx, Distribute(b), rc.policy.First())
	if err != nil {
		return nil, summary, err
	}

	settled, rejected := Partition(first)
	summary.Settled = len(settled)
	final := make(vat.ResultSet, 0, len(b))
	final = append(final, settled...)

	if len(rejected) > 0 {
		summary.Retried = len(rejected)
		rc.logger.Warn().
			Int("rejected", len(rejected)).
			Dur("delay", rc.policy.ExtendedDelay).
			Msg("Retrying quota rejected records")

		retry, err := rc.runner.Run(ctx, Distribute(rejected.Records()), rc.policy.Retry())
		if err != nil {
			return nil, summary, err
		}
		for _, res := range retry {
			if res.QuotaRejected() {
				summary.StillRejected++
			}
		}
		final = append(final, retry...)
	}

	final.SortByLine()

	counts := final.CountByStatus()
	summary.Valid = counts[vat.StatusValid]
	summary.Invalid = counts[vat.StatusInvalid]
	summary.Unknown = counts[vat.StatusUnknown]
	summary.Duration = time.Since(start)

	rc.logger.Info().
		Int("records", summary.Records).
		Int("valid", summary.Valid).
		Int("invalid", summary.Invalid).
		Int("unknown", summary.Unknown).
		Int("retried", summary.Retried).
		Int("still_rejected", summary.StillRejected).
		Dur("duration", summary.Duration).
		Msg("Batch reconciled")

	return final, summary, nil
}
