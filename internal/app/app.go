// Package app runs the checker: pre-flight status check, then for every
// input file read, reconcile, report and optionally persist.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Sternrassler/vies-vat-checker/internal/config"
	"github.com/Sternrassler/vies-vat-checker/internal/input"
	"github.com/Sternrassler/vies-vat-checker/internal/report"
	"github.com/Sternrassler/vies-vat-checker/pkg/batch"
	"github.com/Sternrassler/vies-vat-checker/pkg/ratelimit"
	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// lockFile is created in the report folder while a run is in progress.
const lockFile = ".vies-checker.lock"

// ResultStore persists the final results of one file.
type ResultStore interface {
	InsertResults(ctx context.Context, rs vat.ResultSet) error
}

// QuotaTracker records quota rejections and reports the current windows.
type QuotaTracker interface {
	batch.QuotaRecorder
	Snapshot(ctx context.Context) ([]ratelimit.QuotaState, error)
}

// Deps are the collaborators of an App. Store and Tracker are optional.
type Deps struct {
	Checker  StatusChecker
	Lookuper batch.Lookuper
	Store    ResultStore
	Tracker  QuotaTracker
	Logger   zerolog.Logger
}

// FileSummary is the outcome of one input file.
type FileSummary struct {
	File     string
	Report   string
	Accepted int
	Rejected int
	Batch    batch.Summary

	// Skipped is set when the file had no accepted row.
	Skipped bool

	// Persisted is set when results were stored; PersistErr holds the
	// failure otherwise (nil when storage is disabled).
	Persisted  bool
	PersistErr error
}

// RunSummary is the outcome of a run.
type RunSummary struct {
	RunID    string
	Files    []FileSummary
	Quota    []ratelimit.QuotaState
	Duration time.Duration
}

// Totals sums the per file counters.
func (s RunSummary) Totals() (accepted, rejected, retried int) {
	for _, f := range s.Files {
		accepted += f.Accepted
		rejected += f.Rejected
		retried += f.Batch.Retried
	}
	return accepted, rejected, retried
}

// App is one configured checker.
type App struct {
	cfg     config.Config
	checker StatusChecker
	runner  *batch.Runner
	policy  batch.Policy
	store   ResultStore
	tracker QuotaTracker
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates an App.
func New(cfg config.Config, deps Deps) *App {
	runnerCfg := batch.Config{Logger: &deps.Logger}
	if deps.Tracker != nil {
		runnerCfg.Tracker = deps.Tracker
	}

	return &App{
		cfg:     cfg,
		checker: deps.Checker,
		runner:  batch.NewRunner(deps.Lookuper, runnerCfg),
		policy: batch.Policy{
			StandardDelay: cfg.Throttle.StandardDelay,
			ExtendedDelay: cfg.Throttle.LongDelay,
		},
		store:   deps.Store,
		tracker: deps.Tracker,
		logger:  deps.Logger,
		now:     time.Now,
	}
}

// run is the state of one Run call. Everything it logs carries run_id.
type run struct {
	*App
	logger     zerolog.Logger
	reconciler *batch.Reconciler
}

func (a *App) newRun(id string) *run {
	base := a.logger.With().Str("run_id", id).Logger()
	return &run{
		App:        a,
		logger:     base.With().Str("component", "app").Logger(),
		reconciler: batch.NewReconciler(a.runner.WithLogger(base), a.policy),
	}
}

// Run processes every *.csv file of the source folder in name order. It
// stops early on a fatal condition (missing folder, failed pre-flight,
// cancelled ctx, another run holding the report folder). Persistence
// failures do not stop the run; they are reported at the end as
// ErrPersistence.
func (a *App) Run(ctx context.Context) (RunSummary, error) {
	start := a.now()
	summary := RunSummary{RunID: uuid.NewString()}
	r := a.newRun(summary.RunID)
	logger := r.logger

	srcDir := a.cfg.Application.DataSourceDir
	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		logger.Error().Str("dir", srcDir).Msg("Source folder not found")
		return summary, fmt.Errorf("%w: %s", ErrSourceFolder, srcDir)
	}

	if err := Preflight(ctx, a.checker, logger); err != nil {
		return summary, err
	}

	if err := os.MkdirAll(a.cfg.Application.DataDestDir, 0o755); err != nil {
		return summary, fmt.Errorf("create report folder: %w", err)
	}

	lock := flock.New(filepath.Join(a.cfg.Application.DataDestDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return summary, fmt.Errorf("lock report folder: %w", err)
	}
	if !locked {
		return summary, fmt.Errorf("%w: %s", ErrRunInProgress, a.cfg.Application.DataDestDir)
	}
	defer lock.Unlock()

	files, err := input.ListSources(srcDir)
	if err != nil {
		return summary, err
	}
	if len(files) == 0 {
		logger.Warn().Str("dir", srcDir).Msg("No input files found")
	}

	persistFailures := 0
	for i, path := range files {
		logger.Info().
			Int("file_nr", i+1).
			Str("file", filepath.Base(path)).
			Msg("Processing file")

		fs, err := r.processFile(ctx, path)
		summary.Files = append(summary.Files, fs)
		if err != nil {
			summary.Duration = a.now().Sub(start)
			return summary, err
		}
		if fs.PersistErr != nil {
			persistFailures++
		}
	}

	if a.tracker != nil {
		quota, err := a.tracker.Snapshot(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Quota tracker snapshot failed")
		}
		summary.Quota = quota
	}

	summary.Duration = a.now().Sub(start)
	r.logSummary(summary)

	if persistFailures > 0 {
		return summary, fmt.Errorf("%w: %d of %d files", ErrPersistence, persistFailures, len(files))
	}
	return summary, nil
}

func (r *run) processFile(ctx context.Context, path string) (FileSummary, error) {
	fs := FileSummary{File: filepath.Base(path)}

	in, err := input.ReadFile(path, r.logger)
	if errors.Is(err, input.ErrNoHeader) {
		r.logger.Warn().Str("file", fs.File).Msg("Empty input file skipped")
		fs.Skipped = true
		return fs, nil
	}
	if err != nil {
		return fs, err
	}
	fs.Accepted, fs.Rejected = in.Accepted, in.Rejected

	if in.Accepted == 0 {
		r.logger.Warn().Str("file", fs.File).Int("rejected", in.Rejected).Msg("No valid rows, file skipped")
		fs.Skipped = true
		return fs, nil
	}

	results, bs, err := r.reconciler.Reconcile(ctx, in.Records)
	if err != nil {
		return fs, fmt.Errorf("reconcile %s: %w", fs.File, err)
	}
	fs.Batch = bs

	reportPath, err := r.writeReport(path, results)
	if err != nil {
		return fs, err
	}
	fs.Report = reportPath

	if r.store != nil {
		if err := r.store.InsertResults(ctx, results); err != nil {
			r.logger.Error().Err(err).Str("file", fs.File).Msg("Unable to persist results")
			fs.PersistErr = err
		} else {
			fs.Persisted = true
		}
	}

	return fs, nil
}

func (r *run) writeReport(source string, results vat.ResultSet) (string, error) {
	format := r.cfg.Application.ReportFormat
	out := filepath.Join(r.cfg.Application.DataDestDir, report.FileName(source, format))

	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}

	rep := report.Report{
		Title: r.cfg.Application.Name,
		Cover: []report.CoverField{
			{Label: "Program name", Value: filepath.Base(os.Args[0])},
			{Label: "Source file", Value: source},
			{Label: "Report file", Value: out},
			{Label: "Number of records", Value: strconv.Itoa(len(results))},
		},
		Results:     results,
		GeneratedAt: r.now(),
	}
	if err := report.Write(f, format, rep); err != nil {
		f.Close()
		return "", fmt.Errorf("write report %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report %s: %w", out, err)
	}

	r.logger.Info().Str("report", out).Int("records", len(results)).Msg("Report created")
	return out, nil
}

func (r *run) logSummary(s RunSummary) {
	accepted, rejected, retried := s.Totals()
	r.logger.Info().
		Int("files", len(s.Files)).
		Int("accepted", accepted).
		Int("rejected", rejected).
		Int("retried", retried).
		Dur("duration", s.Duration).
		Msg("Run complete")

	for _, q := range s.Quota {
		r.logger.Warn().
			Str("country_code", q.CountryCode).
			Int("rejections", q.Rejections).
			Dur("reset_in", q.TimeUntilReset()).
			Msg("Member state quota pressure")
	}
}
