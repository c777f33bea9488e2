// Command vies-checker validates every partner file of the source folder
// against VIES and writes one report per file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/vies-vat-checker/internal/app"
	"github.com/Sternrassler/vies-vat-checker/internal/config"
	"github.com/Sternrassler/vies-vat-checker/pkg/logging"
	"github.com/Sternrassler/vies-vat-checker/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("vies-checker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("c", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return app.ExitOK
		}
		return app.ExitConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "vies-checker: %v\n", err)
		return app.ExitConfig
	}

	logger, logFile, err := logging.SetupWithFile(logging.Config{
		Level:    logging.LogLevel(cfg.Logging.Level),
		Pretty:   cfg.Logging.Pretty,
		Output:   stderr,
		File:     cfg.Logging.File,
		Truncate: cfg.Logging.Truncate,
	})
	if err != nil {
		fmt.Fprintf(stderr, "vies-checker: %v\n", err)
		return app.ExitConfig
	}
	defer logFile.Close()

	logger.Info().
		Str("config", *configPath).
		Str("source", cfg.Application.DataSourceDir).
		Str("dest", cfg.Application.DataDestDir).
		Str("format", cfg.Application.ReportFormat).
		Msg("Starting VIES VAT checker")

	if cfg.Metrics.ListenAddr != "" {
		srv, err := metrics.Serve(cfg.Metrics.ListenAddr, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to start metrics server")
			return app.ExitConfig
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	a, closer, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize")
		return app.ExitConfig
	}
	defer closer.Close()

	_, err = a.Run(ctx)
	code := app.ExitCode(err)
	if err != nil {
		logger.Error().Err(err).Int("exit_code", code).Msg("Run failed")
	}
	return code
}
