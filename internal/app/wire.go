package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Sternrassler/vies-vat-checker/internal/config"
	"github.com/Sternrassler/vies-vat-checker/internal/store"
	"github.com/Sternrassler/vies-vat-checker/pkg/cache"
	"github.com/Sternrassler/vies-vat-checker/pkg/client"
	"github.com/Sternrassler/vies-vat-checker/pkg/ratelimit"
	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Build assembles an App from cfg. Redis and the database are optional: a
// Redis that does not answer is logged and skipped, a database that cannot
// be opened turns every persistence call into a failure so reports are
// still written. The returned closer releases everything Build opened.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, io.Closer, error) {
	var closers multiCloser

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb = connectRedis(ctx, cfg, logger)
		if rdb != nil {
			closers = append(closers, rdb)
		}
	}

	clientCfg := client.Config{
		CheckVATEndpoint: cfg.VIES.CheckVATEndpoint,
		StatusEndpoint:   cfg.VIES.StatusEndpoint,
		UserAgent:        cfg.VIES.UserAgent,
		Timeout:          cfg.VIES.RequestTimeout,
		Logger:           &logger,
	}
	if rdb != nil && cfg.Redis.CacheEnabled {
		clientCfg.Cache = cache.NewManager(rdb, cfg.Redis.CacheTTL)
		logger.Info().Dur("ttl", cfg.Redis.CacheTTL).Msg("VIES answer cache enabled")
	}

	viesClient, err := client.New(clientCfg)
	if err != nil {
		closers.Close()
		return nil, nil, fmt.Errorf("create VIES client: %w", err)
	}
	closers = append(closers, viesClient)

	deps := Deps{
		Checker:  viesClient,
		Lookuper: viesClient,
		Logger:   logger,
	}

	if rdb != nil && cfg.Redis.QuotaEnabled {
		deps.Tracker = ratelimit.NewTracker(rdb, cfg.Redis.QuotaWindow, logger)
		logger.Info().Dur("window", cfg.Redis.QuotaWindow).Msg("Quota tracking enabled")
	}

	if cfg.Database.StoreActive {
		db, err := store.Open(ctx, cfg.Database.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.Database.Path).Msg("Unable to open database, results will not be persisted")
			deps.Store = failedStore{err: err}
		} else {
			deps.Store = db
			closers = append(closers, db)
		}
	}

	return New(cfg, deps), closers, nil
}

func connectRedis(ctx context.Context, cfg config.Config, logger zerolog.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis not reachable, cache and quota tracking disabled")
		_ = rdb.Close()
		return nil
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	return rdb
}

// failedStore stands in for a database that could not be opened.
type failedStore struct {
	err error
}

func (s failedStore) InsertResults(context.Context, vat.ResultSet) error {
	return fmt.Errorf("database unavailable: %w", s.err)
}

type multiCloser []io.Closer

// Close closes in reverse order of acquisition.
func (m multiCloser) Close() error {
	var errs []error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
