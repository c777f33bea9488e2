package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	viesQuotaRejectionsWindow = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vies_quota_rejections_window",
		Help: "Quota rejections in the current tracking window by member state",
	}, []string{"country"})

	viesQuotaHotTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vies_quota_hot_total",
		Help: "Total number of rejections recorded while a member state was hot",
	}, []string{"country"})
)

// Tracker counts quota rejections per member state in Redis.
type Tracker struct {
	redis  *redis.Client
	window time.Duration
	logger zerolog.Logger
}

// NewTracker creates a new quota tracker.
func NewTracker(redisClient *redis.Client, window time.Duration, logger zerolog.Logger) *Tracker {
	if window <= 0 {
		window = DefaultQuotaWindow
	}
	return &Tracker{
		redis:  redisClient,
		window: window,
		logger: logger,
	}
}

func quotaKey(country vat.CountryCode) string {
	return RedisKeyQuotaPrefix + string(country)
}

// GetState retrieves the quota state of one member state from Redis.
// Returns a zero count if no rejection was recorded in the current window.
func (t *Tracker) GetState(ctx context.Context, country vat.CountryCode) (*QuotaState, error) {
	key := quotaKey(country)

	pipe := t.redis.Pipeline()
	countCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get quota state %s: %w", country, err)
	}

	now := time.Now()
	state := &QuotaState{
		CountryCode: string(country),
		LastUpdate:  now,
	}

	count, err := countCmd.Int()
	if err == redis.Nil {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse quota count %s: %w", country, err)
	}
	state.Rejections = count
	if ttl := ttlCmd.Val(); ttl > 0 {
		state.ResetAt = now.Add(ttl)
	}

	return state, nil
}

// RecordRejection counts one quota rejection for country. The first
// rejection of a window starts the window.
func (t *Tracker) RecordRejection(ctx context.Context, country vat.CountryCode) (*QuotaState, error) {
	key := quotaKey(country)

	count, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("record quota rejection %s: %w", country, err)
	}
	if count == 1 {
		if err := t.redis.PExpire(ctx, key, t.window).Err(); err != nil {
			return nil, fmt.Errorf("set quota window %s: %w", country, err)
		}
	}

	now := time.Now()
	state := &QuotaState{
		CountryCode: string(country),
		Rejections:  int(count),
		LastUpdate:  now,
	}
	if ttl, err := t.redis.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
		state.ResetAt = now.Add(ttl)
	}

	viesQuotaRejectionsWindow.WithLabelValues(string(country)).Set(float64(count))

	logEvent := t.logger.Debug()
	switch {
	case state.IsSaturated():
		logEvent = t.logger.Error()
		viesQuotaHotTotal.WithLabelValues(string(country)).Inc()
	case state.IsHot():
		logEvent = t.logger.Warn()
		viesQuotaHotTotal.WithLabelValues(string(country)).Inc()
	}
	logEvent.
		Str("country_code", string(country)).
		Int("rejections", state.Rejections).
		Dur("reset_in", state.TimeUntilReset()).
		Msg("VIES quota rejection recorded")

	return state, nil
}

// Snapshot returns the states of all member states with at least one
// rejection in the current window, in country code order.
func (t *Tracker) Snapshot(ctx context.Context) ([]QuotaState, error) {
	var states []QuotaState
	for _, country := range vat.CountryCodes() {
		state, err := t.GetState(ctx, country)
		if err != nil {
			return nil, err
		}
		viesQuotaRejectionsWindow.WithLabelValues(string(country)).Set(float64(state.Rejections))
		if state.Rejections > 0 {
			states = append(states, *state)
		}
	}
	return states, nil
}
