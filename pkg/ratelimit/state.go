// Package ratelimit paces VIES calls and tracks member state quota rejections.
//
// Throttle enforces the minimum delay between two lookups of one batch pass.
// Tracker counts MS_MAX_CONCURRENT_REQ rejections per member state in a
// rolling Redis window so that concurrent runs see the same pressure.
package ratelimit

import (
	"time"
)

// Redis key prefix for quota state storage. The full key is
// vies:quota:<country>.
const RedisKeyQuotaPrefix = "vies:quota:"

// DefaultQuotaWindow is used when NewTracker is given a non-positive window.
const DefaultQuotaWindow = 10 * time.Minute

// Thresholds for quota pressure decisions.
const (
	// QuotaThresholdWarning marks a member state as hot when at least this
	// many rejections were seen in the current window.
	QuotaThresholdWarning = 3

	// QuotaThresholdCritical marks a member state whose backend is
	// effectively saturated for this window.
	QuotaThresholdCritical = 10
)

// QuotaState is the rejection count of one member state in the current
// window. The state is shared across all processes via Redis.
type QuotaState struct {
	CountryCode string `json:"country_code"`

	// Rejections counted since the window started.
	Rejections int `json:"rejections"`

	// ResetAt is when the window expires and the count restarts at zero.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was read or written.
	LastUpdate time.Time `json:"last_update"`
}

// IsHot reports whether the member state has reached the warning threshold.
func (s *QuotaState) IsHot() bool {
	return s.Rejections >= QuotaThresholdWarning
}

// IsSaturated reports whether the member state has reached the critical threshold.
func (s *QuotaState) IsSaturated() bool {
	return s.Rejections >= QuotaThresholdCritical
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}
