package cache

import (
	"time"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
)

// CacheEntry represents a cached VIES answer.
type CacheEntry struct {
	// CountryCode and VATNumber as reported by VIES
	CountryCode string `json:"country_code"`
	VATNumber   string `json:"vat_number"`

	// Name and Address of the registered trader
	Name    string `json:"name"`
	Address string `json:"address"`

	// Valid is the VIES validity flag
	Valid bool `json:"valid"`

	// RequestDate is the VIES request date of the original call
	RequestDate string `json:"request_date"`

	// Expires is when the cache entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this answer
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired reports whether the entry is no longer usable at now. An entry
// expires at Expires itself.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// TTL returns the time left at now, or 0 if the entry has expired.
func (e *CacheEntry) TTL(now time.Time) time.Duration {
	if e.IsExpired(now) {
		return 0
	}
	return e.Expires.Sub(now)
}

// Cacheable reports whether a lookup result is definitive enough to cache.
// Failures and quota rejections are never cached.
func Cacheable(r vat.LookupResult) bool {
	return (r.Status == vat.StatusValid || r.Status == vat.StatusInvalid) &&
		r.ErrorCode == "" && r.ErrorMessage == ""
}

// EntryFromResult builds a cache entry from a lookup result. Expires is left
// zero; Manager.Set fills it from the manager TTL.
func EntryFromResult(r vat.LookupResult, now time.Time) *CacheEntry {
	return &CacheEntry{
		CountryCode: r.RemoteCountryCode,
		VATNumber:   r.RemoteIdentifier,
		Name:        r.RemoteCompanyName,
		Address:     r.RemoteCompanyAddress,
		Valid:       r.Status == vat.StatusValid,
		RequestDate: r.RequestDate,
		CachedAt:    now,
	}
}

// Apply copies the cached answer into base and returns it. The record, pass
// and check time of base are kept.
func (e *CacheEntry) Apply(base vat.LookupResult) vat.LookupResult {
	base.RemoteCountryCode = e.CountryCode
	base.RemoteIdentifier = e.VATNumber
	base.RemoteCompanyName = e.Name
	base.RemoteCompanyAddress = e.Address
	base.RequestDate = e.RequestDate
	base.Status = vat.StatusFromValid(e.Valid)
	base.ErrorCode = ""
	base.ErrorMessage = ""
	return base
}
