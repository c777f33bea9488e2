package cache

import (
	"strings"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
)

// keyPrefix namespaces cached VIES answers in Redis.
const keyPrefix = "vies:check"

// CacheKey identifies a cached VIES answer.
type CacheKey struct {
	// CountryCode is the member state code (e.g., "IT")
	CountryCode string

	// Identifier is the VAT number without the country prefix
	Identifier string
}

// String generates a deterministic cache key string.
// Format: vies:check:<country>:<identifier>
//
// Example:
//
//	vies:check:IT:12345678901
func (k CacheKey) String() string {
	country := strings.ToUpper(strings.TrimSpace(k.CountryCode))
	id := strings.ToUpper(strings.Join(strings.Fields(k.Identifier), ""))
	return keyPrefix + ":" + country + ":" + id
}

// KeyFor returns the cache key of a record.
func KeyFor(rec vat.RawRecord) CacheKey {
	return CacheKey{CountryCode: string(rec.CountryCode), Identifier: rec.Identifier}
}
