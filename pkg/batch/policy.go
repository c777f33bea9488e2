package batch

import (
	"strconv"
	"time"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
)

// Pass numbers.
const (
	FirstPass = 1
	RetryPass = 2
)

// Pass describes one traversal of a batch.
type Pass struct {
	// Number is FirstPass or RetryPass.
	Number int

	// Delay is the minimum spacing between two lookups.
	Delay time.Duration

	// Cooldown holds the first lookup back by Delay as well.
	Cooldown bool
}

func (p Pass) label() string {
	return strconv.Itoa(p.Number)
}

// Policy holds the two throttle tiers.
type Policy struct {
	// StandardDelay spaces lookups in the first pass.
	StandardDelay time.Duration

	// ExtendedDelay spaces lookups in the retry pass, after a quota
	// rejection was observed.
	ExtendedDelay time.Duration
}

// DefaultPolicy returns the default delays: 5s standard, 10s extended.
func DefaultPolicy() Policy {
	return Policy{
		StandardDelay: 5 * time.Second,
		ExtendedDelay: 10 * time.Second,
	}
}

// First returns the first pass.
func (p Policy) First() Pass {
	return Pass{Number: FirstPass, Delay: p.StandardDelay}
}

// Retry returns the retry pass. It starts with a cooldown so that a record
// rejected at the end of the first pass is not resubmitted at once.
func (p Policy) Retry() Pass {
	return Pass{Number: RetryPass, Delay: p.ExtendedDelay, Cooldown: true}
}

// Retryable reports whether a first pass result qualifies for the retry
// pass. Only member state quota rejections do.
func Retryable(r vat.LookupResult) bool {
	return r.QuotaRejected()
}

// outcome is the metrics label of a result.
func outcome(r vat.LookupResult) string {
	switch {
	case r.QuotaRejected():
		return "quota"
	case r.Status == vat.StatusValid:
		return "valid"
	case r.Status == vat.StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}
