package vat

import (
	"cmp"
	"slices"
	"time"
)

// MaxIdentifierLength is the longest identifier VIES accepts.
const MaxIdentifierLength = 12

// Error codes reported by VIES in userError / errorWrappers.
const (
	// CodeQuotaExceeded means too many concurrent requests for one member state.
	// It is the only code that triggers a retry pass.
	CodeQuotaExceeded = "MS_MAX_CONCURRENT_REQ"

	CodeGlobalQuotaExceeded = "GLOBAL_MAX_CONCURRENT_REQ"
	CodeMemberUnavailable   = "MS_UNAVAILABLE"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
	CodeInvalidInput        = "INVALID_INPUT"
)

// RawRecord is one accepted input line. SourceFile and LineNumber form the
// natural key used to restore input order.
type RawRecord struct {
	SourceFile  string
	LineNumber  int
	Description string
	CountryCode CountryCode
	Identifier  string
}

// PartnerID is the persistence key: country code followed by the identifier.
func (r RawRecord) PartnerID() string {
	return string(r.CountryCode) + r.Identifier
}

// Batch is an ordered set of records processed together.
type Batch []RawRecord

// Status is the normalized VIES validity flag.
type Status string

const (
	StatusValid   Status = "VALID"
	StatusInvalid Status = "INVALID"
	StatusUnknown Status = "UNKNOWN"
)

// StatusFromValid maps the raw boolean flag returned by VIES.
func StatusFromValid(valid bool) Status {
	if valid {
		return StatusValid
	}
	return StatusInvalid
}

// LookupResult is the outcome of one remote lookup for one record. A retry
// produces a new LookupResult; results are never edited after creation.
type LookupResult struct {
	Record RawRecord

	RemoteCountryCode    string
	RemoteIdentifier     string
	RemoteCompanyName    string
	RemoteCompanyAddress string
	RequestDate          string

	Status Status

	// ErrorCode is the structured VIES code (e.g. MS_MAX_CONCURRENT_REQ), empty
	// for transport failures and successful lookups.
	ErrorCode    string
	ErrorMessage string

	// Pass is the batch pass (1 or 2) that produced the result.
	Pass      int
	CheckedAt time.Time
}

// Failed reports whether the lookup ended with a remote-side failure.
func (r LookupResult) Failed() bool {
	return r.Status == StatusUnknown || r.ErrorMessage != ""
}

// QuotaRejected reports whether the remote service refused the lookup because
// the member state quota was exhausted.
func (r LookupResult) QuotaRejected() bool {
	return r.Status != StatusValid && r.ErrorCode == CodeQuotaExceeded
}

// ResultSet holds the results for one input file.
type ResultSet []LookupResult

// SortByLine orders the set by (SourceFile, LineNumber) ascending.
func (rs ResultSet) SortByLine() {
	slices.SortStableFunc(rs, func(a, b LookupResult) int {
		if c := cmp.Compare(a.Record.SourceFile, b.Record.SourceFile); c != 0 {
			return c
		}
		return cmp.Compare(a.Record.LineNumber, b.Record.LineNumber)
	})
}

// Records returns the input records of the set, in set order.
func (rs ResultSet) Records() Batch {
	out := make(Batch, len(rs))
	for i, r := range rs {
		out[i] = r.Record
	}
	return out
}

// CountByStatus tallies results per status.
func (rs ResultSet) CountByStatus() map[Status]int {
	counts := make(map[Status]int, 3)
	for _, r := range rs {
		counts[r.Status]++
	}
	return counts
}
