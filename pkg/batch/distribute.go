package batch

import (
	"cmp"
	"slices"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
)

// Distribute reorders b round-robin across member states: the first record
// of every country, then the second of every country, and so on. Within a
// round countries appear in code order; within a country arrival order is
// kept. b is not modified.
func Distribute(b vat.Batch) vat.Batch {
	type ranked struct {
		rank int
		rec  vat.RawRecord
	}

	seen := make(map[vat.CountryCode]int)
	items := make([]ranked, len(b))
	for i, rec := range b {
		items[i] = ranked{rank: seen[rec.CountryCode], rec: rec}
		seen[rec.CountryCode]++
	}

	slices.SortStableFunc(items, func(x, y ranked) int {
		if c := cmp.Compare(x.rank, y.rank); c != 0 {
			return c
		}
		return cmp.Compare(x.rec.CountryCode, y.rec.CountryCode)
	})

	out := make(vat.Batch, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return out
}
