package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/vies-vat-checker/pkg/ratelimit"
	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLookuper answers from a per-identifier script. Each call consumes the
// head of the script; the last entry repeats. Unscripted records are VALID.
type fakeLookuper struct {
	mu      sync.Mutex
	scripts map[string][]vat.LookupResult
	calls   []vat.RawRecord
	at      []time.Time
	err     error
	failAt  int
}

func newFakeLookuper() *fakeLookuper {
	return &fakeLookuper{scripts: make(map[string][]vat.LookupResult), failAt: -1}
}

func (f *fakeLookuper) script(id string, results ...vat.LookupResult) {
	f.scripts[id] = results
}

func (f *fakeLookuper) Lookup(ctx context.Context, rec vat.RawRecord) (vat.LookupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAt >= 0 && len(f.calls) == f.failAt {
		return vat.LookupResult{}, f.err
	}
	f.calls = append(f.calls, rec)
	f.at = append(f.at, time.Now())

	res := vat.LookupResult{Status: vat.StatusValid}
	if queue := f.scripts[rec.Identifier]; len(queue) > 0 {
		res = queue[0]
		if len(queue) > 1 {
			f.scripts[rec.Identifier] = queue[1:]
		}
	}
	res.Record = rec
	return res, nil
}

func (f *fakeLookuper) identifiers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Identifier
	}
	return out
}

type fakeTracker struct {
	countries []vat.CountryCode
	err       error
}

func (f *fakeTracker) RecordRejection(_ context.Context, country vat.CountryCode) (*ratelimit.QuotaState, error) {
	f.countries = append(f.countries, country)
	if f.err != nil {
		return nil, f.err
	}
	return &ratelimit.QuotaState{CountryCode: string(country), Rejections: len(f.countries)}, nil
}

// ctxThrottle never waits but honors cancellation.
type ctxThrottle struct{}

func (ctxThrottle) Wait(ctx context.Context) error {
	return ctx.Err()
}

func newTestRunner(l Lookuper, tracker QuotaRecorder) (*Runner, *[]time.Duration) {
	logger := zerolog.Nop()
	r := NewRunner(l, Config{Tracker: tracker, Logger: &logger})
	delays := &[]time.Duration{}
	r.newThrottle = func(p Pass) waiter {
		*delays = append(*delays, p.Delay)
		return ctxThrottle{}
	}
	return r, delays
}

func rec(file string, line int, cc vat.CountryCode, id string) vat.RawRecord {
	return vat.RawRecord{
		SourceFile:  file,
		LineNumber:  line,
		Description: "Partner " + id,
		CountryCode: cc,
		Identifier:  id,
	}
}

func quota() vat.LookupResult {
	return vat.LookupResult{
		Status:       vat.StatusUnknown,
		ErrorCode:    vat.CodeQuotaExceeded,
		ErrorMessage: vat.CodeQuotaExceeded,
	}
}

func TestDistribute_RoundRobin(t *testing.T) {
	in := vat.Batch{
		rec("a.csv", 1, vat.Italy, "IT1"),
		rec("a.csv", 2, vat.Italy, "IT2"),
		rec("a.csv", 3, vat.Germany, "DE1"),
		rec("a.csv", 4, vat.Italy, "IT3"),
		rec("a.csv", 5, vat.France, "FR1"),
		rec("a.csv", 6, vat.Germany, "DE2"),
	}

	out := Distribute(in)

	ids := make([]string, len(out))
	for i, r := range out {
		ids[i] = r.Identifier
	}
	assert.Equal(t, []string{"DE1", "FR1", "IT1", "DE2", "IT2", "IT3"}, ids)
}

func TestDistribute_DoesNotMutateInput(t *testing.T) {
	in := vat.Batch{
		rec("a.csv", 1, vat.Italy, "IT1"),
		rec("a.csv", 2, vat.Austria, "AT1"),
	}
	snapshot := append(vat.Batch(nil), in...)

	_ = Distribute(in)
	assert.Equal(t, snapshot, in)
}

func TestDistribute_PrefixDiversity(t *testing.T) {
	countries := []vat.CountryCode{vat.Italy, vat.Germany, vat.Spain, vat.Italy, vat.Italy, vat.Spain, vat.Poland, vat.Italy}
	var in vat.Batch
	for i, cc := range countries {
		in = append(in, rec("a.csv", i+1, cc, fmt.Sprintf("%s%d", cc, i)))
	}

	out := Distribute(in)
	require.Len(t, out, len(in))

	distinct := 4 // IT, DE, ES, PL
	seen := make(map[vat.CountryCode]bool)
	for _, r := range out[:distinct] {
		assert.False(t, seen[r.CountryCode], "country %s repeated in first round", r.CountryCode)
		seen[r.CountryCode] = true
	}

	// arrival order kept within a country
	var italy []int
	for _, r := range out {
		if r.CountryCode == vat.Italy {
			italy = append(italy, r.LineNumber)
		}
	}
	assert.Equal(t, []int{1, 4, 5, 8}, italy)
}

func TestDistribute_Empty(t *testing.T) {
	assert.Empty(t, Distribute(nil))
}

func TestPartition(t *testing.T) {
	rs := vat.ResultSet{
		{Record: rec("a.csv", 1, vat.Italy, "1"), Status: vat.StatusValid},
		{Record: rec("a.csv", 2, vat.Italy, "2"), Status: vat.StatusUnknown, ErrorCode: vat.CodeQuotaExceeded},
		{Record: rec("a.csv", 3, vat.Italy, "3"), Status: vat.StatusUnknown, ErrorCode: vat.CodeMemberUnavailable},
		{Record: rec("a.csv", 4, vat.Italy, "4"), Status: vat.StatusUnknown, ErrorMessage: "unreachable"},
		{Record: rec("a.csv", 5, vat.Italy, "5"), Status: vat.StatusInvalid},
		{Record: rec("a.csv", 6, vat.Italy, "6"), Status: vat.StatusUnknown, ErrorCode: vat.CodeGlobalQuotaExceeded},
	}

	settled, rejected := Partition(rs)

	require.Len(t, rejected, 1)
	assert.Equal(t, 2, rejected[0].Record.LineNumber)
	assert.Len(t, settled, 5)
	assert.Equal(t, len(rs), len(settled)+len(rejected))
}

func TestRunner_Run(t *testing.T) {
	l := newFakeLookuper()
	l.script("2", vat.LookupResult{Status: vat.StatusInvalid})
	l.script("3", quota())

	tracker := &fakeTracker{}
	runner, delays := newTestRunner(l, tracker)

	b := vat.Batch{
		rec("a.csv", 1, vat.Italy, "1"),
		rec("a.csv", 2, vat.Germany, "2"),
		rec("a.csv", 3, vat.Spain, "3"),
	}
	results, err := runner.Run(context.Background(), b, Pass{Number: FirstPass, Delay: 5 * time.Second})
	require.NoError(t, err)

	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, b[i], res.Record, "results keep batch order")
		assert.Equal(t, FirstPass, res.Pass)
	}
	assert.Equal(t, vat.StatusValid, results[0].Status)
	assert.Equal(t, vat.StatusInvalid, results[1].Status)
	assert.True(t, results[2].QuotaRejected())

	assert.Equal(t, []time.Duration{5 * time.Second}, *delays)
	assert.Equal(t, []vat.CountryCode{vat.Spain}, tracker.countries)
}

func TestRunner_TrackerErrorIsNotFatal(t *testing.T) {
	l := newFakeLookuper()
	l.script("1", quota())

	runner, _ := newTestRunner(l, &fakeTracker{err: errors.New("redis down")})
	results, err := runner.Run(context.Background(), vat.Batch{rec("a.csv", 1, vat.Italy, "1")}, DefaultPolicy().First())

	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRunner_LookupErrorAborts(t *testing.T) {
	l := newFakeLookuper()
	l.failAt = 1
	l.err = context.Canceled

	runner, _ := newTestRunner(l, nil)
	b := vat.Batch{
		rec("a.csv", 1, vat.Italy, "1"),
		rec("a.csv", 2, vat.Italy, "2"),
		rec("a.csv", 3, vat.Italy, "3"),
	}

	results, err := runner.Run(context.Background(), b, DefaultPolicy().First())
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}

func TestRunner_ContextCanceled(t *testing.T) {
	l := newFakeLookuper()
	runner, _ := newTestRunner(l, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, vat.Batch{rec("a.csv", 1, vat.Italy, "1")}, DefaultPolicy().First())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, l.identifiers())
}

func TestRunner_RealThrottle(t *testing.T) {
	l := newFakeLookuper()
	logger := zerolog.Nop()
	runner := NewRunner(l, Config{Logger: &logger})

	delay := 40 * time.Millisecond
	b := vat.Batch{
		rec("a.csv", 1, vat.Italy, "1"),
		rec("a.csv", 2, vat.Italy, "2"),
		rec("a.csv", 3, vat.Italy, "3"),
	}

	start := time.Now()
	_, err := runner.Run(context.Background(), b, Pass{Number: FirstPass, Delay: delay})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 2*delay-10*time.Millisecond)
}

func TestReconcile_NoRejections(t *testing.T) {
	l := newFakeLookuper()
	runner, delays := newTestRunner(l, nil)
	rc := NewReconciler(runner, DefaultPolicy())

	b := vat.Batch{
		rec("a.csv", 1, vat.Italy, "1"),
		rec("a.csv", 2, vat.Italy, "2"),
		rec("a.csv", 3, vat.Germany, "3"),
	}
	results, summary, err := rc.Reconcile(context.Background(), b)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, []time.Duration{5 * time.Second}, *delays, "only the first pass runs")
	assert.Equal(t, 3, summary.Settled)
	assert.Zero(t, summary.Retried)
	assert.Equal(t, 3, summary.Valid)
}

func TestReconcile_Scenario(t *testing.T) {
	// IT and DE rejected for quota in pass 1; IT succeeds in pass 2, DE is
	// rejected again and kept as final.
	l := newFakeLookuper()
	l.script("IT1", quota(), vat.LookupResult{Status: vat.StatusValid})
	l.script("DE1", quota(), quota())
	l.script("FR1", vat.LookupResult{Status: vat.StatusInvalid})

	runner, delays := newTestRunner(l, nil)
	rc := NewReconciler(runner, DefaultPolicy())

	b := vat.Batch{
		rec("a.csv", 1, vat.Italy, "IT1"),
		rec("a.csv", 2, vat.Germany, "DE1"),
		rec("a.csv", 4, vat.France, "FR1"),
	}
	results, summary, err := rc.Reconcile(context.Background(), b)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, []int{1, 2, 4}, []int{results[0].Record.LineNumber, results[1].Record.LineNumber, results[2].Record.LineNumber})

	assert.Equal(t, vat.StatusValid, results[0].Status)
	assert.Equal(t, RetryPass, results[0].Pass)

	assert.True(t, results[1].QuotaRejected(), "second rejection is final")
	assert.Equal(t, RetryPass, results[1].Pass)

	assert.Equal(t, vat.StatusInvalid, results[2].Status)
	assert.Equal(t, FirstPass, results[2].Pass)

	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, *delays)
	assert.Equal(t, []string{"DE1", "FR1", "IT1", "DE1", "IT1"}, l.identifiers())

	assert.Equal(t, Summary{
		Records:       3,
		Settled:       1,
		Retried:       2,
		StillRejected: 1,
		Valid:         1,
		Invalid:       1,
		Unknown:       1,
		Duration:      summary.Duration,
	}, summary)
}

func TestReconcile_SingleRetryBound(t *testing.T) {
	l := newFakeLookuper()
	var b vat.Batch
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("X%d", i)
		l.script(id, quota())
		b = append(b, rec("a.csv", i, vat.Italy, id))
	}

	runner, _ := newTestRunner(l, nil)
	rc := NewReconciler(runner, DefaultPolicy())

	results, summary, err := rc.Reconcile(context.Background(), b)
	require.NoError(t, err)

	assert.Len(t, l.identifiers(), 10, "each record is looked up at most twice")
	assert.Len(t, results, 5)
	assert.Equal(t, 5, summary.StillRejected)
	for _, res := range results {
		assert.Equal(t, RetryPass, res.Pass)
	}
}

func TestReconcile_OrderingAndConservation(t *testing.T) {
	l := newFakeLookuper()
	countries := []vat.CountryCode{vat.Spain, vat.Italy, vat.Austria, vat.Italy, vat.Spain, vat.Belgium, vat.Italy}

	var b vat.Batch
	for i, cc := range countries {
		id := fmt.Sprintf("%s%d", cc, i)
		if i%3 == 0 {
			l.script(id, quota(), vat.LookupResult{Status: vat.StatusValid})
		}
		b = append(b, rec("b.csv", i+1, cc, id))
	}
	// a second file sorts before b.csv
	b = append(b, rec("a.csv", 9, vat.Italy, "late"))

	runner, _ := newTestRunner(l, nil)
	rc := NewReconciler(runner, DefaultPolicy())

	results, summary, err := rc.Reconcile(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, results, len(b))
	assert.Equal(t, len(b), summary.Records)

	assert.Equal(t, "a.csv", results[0].Record.SourceFile)
	for i := 2; i < len(results); i++ {
		assert.Less(t, results[i-1].Record.LineNumber, results[i].Record.LineNumber)
	}

	seen := make(map[string]int)
	for _, res := range results {
		seen[res.Record.Identifier]++
	}
	for _, r := range b {
		assert.Equal(t, 1, seen[r.Identifier], "record %s must appear exactly once", r.Identifier)
	}
}

func TestReconcile_Empty(t *testing.T) {
	l := newFakeLookuper()
	runner, delays := newTestRunner(l, nil)
	rc := NewReconciler(runner, DefaultPolicy())

	results, summary, err := rc.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, summary.Records)
	assert.Empty(t, *delays)
}

func TestReconcile_CanceledDuringRetry(t *testing.T) {
	l := newFakeLookuper()
	l.script("1", quota())
	l.failAt = 1
	l.err = context.DeadlineExceeded

	runner, _ := newTestRunner(l, nil)
	rc := NewReconciler(runner, DefaultPolicy())

	_, _, err := rc.Reconcile(context.Background(), vat.Batch{rec("a.csv", 1, vat.Italy, "1")})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, Pass{Number: FirstPass, Delay: 5 * time.Second}, p.First())
	assert.Equal(t, Pass{Number: RetryPass, Delay: 10 * time.Second, Cooldown: true}, p.Retry())
}

func TestReconcile_RetryWaitsExtendedDelay(t *testing.T) {
	// A single record rejected in pass 1 is its own last call; the retry
	// must still come at least ExtendedDelay later.
	l := newFakeLookuper()
	l.script("IT1", quota(), vat.LookupResult{Status: vat.StatusValid})

	logger := zerolog.Nop()
	runner := NewRunner(l, Config{Logger: &logger})
	policy := Policy{StandardDelay: 30 * time.Millisecond, ExtendedDelay: 80 * time.Millisecond}
	rc := NewReconciler(runner, policy)

	results, _, err := rc.Reconcile(context.Background(), vat.Batch{rec("a.csv", 1, vat.Italy, "IT1")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, vat.StatusValid, results[0].Status)

	require.Len(t, l.at, 2)
	assert.GreaterOrEqual(t, l.at[1].Sub(l.at[0]), policy.ExtendedDelay)
}

func TestRunner_WithLogger(t *testing.T) {
	var base, scoped bytes.Buffer
	baseLogger := zerolog.New(&base)
	runner := NewRunner(newFakeLookuper(), Config{Logger: &baseLogger})
	tagged := runner.WithLogger(zerolog.New(&scoped).With().Str("run_id", "r-1").Logger())

	_, err := tagged.Run(context.Background(), vat.Batch{rec("a.csv", 1, vat.Italy, "1")}, Pass{Number: FirstPass})
	require.NoError(t, err)

	assert.Empty(t, base.String())
	assert.Contains(t, scoped.String(), `"run_id":"r-1"`)
	assert.Contains(t, scoped.String(), `"component":"batch"`)
}

func TestRunner_CooldownPass(t *testing.T) {
	l := newFakeLookuper()
	logger := zerolog.Nop()
	runner := NewRunner(l, Config{Logger: &logger})

	delay := 50 * time.Millisecond
	start := time.Now()
	_, err := runner.Run(context.Background(), vat.Batch{rec("a.csv", 1, vat.Italy, "1")},
		Pass{Number: RetryPass, Delay: delay, Cooldown: true})
	require.NoError(t, err)

	require.Len(t, l.at, 1)
	assert.GreaterOrEqual(t, l.at[0].Sub(start), delay-time.Millisecond)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "valid", outcome(vat.LookupResult{Status: vat.StatusValid}))
	assert.Equal(t, "invalid", outcome(vat.LookupResult{Status: vat.StatusInvalid}))
	assert.Equal(t, "unknown", outcome(vat.LookupResult{Status: vat.StatusUnknown}))
	assert.Equal(t, "quota", outcome(quota()))
}
