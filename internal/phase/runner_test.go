package phase

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobpipe/internal/ledger"
	"github.com/sells-group/jobpipe/internal/model"
	"github.com/sells-group/jobpipe/internal/resilience"
)

// memLedger is an in-memory ledger whose operations can be made to fail.
type memLedger struct {
	name    string
	entries map[string]ledger.Entry
	order   []string

	hasErr    error
	recordErr error
	allErr    error
}

func newMemLedger(name string) *memLedger {
	return &memLedger{name: name, entries: map[string]ledger.Entry{}}
}

var ledgerEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func (l *memLedger) Name() string { return l.name }

func (l *memLedger) Has(_ context.Context, fp string) (bool, error) {
	if l.hasErr != nil {
		return false, l.hasErr
	}
	_, ok := l.entries[fp]
	return ok, nil
}

func (l *memLedger) Get(_ context.Context, fp string) (ledger.Entry, bool, error) {
	e, ok := l.entries[fp]
	return e, ok, nil
}

func (l *memLedger) Record(_ context.Context, e ledger.Entry) (ledger.Entry, bool, error) {
	if l.recordErr != nil {
		return ledger.Entry{}, false, l.recordErr
	}
	if got, ok := l.entries[e.Fingerprint]; ok {
		return got, false, nil
	}
	if e.FirstSeenAt.IsZero() {
		e.FirstSeenAt = ledgerEpoch.Add(time.Duration(len(l.order)) * time.Second)
	}
	l.entries[e.Fingerprint] = e
	l.order = append(l.order, e.Fingerprint)
	return e, true, nil
}

func (l *memLedger) All(_ context.Context) ([]ledger.Entry, error) {
	if l.allErr != nil {
		return nil, l.allErr
	}
	out := make([]ledger.Entry, 0, len(l.order))
	for _, fp := range l.order {
		out = append(out, l.entries[fp])
	}
	return out, nil
}

func (l *memLedger) Close() error { return nil }

func newMemSet() (*ledger.Set, *memLedger, *memLedger, *memLedger) {
	a := newMemLedger(model.PhaseAcquisition)
	x := newMemLedger(model.PhaseTransformation)
	d := newMemLedger(model.PhaseDelivery)
	return &ledger.Set{Acquisition: a, Transformation: x, Delivery: d}, a, x, d
}

func items(names ...string) iter.Seq[Candidate[string]] {
	return func(yield func(Candidate[string]) bool) {
		for _, n := range names {
			if !yield(Candidate[string]{Fingerprint: n, Origin: "test", Label: n, Item: n}) {
				return
			}
		}
	}
}

func accept(_ context.Context, c Candidate[string]) (Outcome, error) {
	return Outcome{Status: ledger.StatusAccepted}, nil
}

func TestRunner_Idempotent(t *testing.T) {
	led := newMemLedger("p")
	r := &Runner[string]{Name: "p", Ledger: led}

	first := r.Run(context.Background(), items("a", "b", "a"), WorkerFunc[string](accept))
	assert.Equal(t, model.PhaseStatusComplete, first.Status)
	assert.Equal(t, 2, first.Attempted)
	assert.Equal(t, 2, first.Succeeded)
	assert.Equal(t, []string{"a", "b"}, led.order)

	calls := 0
	second := r.Run(context.Background(), items("a", "b"), WorkerFunc[string](func(ctx context.Context, c Candidate[string]) (Outcome, error) {
		calls++
		return accept(ctx, c)
	}))
	assert.Zero(t, calls)
	assert.Zero(t, second.Attempted)
	assert.Equal(t, 2, second.AlreadySeen)
	assert.Equal(t, model.PhaseStatusComplete, second.Status)
}

func TestRunner_FiltersAndCap(t *testing.T) {
	led := newMemLedger("p")
	r := &Runner[string]{
		Name:   "p",
		Ledger: led,
		Filters: []Filter[string]{func(s string) (bool, string) {
			return s != "spam", "spam"
		}},
		Limit: 2,
	}

	res := r.Run(context.Background(), items("a", "spam", "b", "c"), WorkerFunc[string](accept))
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Filtered)
	assert.Equal(t, 1, res.Capped)
	_, ok := led.entries["c"]
	assert.False(t, ok, "capped item must stay pending")
}

func TestRunner_RejectedCounts(t *testing.T) {
	led := newMemLedger("p")
	r := &Runner[string]{Name: "p", Ledger: led}

	res := r.Run(context.Background(), items("good", "bad"), WorkerFunc[string](func(_ context.Context, c Candidate[string]) (Outcome, error) {
		if c.Item == "bad" {
			return Outcome{Status: ledger.StatusRejected, Meta: map[string]string{MetaReason: "nope"}}, nil
		}
		return Outcome{Status: ledger.StatusAccepted}, nil
	}))
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, "nope", led.entries["bad"].Meta[MetaReason])
}

func TestRunner_ItemFailureLeavesItemPending(t *testing.T) {
	led := newMemLedger("p")
	r := &Runner[string]{Name: "p", Ledger: led}

	res := r.Run(context.Background(), items("a", "b", "c"), WorkerFunc[string](func(ctx context.Context, c Candidate[string]) (Outcome, error) {
		if c.Item == "b" {
			return Outcome{}, errors.New("model overloaded")
		}
		return accept(ctx, c)
	}))
	assert.Equal(t, model.PhaseStatusComplete, res.Status)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "b", res.Failures[0].Fingerprint)
	assert.Equal(t, []string{"a", "c"}, led.order)
}

func TestRunner_LoadErrorCountsFailed(t *testing.T) {
	led := newMemLedger("p")
	r := &Runner[string]{Name: "p", Ledger: led}
	seq := func(yield func(Candidate[string]) bool) {
		yield(Candidate[string]{Fingerprint: "x", Err: errors.New("missing posting")})
	}

	res := r.Run(context.Background(), seq, WorkerFunc[string](accept))
	assert.Zero(t, res.Attempted)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, led.order)
}

func TestRunner_TenantScopeAborts(t *testing.T) {
	led := newMemLedger("p")
	r := &Runner[string]{Name: "p", Ledger: led}

	calls := 0
	res := r.Run(context.Background(), items("a", "b"), WorkerFunc[string](func(context.Context, Candidate[string]) (Outcome, error) {
		calls++
		return Outcome{}, resilience.Escalate(errors.New("bad credentials"), resilience.ScopeTenant)
	}))
	assert.Equal(t, 1, calls)
	assert.True(t, res.Aborted)
	assert.False(t, res.Fatal)
	assert.Equal(t, model.PhaseStatusFailed, res.Status)
	assert.True(t, res.Stopped())
}

func TestRunner_LedgerFailureIsFatal(t *testing.T) {
	t.Run("record", func(t *testing.T) {
		led := newMemLedger("p")
		led.recordErr = errors.New("disk full")
		r := &Runner[string]{Name: "p", Ledger: led}

		calls := 0
		res := r.Run(context.Background(), items("a", "b"), WorkerFunc[string](func(ctx context.Context, c Candidate[string]) (Outcome, error) {
			calls++
			return accept(ctx, c)
		}))
		assert.Equal(t, 1, calls)
		assert.True(t, res.Fatal)
		assert.Equal(t, model.PhaseStatusFailed, res.Status)
		assert.Contains(t, res.Error, "disk full")
	})

	t.Run("has", func(t *testing.T) {
		led := newMemLedger("p")
		led.hasErr = errors.New("corrupt")
		r := &Runner[string]{Name: "p", Ledger: led}

		res := r.Run(context.Background(), items("a"), WorkerFunc[string](accept))
		assert.True(t, res.Fatal)
		assert.Zero(t, res.Attempted)
	})
}

func TestRunner_DryRun(t *testing.T) {
	led := newMemLedger("p")
	_, _, _ = led.Record(context.Background(), ledger.Entry{Fingerprint: "old"})
	r := &Runner[string]{Name: "p", Ledger: led, DryRun: true}

	calls := 0
	res := r.Run(context.Background(), items("old", "a", "b"), WorkerFunc[string](func(ctx context.Context, c Candidate[string]) (Outcome, error) {
		calls++
		return accept(ctx, c)
	}))
	assert.Zero(t, calls)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.AlreadySeen)
	assert.Equal(t, 2, res.Metadata["pending"])
	assert.Equal(t, []string{"a", "b"}, res.Metadata["pending_items"])
	assert.Equal(t, []string{"old"}, led.order)
}

func TestRunner_CancelledStopsBeforeNextItem(t *testing.T) {
	led := newMemLedger("p")
	r := &Runner[string]{Name: "p", Ledger: led}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := r.Run(ctx, items("a", "b", "c"), WorkerFunc[string](func(wctx context.Context, c Candidate[string]) (Outcome, error) {
		cancel()
		assert.NoError(t, wctx.Err(), "work in flight keeps its context")
		return accept(wctx, c)
	}))
	assert.True(t, res.Aborted)
	assert.Equal(t, "interrupted", res.Error)
	assert.Equal(t, []string{"a"}, led.order)
}

type batchFunc func(ctx context.Context, cs []Candidate[string]) (Outcome, error)

func (f batchFunc) ProcessBatch(ctx context.Context, cs []Candidate[string]) (Outcome, error) {
	return f(ctx, cs)
}

func TestRunBatch(t *testing.T) {
	led := newMemLedger("p")
	r := &Runner[string]{Name: "p", Ledger: led}

	var got []string
	res := r.RunBatch(context.Background(), items("a", "b"), batchFunc(func(_ context.Context, cs []Candidate[string]) (Outcome, error) {
		for _, c := range cs {
			got = append(got, c.Item)
		}
		return Outcome{Status: ledger.StatusDelivered}, nil
	}))
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, ledger.StatusDelivered, led.entries["b"].Status)

	calls := 0
	res = r.RunBatch(context.Background(), items("a", "b"), batchFunc(func(context.Context, []Candidate[string]) (Outcome, error) {
		calls++
		return Outcome{}, nil
	}))
	assert.Zero(t, calls, "empty batch is not sent")
	assert.Equal(t, model.PhaseStatusComplete, res.Status)
}

func TestRunBatch_FailureLeavesAllPending(t *testing.T) {
	led := newMemLedger("p")
	r := &Runner[string]{Name: "p", Ledger: led}

	res := r.RunBatch(context.Background(), items("a", "b"), batchFunc(func(context.Context, []Candidate[string]) (Outcome, error) {
		return Outcome{}, errors.New("smtp 421")
	}))
	assert.Equal(t, 2, res.Failed)
	assert.Empty(t, led.order)
}

func TestRunBatch_DryRunPreview(t *testing.T) {
	led := newMemLedger("p")
	var previewed []string
	r := &Runner[string]{
		Name:   "p",
		Ledger: led,
		DryRun: true,
		Preview: func(_ context.Context, cs []Candidate[string]) error {
			for _, c := range cs {
				previewed = append(previewed, c.Label)
			}
			return nil
		},
	}

	res := r.RunBatch(context.Background(), items("a", "b"), batchFunc(func(context.Context, []Candidate[string]) (Outcome, error) {
		t.Fatal("dry run must not process")
		return Outcome{}, nil
	}))
	assert.Equal(t, []string{"a", "b"}, previewed)
	assert.Equal(t, 2, res.Metadata["pending"])
	assert.Empty(t, led.order)
}

func TestCapOf(t *testing.T) {
	assert.Equal(t, 5, capOf(0, 5))
	assert.Equal(t, 10, capOf(10, 0))
	assert.Equal(t, 3, capOf(10, 3))
	assert.Zero(t, capOf(0, 0))
}
