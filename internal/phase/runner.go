// Package phase runs one pipeline phase for one tenant: enumerate work
// items, skip what the phase ledger already holds, apply tenant filters,
// cap, process, and record. The ledger write after a successful process is
// the commit point; an item is never recorded before its work is durable.
package phase

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/internal/ledger"
	"github.com/sells-group/jobpipe/internal/model"
	"github.com/sells-group/jobpipe/internal/resilience"
)

// Candidate is one enumerated work item.
type Candidate[T any] struct {
	Fingerprint string
	// Origin is recorded in the ledger entry, e.g. the source name.
	Origin string
	// Label names the item in logs and dry-run output.
	Label string
	Item  T
	// Err marks an item that could not be loaded. It counts as failed
	// without reaching the worker.
	Err error
}

// Filter reports whether an item passes, and if not, why.
type Filter[T any] func(T) (bool, string)

// Outcome is what a worker reports for a processed item.
type Outcome struct {
	Status string
	Meta   map[string]string
}

// Worker processes one item at a time.
type Worker[T any] interface {
	Process(ctx context.Context, c Candidate[T]) (Outcome, error)
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc[T any] func(ctx context.Context, c Candidate[T]) (Outcome, error)

// Process implements Worker.
func (f WorkerFunc[T]) Process(ctx context.Context, c Candidate[T]) (Outcome, error) {
	return f(ctx, c)
}

// BatchWorker processes every surviving item in one call. On success each
// item is recorded with the returned outcome.
type BatchWorker[T any] interface {
	ProcessBatch(ctx context.Context, cs []Candidate[T]) (Outcome, error)
}

// Runner drives one phase over a candidate sequence.
type Runner[T any] struct {
	Name    string
	Ledger  ledger.Ledger
	Filters []Filter[T]
	// Limit caps processed items per run. Zero or less means no cap.
	Limit  int
	DryRun bool
	// Preview receives the surviving items of a batch dry run.
	Preview func(ctx context.Context, cs []Candidate[T]) error
	Log     *zap.Logger
}

func (r *Runner[T]) log() *zap.Logger {
	if r.Log != nil {
		return r.Log.With(zap.String("phase", r.Name))
	}
	return zap.L().With(zap.String("phase", r.Name))
}

// Fatal builds the result of a phase that could not start because its
// ledger failed.
func Fatal(name string, err error) model.PhaseResult {
	return model.PhaseResult{
		Name:   name,
		Status: model.PhaseStatusFailed,
		Error:  err.Error(),
		Fatal:  true,
	}
}

// Skipped builds the result of a phase that did not run.
func Skipped(name, reason string) model.PhaseResult {
	return model.PhaseResult{
		Name:     name,
		Status:   model.PhaseStatusSkipped,
		Metadata: map[string]any{"reason": reason},
	}
}

// screenState tracks steps 2-4: dedup, ledger check, filters and cap.
type screenState[T any] struct {
	r       *Runner[T]
	res     *model.PhaseResult
	seen    map[string]bool
	taken   int
	pending []string
}

// admit reports whether c survives screening. A ledger error is returned
// as is and must stop the phase.
func (s *screenState[T]) admit(ctx context.Context, c Candidate[T]) (bool, error) {
	if s.seen[c.Fingerprint] {
		return false, nil
	}
	s.seen[c.Fingerprint] = true

	has, err := s.r.Ledger.Has(ctx, c.Fingerprint)
	if err != nil {
		return false, err
	}
	if has {
		s.res.AlreadySeen++
		return false, nil
	}

	if c.Err != nil {
		s.res.Failed++
		s.res.Failures = append(s.res.Failures, model.ItemFailure{Fingerprint: c.Fingerprint, Reason: c.Err.Error()})
		return false, nil
	}

	for _, f := range s.r.Filters {
		if ok, reason := f(c.Item); !ok {
			s.res.Filtered++
			s.r.log().Debug("phase: filtered", zap.String("fingerprint", c.Fingerprint), zap.String("item", c.Label), zap.String("reason", reason))
			return false, nil
		}
	}

	if s.r.Limit > 0 && s.taken >= s.r.Limit {
		s.res.Capped++
		return false, nil
	}
	s.taken++
	if s.r.DryRun {
		s.pending = append(s.pending, c.Label)
	}
	return true, nil
}

func (r *Runner[T]) start() (*model.PhaseResult, *screenState[T]) {
	res := &model.PhaseResult{Name: r.Name, DryRun: r.DryRun}
	return res, &screenState[T]{r: r, res: res, seen: make(map[string]bool)}
}

func (r *Runner[T]) finish(res *model.PhaseResult, st *screenState[T], started time.Time) model.PhaseResult {
	res.Duration = time.Since(started).Milliseconds()
	if res.Fatal || res.Aborted {
		res.Status = model.PhaseStatusFailed
	} else {
		res.Status = model.PhaseStatusComplete
	}
	if r.DryRun {
		if res.Metadata == nil {
			res.Metadata = map[string]any{}
		}
		res.Metadata["pending"] = len(st.pending)
		res.Metadata["pending_items"] = st.pending
	}

	r.log().Info("phase: finished",
		zap.String("status", string(res.Status)),
		zap.Int("attempted", res.Attempted),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("rejected", res.Rejected),
		zap.Int("already_seen", res.AlreadySeen),
		zap.Int("filtered", res.Filtered),
		zap.Int("capped", res.Capped),
		zap.Int64("duration_ms", res.Duration),
	)
	return *res
}

func (r *Runner[T]) stopFatal(res *model.PhaseResult, err error) {
	res.Fatal = true
	res.Error = err.Error()
	r.log().Error("phase: ledger failure, stopping", zap.Error(err))
}

func (r *Runner[T]) interrupted(res *model.PhaseResult) {
	res.Aborted = true
	res.Error = "interrupted"
	r.log().Warn("phase: interrupted, stopping before next item")
}

// record commits an item. It reports false when the ledger failed.
func (r *Runner[T]) record(ctx context.Context, res *model.PhaseResult, c Candidate[T], out Outcome) bool {
	_, _, err := r.Ledger.Record(ctx, ledger.Entry{
		Fingerprint: c.Fingerprint,
		Origin:      c.Origin,
		Status:      out.Status,
		Meta:        out.Meta,
	})
	if err != nil {
		r.stopFatal(res, err)
		return false
	}
	if out.Status == ledger.StatusRejected {
		res.Rejected++
	} else {
		res.Succeeded++
	}
	return true
}

// fail classifies a worker error. It reports whether the phase must abort.
func (r *Runner[T]) fail(res *model.PhaseResult, fps []string, err error) bool {
	scope := resilience.ScopeOf(err)
	if scope == resilience.ScopeTenant {
		res.Aborted = true
		res.Error = err.Error()
		r.log().Error("phase: aborting tenant", zap.Error(err))
		return true
	}
	for _, fp := range fps {
		res.Failed++
		res.Failures = append(res.Failures, model.ItemFailure{Fingerprint: fp, Reason: err.Error()})
	}
	r.log().Warn("phase: item failed", zap.Strings("fingerprints", fps), zap.String("scope", string(scope)), zap.Error(err))
	return false
}

// Run processes the sequence one item at a time. It never panics outward
// and never returns an error: every outcome is in the result.
func (r *Runner[T]) Run(ctx context.Context, seq iter.Seq[Candidate[T]], w Worker[T]) model.PhaseResult {
	started := time.Now()
	res, st := r.start()
	// Work in flight finishes even after a signal; the loop checks ctx
	// between items.
	work := context.WithoutCancel(ctx)

	for c := range seq {
		if ctx.Err() != nil {
			r.interrupted(res)
			break
		}
		ok, err := st.admit(work, c)
		if err != nil {
			r.stopFatal(res, err)
			break
		}
		if !ok || r.DryRun {
			continue
		}

		res.Attempted++
		out, err := w.Process(work, c)
		if err != nil {
			if r.fail(res, []string{c.Fingerprint}, err) {
				break
			}
			continue
		}
		if !r.record(work, res, c, out) {
			break
		}
	}
	return r.finish(res, st, started)
}

// RunBatch screens the whole sequence, then hands the survivors to w in a
// single call.
func (r *Runner[T]) RunBatch(ctx context.Context, seq iter.Seq[Candidate[T]], w BatchWorker[T]) model.PhaseResult {
	started := time.Now()
	res, st := r.start()
	work := context.WithoutCancel(ctx)

	var batch []Candidate[T]
	for c := range seq {
		if ctx.Err() != nil {
			r.interrupted(res)
			return r.finish(res, st, started)
		}
		ok, err := st.admit(work, c)
		if err != nil {
			r.stopFatal(res, err)
			return r.finish(res, st, started)
		}
		if ok {
			batch = append(batch, c)
		}
	}

	if r.DryRun {
		if r.Preview != nil && len(batch) > 0 {
			if err := r.Preview(work, batch); err != nil {
				r.log().Warn("phase: preview failed", zap.Error(err))
				res.Error = err.Error()
			}
		}
		return r.finish(res, st, started)
	}
	if len(batch) == 0 {
		return r.finish(res, st, started)
	}

	res.Attempted = len(batch)
	out, err := w.ProcessBatch(work, batch)
	if err != nil {
		fps := make([]string, len(batch))
		for i, c := range batch {
			fps[i] = c.Fingerprint
		}
		r.fail(res, fps, err)
		return r.finish(res, st, started)
	}
	for _, c := range batch {
		if !r.record(work, res, c, out) {
			break
		}
	}
	return r.finish(res, st, started)
}
