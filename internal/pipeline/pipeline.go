// Package pipeline drives every active tenant through acquisition,
// transformation and delivery, one tenant and one phase at a time.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobpipe/internal/ledger"
	"github.com/sells-group/jobpipe/internal/model"
	"github.com/sells-group/jobpipe/internal/phase"
	"github.com/sells-group/jobpipe/internal/tenant"
)

// ErrFatal is returned by RunAll when a tenant hit a ledger failure. No
// further tenant is started.
var ErrFatal = eris.New("pipeline: fatal ledger failure")

// Phases lists the ledger names in run order.
var Phases = [3]string{model.PhaseAcquisition, model.PhaseTransformation, model.PhaseDelivery}

// Options select phases and bound the work of one run.
type Options struct {
	// Only restricts the run to one phase by name.
	Only       string
	FetchOnly  bool
	SkipFetch  bool
	NoEmail    bool
	NoURLCheck bool
	DryRun     bool

	TailorLimit int
	NotifyLimit int
	MinMatch    int
	Since       time.Time

	Source string
	JDGlob string
}

// Acquirer runs acquisition against the tenant's acquisition ledger.
type Acquirer interface {
	Run(ctx context.Context, t *tenant.Tenant, led ledger.Ledger, opts phase.AcquireOptions, log *zap.Logger) model.PhaseResult
}

// Transformer runs transformation over the acquisition ledger.
type Transformer interface {
	Run(ctx context.Context, t *tenant.Tenant, set *ledger.Set, opts phase.TransformOptions, log *zap.Logger) model.PhaseResult
}

// Deliverer runs delivery over the transformation ledger.
type Deliverer interface {
	Run(ctx context.Context, t *tenant.Tenant, set *ledger.Set, opts phase.DeliverOptions, log *zap.Logger) model.PhaseResult
}

// Pipeline runs tenants through the three phases.
type Pipeline struct {
	tenants   *tenant.Manager
	driver    ledger.Driver
	acquire   Acquirer
	transform Transformer
	deliver   Deliverer
}

// New creates a Pipeline.
func New(m *tenant.Manager, driver ledger.Driver, a Acquirer, x Transformer, d Deliverer) *Pipeline {
	return &Pipeline{tenants: m, driver: driver, acquire: a, transform: x, deliver: d}
}

// RunAll runs every tenant active at now, sorted by slug. A tenant's
// failure never stops the others, except a fatal ledger failure, which
// stops the run and returns ErrFatal with the results so far.
func (p *Pipeline) RunAll(ctx context.Context, now time.Time, opts Options) ([]model.TenantResult, error) {
	active, err := p.tenants.ActiveTenants(now)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list tenants")
	}
	zap.L().Info("pipeline: starting run", zap.Int("tenants", len(active)))

	results := make([]model.TenantResult, 0, len(active))
	for _, t := range active {
		if ctx.Err() != nil {
			zap.L().Warn("pipeline: interrupted, not starting remaining tenants", zap.Int("remaining", len(active)-len(results)))
			break
		}
		res := p.RunTenant(ctx, t, opts)
		results = append(results, res)
		if res.Fatal {
			zap.L().Error("pipeline: fatal failure, stopping run", zap.String("tenant", t.Slug), zap.String("error", res.Error))
			return results, ErrFatal
		}
	}
	return results, nil
}

// RunTenant runs one tenant regardless of its lifecycle. It never returns
// an error: failures, including panics, end up in the result.
func (p *Pipeline) RunTenant(ctx context.Context, t *tenant.Tenant, opts Options) (result model.TenantResult) {
	result = model.TenantResult{
		Tenant:    t.Slug,
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := zap.L().With(zap.String("tenant", t.Slug), zap.String("run_id", result.RunID))

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("panic: %v", r)
			log.Error("pipeline: tenant run panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	unlock, err := tenant.Lock(t)
	if err != nil {
		result.Error = err.Error()
		log.Warn("pipeline: tenant locked", zap.Error(err))
		return result
	}
	defer unlock()

	set, err := ledger.OpenSet(ctx, p.driver, t.Dir, Phases)
	if err != nil {
		result.Error = err.Error()
		result.Fatal = true
		log.Error("pipeline: open ledgers", zap.Error(err))
		return result
	}
	defer func() {
		if err := set.Close(); err != nil {
			log.Warn("pipeline: close ledgers", zap.Error(err))
		}
	}()

	log.Info("pipeline: tenant run starting")
	stopped := false
	trackPhase := func(name string, fn func() model.PhaseResult) {
		if reason := p.skipReason(name, opts, stopped); reason != "" {
			result.Phases = append(result.Phases, phase.Skipped(name, reason))
			return
		}

		pr := fn()
		pr.Name = name
		if pr.Status == model.PhaseStatusFailed {
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", pr.Duration),
				zap.String("error", pr.Error),
			)
		} else {
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.String("status", string(pr.Status)),
				zap.Int64("duration_ms", pr.Duration),
			)
		}
		if pr.Stopped() {
			stopped = true
			result.Error = pr.Error
			result.Fatal = result.Fatal || pr.Fatal
		}
		result.Phases = append(result.Phases, pr)
	}

	trackPhase(model.PhaseAcquisition, func() model.PhaseResult {
		return p.acquire.Run(ctx, t, set.Acquisition, phase.AcquireOptions{
			DryRun:     opts.DryRun,
			NoURLCheck: opts.NoURLCheck,
			Source:     opts.Source,
		}, log)
	})
	trackPhase(model.PhaseTransformation, func() model.PhaseResult {
		return p.transform.Run(ctx, t, set, phase.TransformOptions{
			DryRun: opts.DryRun,
			Limit:  opts.TailorLimit,
			JDGlob: opts.JDGlob,
		}, log)
	})
	trackPhase(model.PhaseDelivery, func() model.PhaseResult {
		return p.deliver.Run(ctx, t, set, phase.DeliverOptions{
			DryRun:   opts.DryRun,
			NoEmail:  opts.NoEmail,
			Limit:    opts.NotifyLimit,
			MinMatch: opts.MinMatch,
			Since:    opts.Since,
		}, log)
	})

	log.Info("pipeline: tenant run finished", zap.Bool("fatal", result.Fatal), zap.String("error", result.Error))
	return result
}

// skipReason returns why a phase does not run, or "" when it does.
func (p *Pipeline) skipReason(name string, opts Options, stopped bool) string {
	switch {
	case stopped:
		return "earlier phase stopped"
	case opts.Only != "" && opts.Only != name:
		return "not selected"
	case opts.SkipFetch && name == model.PhaseAcquisition:
		return "skip fetch"
	case opts.FetchOnly && name != model.PhaseAcquisition:
		return "fetch only"
	default:
		return ""
	}
}
