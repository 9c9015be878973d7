package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Budget bounds one external call: a hard per-attempt timeout, a number of
// additional attempts for transient failures, and the base retry delay.
// Worst case a call blocks for Timeout*(1+MaxRetries) plus backoff.
type Budget struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	// Multiplier grows the delay between retries. Zero means 2.
	Multiplier float64
}

// NewBudget builds a Budget from config-style integers.
func NewBudget(timeoutSecs, maxRetries, backoffMs int) Budget {
	b := Budget{
		Timeout:     time.Duration(timeoutSecs) * time.Second,
		MaxRetries:  maxRetries,
		BackoffBase: time.Duration(backoffMs) * time.Millisecond,
	}
	if b.MaxRetries < 0 {
		b.MaxRetries = 0
	}
	return b
}

func (b Budget) retryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = b.MaxRetries + 1
	if b.BackoffBase > 0 {
		cfg.InitialBackoff = b.BackoffBase
	}
	if b.Multiplier > 0 {
		cfg.Multiplier = b.Multiplier
	}
	cfg.JitterFraction = 0.1
	return cfg
}

// Op describes an external call.
type Op struct {
	// Name identifies the call in logs and failures, e.g. "jsearch: search".
	Name string
	// Scope is the default scope reported when the call fails.
	Scope Scope
	// Breaker optionally fails the call fast while its service is unhealthy.
	Breaker *CircuitBreaker
	// Fields are attached to retry log lines.
	Fields []zap.Field
}

// Invoke runs fn under budget. Each attempt gets its own deadline. Transient
// failures and timeouts are retried; anything else fails at once. The
// returned error is always a *CallFailure.
func Invoke[T any](ctx context.Context, op Op, budget Budget, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := 0
	attempt := func(ctx context.Context) (T, error) {
		attempts++
		actx, cancel := ctx, context.CancelFunc(func() {})
		if budget.Timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, budget.Timeout)
		}
		defer cancel()

		val, err := fn(actx)
		if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			err = NewTransientError(eris.Wrapf(err, "%s: attempt timed out after %s", op.Name, budget.Timeout), 0)
		}
		return val, err
	}

	call := attempt
	if op.Breaker != nil {
		call = func(ctx context.Context) (T, error) {
			return ExecuteVal(ctx, op.Breaker, attempt)
		}
	}

	cfg := budget.retryConfig()
	cfg.OnRetry = RetryLogger(op.Name, op.Fields...)

	val, err := DoVal(ctx, cfg, call)
	if err == nil {
		return val, nil
	}

	var zero T
	return zero, &CallFailure{Op: op.Name, Scope: scopeFor(err, op.Scope), Attempts: attempts, Err: err}
}

func scopeFor(err error, fallback Scope) Scope {
	var esc *escalated
	if errors.As(err, &esc) {
		return esc.scope
	}
	if errors.Is(err, ErrCircuitOpen) {
		return ScopeSource
	}
	if fallback == "" {
		return ScopeItem
	}
	return fallback
}
