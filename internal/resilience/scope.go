package resilience

import (
	"errors"
	"fmt"
)

// Scope is the smallest unit of work a failure abandons.
type Scope string

const (
	// ScopeItem skips the current work item. It stays unledgered and is
	// retried next run.
	ScopeItem Scope = "skip_item"
	// ScopeSource abandons one upstream source for the rest of the run.
	ScopeSource Scope = "skip_source"
	// ScopeTenant aborts the tenant's remaining phases for this run.
	ScopeTenant Scope = "skip_tenant"
)

// CallFailure is returned by Invoke once an external call has failed for
// good, either after retries ran out or on a permanent error.
type CallFailure struct {
	Op       string
	Scope    Scope
	Attempts int
	Err      error
}

func (f *CallFailure) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) [%s]: %v", f.Op, f.Attempts, f.Scope, f.Err)
}

func (f *CallFailure) Unwrap() error {
	return f.Err
}

type escalated struct {
	err   error
	scope Scope
}

func (e *escalated) Error() string { return e.err.Error() }
func (e *escalated) Unwrap() error { return e.err }

// Escalate tags err with a scope that overrides the calling operation's
// default, e.g. a rejected credential that should stop the whole source.
func Escalate(err error, scope Scope) error {
	if err == nil {
		return nil
	}
	return &escalated{err: err, scope: scope}
}

// ScopeOf returns the scope carried by err. Errors without one are item
// scoped.
func ScopeOf(err error) Scope {
	if err == nil {
		return ""
	}
	var esc *escalated
	if errors.As(err, &esc) {
		return esc.scope
	}
	var cf *CallFailure
	if errors.As(err, &cf) {
		return cf.Scope
	}
	return ScopeItem
}
