package model

import "time"

// PhaseStatus represents the outcome of a single phase for one tenant.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// Phase names, also used as ledger names.
const (
	PhaseAcquisition    = "acquisition"
	PhaseTransformation = "transformation"
	PhaseDelivery       = "delivery"
)

// SourceSkip records an upstream source abandoned for the run.
type SourceSkip struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// ItemFailure records a work item that failed and stays unledgered.
type ItemFailure struct {
	Fingerprint string `json:"fingerprint"`
	Reason      string `json:"reason"`
}

// PhaseResult holds the outcome of one phase execution. It is data, never a
// raised error: every failure below the orchestrator is captured here.
type PhaseResult struct {
	Name           string         `json:"name"`
	Status         PhaseStatus    `json:"status"`
	Duration       int64          `json:"duration_ms"`
	Attempted      int            `json:"items_attempted"`
	Succeeded      int            `json:"items_succeeded"`
	Failed         int            `json:"items_failed"`
	Rejected       int            `json:"items_rejected"`
	AlreadySeen    int            `json:"already_seen"`
	Filtered       int            `json:"filtered"`
	Capped         int            `json:"capped"`
	SkippedSources []SourceSkip   `json:"skipped_sources,omitempty"`
	Failures       []ItemFailure  `json:"failures,omitempty"`
	Error          string         `json:"error,omitempty"`
	Fatal          bool           `json:"fatal,omitempty"`
	Aborted        bool           `json:"aborted,omitempty"`
	DryRun         bool           `json:"dry_run,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Stopped reports whether the phase ended in a way that must prevent the
// tenant's later phases from running.
func (r *PhaseResult) Stopped() bool {
	return r.Fatal || r.Aborted
}

// SkipSource appends a source skip.
func (r *PhaseResult) SkipSource(source, reason string) {
	r.SkippedSources = append(r.SkippedSources, SourceSkip{Source: source, Reason: reason})
}

// TenantResult aggregates one tenant's pass through the pipeline.
type TenantResult struct {
	Tenant    string        `json:"tenant"`
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Phases    []PhaseResult `json:"phases"`
	Error     string        `json:"error,omitempty"`
	Fatal     bool          `json:"fatal,omitempty"`
}

// Phase returns the named phase result, or nil.
func (r *TenantResult) Phase(name string) *PhaseResult {
	for i := range r.Phases {
		if r.Phases[i].Name == name {
			return &r.Phases[i]
		}
	}
	return nil
}
