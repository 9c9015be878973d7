// Package ledger records which work items a phase has already processed.
// A ledger is an append-only set keyed by fingerprint. Recording is the
// commit point of every phase: an item is done only once its entry is
// durably written.
package ledger

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

// Entry statuses.
const (
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusComplete  = "complete"
	StatusDelivered = "delivered"
)

// Entry is one processed fingerprint.
type Entry struct {
	Fingerprint string            `json:"fingerprint"`
	FirstSeenAt time.Time         `json:"first_seen_at"`
	Origin      string            `json:"origin"`
	Status      string            `json:"status"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Ledger is the per-phase set of processed fingerprints.
type Ledger interface {
	// Name returns the phase the ledger belongs to.
	Name() string
	Has(ctx context.Context, fingerprint string) (bool, error)
	Get(ctx context.Context, fingerprint string) (Entry, bool, error)
	// Record stores e unless its fingerprint is already present. It returns
	// the stored entry and whether this call created it. A repeated Record
	// is a no-op that returns the original entry.
	Record(ctx context.Context, e Entry) (Entry, bool, error)
	// All returns entries ordered by first sighting, then fingerprint.
	All(ctx context.Context) ([]Entry, error)
	Close() error
}

// Driver selects the ledger backend.
type Driver string

const (
	DriverFile   Driver = "file"
	DriverSQLite Driver = "sqlite"
)

// ErrEmptyFingerprint is returned when recording an entry without identity.
var ErrEmptyFingerprint = eris.New("ledger: empty fingerprint")

// nowFunc is overridden in tests.
var nowFunc = time.Now

// Open opens the named phase ledger stored under a tenant directory.
func Open(ctx context.Context, driver Driver, tenantDir, phase string) (Ledger, error) {
	switch driver {
	case DriverFile, "":
		return OpenFile(filepath.Join(tenantDir, "ledger", phase+".json"), phase)
	case DriverSQLite:
		return OpenSQLite(ctx, filepath.Join(tenantDir, "ledger.db"), phase)
	default:
		return nil, eris.Errorf("ledger: unknown driver %q", driver)
	}
}

// Set opens all three phase ledgers for a tenant.
type Set struct {
	Acquisition    Ledger
	Transformation Ledger
	Delivery       Ledger
}

// OpenSet opens the acquisition, transformation and delivery ledgers.
func OpenSet(ctx context.Context, driver Driver, tenantDir string, phases [3]string) (*Set, error) {
	var opened []Ledger
	for _, p := range phases {
		l, err := Open(ctx, driver, tenantDir, p)
		if err != nil {
			for _, o := range opened {
				_ = o.Close()
			}
			return nil, err
		}
		opened = append(opened, l)
	}
	return &Set{Acquisition: opened[0], Transformation: opened[1], Delivery: opened[2]}, nil
}

// Close closes every ledger in the set.
func (s *Set) Close() error {
	var first error
	for _, l := range []Ledger{s.Acquisition, s.Transformation, s.Delivery} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func prepare(e Entry) (Entry, error) {
	if e.Fingerprint == "" {
		return e, ErrEmptyFingerprint
	}
	if e.FirstSeenAt.IsZero() {
		e.FirstSeenAt = nowFunc().UTC()
	}
	return e, nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].FirstSeenAt.Equal(entries[j].FirstSeenAt) {
			return entries[i].FirstSeenAt.Before(entries[j].FirstSeenAt)
		}
		return entries[i].Fingerprint < entries[j].Fingerprint
	})
}
