package tenant

import (
	"math"
	"time"
)

// DefaultDailyItemCap is the per-run transformation cap for new tenants.
const DefaultDailyItemCap = 10

// Lifecycle is a tenant's active window and processing limits.
type Lifecycle struct {
	StartedAt      time.Time `json:"started_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	DailyItemCap   int       `json:"daily_item_cap"`
	TotalDelivered int       `json:"total_delivered"`
}

// NewLifecycle starts a window of days beginning at now.
func NewLifecycle(now time.Time, days int) *Lifecycle {
	return &Lifecycle{
		StartedAt:    now.UTC(),
		ExpiresAt:    now.UTC().Add(time.Duration(days) * 24 * time.Hour),
		DailyItemCap: DefaultDailyItemCap,
	}
}

// Active reports whether now falls before expiry.
func (l *Lifecycle) Active(now time.Time) bool {
	return l != nil && now.Before(l.ExpiresAt)
}

// Extend moves expiry forward by days, counting from now when the tenant
// has already expired.
func (l *Lifecycle) Extend(now time.Time, days int) {
	base := l.ExpiresAt
	if now.After(base) {
		base = now.UTC()
	}
	l.ExpiresAt = base.Add(time.Duration(days) * 24 * time.Hour)
}

// DaysLeft returns whole days until expiry, rounded up. Zero once expired.
func (l *Lifecycle) DaysLeft(now time.Time) int {
	if !l.Active(now) {
		return 0
	}
	return int(math.Ceil(l.ExpiresAt.Sub(now).Hours() / 24))
}
