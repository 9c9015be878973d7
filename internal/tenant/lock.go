package tenant

import (
	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
)

// ErrLocked is returned when another process is already running the tenant.
var ErrLocked = eris.New("tenant: run already in progress")

// Lock takes the tenant's exclusive run lock without blocking. The returned
// func releases it.
func Lock(t *Tenant) (func(), error) {
	fl := flock.New(t.Path(lockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, eris.Wrapf(err, "tenant: lock %s", t.Slug)
	}
	if !ok {
		return nil, eris.Wrapf(ErrLocked, "tenant: %s", t.Slug)
	}
	return func() { _ = fl.Unlock() }, nil
}
