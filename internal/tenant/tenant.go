// Package tenant loads and maintains isolated customer directories. Every
// piece of a tenant's state lives under its own directory; nothing is
// shared between tenants.
package tenant

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// File and directory names inside a tenant directory.
const (
	ConfigFile      = "config.yaml"
	LifecycleFile   = "lifecycle.json"
	OnboardingFile  = "onboarding.json"
	DiscoveryFile   = "discovery_notes.md"
	DigestFile      = "digest.html"
	BaseResumeFile  = "base_resume.md"
	BaseCoverFile   = "base_cover_letter.md"
	PostingsDir     = "postings"
	JDsDir          = "JDs"
	OutputDir       = "output"
	ResumesDir      = "resumes"
	CoverLettersDir = "cover_letters"
	LedgerDir       = "ledger"
	lockFile        = ".lock"
)

// ErrNotFound is returned for an unknown tenant slug.
var ErrNotFound = eris.New("tenant: not found")

// Tenant is one customer and its state directory.
type Tenant struct {
	Slug   string
	Dir    string
	Config Config
	// Lifecycle is nil when lifecycle.json is missing.
	Lifecycle *Lifecycle
	// LoadErr is set when the tenant's files exist but cannot be parsed.
	LoadErr error
}

// Path joins elem onto the tenant directory.
func (t *Tenant) Path(elem ...string) string {
	return filepath.Join(append([]string{t.Dir}, elem...)...)
}

// Active reports whether the tenant may run at now.
func (t *Tenant) Active(now time.Time) bool {
	return t.LoadErr == nil && t.Lifecycle.Active(now)
}

// Status returns the human label shown by list.
func (t *Tenant) Status(now time.Time) string {
	switch {
	case t.LoadErr != nil:
		return "INVALID"
	case t.Lifecycle == nil:
		return "NO LIFECYCLE"
	case t.Lifecycle.Active(now):
		return "ACTIVE (" + strconv.Itoa(t.Lifecycle.DaysLeft(now)) + "d left)"
	default:
		return "EXPIRED"
	}
}

// Manager reads and updates tenants under a root directory.
type Manager struct {
	root string
}

// NewManager returns a manager rooted at root.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Root returns the tenant store directory.
func (m *Manager) Root() string { return m.root }

// List loads every tenant directory that holds a config.yaml, sorted by
// slug. An unreadable root is an error; a malformed tenant is returned with
// LoadErr set.
func (m *Manager) List() ([]*Tenant, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, eris.Wrapf(err, "tenant: read store %s", m.root)
	}

	var out []*Tenant
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(m.root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err != nil {
			continue
		}
		out = append(out, load(e.Name(), dir))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Get loads one tenant.
func (m *Manager) Get(slug string) (*Tenant, error) {
	if slug == "" || slug != filepath.Base(slug) {
		return nil, eris.Wrapf(ErrNotFound, "tenant: invalid slug %q", slug)
	}
	dir := filepath.Join(m.root, slug)
	if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err != nil {
		return nil, eris.Wrapf(ErrNotFound, "tenant: %s", slug)
	}
	t := load(slug, dir)
	return t, t.LoadErr
}

// Exists reports whether a tenant directory exists for slug.
func (m *Manager) Exists(slug string) bool {
	_, err := os.Stat(filepath.Join(m.root, slug))
	return err == nil
}

// ActiveTenants returns tenants whose lifecycle has not expired at now.
// Expired tenants keep their state; they are only skipped.
func (m *Manager) ActiveTenants(now time.Time) ([]*Tenant, error) {
	all, err := m.List()
	if err != nil {
		return nil, err
	}

	var active []*Tenant
	for _, t := range all {
		switch {
		case t.LoadErr != nil:
			zap.L().Warn("tenant: skipping unreadable tenant", zap.String("tenant", t.Slug), zap.Error(t.LoadErr))
		case t.Active(now):
			active = append(active, t)
		default:
			zap.L().Info("tenant: skipping inactive tenant", zap.String("tenant", t.Slug), zap.String("status", t.Status(now)))
		}
	}
	return active, nil
}

// Extend pushes a tenant's expiry forward by days, counting from now if it
// already expired. A missing lifecycle is initialized.
func (m *Manager) Extend(slug string, days int, now time.Time) (*Lifecycle, error) {
	t, err := m.Get(slug)
	if err != nil {
		return nil, err
	}
	if t.Lifecycle == nil {
		t.Lifecycle = NewLifecycle(now, days)
	} else {
		t.Lifecycle.Extend(now, days)
	}
	if err := SaveLifecycle(t.Dir, t.Lifecycle); err != nil {
		return nil, err
	}
	return t.Lifecycle, nil
}

// RecordDelivery adds n to the tenant's delivered total.
func (m *Manager) RecordDelivery(slug string, n int) error {
	t, err := m.Get(slug)
	if err != nil {
		return err
	}
	if t.Lifecycle == nil {
		return eris.Errorf("tenant: %s has no lifecycle", slug)
	}
	t.Lifecycle.TotalDelivered += n
	return SaveLifecycle(t.Dir, t.Lifecycle)
}

func load(slug, dir string) *Tenant {
	t := &Tenant{Slug: slug, Dir: dir}

	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		t.LoadErr = eris.Wrapf(err, "tenant: read %s config", slug)
		return t
	}
	if err := yaml.Unmarshal(data, &t.Config); err != nil {
		t.LoadErr = eris.Wrapf(err, "tenant: parse %s config", slug)
		return t
	}

	lc, err := LoadLifecycle(dir)
	if err != nil {
		t.LoadErr = err
		return t
	}
	t.Lifecycle = lc
	return t
}

// LoadLifecycle reads lifecycle.json from dir. A missing file returns nil.
func LoadLifecycle(dir string) (*Lifecycle, error) {
	data, err := os.ReadFile(filepath.Join(dir, LifecycleFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "tenant: read lifecycle")
	}
	var lc Lifecycle
	if err := json.Unmarshal(data, &lc); err != nil {
		return nil, eris.Wrap(err, "tenant: parse lifecycle")
	}
	return &lc, nil
}

// SaveLifecycle writes lifecycle.json atomically.
func SaveLifecycle(dir string, lc *Lifecycle) error {
	data, err := json.MarshalIndent(lc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "tenant: encode lifecycle")
	}
	return WriteFile(filepath.Join(dir, LifecycleFile), append(data, '\n'))
}

// SaveConfig writes config.yaml.
func SaveConfig(dir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "tenant: encode config")
	}
	return WriteFile(filepath.Join(dir, ConfigFile), data)
}

// WriteFile writes data to path through a temp file and rename, creating
// parent directories.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "tenant: mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrapf(err, "tenant: create temp for %s", path)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return eris.Wrapf(err, "tenant: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return eris.Wrapf(err, "tenant: close %s", path)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return eris.Wrapf(err, "tenant: rename %s", path)
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s and collapses non-alphanumeric runs into dashes.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

