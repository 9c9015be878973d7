package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
)

// FileLedger keeps one phase's entries in a human-readable JSON document.
// Every Record rewrites the document atomically; if that write fails the
// in-memory insert is rolled back so the item stays unseen.
type FileLedger struct {
	mu      sync.Mutex
	phase   string
	path    string
	entries map[string]Entry
}

type fileDoc struct {
	Phase   string  `json:"phase"`
	Entries []Entry `json:"entries"`
}

// OpenFile loads the ledger at path, creating its directory. A missing
// file is an empty ledger; an unparseable one is an error.
func OpenFile(path, phase string) (*FileLedger, error) {
	l := &FileLedger{phase: phase, path: path, entries: make(map[string]Entry)}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "ledger: create dir for %s", path)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: read %s", path)
	}
	if len(data) == 0 {
		return l, nil
	}

	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "ledger: parse %s", path)
	}
	for _, e := range doc.Entries {
		if e.Fingerprint == "" {
			continue
		}
		if _, ok := l.entries[e.Fingerprint]; !ok {
			l.entries[e.Fingerprint] = e
		}
	}
	return l, nil
}

func (l *FileLedger) Name() string { return l.phase }

// Path returns the backing file.
func (l *FileLedger) Path() string { return l.path }

func (l *FileLedger) Has(_ context.Context, fingerprint string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[fingerprint]
	return ok, nil
}

func (l *FileLedger) Get(_ context.Context, fingerprint string) (Entry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[fingerprint]
	return e, ok, nil
}

func (l *FileLedger) Record(_ context.Context, e Entry) (Entry, bool, error) {
	e, err := prepare(e)
	if err != nil {
		return Entry{}, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.entries[e.Fingerprint]; ok {
		return existing, false, nil
	}

	l.entries[e.Fingerprint] = e
	if err := l.persist(); err != nil {
		delete(l.entries, e.Fingerprint)
		return Entry{}, false, err
	}
	return e, true, nil
}

func (l *FileLedger) All(_ context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sorted(), nil
}

func (l *FileLedger) Close() error { return nil }

func (l *FileLedger) sorted() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// persist writes the document to a temp file in the same directory and
// renames it over the ledger. Caller holds mu.
func (l *FileLedger) persist() error {
	data, err := json.MarshalIndent(fileDoc{Phase: l.phase, Entries: l.sorted()}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "ledger: encode")
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "ledger: create temp in %s", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		cleanup()
		return eris.Wrap(err, "ledger: write temp")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return eris.Wrap(err, "ledger: sync temp")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return eris.Wrap(err, "ledger: close temp")
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		cleanup()
		return eris.Wrapf(err, "ledger: rename to %s", l.path)
	}
	return nil
}
