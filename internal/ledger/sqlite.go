package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteLedger stores a phase's entries in an embedded SQLite database.
// All phases of a tenant share one database file, keyed by (phase, fingerprint).
type SQLiteLedger struct {
	db    *sql.DB
	phase string
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	phase         TEXT NOT NULL,
	fingerprint   TEXT NOT NULL,
	first_seen_at TEXT NOT NULL,
	origin        TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	meta          TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (phase, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_seen ON ledger_entries(phase, first_seen_at);
`

var entryColumns = []string{"fingerprint", "first_seen_at", "origin", "status", "meta"}

// OpenSQLite opens the database at dsn in WAL mode and migrates it.
func OpenSQLite(ctx context.Context, dsn, phase string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteLedger{db: db, phase: phase}, nil
}

func (l *SQLiteLedger) Name() string { return l.phase }

func (l *SQLiteLedger) Close() error { return l.db.Close() }

func (l *SQLiteLedger) Has(ctx context.Context, fingerprint string) (bool, error) {
	_, ok, err := l.Get(ctx, fingerprint)
	return ok, err
}

func (l *SQLiteLedger) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	query, args, err := sq.Select(entryColumns...).
		From("ledger_entries").
		Where(sq.Eq{"phase": l.phase, "fingerprint": fingerprint}).
		ToSql()
	if err != nil {
		return Entry{}, false, eris.Wrap(err, "sqlite: build get")
	}

	e, err := scanEntry(l.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, eris.Wrapf(err, "sqlite: get %s", fingerprint)
	}
	return e, true, nil
}

func (l *SQLiteLedger) Record(ctx context.Context, e Entry) (Entry, bool, error) {
	e, err := prepare(e)
	if err != nil {
		return Entry{}, false, err
	}

	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return Entry{}, false, eris.Wrap(err, "sqlite: encode meta")
	}

	query, args, err := sq.Insert("ledger_entries").
		Columns("phase", "fingerprint", "first_seen_at", "origin", "status", "meta").
		Values(l.phase, e.Fingerprint, e.FirstSeenAt.UTC().Format(time.RFC3339Nano), e.Origin, e.Status, string(meta)).
		Suffix("ON CONFLICT(phase, fingerprint) DO NOTHING").
		ToSql()
	if err != nil {
		return Entry{}, false, eris.Wrap(err, "sqlite: build insert")
	}

	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Entry{}, false, eris.Wrapf(err, "sqlite: record %s", e.Fingerprint)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Entry{}, false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 1 {
		return e, true, nil
	}

	existing, ok, err := l.Get(ctx, e.Fingerprint)
	if err != nil {
		return Entry{}, false, err
	}
	if !ok {
		return Entry{}, false, eris.Errorf("sqlite: entry %s vanished after conflict", e.Fingerprint)
	}
	return existing, false, nil
}

func (l *SQLiteLedger) All(ctx context.Context) ([]Entry, error) {
	query, args, err := sq.Select(entryColumns...).
		From("ledger_entries").
		Where(sq.Eq{"phase": l.phase}).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list")
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entries")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate entries")
	}
	sortEntries(out)
	return out, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (Entry, error) {
	var (
		e         Entry
		seen, raw string
	)
	if err := row.Scan(&e.Fingerprint, &seen, &e.Origin, &e.Status, &raw); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, seen)
	if err != nil {
		return Entry{}, eris.Wrapf(err, "parse first_seen_at %q", seen)
	}
	e.FirstSeenAt = t
	if raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &e.Meta); err != nil {
			return Entry{}, eris.Wrap(err, "decode meta")
		}
	}
	return e, nil
}
