// Package catalog registers the files produced by a session run into a Postgres table.
package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pkg/errors"
)

// Entry is one registered file.
type Entry struct {
	RunID     string
	SessionID string
	Stage     string
	Path      string
	Size      int64
	SHA256    string
	ObjectKey string
	CreatedAt time.Time
}

func (e Entry) validate() error {
	switch {
	case e.RunID == "":
		return errors.New("run id is required")
	case e.SessionID == "":
		return errors.New("session id is required")
	case e.Stage == "":
		return errors.New("stage is required")
	case e.Path == "":
		return errors.New("path is required")
	}

	return nil
}

// Registry is implemented by every catalog backend.
type Registry interface {
	Register(ctx context.Context, e Entry) error
}

// NewEntry describes the file at path: size and SHA-256 of its content.
func NewEntry(path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, errors.Wrap(err, "unable to open file")
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "unable to hash %s", path)
	}

	return Entry{
		Path:   path,
		Size:   size,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// DB is satisfied by *sql.DB and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const createTableQuery = `CREATE TABLE IF NOT EXISTS preprocess_catalog (
	run_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	path TEXT NOT NULL,
	size BIGINT NOT NULL,
	sha256 TEXT NOT NULL,
	object_key TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, session_id, stage, path)
)`

const upsertEntryQuery = `INSERT INTO preprocess_catalog (run_id, session_id, stage, path, size, sha256, object_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id, session_id, stage, path) DO UPDATE SET
	size = EXCLUDED.size,
	sha256 = EXCLUDED.sha256,
	object_key = EXCLUDED.object_key,
	created_at = EXCLUDED.created_at`

const listEntriesQuery = `SELECT run_id, session_id, stage, path, size, sha256, object_key, created_at
FROM preprocess_catalog
WHERE run_id = $1 AND session_id = $2
ORDER BY stage, path`

// Postgres is the catalog backed by a preprocess_catalog table.
type Postgres struct {
	db  DB
	now func() time.Time
}

// NewPostgres wraps db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Migrate creates the catalog table when it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, createTableQuery)
	if err != nil {
		return errors.Wrap(err, "unable to create catalog table")
	}

	return nil
}

// Register upserts e. Registering the same file twice within a run keeps one row.
func (p *Postgres) Register(ctx context.Context, e Entry) error {
	err := e.validate()
	if err != nil {
		return err
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = p.now()
	}

	_, err = p.db.ExecContext(ctx, upsertEntryQuery,
		e.RunID, e.SessionID, e.Stage, e.Path, e.Size, e.SHA256, e.ObjectKey, createdAt.UTC())
	if err != nil {
		return errors.Wrapf(err, "unable to register %s", e.Path)
	}

	return nil
}

// List returns the entries of a session run ordered by stage then path.
func (p *Postgres) List(ctx context.Context, runID, sessionID string) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, listEntriesQuery, runID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list catalog entries")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(&e.RunID, &e.SessionID, &e.Stage, &e.Path, &e.Size, &e.SHA256, &e.ObjectKey, &e.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan catalog entry")
		}
		out = append(out, e)
	}

	return out, errors.Wrap(rows.Err(), "unable to iterate catalog entries")
}

// Config holds the connection settings of the catalog database.
type Config struct {
	URL         string
	PingTimeout time.Duration
	MaxOpenConn int
}

// Open connects to the catalog database through the pgx driver.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("catalog database url is required")
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConn <= 0 {
		cfg.MaxOpenConn = 4
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open catalog database")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConn)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()

	err = db.PingContext(pingCtx)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "unable to ping catalog database")
	}

	return db, nil
}

// Memory keeps entries in memory, keyed like the Postgres table.
type Memory struct {
	mu      sync.Mutex
	entries map[[4]string]Entry
}

func (m *Memory) Register(_ context.Context, e Entry) error {
	err := e.validate()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries == nil {
		m.entries = make(map[[4]string]Entry)
	}
	m.entries[[4]string{e.RunID, e.SessionID, e.Stage, e.Path}] = e

	return nil
}

// Entries returns every entry ordered by stage then path.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Path < out[j].Path
	})

	return out
}

var (
	_ Registry = (*Postgres)(nil)
	_ Registry = (*Memory)(nil)
)
