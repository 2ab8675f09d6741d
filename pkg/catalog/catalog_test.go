package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	calls []execCall
	err   error
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	return nil, f.err
}

func (f *fakeDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, f.err
}

func TestQueriesAreIdempotent(t *testing.T) {
	t.Parallel()

	assert.Contains(t, createTableQuery, "IF NOT EXISTS")
	assert.Contains(t, createTableQuery, "PRIMARY KEY (run_id, session_id, stage, path)")
	assert.Contains(t, upsertEntryQuery, "ON CONFLICT (run_id, session_id, stage, path) DO UPDATE")
	assert.Contains(t, listEntriesQuery, "ORDER BY stage, path")
	assert.Equal(t, 8, strings.Count(upsertEntryQuery, "$"))
}

func TestPostgresRegister(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	p := NewPostgres(db)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	p.now = func() time.Time { return now }

	require.NoError(t, p.Migrate(t.Context()))
	require.NoError(t, p.Register(t.Context(), Entry{
		RunID: "run", SessionID: "s1", Stage: "catalog_to_i2b2", Path: "/data/nifti/s1/a.nii", Size: 3, SHA256: "abc",
	}))

	require.Len(t, db.calls, 2)
	assert.Equal(t, createTableQuery, db.calls[0].query)
	assert.Equal(t, upsertEntryQuery, db.calls[1].query)
	assert.Equal(t, []any{"run", "s1", "catalog_to_i2b2", "/data/nifti/s1/a.nii", int64(3), "abc", "", now.UTC()}, db.calls[1].args)
}

func TestPostgresErrors(t *testing.T) {
	t.Parallel()

	db := &fakeDB{err: assert.AnError}
	p := NewPostgres(db)

	err := p.Register(t.Context(), Entry{RunID: "run", SessionID: "s1", Stage: "x", Path: "p"})
	assert.ErrorIs(t, err, assert.AnError)

	err = p.Register(t.Context(), Entry{SessionID: "s1", Stage: "x", Path: "p"})
	assert.ErrorContains(t, err, "run id")

	_, err = p.List(t.Context(), "run", "s1")
	assert.ErrorIs(t, err, assert.AnError)

	assert.Error(t, p.Migrate(t.Context()))
}

func TestMemoryUpserts(t *testing.T) {
	t.Parallel()

	m := &Memory{}
	e := Entry{RunID: "run", SessionID: "s1", Stage: "b", Path: "/x", Size: 1}
	require.NoError(t, m.Register(t.Context(), e))
	e.Size = 2
	require.NoError(t, m.Register(t.Context(), e))
	require.NoError(t, m.Register(t.Context(), Entry{RunID: "run", SessionID: "s1", Stage: "a", Path: "/y"}))

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Stage)
	assert.EqualValues(t, 2, entries[1].Size)

	assert.Error(t, m.Register(t.Context(), Entry{}))
}

func TestNewEntry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "features.csv")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	e, err := NewEntry(path)
	require.NoError(t, err)
	assert.EqualValues(t, 3, e.Size)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", e.SHA256)

	_, err = NewEntry(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := Open(t.Context(), Config{})
	assert.Error(t, err)
}
