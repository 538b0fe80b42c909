package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"killmails", "participants", "hashes"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		pragma   string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.pragma, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.pragma, tt.expected))
		})
	}
}

func TestOpen_SetsSchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_CreatesIndexes(t *testing.T) {
	s := createTestStore(t)

	for _, index := range []string{"killmail_time_idx", "participant_idx", "hashes_hash_unique"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
			index,
		).Scan(&name)
		assert.NoError(t, err, "index %q not found", index)
	}
}

func TestMigrateToV1_CollapsesDuplicateHashes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	// A database written by the original schema: no UNIQUE on hashes.hash.
	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE hashes (id INTEGER PRIMARY KEY, hash BLOB NOT NULL);
		INSERT INTO hashes (id, hash) VALUES (1, x'aa'), (2, x'bb'), (3, x'aa');
	`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var ids []int64
	require.NoError(t, s.db.Select(&ids, `SELECT id FROM hashes ORDER BY id`))
	assert.Equal(t, []int64{1, 2}, ids, "oldest row of each duplicate is kept")

	_, err = s.db.Exec(`INSERT INTO hashes (hash) VALUES (x'bb')`)
	assert.Error(t, err, "hash must be unique after migration")
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}
