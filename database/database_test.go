package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	src := `
-- leading comment; with a semicolon
CREATE TABLE a (x TEXT DEFAULT 'semi;colon');
INSERT INTO a VALUES ('it''s');
CREATE INDEX i ON a(x)`

	stmts := splitStatements(src)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "'semi;colon'")
	assert.Equal(t, "INSERT INTO a VALUES ('it''s')", stmts[1])
	assert.Equal(t, "CREATE INDEX i ON a(x)", stmts[2])
}

func TestNew_AppliesEmbeddedMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := New(path, SQLiteMigrations())
	require.NoError(t, err)

	var n int
	require.NoError(t, db.Conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 2, n)
	require.NoError(t, db.Close())

	// Reopening must not re-run anything.
	db, err = New(path, SQLiteMigrations())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 2, n)

	_, err = db.Conn.Exec("SELECT id, refresh_token, expires_at FROM sessions LIMIT 1")
	assert.NoError(t, err)
	_, err = db.Conn.Exec("SELECT pseudo, lang FROM users LIMIT 1")
	assert.NoError(t, err)
}

func TestNew_RecoverableStatement(t *testing.T) {
	migrations := fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE t (a TEXT); ALTER TABLE t ADD COLUMN b TEXT;")},
		"002_b.sql": {Data: []byte("ALTER TABLE t ADD COLUMN b TEXT; ALTER TABLE t ADD COLUMN c TEXT;")},
	}

	db, err := New(filepath.Join(t.TempDir(), "r.db"), migrations)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Conn.Exec("INSERT INTO t (a, b, c) VALUES ('1', '2', '3')")
	assert.NoError(t, err)
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	db, err := New(filepath.Join(t.TempDir(), "tx.db"), fstest.MapFS{
		"001.sql": {Data: []byte("CREATE TABLE t (a TEXT)")},
	})
	require.NoError(t, err)
	defer db.Close()

	count := func() int {
		var n int
		require.NoError(t, db.Conn.QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
		return n
	}

	err = WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t VALUES ('x')")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count())

	boom := errors.New("boom")
	err = WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t VALUES ('y')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, count(), "failed transaction must roll back")

	assert.Panics(t, func() {
		_ = WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx, "INSERT INTO t VALUES ('z')")
			panic("bad")
		})
	})
	assert.Equal(t, 1, count())
}
