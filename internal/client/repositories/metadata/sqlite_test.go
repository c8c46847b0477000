package metadata

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet_InsertThenGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k1", []byte{0x01, 0x02}))

	v, err := r.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, v)
}

func TestGet_NotExists_ReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestSet_UpsertOverwritesValue(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "k", []byte("new")))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestClosedDB_ErrorsAreStorageErrors(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.ErrorIs(t, err, common.ErrStorage)
	require.Contains(t, err.Error(), "get metadata[k]")

	err = r.Set(ctx, "k", []byte("v"))
	require.ErrorIs(t, err, common.ErrStorage)
	require.Contains(t, err.Error(), "set metadata[k]")
}

func TestEnsureString(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	calls := 0
	gen := func() string {
		calls++
		return "device-1"
	}

	v, err := EnsureString(ctx, r, KeyDeviceID, gen)
	require.NoError(t, err)
	assert.Equal(t, "device-1", v)

	v, err = EnsureString(ctx, r, KeyDeviceID, func() string { return "device-2" })
	require.NoError(t, err)
	assert.Equal(t, "device-1", v)
	assert.Equal(t, 1, calls)
}

func TestEnsureString_GetError(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	_, err := EnsureString(context.Background(), r, KeyDeviceID, func() string { return "x" })
	require.ErrorIs(t, err, common.ErrStorage)
}
