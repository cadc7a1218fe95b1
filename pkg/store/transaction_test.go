package store_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/cabinetdb/pkg/config"
	"github.com/ssargent/cabinetdb/pkg/engine"
	"github.com/ssargent/cabinetdb/pkg/store"
)

func TestDB_BeginCommitRollback(t *testing.T) {
	db := openFile(t, "casket.kct")
	require.NoError(t, db.SetString("keep", "1"))

	require.NoError(t, db.Begin(store.Physical))
	require.NoError(t, db.SetString("keep", "2"))
	require.NoError(t, db.SetString("new", "x"))
	_, err := db.RemoveString("keep")
	require.NoError(t, err)
	require.NoError(t, db.Rollback())
	assert.Equal(t, map[string]string{"keep": "1"}, contents(t, db))

	require.NoError(t, db.Begin(store.Logical))
	require.NoError(t, db.SetString("new", "x"))
	require.NoError(t, db.Commit())
	assert.Equal(t, map[string]string{"keep": "1", "new": "x"}, contents(t, db))

	assert.ErrorIs(t, db.Commit(), store.ErrInvalidOperation)
	assert.ErrorIs(t, db.Rollback(), store.ErrInvalidOperation)
}

func TestDB_Transaction(t *testing.T) {
	db := openMemory(t, engine.ProtoTree)
	boom := errors.New("boom")

	err := db.Transaction(store.Logical, func() error {
		require.NoError(t, db.SetString("a", "1"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, contents(t, db))

	require.NoError(t, db.Transaction(store.Logical, func() error {
		return db.SetString("a", "1")
	}))
	assert.Equal(t, map[string]string{"a": "1"}, contents(t, db))

	assert.Panics(t, func() {
		_ = db.Transaction(store.Logical, func() error {
			require.NoError(t, db.SetString("b", "2"))
			panic("mid-transaction")
		})
	})
	assert.Equal(t, map[string]string{"a": "1"}, contents(t, db))
}

func TestDB_ClearInsideTransactionRollsBack(t *testing.T) {
	db := openMemory(t, engine.ProtoHash)
	fillStrings(t, db, "a", "b")

	require.NoError(t, db.Begin(store.Logical))
	require.NoError(t, db.Clear())
	n, err := db.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, db.Rollback())

	assert.Equal(t, map[string]string{"a": "v", "b": "v"}, contents(t, db))
}

func TestDB_TryLockTransaction(t *testing.T) {
	db := openStore(t, config.NewMemoryBuilder(engine.ProtoTree).Modes(engine.Writer, engine.TryLock))

	require.NoError(t, db.Begin(store.Logical))
	err := db.Begin(store.Logical)
	assert.ErrorIs(t, err, store.ErrLogicalInconsistency)
	require.NoError(t, db.Commit())
}

func TestDB_CloseRollsBackTransaction(t *testing.T) {
	desc, err := config.NewBuilder(t.TempDir() + "/casket.kch").Build()
	require.NoError(t, err)
	db := store.New(desc)
	require.NoError(t, db.Open())
	require.NoError(t, db.SetString("a", "1"))

	require.NoError(t, db.Begin(store.Logical))
	require.NoError(t, db.SetString("a", "2"))
	require.NoError(t, db.Close())

	require.NoError(t, db.Open())
	defer db.Close()
	v, _, err := db.GetString("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
