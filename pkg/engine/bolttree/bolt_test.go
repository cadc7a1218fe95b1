package bolttree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
	"github.com/ssargent/cabinetdb/pkg/engine/backend/backendtest"
)

func options(path string) backend.Options {
	return backend.Options{Path: path, Create: true, Logger: zerolog.Nop(), Params: backend.Params{}}
}

func TestStore_Conformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		b, err := Open(options(filepath.Join(t.TempDir(), "casket.kct")))
		require.NoError(t, err)
		return b
	})
}

func TestStore_OpenMissingWithoutCreate(t *testing.T) {
	opts := options(filepath.Join(t.TempDir(), "missing.kct"))
	opts.Create = false
	_, err := Open(opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStore_PersistenceAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casket.kct")
	b, err := Open(options(path))
	require.NoError(t, err)
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, b.Set([]byte("b"), []byte("2")))
	require.NoError(t, b.Close())

	b, err = Open(options(path))
	require.NoError(t, err)
	n, err := b.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "count is restored from bucket stats")
	require.NoError(t, b.Close())

	opts := options(path)
	opts.Truncate = true
	b, err = Open(opts)
	require.NoError(t, err)
	defer b.Close()
	n, err = b.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_TryLockReportsBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casket.kct")
	b, err := Open(options(path))
	require.NoError(t, err)
	defer b.Close()

	opts := options(path)
	opts.TryLock = true
	_, err = Open(opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrBusy))
}

func TestStore_ReadOnlyAndCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "casket.kct")
	b, err := Open(options(path))
	require.NoError(t, err)
	require.NoError(t, b.Set([]byte("k"), []byte("v")))

	dest := filepath.Join(dir, "copy.kct")
	require.NoError(t, b.(backend.Copier).CopyTo(dest))
	require.NoError(t, b.Close())

	opts := options(dest)
	opts.ReadOnly = true
	c, err := Open(opts)
	require.NoError(t, err)
	defer c.Close()

	v, found, err := c.Get([]byte("k"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), v)

	err = c.Set([]byte("k2"), []byte("v2"))
	assert.True(t, errors.Is(err, backend.ErrReadOnly))
}
