package loghash

import (
	"fmt"
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

func fileOpts(t *testing.T, params backend.Params) backend.Options {
	return backend.Options{
		Path:   filepath.Join(t.TempDir(), "casket.kch"),
		Create: true,
		Params: params,
		Logger: zerolog.Nop(),
	}
}

func TestFileStore_Conformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		b, err := OpenFile(fileOpts(t, nil))
		require.NoError(t, err)
		return b
	})
}

func TestDirStore_Conformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		b, err := OpenDir(backend.Options{Path: filepath.Join(t.TempDir(), "casket.kcd"), Create: true, Logger: zerolog.Nop()})
		require.NoError(t, err)
		return b
	})
}

func TestSealedStore_Conformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		b, err := OpenFile(fileOpts(t, backend.Params{"zcomp": "zstd", "zkey": "s3cret"}))
		require.NoError(t, err)
		return b
	})
}

func TestStore_OpenMissingWithoutCreate(t *testing.T) {
	opts := fileOpts(t, nil)
	opts.Create = false

	_, err := OpenFile(opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStore_Persistence(t *testing.T) {
	opts := fileOpts(t, nil)

	b, err := OpenFile(opts)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, b.Set([]byte(fmt.Sprintf("key%02d", i)), []byte(fmt.Sprintf("value%02d", i))))
	}
	_, err = b.Delete([]byte("key05"))
	require.NoError(t, err)
	require.NoError(t, b.Set([]byte("key06"), []byte("updated")))
	require.NoError(t, b.Set([]byte("blank"), nil))
	require.NoError(t, b.Close())

	opts.Create = false
	b, err = OpenFile(opts)
	require.NoError(t, err)
	defer b.Close()

	n, err := b.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)

	_, found, err := b.Get([]byte("key05"))
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err := b.Get([]byte("key06"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("updated"), v)

	v, found, err = b.Get([]byte("blank"))
	require.NoError(t, err)
	assert.True(t, found, "empty values survive reopen")
	assert.Empty(t, v)
}

func corruptTail(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xde, 0xad, 0xbe, 0xef, 0x01})
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestStore_RecoveryTruncatesDamagedTail(t *testing.T) {
	opts := fileOpts(t, nil)
	b, err := OpenFile(opts)
	require.NoError(t, err)
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, b.Set([]byte("b"), []byte("2")))
	size, err := b.Size()
	require.NoError(t, err)
	require.NoError(t, b.Close())

	corruptTail(t, opts.Path)

	b, err = OpenFile(opts)
	require.NoError(t, err)
	defer b.Close()

	rec := b.(*Store).Recovery()
	assert.Equal(t, int64(2), rec.RecordsValidated)
	assert.Equal(t, int64(1), rec.RecordsTruncated)
	assert.Equal(t, size, rec.FileSizeAfter)

	// Writes land right after the last good record.
	require.NoError(t, b.Set([]byte("c"), []byte("3")))
	v, found, err := b.Get([]byte("c"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("3"), v)
}

func TestStore_NoRepairReportsCorruption(t *testing.T) {
	opts := fileOpts(t, nil)
	b, err := OpenFile(opts)
	require.NoError(t, err)
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, b.Close())

	corruptTail(t, opts.Path)

	opts.NoRepair = true
	_, err = OpenFile(opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrCorrupt))
}

func TestStore_ReadOnly(t *testing.T) {
	opts := fileOpts(t, nil)
	b, err := OpenFile(opts)
	require.NoError(t, err)
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, b.Close())

	opts.ReadOnly = true
	b, err = OpenFile(opts)
	require.NoError(t, err)
	defer b.Close()

	v, found, err := b.Get([]byte("a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), v)

	assert.ErrorIs(t, b.Set([]byte("b"), []byte("2")), backend.ErrReadOnly)
}

func TestStore_CompactionByDefragUnit(t *testing.T) {
	opts := fileOpts(t, backend.Params{"dfunit": "8"})
	b, err := OpenFile(opts)
	require.NoError(t, err)
	defer b.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Set([]byte("hot"), []byte(fmt.Sprintf("v%d", i))))
	}
	require.NoError(t, b.Set([]byte("cold"), []byte("c")))

	st := b.Status()
	assert.NotEqual(t, "10", st["dead"])

	v, found, err := b.Get([]byte("hot"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v9"), v)

	size, err := b.Size()
	require.NoError(t, err)
	assert.Less(t, size, int64(11*30), "log should have been rewritten")
}

func TestStore_WrongKeyIsCorruption(t *testing.T) {
	opts := fileOpts(t, backend.Params{"zkey": "right"})
	b, err := OpenFile(opts)
	require.NoError(t, err)
	require.NoError(t, b.Set([]byte("secret"), []byte("payload")))
	require.NoError(t, b.Close())

	raw, err := os.ReadFile(opts.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "payload")

	opts.Params = backend.Params{"zkey": "wrong"}
	b, err = OpenFile(opts)
	require.NoError(t, err)
	defer b.Close()

	_, _, err = b.Get([]byte("secret"))
	assert.True(t, errors.Is(err, backend.ErrCorrupt))
}

func TestStore_CopyTo(t *testing.T) {
	opts := fileOpts(t, nil)
	b, err := OpenFile(opts)
	require.NoError(t, err)
	require.NoError(t, b.Set([]byte("a"), []byte("1")))

	dest := filepath.Join(t.TempDir(), "copy.kch")
	require.NoError(t, b.(backend.Copier).CopyTo(dest))
	require.NoError(t, b.Close())

	c, err := OpenFile(backend.Options{Path: dest, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer c.Close()
	v, found, err := c.Get([]byte("a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), v)
}
