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

func orderedStores(t *testing.T) map[string]*store.DB {
	return map[string]*store.DB{
		"proto tree": openMemory(t, engine.ProtoTree),
		"cache tree": openMemory(t, engine.CacheTree),
		"file tree":  openFile(t, "casket.kct"),
		"dir tree":   openFile(t, "drawer.kcf"),
	}
}

func TestCursor_ForwardTraversal(t *testing.T) {
	for name, db := range orderedStores(t) {
		t.Run(name, func(t *testing.T) {
			fillStrings(t, db, "c", "a", "b")

			err := db.WithCursor(func(c *store.Cursor) error {
				assert.Equal(t, store.Unpositioned, c.State())
				ok, err := c.ScanForwardFromStart()
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, store.Positioned, c.State())

				var visited []string
				for i := 0; i < 3; i++ {
					k, ok, err := c.KeyString(false)
					require.NoError(t, err)
					require.True(t, ok)
					visited = append(visited, k)

					stepped, err := c.StepForwards()
					require.NoError(t, err)
					assert.Equal(t, i < 2, stepped)
				}
				assert.Equal(t, []string{"a", "b", "c"}, visited)

				// Past the end is a plain negative result.
				stepped, err := c.StepForwards()
				require.NoError(t, err)
				assert.False(t, stepped)
				assert.Equal(t, store.Unpositioned, c.State())

				k, err := c.Key(false)
				require.NoError(t, err)
				assert.Nil(t, k)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestCursor_BackwardTraversal(t *testing.T) {
	db := openFile(t, "casket.kct")
	fillStrings(t, db, "a", "b", "c", "d")

	c, err := db.Cursor()
	require.NoError(t, err)
	defer c.Close()

	ok, err := c.ScanBackwardsFromEnd()
	require.NoError(t, err)
	require.True(t, ok)

	var visited []string
	for {
		k, ok, err := c.KeyString(false)
		require.NoError(t, err)
		if !ok {
			break
		}
		visited = append(visited, k)
		if _, err := c.StepBackwards(); err != nil {
			t.Fatal(err)
		}
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, visited)

	ok, err = c.ScanBackwardsFromKey([]byte("bb"))
	require.NoError(t, err)
	require.True(t, ok)
	k, v, ok, err := c.EntryString(true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", k)
	assert.Equal(t, "v", v)

	next, err := c.Key(false)
	require.NoError(t, err)
	assert.Equal(t, "c", string(next))
}

func TestCursor_ScanFromStringKey(t *testing.T) {
	db := openMemory(t, engine.ProtoTree)
	require.NoError(t, db.SetEncoding("ISO-8859-1"))
	fillStrings(t, db, "a", "z", "é")

	c, err := db.Cursor()
	require.NoError(t, err)
	defer c.Close()

	ok, err := c.ScanForwardFromKeyString("b")
	require.NoError(t, err)
	require.True(t, ok)
	k, ok, err := c.KeyString(false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "z", k)

	// é is a single byte past z in Latin-1.
	ok, err = c.ScanForwardFromKeyString("é")
	require.NoError(t, err)
	require.True(t, ok)
	k, _, err = c.KeyString(false)
	require.NoError(t, err)
	assert.Equal(t, "é", k)

	ok, err = c.ScanForwardFromKeyString("ê")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.ScanBackwardsFromKeyString("ê")
	require.NoError(t, err)
	require.True(t, ok)
	k, _, err = c.KeyString(false)
	require.NoError(t, err)
	assert.Equal(t, "é", k)

	ok, err = c.ScanBackwardsFromKeyString("y")
	require.NoError(t, err)
	require.True(t, ok)
	k, _, err = c.KeyString(false)
	require.NoError(t, err)
	assert.Equal(t, "a", k)

	_, err = c.ScanForwardFromKeyString("日")
	assert.Error(t, err)
}

func TestCursor_HashStores(t *testing.T) {
	db := openMemory(t, engine.ProtoHash)
	fillStrings(t, db, "x", "y", "z")

	require.NoError(t, db.WithCursor(func(c *store.Cursor) error {
		seen := map[string]bool{}
		ok, err := c.ScanForwardFromStart()
		for ; ok && err == nil; ok, err = c.StepForwards() {
			k, err := c.Key(false)
			require.NoError(t, err)
			seen[string(k)] = true
		}
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"x": true, "y": true, "z": true}, seen)

		_, err = c.ScanBackwardsFromEnd()
		assert.ErrorIs(t, err, store.ErrNotImplemented)
		ok, err = c.ScanForwardFromKey([]byte("y"))
		require.NoError(t, err)
		require.True(t, ok)
		_, err = c.StepBackwards()
		assert.ErrorIs(t, err, store.ErrNotImplemented)
		return nil
	}))
}

func TestCursor_EmptyStore(t *testing.T) {
	db := openMemory(t, engine.ProtoTree)
	require.NoError(t, db.WithCursor(func(c *store.Cursor) error {
		ok, err := c.ScanForwardFromStart()
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = c.StepForwards()
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = c.Remove()
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestCursor_Mutations(t *testing.T) {
	db := openMemory(t, engine.ProtoTree)
	fillStrings(t, db, "a", "b", "c", "d")

	require.NoError(t, db.WithCursor(func(c *store.Cursor) error {
		ok, err := c.ScanForwardFromKey([]byte("b"))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = c.SetValueString("B", true)
		require.NoError(t, err)
		require.True(t, ok)

		// Remove deletes "c" and lands on "d".
		ok, err = c.Remove()
		require.NoError(t, err)
		require.True(t, ok)
		k, v, err := c.Entry(false)
		require.NoError(t, err)
		assert.Equal(t, "d", string(k))
		assert.Equal(t, "v", string(v))

		ok, err = c.AcceptMutating(store.MutatingVisitorFuncs{
			Full: func(_, v []byte) store.Outcome { return store.Replace(append(v, '!')) },
		}, false)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = c.ScanForwardFromStart()
		require.NoError(t, err)
		require.True(t, ok)
		k, v, err = c.Seize()
		require.NoError(t, err)
		assert.Equal(t, "a", string(k))
		assert.Equal(t, "v", string(v))

		var keys []string
		ok, err = c.AcceptString(store.StringVisitorFuncs{Full: func(k, _ string) { keys = append(keys, k) }}, true)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []string{"b"}, keys)

		val, ok, err := c.ValueString(false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v!", val)
		return nil
	}))

	assert.Equal(t, map[string]string{"b": "B", "d": "v!"}, contents(t, db))
}

func TestCursor_Close(t *testing.T) {
	db := openMemory(t, engine.ProtoTree)
	fillStrings(t, db, "a")

	c, err := db.Cursor()
	require.NoError(t, err)
	ok, err := c.ScanForwardFromStart()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Close())
	assert.Equal(t, store.Disabled, c.State())
	assert.ErrorIs(t, c.Close(), store.ErrCursorClosed)

	_, err = c.StepForwards()
	assert.ErrorIs(t, err, store.ErrCursorClosed)
	_, err = c.Key(false)
	assert.ErrorIs(t, err, store.ErrCursorClosed)
	_, err = c.Remove()
	assert.ErrorIs(t, err, store.ErrCursorClosed)
	_, _, err = c.Seize()
	assert.ErrorIs(t, err, store.ErrCursorClosed)
}

func TestCursor_WithCursorReleasesOnFailure(t *testing.T) {
	db := openMemory(t, engine.ProtoTree)
	boom := errors.New("boom")

	var leaked *store.Cursor
	err := db.WithCursor(func(c *store.Cursor) error {
		leaked = c
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, store.Disabled, leaked.State())

	assert.Panics(t, func() {
		_ = db.WithCursor(func(c *store.Cursor) error {
			leaked = c
			panic("inside cursor")
		})
	})
	assert.Equal(t, store.Disabled, leaked.State())
}

func TestCursor_ClosedHandle(t *testing.T) {
	desc, err := config.NewMemoryBuilder(engine.ProtoTree).Build()
	require.NoError(t, err)
	db := store.New(desc)

	_, err = db.Cursor()
	assert.ErrorIs(t, err, store.ErrClosed)

	require.NoError(t, db.Open())
	c, err := db.Cursor()
	require.NoError(t, err)
	require.NoError(t, db.Close())
	_, err = c.ScanForwardFromStart()
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestCursor_ReaderCannotRemove(t *testing.T) {
	path := t.TempDir() + "/casket.kct"
	db := openStore(t, config.NewBuilder(path))
	fillStrings(t, db, "a")
	require.NoError(t, db.Close())

	ro := openStore(t, config.NewBuilder(path).Modes(engine.Reader))
	require.NoError(t, ro.WithCursor(func(c *store.Cursor) error {
		ok, err := c.ScanForwardFromStart()
		require.NoError(t, err)
		require.True(t, ok)
		_, err = c.Remove()
		assert.ErrorIs(t, err, store.ErrNoPermission)
		_, err = c.SetValue([]byte("x"), false)
		assert.ErrorIs(t, err, store.ErrNoPermission)
		return nil
	}))
}
