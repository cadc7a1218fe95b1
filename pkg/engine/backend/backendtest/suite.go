// Package backendtest holds a conformance suite every backend must pass.
package backendtest

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

// Opener returns a fresh, empty backend. The suite closes it.
type Opener func(t *testing.T) backend.Backend

// Run exercises the Backend contract against fresh instances from open.
func Run(t *testing.T, open Opener) {
	t.Run("PointOperations", func(t *testing.T) { testPointOperations(t, open(t)) })
	t.Run("EmptyValues", func(t *testing.T) { testEmptyValues(t, open(t)) })
	t.Run("ScanAndCount", func(t *testing.T) { testScanAndCount(t, open(t)) })
	t.Run("Locate", func(t *testing.T) { testLocate(t, open(t)) })
	t.Run("Clear", func(t *testing.T) { testClear(t, open(t)) })
}

func testPointOperations(t *testing.T, b backend.Backend) {
	defer b.Close()

	_, found, err := b.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Set([]byte("alpha"), []byte("one")))
	require.NoError(t, b.Set([]byte("alpha"), []byte("uno")))

	v, found, err := b.Get([]byte("alpha"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("uno"), v)

	// Returned values are copies.
	v[0] = 'X'
	v2, _, err := b.Get([]byte("alpha"))
	require.NoError(t, err)
	assert.Equal(t, []byte("uno"), v2)

	found, err = b.Delete([]byte("alpha"))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = b.Delete([]byte("alpha"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = b.Get([]byte("alpha"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Sync(false))
	require.NoError(t, b.Sync(true))
}

func testEmptyValues(t *testing.T, b backend.Backend) {
	defer b.Close()

	require.NoError(t, b.Set([]byte("empty"), nil))
	v, found, err := b.Get([]byte("empty"))
	require.NoError(t, err)
	assert.True(t, found, "an empty value is still a record")
	assert.Empty(t, v)

	n, err := b.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func keys(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf("key%03d", i))
	}
	return out
}

func testScanAndCount(t *testing.T, b backend.Backend) {
	defer b.Close()

	ks := keys(50)
	for _, k := range ks {
		require.NoError(t, b.Set(k, append([]byte("v-"), k...)))
	}

	n, err := b.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)

	var seen []string
	require.NoError(t, b.Scan(func(k, v []byte) bool {
		assert.Equal(t, append([]byte("v-"), k...), v)
		seen = append(seen, string(k))
		return true
	}))
	assert.Len(t, seen, 50)
	if b.Ordered() {
		assert.True(t, sort.StringsAreSorted(seen))
	}

	visited := 0
	require.NoError(t, b.Scan(func(_, _ []byte) bool {
		visited++
		return visited < 5
	}))
	assert.Equal(t, 5, visited)

	size, err := b.Size()
	require.NoError(t, err)
	assert.Positive(t, size)
	assert.NotNil(t, b.Status())
}

func testLocate(t *testing.T, b backend.Backend) {
	defer b.Close()

	k, _, ok, err := b.Locate(backend.First, nil)
	require.NoError(t, err)
	assert.False(t, ok, "empty store has no first record")
	assert.Nil(t, k)

	for _, s := range []string{"b", "d", "f"} {
		require.NoError(t, b.Set([]byte(s), []byte(s+s)))
	}

	// Forward walk visits every record exactly once, in scan order.
	var scan, walk []string
	require.NoError(t, b.Scan(func(k, _ []byte) bool {
		scan = append(scan, string(k))
		return true
	}))
	k, v, ok, err := b.Locate(backend.First, nil)
	for ; ok && err == nil; k, v, ok, err = b.Locate(backend.After, k) {
		assert.Equal(t, append(append([]byte{}, k...), k...), v)
		walk = append(walk, string(k))
	}
	require.NoError(t, err)
	assert.Equal(t, scan, walk)

	k, _, ok, err = b.Locate(backend.AtOrAfter, []byte(scan[1]))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, scan[1], string(k))

	if !b.Ordered() {
		_, _, _, err = b.Locate(backend.Last, nil)
		assert.ErrorIs(t, err, backend.ErrNotSupported)
		return
	}

	loc := func(pos backend.Position, key string) string {
		k, _, ok, err := b.Locate(pos, []byte(key))
		require.NoError(t, err)
		if !ok {
			return ""
		}
		return string(k)
	}
	assert.Equal(t, "f", loc(backend.Last, ""))
	assert.Equal(t, "d", loc(backend.AtOrAfter, "c"))
	assert.Equal(t, "", loc(backend.AtOrAfter, "g"))
	assert.Equal(t, "f", loc(backend.After, "d"))
	assert.Equal(t, "", loc(backend.After, "f"))
	assert.Equal(t, "d", loc(backend.AtOrBefore, "d"))
	assert.Equal(t, "d", loc(backend.AtOrBefore, "e"))
	assert.Equal(t, "", loc(backend.AtOrBefore, "a"))
	assert.Equal(t, "b", loc(backend.Before, "d"))
	assert.Equal(t, "", loc(backend.Before, "b"))
	assert.Equal(t, "f", loc(backend.Before, "z"))
}

func testClear(t *testing.T, b backend.Backend) {
	defer b.Close()

	for _, k := range keys(10) {
		require.NoError(t, b.Set(k, bytes.Repeat(k, 3)))
	}
	require.NoError(t, b.Clear())

	n, err := b.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, found, err := b.Get(keys(1)[0])
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Set([]byte("after"), []byte("clear")))
	v, found, err := b.Get([]byte("after"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("clear"), v)
}
