package engine_test

import (
	"bytes"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/cabinetdb/pkg/engine"
)

func wordCount(t *testing.T, opts engine.MapReduceOptions) map[string]int {
	t.Helper()
	_, s := openDB(t, "-", rw)
	require.True(t, s.Set([]byte("a"), []byte("x y")))
	require.True(t, s.Set([]byte("b"), []byte("y z")))

	tmp := t.TempDir()
	var mu sync.Mutex
	counts := map[string]int{}
	ok := s.MapReduce(&engine.MapReduce{
		Map: func(_, value []byte, emit engine.Emitter) bool {
			for _, w := range bytes.Fields(value) {
				if !emit(w, []byte("1")) {
					return false
				}
			}
			return true
		},
		Reduce: func(key []byte, values *engine.ValueIterator) bool {
			n := 0
			for v, ok := values.Next(); ok; v, ok = values.Next() {
				c, err := strconv.Atoi(string(v))
				if err != nil {
					return false
				}
				n += c
			}
			mu.Lock()
			counts[string(key)] = n
			mu.Unlock()
			return values.Err() == nil
		},
		TempDir: tmp,
		Options: opts,
	})
	require.True(t, ok, "%v", s.Error())

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary store must be removed")
	return counts
}

func TestSession_MapReduceWordCount(t *testing.T) {
	tests := map[string]engine.MapReduceOptions{
		"default":    {},
		"no lock":    {NoLock: true},
		"plain":      {NoCompress: true},
		"concurrent": {Threads: 4},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, map[string]int{"x": 1, "y": 2, "z": 1}, wordCount(t, opts))
		})
	}
}

func TestSession_MapReduceKeyOrder(t *testing.T) {
	_, s := openDB(t, "-", rw)
	fill(t, s, "c", "a", "b")

	var order []string
	require.True(t, s.MapReduce(&engine.MapReduce{
		Map: func(key, _ []byte, emit engine.Emitter) bool { return emit(key, nil) },
		Reduce: func(key []byte, values *engine.ValueIterator) bool {
			v, ok := values.Next()
			assert.True(t, ok)
			assert.Empty(t, v)
			_, ok = values.Next()
			assert.False(t, ok)
			order = append(order, string(key))
			return true
		},
		TempDir: t.TempDir(),
	}))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSession_MapReduceGroupsEmissions(t *testing.T) {
	_, s := openDB(t, "+", rw)
	require.True(t, s.Set([]byte("src"), nil))

	const hot = 5000
	emitted := [][]byte{[]byte("a\x00"), []byte("ab"), []byte("a"), []byte("a\x00b"), []byte("\x00")}
	for _, threads := range []int{1, 4} {
		var mu sync.Mutex
		got := map[string][]string{}
		var order []string
		require.True(t, s.MapReduce(&engine.MapReduce{
			Map: func(_, _ []byte, emit engine.Emitter) bool {
				for i := 0; i < hot; i++ {
					if !emit([]byte("hot"), []byte(strconv.Itoa(i))) {
						return false
					}
				}
				for _, k := range emitted {
					if !emit(k, k) || !emit(k, nil) {
						return false
					}
				}
				return true
			},
			Reduce: func(key []byte, values *engine.ValueIterator) bool {
				var vs []string
				for v, ok := values.Next(); ok; v, ok = values.Next() {
					vs = append(vs, string(v))
				}
				mu.Lock()
				got[string(key)] = vs
				order = append(order, string(key))
				mu.Unlock()
				return values.Err() == nil
			},
			TempDir: t.TempDir(),
			Options: engine.MapReduceOptions{Threads: threads},
		}), "%v", s.Error())

		require.Len(t, got["hot"], hot)
		for i, v := range got["hot"] {
			require.Equal(t, strconv.Itoa(i), v, "values keep emission order")
		}
		for _, k := range emitted {
			assert.Equal(t, []string{string(k), ""}, got[string(k)], "%q", k)
		}
		if threads == 1 {
			assert.Equal(t, []string{"\x00", "a", "a\x00", "a\x00b", "ab", "hot"}, order)
		}
	}
}

func TestSession_MapReduceFailures(t *testing.T) {
	_, s := openDB(t, "+", rw)
	fill(t, s, "a", "b")
	tmp := t.TempDir()

	assert.False(t, s.MapReduce(&engine.MapReduce{
		Map:     func(_, _ []byte, _ engine.Emitter) bool { return false },
		Reduce:  func([]byte, *engine.ValueIterator) bool { return true },
		TempDir: tmp,
	}))
	requireCode(t, engine.Logic, s.Error())
	assert.Contains(t, s.Error().Message, "mapper")

	for _, threads := range []int{1, 3} {
		assert.False(t, s.MapReduce(&engine.MapReduce{
			Map:     func(k, v []byte, emit engine.Emitter) bool { return emit(k, v) },
			Reduce:  func([]byte, *engine.ValueIterator) bool { return false },
			TempDir: tmp,
			Options: engine.MapReduceOptions{Threads: threads},
		}))
		requireCode(t, engine.Logic, s.Error())
		assert.Contains(t, s.Error().Message, "reducer")
	}

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.False(t, s.MapReduce(&engine.MapReduce{}))
	requireCode(t, engine.Invalid, s.Error())
}
