// Package index provides the in-memory key indexes used by the hash-organized
// backends.
package index

import (
	"cmp"

	"github.com/cespare/xxhash/v2"
	"github.com/ssargent/cabinetdb/pkg/bptree"
)

// Config holds configuration for the hash index.
type Config struct {
	// Buckets pre-sizes the lookup table.
	Buckets int
}

// bucketKey orders entries by key hash, then key. Iteration over a hash
// index follows this order: stable across runs, unrelated to key order.
type bucketKey struct {
	hash uint64
	key  string
}

func compareBucket(a, b bucketKey) int {
	if c := cmp.Compare(a.hash, b.hash); c != 0 {
		return c
	}
	return cmp.Compare(a.key, b.key)
}

// HashIndex provides O(1) average-case lookups plus a deterministic bucket
// order for scans and cursors. It is not safe for concurrent use; callers
// serialize access.
type HashIndex[V any] struct {
	entries map[string]V
	order   *bptree.BPlusTree[bucketKey, struct{}]
}

// NewHashIndex creates a new hash index
func NewHashIndex[V any](config Config) *HashIndex[V] {
	return &HashIndex[V]{
		entries: make(map[string]V, max(config.Buckets, 0)),
		order:   bptree.NewWithCompare[bucketKey, struct{}](32, compareBucket),
	}
}

func bucketOf(key string) bucketKey {
	return bucketKey{hash: xxhash.Sum64String(key), key: key}
}

// Put adds or updates the entry for key, reporting whether it was new.
func (idx *HashIndex[V]) Put(key []byte, entry V) bool {
	k := string(key)
	_, exists := idx.entries[k]
	idx.entries[k] = entry
	if !exists {
		idx.order.Insert(bucketOf(k), struct{}{})
	}
	return !exists
}

// Get retrieves the entry for key.
func (idx *HashIndex[V]) Get(key []byte) (V, bool) {
	entry, exists := idx.entries[string(key)]
	return entry, exists
}

// Delete removes key, returning the removed entry.
func (idx *HashIndex[V]) Delete(key []byte) (V, bool) {
	k := string(key)
	entry, exists := idx.entries[k]
	if exists {
		delete(idx.entries, k)
		idx.order.Delete(bucketOf(k))
	}
	return entry, exists
}

// Size returns the number of keys in the index
func (idx *HashIndex[V]) Size() int {
	return len(idx.entries)
}

// Clear removes all entries from the index
func (idx *HashIndex[V]) Clear() {
	idx.entries = make(map[string]V)
	idx.order.Clear()
}

// First returns the first key in bucket order.
func (idx *HashIndex[V]) First() ([]byte, V, bool) {
	bk, _, ok := idx.order.First()
	return idx.resolve(bk, ok)
}

// SeekGE returns key itself if present, otherwise the key following it in
// bucket order.
func (idx *HashIndex[V]) SeekGE(key []byte) ([]byte, V, bool) {
	bk, _, ok := idx.order.SeekGE(bucketOf(string(key)))
	return idx.resolve(bk, ok)
}

// SeekGT returns the key following key in bucket order.
func (idx *HashIndex[V]) SeekGT(key []byte) ([]byte, V, bool) {
	bk, _, ok := idx.order.SeekGT(bucketOf(string(key)))
	return idx.resolve(bk, ok)
}

func (idx *HashIndex[V]) resolve(bk bucketKey, ok bool) ([]byte, V, bool) {
	if !ok {
		var zero V
		return nil, zero, false
	}
	return []byte(bk.key), idx.entries[bk.key], true
}

// Range calls fn for every entry in bucket order until fn returns false.
// fn must not modify the index.
func (idx *HashIndex[V]) Range(fn func(key []byte, entry V) bool) {
	idx.order.Ascend(func(bk bucketKey, _ struct{}) bool {
		return fn([]byte(bk.key), idx.entries[bk.key])
	})
}

// Keys returns all keys in bucket order (for debugging/testing)
func (idx *HashIndex[V]) Keys() []string {
	keys := make([]string, 0, len(idx.entries))
	idx.order.Ascend(func(bk bucketKey, _ struct{}) bool {
		keys = append(keys, bk.key)
		return true
	})
	return keys
}

// Stats returns index statistics
func (idx *HashIndex[V]) Stats() *IndexStats {
	return &IndexStats{
		TotalKeys: len(idx.entries),
		Height:    idx.order.Height(),
	}
}

// IndexStats holds statistics about the index
type IndexStats struct {
	TotalKeys int
	Height    int
}
