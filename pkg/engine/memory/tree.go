package memory

import (
	"strconv"
	"sync/atomic"

	"github.com/ssargent/cabinetdb/pkg/bptree"
	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

// TreeStore keeps records in key order in a B+ tree.
type TreeStore struct {
	tree  *bptree.BPlusTree[[]byte, []byte]
	bytes atomic.Int64
	order int
}

// NewTree opens an in-memory tree store. psiz sets the node order.
func NewTree(opts backend.Options) (backend.Backend, error) {
	order, err := opts.Params.Int("psiz", 64)
	if err != nil {
		return nil, err
	}
	return &TreeStore{tree: bptree.NewBytesTree[[]byte](int(order)), order: int(order)}, nil
}

func (t *TreeStore) Get(key []byte) ([]byte, bool, error) {
	v, ok := t.tree.Search(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set relies on the engine serializing writers of the same key, so the
// size delta is computed from a consistent previous value.
func (t *TreeStore) Set(key, value []byte) error {
	v := append([]byte{}, value...)
	if old, ok := t.tree.Search(key); ok {
		t.bytes.Add(int64(len(v) - len(old)))
	} else {
		t.bytes.Add(int64(len(key) + len(v)))
	}
	t.tree.Insert(append([]byte(nil), key...), v)
	return nil
}

func (t *TreeStore) Delete(key []byte) (bool, error) {
	old, ok := t.tree.Search(key)
	if !ok {
		return false, nil
	}
	if t.tree.Delete(key) {
		t.bytes.Add(-int64(len(key) + len(old)))
		return true, nil
	}
	return false, nil
}

func (t *TreeStore) Locate(pos backend.Position, key []byte) ([]byte, []byte, bool, error) {
	var (
		k, v []byte
		ok   bool
	)
	switch pos {
	case backend.First:
		k, v, ok = t.tree.First()
	case backend.Last:
		k, v, ok = t.tree.Last()
	case backend.AtOrAfter:
		k, v, ok = t.tree.SeekGE(key)
	case backend.After:
		k, v, ok = t.tree.SeekGT(key)
	case backend.AtOrBefore:
		k, v, ok = t.tree.SeekLE(key)
	case backend.Before:
		k, v, ok = t.tree.SeekLT(key)
	}
	if !ok {
		return nil, nil, false, nil
	}
	return append([]byte(nil), k...), append([]byte(nil), v...), true, nil
}

func (t *TreeStore) Scan(fn func(key, value []byte) bool) error {
	t.tree.Ascend(fn)
	return nil
}

func (t *TreeStore) Clear() error {
	t.tree.Clear()
	t.bytes.Store(0)
	return nil
}

func (t *TreeStore) Count() (int64, error) { return int64(t.tree.Len()), nil }

func (t *TreeStore) Size() (int64, error) { return t.bytes.Load(), nil }

func (t *TreeStore) Sync(bool) error { return nil }

func (t *TreeStore) Close() error { return t.Clear() }

func (t *TreeStore) Ordered() bool { return true }

func (t *TreeStore) Status() map[string]string {
	return map[string]string{
		"organization": "tree",
		"order":        strconv.Itoa(t.order),
		"height":       strconv.Itoa(t.tree.Height()),
	}
}
