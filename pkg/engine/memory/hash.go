// Package memory provides the in-memory backends: hash stores over the
// bucket-ordered hash index and tree stores over the B+ tree.
package memory

import (
	"container/list"
	"strconv"
	"sync"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
	"github.com/ssargent/cabinetdb/pkg/index"
)

type hashEntry struct {
	value []byte
	lru   *list.Element
}

// HashStore keeps records in a hash index. With a count or size capacity it
// behaves as a cache and evicts the least recently used records.
type HashStore struct {
	mu     sync.Mutex
	idx    *index.HashIndex[*hashEntry]
	bytes  int64
	capCnt int64
	capSiz int64
	lru    *list.List // front is most recent; nil without capacity limits
	evict  int64
}

// NewHash opens an in-memory hash store. Recognised parameters: bnum,
// capcnt, capsiz.
func NewHash(opts backend.Options) (backend.Backend, error) {
	bnum, err := opts.Params.Int("bnum", 0)
	if err != nil {
		return nil, err
	}
	capCnt, err := opts.Params.Int("capcnt", 0)
	if err != nil {
		return nil, err
	}
	capSiz, err := opts.Params.Int("capsiz", 0)
	if err != nil {
		return nil, err
	}
	h := &HashStore{
		idx:    index.NewHashIndex[*hashEntry](index.Config{Buckets: int(bnum)}),
		capCnt: capCnt,
		capSiz: capSiz,
	}
	if capCnt > 0 || capSiz > 0 {
		h.lru = list.New()
	}
	return h, nil
}

func (h *HashStore) touch(e *hashEntry) {
	if h.lru != nil && e.lru != nil {
		h.lru.MoveToFront(e.lru)
	}
}

func (h *HashStore) Get(key []byte) ([]byte, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.idx.Get(key)
	if !ok {
		return nil, false, nil
	}
	h.touch(e)
	return append([]byte(nil), e.value...), true, nil
}

func (h *HashStore) Set(key, value []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	v := append([]byte{}, value...)
	if e, ok := h.idx.Get(key); ok {
		h.bytes += int64(len(v) - len(e.value))
		e.value = v
		h.touch(e)
	} else {
		e := &hashEntry{value: v}
		if h.lru != nil {
			e.lru = h.lru.PushFront(string(key))
		}
		h.idx.Put(key, e)
		h.bytes += int64(len(key) + len(v))
	}
	h.shrink()
	return nil
}

// shrink evicts least recently used records until the store fits its capacity.
func (h *HashStore) shrink() {
	if h.lru == nil {
		return
	}
	for h.lru.Len() > 1 &&
		((h.capCnt > 0 && int64(h.idx.Size()) > h.capCnt) || (h.capSiz > 0 && h.bytes > h.capSiz)) {
		oldest := h.lru.Back()
		h.removeLocked([]byte(oldest.Value.(string)))
		h.evict++
	}
}

func (h *HashStore) removeLocked(key []byte) bool {
	e, ok := h.idx.Delete(key)
	if !ok {
		return false
	}
	h.bytes -= int64(len(key) + len(e.value))
	if h.lru != nil && e.lru != nil {
		h.lru.Remove(e.lru)
	}
	return true
}

func (h *HashStore) Delete(key []byte) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(key), nil
}

func (h *HashStore) Locate(pos backend.Position, key []byte) ([]byte, []byte, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var (
		k  []byte
		e  *hashEntry
		ok bool
	)
	switch pos {
	case backend.First:
		k, e, ok = h.idx.First()
	case backend.AtOrAfter:
		k, e, ok = h.idx.SeekGE(key)
	case backend.After:
		k, e, ok = h.idx.SeekGT(key)
	default:
		return nil, nil, false, backend.ErrNotSupported
	}
	if !ok {
		return nil, nil, false, nil
	}
	return k, append([]byte(nil), e.value...), true, nil
}

func (h *HashStore) Scan(fn func(key, value []byte) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idx.Range(func(key []byte, e *hashEntry) bool {
		return fn(key, e.value)
	})
	return nil
}

func (h *HashStore) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idx.Clear()
	h.bytes = 0
	if h.lru != nil {
		h.lru.Init()
	}
	return nil
}

func (h *HashStore) Count() (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int64(h.idx.Size()), nil
}

func (h *HashStore) Size() (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bytes, nil
}

func (h *HashStore) Sync(bool) error { return nil }

func (h *HashStore) Close() error { return h.Clear() }

func (h *HashStore) Ordered() bool { return false }

func (h *HashStore) Status() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := map[string]string{"organization": "hash"}
	if h.lru != nil {
		st["capcnt"] = strconv.FormatInt(h.capCnt, 10)
		st["capsiz"] = strconv.FormatInt(h.capSiz, 10)
		st["evicted"] = strconv.FormatInt(h.evict, 10)
	}
	return st
}
