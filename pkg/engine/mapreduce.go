package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

// Emitter receives intermediate records from a map function. It returns
// false when the record could not be stored.
type Emitter func(key, value []byte) bool

// MapReduceOptions tune a map-reduce pass.
type MapReduceOptions struct {
	// NoLock maps with the store lock shared instead of exclusive.
	NoLock bool
	// NoCompress stores intermediate records uncompressed.
	NoCompress bool
	// Threads above one reduce keys concurrently.
	Threads int
}

// MapReduce is a map-reduce pass over every record. Map is called for each
// record and Reduce once per distinct emitted key, in key order when Threads
// is at most one. Returning false from either aborts the pass.
type MapReduce struct {
	Map     func(key, value []byte, emit Emitter) bool
	Reduce  func(key []byte, values *ValueIterator) bool
	TempDir string
	Options MapReduceOptions
}

// ValueIterator yields the values emitted for one key, once.
type ValueIterator struct {
	buf []byte
	err error
}

// Next returns the next value, or false at the end.
func (it *ValueIterator) Next() ([]byte, bool) {
	if len(it.buf) == 0 || it.err != nil {
		return nil, false
	}
	n, w := binary.Uvarint(it.buf)
	if w <= 0 || uint64(len(it.buf)-w) < n {
		it.err = errors.New("malformed value frame")
		it.buf = nil
		return nil, false
	}
	v := it.buf[w : w+int(n)]
	it.buf = it.buf[w+int(n):]
	return v, true
}

// Err reports a malformed intermediate record.
func (it *ValueIterator) Err() error { return it.err }

func appendFrame(dst, v []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(v)))
	return append(dst, v...)
}

// Every emitted value is its own record in the temporary store, keyed by
// the emitted key with zero bytes escaped, a 0x00 0x01 terminator and the
// big-endian emission sequence. Such keys sort by emitted key first and
// keep the values of one key in emission order.
const spillSuffix = 2 + 8

func spillKey(key []byte, seq uint64) []byte {
	out := make([]byte, 0, len(key)+spillSuffix+bytes.Count(key, []byte{0}))
	for _, b := range key {
		out = append(out, b)
		if b == 0 {
			out = append(out, 0xff)
		}
	}
	out = append(out, 0, 1)
	return binary.BigEndian.AppendUint64(out, seq)
}

// spillOwner recovers the emitted key from a temporary store key.
func spillOwner(k []byte) ([]byte, bool) {
	if len(k) < spillSuffix {
		return nil, false
	}
	body := k[:len(k)-spillSuffix]
	if k[len(body)] != 0 || k[len(body)+1] != 1 {
		return nil, false
	}
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		out = append(out, body[i])
		if body[i] == 0 {
			if i+1 == len(body) || body[i+1] != 0xff {
				return nil, false
			}
			i++
		}
	}
	return out, true
}

var errSpillKey = errors.Wrap(backend.ErrCorrupt, "malformed map-reduce record key")

// eachGroup walks a temporary store and calls fn once per emitted key with
// its framed values. It reports false when fn stopped the walk.
func eachGroup(be backend.Backend, fn func(key, framed []byte) bool) (bool, error) {
	var (
		cur, vals []byte
		started   bool
		stopped   bool
		bad       bool
	)
	err := be.Scan(func(k, v []byte) bool {
		owner, ok := spillOwner(k)
		if !ok {
			bad = true
			return false
		}
		if started && !bytes.Equal(owner, cur) {
			if !fn(cur, vals) {
				stopped = true
				return false
			}
			vals = nil
		}
		cur, started = owner, true
		vals = appendFrame(vals, v)
		return true
	})
	switch {
	case err != nil:
		return false, err
	case bad:
		return false, errSpillKey
	case stopped:
		return false, nil
	case started:
		return fn(cur, vals), nil
	}
	return true, nil
}

// MapReduce runs mr over the database.
func (s *Session) MapReduce(mr *MapReduce) bool {
	s.reset()
	if mr == nil || mr.Map == nil || mr.Reduce == nil {
		s.fail(Invalid, "map and reduce functions are required")
		return false
	}
	db := s.db
	logger := db.log

	dir := mr.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	tmpPath := filepath.Join(dir, "mr-"+ksuid.New().String()+DirTree.Ident())
	desc := tmpPath
	if !mr.Options.NoCompress {
		desc += "#zcomp=snappy"
	}

	tmp := New()
	ts := tmp.Session()
	if !ts.Open(desc, Writer|Create|Truncate) {
		s.err = ts.Error()
		return false
	}
	defer func() {
		ts.Close()
		if err := os.RemoveAll(tmpPath); err != nil {
			logger.Warn().Err(err).Str("path", tmpPath).Msg("removing map-reduce store")
		}
	}()

	if !s.mapPhase(mr, ts) {
		return false
	}
	return s.reducePhase(mr, tmp)
}

func (s *Session) mapPhase(mr *MapReduce, ts *Session) bool {
	db := s.db
	if mr.Options.NoLock {
		if !s.lockShared(false) {
			return false
		}
		defer db.mu.RUnlock()
	} else {
		if !s.lockExclusive(false) {
			return false
		}
		defer db.mu.Unlock()
	}

	var (
		emitErr *Error
		seq     uint64
	)
	emit := func(key, value []byte) bool {
		seq++
		if !ts.Set(spillKey(key, seq), value) {
			emitErr = ts.Error()
			return false
		}
		return true
	}

	mapped := true
	err := db.be.Scan(func(k, v []byte) bool {
		if !mr.Map(k, v, emit) {
			mapped = false
			return false
		}
		return true
	})
	switch {
	case err != nil:
		s.failErr(err)
		return false
	case emitErr != nil:
		s.err = emitErr
		return false
	case !mapped:
		s.fail(Logic, "mapper failed")
		return false
	}
	return true
}

func (s *Session) reducePhase(mr *MapReduce, tmp *DB) bool {
	tmp.mu.RLock()
	defer tmp.mu.RUnlock()
	be := tmp.be

	if mr.Options.Threads <= 1 {
		reduced, err := eachGroup(be, func(key, framed []byte) bool {
			return mr.Reduce(key, &ValueIterator{buf: framed})
		})
		if err != nil {
			s.failErr(err)
			return false
		}
		if !reduced {
			s.fail(Logic, "reducer failed")
			return false
		}
		return true
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(mr.Options.Threads)
	errReduce := errors.New("reducer failed")
	_, err := eachGroup(be, func(key, framed []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		it := &ValueIterator{buf: framed}
		g.Go(func() error {
			if !mr.Reduce(key, it) {
				return errReduce
			}
			return nil
		})
		return true
	})
	if werr := g.Wait(); werr != nil {
		s.fail(Logic, werr.Error())
		return false
	}
	if err != nil {
		s.failErr(err)
		return false
	}
	return true
}
