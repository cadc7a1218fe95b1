// Package pebbletree implements the directory tree database on pebble.
package pebbletree

import (
	"bytes"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	"github.com/ssargent/cabinetdb/pkg/codec"
	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

// Store implements backend.Backend over a pebble LSM directory.
type Store struct {
	db          *pebble.DB
	path        string
	count       atomic.Int64
	compression string
	log         zerolog.Logger
}

// Open creates or opens a pebble database directory. Recognised parameters:
// pccap (block cache bytes), psiz (block size), zcomp/opts=c (compression).
func Open(opts backend.Options) (backend.Backend, error) {
	pccap, err := opts.Params.Int("pccap", 8<<20)
	if err != nil {
		return nil, err
	}
	psiz, err := opts.Params.Int("psiz", 0)
	if err != nil {
		return nil, err
	}
	compression, name, err := compressionFor(opts.Params)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(opts.Path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if !opts.Create || opts.ReadOnly {
			return nil, errors.Wrapf(err, "open %s", opts.Path)
		}
	} else if opts.Truncate && !opts.ReadOnly {
		if err := os.RemoveAll(opts.Path); err != nil {
			return nil, err
		}
	}

	cache := pebble.NewCache(pccap)
	defer cache.Unref()

	popts := &pebble.Options{
		Cache:    cache,
		ReadOnly: opts.ReadOnly,
		Levels:   make([]pebble.LevelOptions, 7),
	}
	for i := range popts.Levels {
		popts.Levels[i].Compression = compression
		if psiz > 0 {
			popts.Levels[i].BlockSize = int(psiz)
		}
	}

	db, err := pebble.Open(opts.Path, popts)
	if err != nil {
		if pebble.IsCorruptionError(err) {
			return nil, errors.Wrapf(backend.ErrCorrupt, "open %s: %v", opts.Path, err)
		}
		return nil, errors.Wrap(err, "opening pebble db")
	}

	s := &Store{db: db, path: opts.Path, compression: name, log: opts.Logger}
	var n int64
	if err := s.Scan(func(_, _ []byte) bool { n++; return true }); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.count.Store(n)
	return s, nil
}

func compressionFor(p backend.Params) (pebble.Compression, string, error) {
	name := p.String("zcomp", "")
	if name == "" && p.HasOption('c') {
		name = codec.CompressSnappy
	}
	switch name {
	case "":
		return pebble.NoCompression, "none", nil
	case codec.CompressSnappy:
		return pebble.SnappyCompression, name, nil
	case codec.CompressZstd:
		return pebble.ZstdCompression, name, nil
	}
	return pebble.NoCompression, "", errors.Wrapf(codec.ErrUnknownCompressor, "%q is not available for directory trees", name)
}

func (s *Store) exists(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr(err)
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, true, nil
}

func (s *Store) Set(key, value []byte) error {
	existed, err := s.exists(key)
	if err != nil {
		return mapErr(err)
	}
	if err := s.db.Set(key, value, pebble.NoSync); err != nil {
		return mapErr(err)
	}
	if !existed {
		s.count.Add(1)
	}
	return nil
}

func (s *Store) Delete(key []byte) (bool, error) {
	existed, err := s.exists(key)
	if err != nil || !existed {
		return false, mapErr(err)
	}
	if err := s.db.Delete(key, pebble.NoSync); err != nil {
		return false, mapErr(err)
	}
	s.count.Add(-1)
	return true, nil
}

func (s *Store) Locate(pos backend.Position, key []byte) ([]byte, []byte, bool, error) {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return nil, nil, false, err
	}
	defer iter.Close()

	var valid bool
	switch pos {
	case backend.First:
		valid = iter.First()
	case backend.Last:
		valid = iter.Last()
	case backend.AtOrAfter:
		valid = iter.SeekGE(key)
	case backend.After:
		valid = iter.SeekGE(key)
		if valid && bytes.Equal(iter.Key(), key) {
			valid = iter.Next()
		}
	case backend.AtOrBefore:
		valid = iter.SeekGE(key)
		if !valid || !bytes.Equal(iter.Key(), key) {
			valid = iter.SeekLT(key)
		}
	case backend.Before:
		valid = iter.SeekLT(key)
	}
	if !valid {
		return nil, nil, false, iter.Error()
	}
	return append([]byte{}, iter.Key()...), append([]byte{}, iter.Value()...), true, nil
}

func (s *Store) Scan(fn func(key, value []byte) bool) error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	for valid := iter.First(); valid; valid = iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return mapErr(err)
	}
	return iter.Close()
}

func (s *Store) Clear() error {
	batch := s.db.NewBatch()
	defer batch.Close()

	err := s.Scan(func(k, _ []byte) bool {
		return batch.Delete(k, nil) == nil
	})
	if err != nil {
		return err
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return mapErr(err)
	}
	s.count.Store(0)
	return nil
}

func (s *Store) Count() (int64, error) { return s.count.Load(), nil }

func (s *Store) Size() (int64, error) {
	return int64(s.db.Metrics().DiskSpaceUsage()), nil
}

// Sync makes the write-ahead log durable when hard is set.
func (s *Store) Sync(hard bool) error {
	if !hard {
		return nil
	}
	return s.db.LogData(nil, pebble.Sync)
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ordered() bool { return true }

// CopyTo writes a checkpoint of the database into the dest directory.
func (s *Store) CopyTo(dest string) error {
	return s.db.Checkpoint(dest)
}

func (s *Store) Status() map[string]string {
	m := s.db.Metrics()
	return map[string]string{
		"organization": "tree",
		"compression":  s.compression,
		"disk_usage":   strconv.FormatUint(m.DiskSpaceUsage(), 10),
		"wal_files":    strconv.FormatInt(m.WAL.Files, 10),
		"memtables":    strconv.FormatInt(m.MemTable.Count, 10),
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pebble.ErrReadOnly) {
		return errors.Wrap(backend.ErrReadOnly, err.Error())
	}
	if pebble.IsCorruptionError(err) {
		return errors.Wrap(backend.ErrCorrupt, err.Error())
	}
	return err
}
