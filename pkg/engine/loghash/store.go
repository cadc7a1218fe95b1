// Package loghash implements the file and directory hash databases as an
// append-only record log with an in-memory hash index.
package loghash

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/ssargent/cabinetdb/pkg/codec"
	"github.com/ssargent/cabinetdb/pkg/engine/backend"
	"github.com/ssargent/cabinetdb/pkg/index"
)

// Store is a log-structured hash database.
type Store struct {
	mu       sync.RWMutex
	opts     backend.Options
	dataFile string
	dirMode  bool
	writer   *LogWriter
	reader   *LogReader
	index    *index.HashIndex[*IndexEntry]
	values   *valueCodec
	dead     int64
	dfunit   int64
	bnum     int
	recovery *RecoveryResult
	log      zerolog.Logger
}

// OpenFile opens a single-file hash database at opts.Path.
func OpenFile(opts backend.Options) (backend.Backend, error) {
	return open(opts, opts.Path, false)
}

// OpenDir opens a directory hash database; records live in opts.Path/active.data.
func OpenDir(opts backend.Options) (backend.Backend, error) {
	return open(opts, filepath.Join(opts.Path, ActiveFile), true)
}

func open(opts backend.Options, dataFile string, dirMode bool) (*Store, error) {
	bnum, err := opts.Params.Int("bnum", 0)
	if err != nil {
		return nil, err
	}
	dfunit, err := opts.Params.Int("dfunit", 0)
	if err != nil {
		return nil, err
	}
	zcomp := opts.Params.String("zcomp", "")
	if zcomp == "" && opts.Params.HasOption('c') {
		zcomp = codec.CompressZlib
	}
	values, err := newValueCodec(zcomp, opts.Params.String("zkey", ""))
	if err != nil {
		return nil, err
	}

	s := &Store{
		opts:     opts,
		dataFile: dataFile,
		dirMode:  dirMode,
		values:   values,
		dfunit:   dfunit,
		bnum:     int(bnum),
		log:      opts.Logger,
	}

	if _, err := os.Stat(dataFile); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if !opts.Create || opts.ReadOnly {
			return nil, errors.Wrapf(err, "open %s", opts.Path)
		}
	} else if opts.Truncate && !opts.ReadOnly {
		if err := os.Truncate(dataFile, 0); err != nil {
			return nil, err
		}
	}

	if err := s.openFiles(); err != nil {
		return nil, err
	}
	return s, nil
}

// openFiles validates the log, rebuilds the index and opens the writer and reader.
func (s *Store) openFiles() error {
	if !s.opts.ReadOnly {
		writer, err := NewLogWriter(LogWriterConfig{FilePath: s.dataFile, BufferSize: 64 * 1024})
		if err != nil {
			return err
		}
		s.writer = writer
	}

	recovery, err := s.rebuild()
	if err != nil {
		s.closeFiles()
		return err
	}
	s.recovery = recovery
	if s.writer != nil && recovery.RecordsTruncated > 0 {
		// The writer opened before truncation; reopen at the new end.
		_ = s.writer.Close()
		if s.writer, err = NewLogWriter(LogWriterConfig{FilePath: s.dataFile, BufferSize: 64 * 1024}); err != nil {
			return err
		}
	}

	reader, err := NewLogReader(s.dataFile)
	if err != nil {
		s.closeFiles()
		return err
	}
	s.reader = reader
	return nil
}

func (s *Store) closeFiles() {
	if s.writer != nil {
		_ = s.writer.Close()
		s.writer = nil
	}
	if s.reader != nil {
		_ = s.reader.Close()
		s.reader = nil
	}
}

// rebuild scans the log, builds the index and truncates a damaged tail
// unless repair is disabled.
func (s *Store) rebuild() (*RecoveryResult, error) {
	s.index = index.NewHashIndex[*IndexEntry](index.Config{Buckets: s.bnum})
	s.dead = 0

	f, err := os.Open(s.dataFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	result := &RecoveryResult{FileSizeBefore: info.Size(), FileSizeAfter: info.Size()}
	stream := codec.NewStreamReader(f, 0)
	for {
		start := stream.Offset()
		record, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, codec.ErrShortRecord) || errors.Is(err, codec.ErrChecksum) {
				if s.opts.NoRepair || s.opts.ReadOnly {
					return nil, errors.Wrapf(ErrCorruption, "%s at offset %d: %v", s.dataFile, start, err)
				}
				if err := os.Truncate(s.dataFile, start); err != nil {
					return nil, err
				}
				result.RecordsTruncated = 1
				result.FileSizeAfter = start
				s.log.Warn().Str("path", s.dataFile).Int64("offset", start).Err(err).Msg("truncated damaged log tail")
				break
			}
			return nil, err
		}
		result.RecordsValidated++

		if record.IsTombstone() {
			if _, existed := s.index.Delete(record.Key); existed {
				s.dead++
			}
			s.dead++
			continue
		}
		entry := &IndexEntry{Offset: start, Size: uint32(record.Size()), Timestamp: record.Timestamp}
		if !s.index.Put(record.Key, entry) {
			s.dead++
		}
	}
	result.DeadRecords = s.dead
	return result, nil
}

func (s *Store) readValue(entry *IndexEntry) ([]byte, error) {
	record, err := s.reader.ReadAt(entry.Offset)
	if err != nil {
		return nil, err
	}
	if s.values.identity() {
		return append([]byte(nil), record.Value...), nil
	}
	return s.values.decode(record.Value)
}

// Get retrieves a value for a key
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.index.Get(key)
	if !exists {
		return nil, false, nil
	}
	v, err := s.readValue(entry)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set stores a key-value pair
func (s *Store) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return backend.ErrReadOnly
	}
	stored, err := s.values.encode(value)
	if err != nil {
		return err
	}
	offset, n, err := s.writer.Put(key, stored)
	if err != nil {
		return err
	}
	if !s.index.Put(key, &IndexEntry{Offset: offset, Size: uint32(n)}) {
		s.dead++
	}
	return s.maybeCompact()
}

// Delete removes a key-value pair (tombstone)
func (s *Store) Delete(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return false, backend.ErrReadOnly
	}
	if _, exists := s.index.Get(key); !exists {
		return false, nil
	}
	if _, _, err := s.writer.PutTombstone(key); err != nil {
		return false, err
	}
	s.index.Delete(key)
	s.dead += 2
	return true, s.maybeCompact()
}

func (s *Store) maybeCompact() error {
	if s.dfunit <= 0 || s.dead < s.dfunit {
		return nil
	}
	return s.compact()
}

// compact rewrites the live records into a fresh log and swaps it in.
func (s *Store) compact() error {
	tmp := s.dataFile + ".compact"
	w, err := NewLogWriter(LogWriterConfig{FilePath: tmp, BufferSize: 256 * 1024})
	if err != nil {
		return err
	}

	next := index.NewHashIndex[*IndexEntry](index.Config{Buckets: s.bnum})
	var copyErr error
	s.index.Range(func(key []byte, entry *IndexEntry) bool {
		record, err := s.reader.ReadAt(entry.Offset)
		if err != nil {
			copyErr = err
			return false
		}
		offset, n, err := w.Put(key, record.Value)
		if err != nil {
			copyErr = err
			return false
		}
		next.Put(key, &IndexEntry{Offset: offset, Size: uint32(n), Timestamp: record.Timestamp})
		return true
	})
	if copyErr == nil {
		copyErr = w.Close()
	} else {
		_ = w.Close()
	}
	if copyErr != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(copyErr, "compact")
	}

	s.closeFiles()
	if err := os.Rename(tmp, s.dataFile); err != nil {
		return errors.Wrap(err, "compact rename")
	}
	if s.writer, err = NewLogWriter(LogWriterConfig{FilePath: s.dataFile, BufferSize: 64 * 1024}); err != nil {
		return err
	}
	if s.reader, err = NewLogReader(s.dataFile); err != nil {
		return err
	}
	s.log.Debug().Str("path", s.dataFile).Int64("dead", s.dead).Int("live", next.Size()).Msg("compacted log")
	s.index = next
	s.dead = 0
	return nil
}

// Locate walks the index in bucket order.
func (s *Store) Locate(pos backend.Position, key []byte) ([]byte, []byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		k     []byte
		entry *IndexEntry
		ok    bool
	)
	switch pos {
	case backend.First:
		k, entry, ok = s.index.First()
	case backend.AtOrAfter:
		k, entry, ok = s.index.SeekGE(key)
	case backend.After:
		k, entry, ok = s.index.SeekGT(key)
	default:
		return nil, nil, false, backend.ErrNotSupported
	}
	if !ok {
		return nil, nil, false, nil
	}
	v, err := s.readValue(entry)
	if err != nil {
		return nil, nil, false, err
	}
	return k, v, true, nil
}

func (s *Store) Scan(fn func(key, value []byte) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scanErr error
	s.index.Range(func(key []byte, entry *IndexEntry) bool {
		v, err := s.readValue(entry)
		if err != nil {
			scanErr = err
			return false
		}
		return fn(key, v)
	})
	return scanErr
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return backend.ErrReadOnly
	}
	if err := s.writer.Truncate(); err != nil {
		return err
	}
	s.index.Clear()
	s.dead = 0
	return nil
}

func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.index.Size()), nil
}

func (s *Store) Size() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.writer != nil {
		return s.writer.Size(), nil
	}
	info, err := os.Stat(s.dataFile)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *Store) Sync(hard bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.writer == nil {
		return nil
	}
	return s.writer.Sync(hard)
}

// Close shuts down the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.writer != nil {
		err = s.writer.Close()
		s.writer = nil
	}
	if s.reader != nil {
		if rerr := s.reader.Close(); err == nil {
			err = rerr
		}
		s.reader = nil
	}
	return err
}

func (s *Store) Ordered() bool { return false }

// CopyTo duplicates the data file. For directory databases dest is a directory.
func (s *Store) CopyTo(dest string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.writer != nil {
		if err := s.writer.Sync(false); err != nil {
			return err
		}
	}
	target := dest
	if s.dirMode {
		if err := os.MkdirAll(dest, 0750); err != nil {
			return err
		}
		target = filepath.Join(dest, ActiveFile)
	}

	src, err := os.Open(s.dataFile)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func (s *Store) Status() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := map[string]string{
		"organization": "hash",
		"datafile":     s.dataFile,
		"dead":         strconv.FormatInt(s.dead, 10),
		"dfunit":       strconv.FormatInt(s.dfunit, 10),
		"encrypted":    strconv.FormatBool(s.values.aead != nil),
	}
	if s.values.comp != nil {
		st["compressor"] = s.values.comp.Name()
	}
	if s.recovery != nil {
		st["recovered_records"] = strconv.FormatInt(s.recovery.RecordsValidated, 10)
		st["truncated_records"] = strconv.FormatInt(s.recovery.RecordsTruncated, 10)
	}
	return st
}

// Recovery reports what the last open found in the data file.
func (s *Store) Recovery() RecoveryResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.recovery
}
