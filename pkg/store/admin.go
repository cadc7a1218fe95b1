package store

import (
	"github.com/cockroachdb/errors"

	"github.com/ssargent/cabinetdb/pkg/engine"
	"github.com/ssargent/cabinetdb/pkg/log"
)

// Count returns the number of records.
func (db *DB) Count() (int64, error) {
	return db.count("count", func(s *engine.Session) int64 { return s.Count() })
}

// SizeInBytes returns the size of the database.
func (db *DB) SizeInBytes() (int64, error) {
	return db.count("size", func(s *engine.Session) int64 { return s.Size() })
}

// Status returns the engine status fields as reported.
func (db *DB) Status() (map[string]string, error) {
	var st map[string]string
	err := db.with(func(s *engine.Session) error {
		if st = s.Status(); st == nil {
			return classify("status", s)
		}
		return nil
	})
	return st, err
}

// Path returns the path of the open database.
func (db *DB) Path() (string, error) {
	var p string
	err := db.with(func(s *engine.Session) error {
		if p = s.Path(); p == "" {
			return classify("path", s)
		}
		return nil
	})
	return p, err
}

// Type returns the type of the open database.
func (db *DB) Type() (engine.Type, error) {
	t := engine.Void
	err := db.with(func(s *engine.Session) error {
		if t = s.Type(); t == engine.Void {
			return classify("type", s)
		}
		return nil
	})
	return t, err
}

// Clear removes every record.
func (db *DB) Clear() error {
	return db.do("clear", func(s *engine.Session) bool { return s.Clear() })
}

// DumpSnapshot writes every record to a snapshot file at path.
func (db *DB) DumpSnapshot(path string) error {
	return db.do("dump snapshot", func(s *engine.Session) bool { return s.DumpSnapshot(path) })
}

// LoadSnapshot stores every record of the snapshot file at path.
func (db *DB) LoadSnapshot(path string) error {
	return db.do("load snapshot", func(s *engine.Session) bool { return s.LoadSnapshot(path) })
}

// CopyTo writes a copy of the database files to path. In-memory databases
// fail with ErrNotImplemented.
func (db *DB) CopyTo(path string) error {
	return db.do("copy", func(s *engine.Session) bool { return s.Copy(path) })
}

// do runs a boolean engine call where every failure is surfaced.
func (db *DB) do(op string, fn func(s *engine.Session) bool) error {
	return db.with(func(s *engine.Session) error {
		if !fn(s) {
			return classify(op, s)
		}
		return nil
	})
}

// MergeType selects how MergeWith treats keys that already exist.
type MergeType int

const (
	// MergeSet overwrites existing records.
	MergeSet MergeType = iota
	// MergeKeepExisting leaves existing records alone.
	MergeKeepExisting
	// MergeAppend appends to existing records.
	MergeAppend
	// MergeReplaceOnly only updates records that already exist.
	MergeReplaceOnly
)

var mergeModes = map[MergeType]engine.MergeMode{
	MergeSet:          engine.MergeSet,
	MergeKeepExisting: engine.MergeAdd,
	MergeAppend:       engine.MergeAppend,
	MergeReplaceOnly:  engine.MergeReplace,
}

// MergeWith copies every record of srcs into db. Each source must be a
// different, open handle. Merging two handles into each other concurrently
// deadlocks.
func (db *DB) MergeWith(mt MergeType, srcs ...*DB) error {
	mode, ok := mergeModes[mt]
	if !ok {
		return errors.Newf("store: unknown merge type %d", int(mt))
	}
	engs := make([]*engine.DB, 0, len(srcs))
	for i, src := range srcs {
		switch {
		case src == nil:
			return errors.Wrapf(ErrMergeSource, "source %d is nil", i)
		case src == db:
			return errors.Wrapf(ErrMergeSource, "source %d is the destination", i)
		case !src.IsOpen():
			return errors.Wrapf(ErrMergeSource, "source %d is closed", i)
		}
		engs = append(engs, src.eng)
	}
	return db.do("merge", func(s *engine.Session) bool { return s.Merge(engs, mode) })
}

// LockType selects how Occupy holds the store.
type LockType int

const (
	// ReadLock lets readers continue while the processor runs.
	ReadLock LockType = iota
	// WriteLock holds the store exclusively.
	WriteLock
)

// FileProcessor is called with the database path, record count and size
// while the store is locked. An error or panic fails the calling operation.
type FileProcessor interface {
	Process(path string, count, size int64) error
}

// FileProcessorFunc adapts a function to FileProcessor.
type FileProcessorFunc func(path string, count, size int64) error

func (f FileProcessorFunc) Process(path string, count, size int64) error { return f(path, count, size) }

func (db *DB) processor(proc FileProcessor) engine.FileProcessor {
	if proc == nil {
		return nil
	}
	return engine.FileProcessorFunc(func(path string, count, size int64) bool {
		return log.Guard(db.log, "file processor failed", func() error {
			return proc.Process(path, count, size)
		})
	})
}

// Occupy locks the whole store and runs proc. proc may be nil.
func (db *DB) Occupy(lock LockType, proc FileProcessor) error {
	return db.do("occupy", func(s *engine.Session) bool {
		return s.Occupy(lock == WriteLock, db.processor(proc))
	})
}

// Synchronize flushes the store to disk, physically with Physical, then
// runs proc with the store locked. proc may be nil.
func (db *DB) Synchronize(sync Synchronization, proc FileProcessor) error {
	return db.do("synchronize", func(s *engine.Session) bool {
		return s.Synchronize(sync == Physical, db.processor(proc))
	})
}
