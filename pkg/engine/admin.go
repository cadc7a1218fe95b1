package engine

import (
	"strconv"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

// MergeMode selects how Merge treats keys that already exist.
type MergeMode int

const (
	// MergeSet overwrites existing records.
	MergeSet MergeMode = iota
	// MergeAdd keeps existing records.
	MergeAdd
	// MergeReplace only updates existing records.
	MergeReplace
	// MergeAppend appends to existing records.
	MergeAppend
)

// Clear removes every record.
func (s *Session) Clear() bool {
	s.reset()
	if !s.lockExclusive(true) {
		return false
	}
	db := s.db
	defer db.mu.Unlock()

	if db.tran.active.Load() {
		err := db.be.Scan(func(k, v []byte) bool {
			db.journal(k, v, true)
			return true
		})
		if err != nil {
			s.failErr(err)
			return false
		}
	}
	if err := db.be.Clear(); err != nil {
		s.failErr(err)
		return false
	}
	return s.synced()
}

// Count returns the number of records, or -1.
func (s *Session) Count() int64 {
	s.reset()
	if !s.lockShared(false) {
		return -1
	}
	defer s.db.mu.RUnlock()
	n, err := s.db.be.Count()
	if err != nil {
		s.failErr(err)
		return -1
	}
	return n
}

// Size returns the size of the database in bytes, or -1.
func (s *Session) Size() int64 {
	s.reset()
	if !s.lockShared(false) {
		return -1
	}
	defer s.db.mu.RUnlock()
	n, err := s.db.be.Size()
	if err != nil {
		s.failErr(err)
		return -1
	}
	return n
}

// Path returns the path of the open database, or "".
func (s *Session) Path() string {
	s.reset()
	if !s.lockShared(false) {
		return ""
	}
	defer s.db.mu.RUnlock()
	return s.db.desc.Path
}

// Type returns the type of the open database, or Void.
func (s *Session) Type() Type {
	s.reset()
	if !s.lockShared(false) {
		return Void
	}
	defer s.db.mu.RUnlock()
	return s.db.desc.Type
}

// Status reports the backend status plus the common fields.
func (s *Session) Status() map[string]string {
	s.reset()
	if !s.lockShared(false) {
		return nil
	}
	db := s.db
	defer db.mu.RUnlock()

	out := map[string]string{}
	for k, v := range db.be.Status() {
		out[k] = v
	}
	count, err := db.be.Count()
	if err != nil {
		s.failErr(err)
		return nil
	}
	size, err := db.be.Size()
	if err != nil {
		s.failErr(err)
		return nil
	}
	out["type"] = strconv.Itoa(int(db.desc.Type))
	out["realtype"] = db.desc.Type.String()
	out["path"] = db.desc.Path
	out["mode"] = db.mode.String()
	out["count"] = strconv.FormatInt(count, 10)
	out["size"] = strconv.FormatInt(size, 10)
	out["transaction"] = strconv.FormatBool(db.tran.active.Load())
	out["encoding"] = db.encoding.Load().(string)
	for _, p := range []string{"apow", "fpow", "bnum", "opts"} {
		if v, ok := db.desc.Params[p]; ok {
			out[p] = v
		}
	}
	return out
}

// Copy duplicates the database files to dest.
func (s *Session) Copy(dest string) bool {
	s.reset()
	if !s.lockExclusive(false) {
		return false
	}
	defer s.db.mu.Unlock()

	c, ok := s.db.be.(backend.Copier)
	if !ok {
		s.fail(NoImpl, msgNoImpl)
		return false
	}
	if err := s.db.be.Sync(false); err != nil {
		s.failErr(err)
		return false
	}
	if err := c.CopyTo(dest); err != nil {
		s.failErr(err)
		return false
	}
	return true
}

// Occupy locks the whole store, exclusively when writable, and runs proc.
func (s *Session) Occupy(writable bool, proc FileProcessor) bool {
	s.reset()
	if writable {
		if !s.lockExclusive(false) {
			return false
		}
		defer s.db.mu.Unlock()
	} else {
		if !s.lockShared(false) {
			return false
		}
		defer s.db.mu.RUnlock()
	}
	return s.process(proc)
}

// Synchronize flushes the store, physically when hard, and then runs proc
// with the store locked.
func (s *Session) Synchronize(hard bool, proc FileProcessor) bool {
	s.reset()
	if !s.lockExclusive(false) {
		return false
	}
	defer s.db.mu.Unlock()
	if err := s.db.be.Sync(hard); err != nil {
		s.failErr(err)
		return false
	}
	return s.process(proc)
}

func (s *Session) process(proc FileProcessor) bool {
	if proc == nil {
		return true
	}
	count, err := s.db.be.Count()
	if err != nil {
		s.failErr(err)
		return false
	}
	size, err := s.db.be.Size()
	if err != nil {
		s.failErr(err)
		return false
	}
	if !proc.Process(s.db.desc.Path, count, size) {
		s.fail(Logic, "postprocessing failed")
		return false
	}
	return true
}

// Merge copies every record of srcs into the database. Merging two handles
// into each other concurrently deadlocks.
func (s *Session) Merge(srcs []*DB, mode MergeMode) bool {
	s.reset()
	if !s.lockExclusive(true) {
		return false
	}
	db := s.db
	defer db.mu.Unlock()

	for _, src := range srcs {
		if src == db {
			s.fail(Invalid, "cannot merge a database into itself")
			return false
		}
		if !s.mergeFrom(src, mode) {
			return false
		}
	}
	return s.synced()
}

func (s *Session) mergeFrom(src *DB, mode MergeMode) bool {
	src.mu.RLock()
	defer src.mu.RUnlock()
	if src.be == nil {
		s.fail(Invalid, "source "+msgNotOpened)
		return false
	}

	be := s.db.be
	var failure error
	err := src.be.Scan(func(k, v []byte) bool {
		old, found, err := be.Get(k)
		if err != nil {
			failure = err
			return false
		}
		var nv []byte
		switch mode {
		case MergeSet:
			nv = v
		case MergeAdd:
			if found {
				return true
			}
			nv = v
		case MergeReplace:
			if !found {
				return true
			}
			nv = v
		case MergeAppend:
			nv = append(append(make([]byte, 0, len(old)+len(v)), old...), v...)
		}
		s.db.journal(k, old, found)
		if err := be.Set(append([]byte{}, k...), append([]byte{}, nv...)); err != nil {
			failure = err
			return false
		}
		return true
	})
	if err == nil {
		err = failure
	}
	if err != nil {
		s.failErr(err)
		return false
	}
	return true
}
