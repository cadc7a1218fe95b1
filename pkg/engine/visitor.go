package engine

import "github.com/ssargent/cabinetdb/pkg/engine/backend"

// Nop and Remove are the reserved visitor results. They are recognised by
// identity, so a visitor must return these exact slices.
var (
	Nop    = []byte{'N', 'O', 'P'}
	Remove = []byte{'R', 'E', 'M'}
)

func isSentinel(b, sentinel []byte) bool {
	return len(b) > 0 && &b[0] == &sentinel[0]
}

// IsNop reports whether b is the Nop sentinel.
func IsNop(b []byte) bool { return isSentinel(b, Nop) }

// IsRemove reports whether b is the Remove sentinel.
func IsRemove(b []byte) bool { return isSentinel(b, Remove) }

// Visitor is called for a record. VisitFull receives an existing record and
// VisitEmpty a missing one; both return the new value, Nop or Remove. A nil
// result is treated as Nop. The slices passed in must not be retained.
type Visitor interface {
	VisitFull(key, value []byte) []byte
	VisitEmpty(key []byte) []byte
}

// VisitorFuncs adapts a pair of functions to Visitor. A nil function
// returns Nop.
type VisitorFuncs struct {
	Full  func(key, value []byte) []byte
	Empty func(key []byte) []byte
}

func (v VisitorFuncs) VisitFull(key, value []byte) []byte {
	if v.Full == nil {
		return Nop
	}
	return v.Full(key, value)
}

func (v VisitorFuncs) VisitEmpty(key []byte) []byte {
	if v.Empty == nil {
		return Nop
	}
	return v.Empty(key)
}

// FileProcessor runs inside Occupy and Synchronize while the store is
// locked. Returning false fails the enclosing call.
type FileProcessor interface {
	Process(path string, count, size int64) bool
}

// FileProcessorFunc adapts a function to FileProcessor.
type FileProcessorFunc func(path string, count, size int64) bool

func (f FileProcessorFunc) Process(path string, count, size int64) bool {
	return f(path, count, size)
}

// visit runs v for key and applies its result. The caller holds the store
// lock and the key's slot. old and found describe the current record.
func (s *Session) visit(key, old []byte, found bool, v Visitor, writable bool) bool {
	var res []byte
	if found {
		res = v.VisitFull(key, old)
	} else {
		res = v.VisitEmpty(key)
	}
	if res == nil || IsNop(res) || !writable {
		return true
	}

	be := s.db.be
	if IsRemove(res) {
		if !found {
			return true
		}
		s.db.journal(key, old, true)
		if _, err := be.Delete(key); err != nil {
			s.failErr(err)
			return false
		}
		return s.synced()
	}
	s.db.journal(key, old, found)
	if err := be.Set(key, res); err != nil {
		s.failErr(err)
		return false
	}
	return s.synced()
}

// acceptLocked loads key and visits it. The caller holds the store lock and
// the key's slot.
func (s *Session) acceptLocked(key []byte, v Visitor, writable bool) bool {
	old, found, err := s.db.be.Get(key)
	if err != nil {
		s.failErr(err)
		return false
	}
	return s.visit(key, old, found, v, writable)
}

// Accept visits the record of key with v. When writable is false the
// visitor's result is ignored.
func (s *Session) Accept(key []byte, v Visitor, writable bool) bool {
	s.reset()
	if !s.lockShared(writable) {
		return false
	}
	defer s.db.mu.RUnlock()
	defer s.db.lockKey(key)()
	return s.acceptLocked(key, v, writable)
}

// AcceptBulk visits every key with all of their slots held, so the set of
// visits is atomic with respect to other record operations.
func (s *Session) AcceptBulk(keys [][]byte, v Visitor, writable bool) bool {
	s.reset()
	if !s.lockShared(writable) {
		return false
	}
	defer s.db.mu.RUnlock()
	defer s.db.lockKeys(keys)()
	for _, k := range keys {
		if !s.acceptLocked(k, v, writable) {
			return false
		}
	}
	return true
}

// Iterate visits every record in store order under the exclusive lock.
func (s *Session) Iterate(v Visitor, writable bool) bool {
	s.reset()
	if !s.lockExclusive(writable) {
		return false
	}
	defer s.db.mu.Unlock()

	be := s.db.be
	k, val, ok, err := be.Locate(backend.First, nil)
	for ; ok && err == nil; k, val, ok, err = be.Locate(backend.After, k) {
		if !s.visit(k, val, true, v, writable) {
			return false
		}
	}
	if err != nil {
		s.failErr(err)
		return false
	}
	return true
}
