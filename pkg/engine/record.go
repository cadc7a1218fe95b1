package engine

import (
	"bytes"
	"math"

	"github.com/ssargent/cabinetdb/pkg/codec"
)

// point runs fn on key's record with the store lock shared and the slot
// held. fn returns the visitor result and whether the call succeeded.
func (s *Session) point(key []byte, writable bool, fn func(old []byte, found bool) ([]byte, bool)) bool {
	s.reset()
	if !s.lockShared(writable) {
		return false
	}
	defer s.db.mu.RUnlock()
	defer s.db.lockKey(key)()

	ok := true
	v := VisitorFuncs{
		Full: func(_, value []byte) []byte {
			res, good := fn(value, true)
			ok = good
			return res
		},
		Empty: func([]byte) []byte {
			res, good := fn(nil, false)
			ok = good
			return res
		},
	}
	if !s.acceptLocked(key, v, writable) {
		return false
	}
	return ok
}

// Set stores value under key, replacing any existing record.
func (s *Session) Set(key, value []byte) bool {
	return s.point(key, true, func([]byte, bool) ([]byte, bool) {
		return nonNil(value), true
	})
}

// Add stores value only if key is absent; otherwise it fails with DupRec.
func (s *Session) Add(key, value []byte) bool {
	return s.point(key, true, func(_ []byte, found bool) ([]byte, bool) {
		if found {
			s.fail(DupRec, msgDuplicate)
			return Nop, false
		}
		return nonNil(value), true
	})
}

// Replace stores value only if key exists; otherwise it fails with NoRec.
func (s *Session) Replace(key, value []byte) bool {
	return s.point(key, true, func(_ []byte, found bool) ([]byte, bool) {
		if !found {
			s.fail(NoRec, msgNoRecord)
			return Nop, false
		}
		return nonNil(value), true
	})
}

// Append adds value to the end of the existing record, or stores it.
func (s *Session) Append(key, value []byte) bool {
	return s.point(key, true, func(old []byte, found bool) ([]byte, bool) {
		if !found {
			return nonNil(value), true
		}
		out := make([]byte, 0, len(old)+len(value))
		return append(append(out, old...), value...), true
	})
}

// CAS swaps the value of key from old to nv. A nil old requires the record
// to be absent; a nil nv removes it. A mismatch fails with Logic.
func (s *Session) CAS(key, old, nv []byte) bool {
	return s.point(key, true, func(cur []byte, found bool) ([]byte, bool) {
		if old == nil {
			if found {
				s.fail(Logic, msgConflict)
				return Nop, false
			}
		} else if !found || !bytes.Equal(cur, old) {
			s.fail(Logic, msgConflict)
			return Nop, false
		}
		if nv == nil {
			return Remove, true
		}
		return nonNil(nv), true
	})
}

// Remove deletes key; a missing record fails with NoRec.
func (s *Session) Remove(key []byte) bool {
	return s.point(key, true, func(_ []byte, found bool) ([]byte, bool) {
		if !found {
			s.fail(NoRec, msgNoRecord)
			return Nop, false
		}
		return Remove, true
	})
}

// Get returns a copy of the value of key, or nil with NoRec.
func (s *Session) Get(key []byte) []byte {
	var out []byte
	ok := s.point(key, false, func(old []byte, found bool) ([]byte, bool) {
		if !found {
			s.fail(NoRec, msgNoRecord)
			return Nop, false
		}
		out = append(make([]byte, 0, len(old)), old...)
		return Nop, true
	})
	if !ok {
		return nil
	}
	return out
}

// Seize returns the value of key and removes the record.
func (s *Session) Seize(key []byte) []byte {
	var out []byte
	ok := s.point(key, true, func(old []byte, found bool) ([]byte, bool) {
		if !found {
			s.fail(NoRec, msgNoRecord)
			return Nop, false
		}
		out = append(make([]byte, 0, len(old)), old...)
		return Remove, true
	})
	if !ok {
		return nil
	}
	return out
}

// Check returns the size of the value of key, or -1 with NoRec.
func (s *Session) Check(key []byte) int {
	size := -1
	s.point(key, false, func(old []byte, found bool) ([]byte, bool) {
		if !found {
			s.fail(NoRec, msgNoRecord)
			return Nop, false
		}
		size = len(old)
		return Nop, true
	})
	return size
}

// Increment adds num to the 8-byte big-endian counter under key and returns
// the result. On a missing record orig is the initial value; math.MinInt64
// fails with NoRec instead and math.MaxInt64 starts from zero. Failure
// returns math.MinInt64.
func (s *Session) Increment(key []byte, num, orig int64) int64 {
	result := int64(math.MinInt64)
	ok := s.point(key, true, func(old []byte, found bool) ([]byte, bool) {
		var cur int64
		switch {
		case found:
			n, err := codec.BytesToInt64(old)
			if err != nil {
				s.fail(Logic, msgInconsistent)
				return Nop, false
			}
			cur = n
		case orig == math.MinInt64:
			s.fail(NoRec, msgNoRecord)
			return Nop, false
		case orig != math.MaxInt64:
			cur = orig
		}
		result = cur + num
		return codec.Int64ToBytes(result), true
	})
	if !ok {
		return math.MinInt64
	}
	return result
}

// IncrementDouble is Increment over the 16-byte fixed-point decimal format.
// On a missing record orig is the initial value; -Inf fails with NoRec and
// +Inf starts from zero. Failure returns NaN.
func (s *Session) IncrementDouble(key []byte, num, orig float64) float64 {
	result := math.NaN()
	ok := s.point(key, true, func(old []byte, found bool) ([]byte, bool) {
		var cur float64
		switch {
		case found:
			f, err := codec.DecimalToFloat(old)
			if err != nil {
				s.fail(Logic, msgInconsistent)
				return Nop, false
			}
			cur = f
		case math.IsInf(orig, -1) || math.IsNaN(orig):
			s.fail(NoRec, msgNoRecord)
			return Nop, false
		case !math.IsInf(orig, 1):
			cur = orig
		}
		enc := codec.FloatToDecimal(cur + num)
		result, _ = codec.DecimalToFloat(enc)
		return enc, true
	})
	if !ok {
		return math.NaN()
	}
	return result
}

// nonNil keeps an empty value from being read as a Nop.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
