package store

import (
	"github.com/ssargent/cabinetdb/pkg/engine"
)

// Atomicity selects how a bulk operation treats a failure part way through.
type Atomicity int

const (
	// Atomic holds every affected record for the whole call and undoes
	// completed writes when one fails.
	Atomic Atomicity = iota
	// BestEffort handles keys one at a time and stops at the first failure,
	// keeping what was already done.
	BestEffort
)

func (a Atomicity) String() string {
	if a == Atomic {
		return "atomic"
	}
	return "best-effort"
}

// GetBulk returns the values of the keys that exist, keyed by the raw key
// bytes.
func (db *DB) GetBulk(keys [][]byte, a Atomicity) (map[string][]byte, error) {
	var out map[string][]byte
	err := db.with(func(s *engine.Session) error {
		if out = s.GetBulk(keys, a == Atomic); out == nil {
			return classify("get bulk", s)
		}
		return nil
	})
	return out, err
}

// SetBulk stores every record and returns how many were stored.
func (db *DB) SetBulk(recs map[string][]byte, a Atomicity) (int64, error) {
	return db.count("set bulk", func(s *engine.Session) int64 { return s.SetBulk(recs, a == Atomic) })
}

// RemoveBulk deletes the keys and returns how many existed.
func (db *DB) RemoveBulk(keys [][]byte, a Atomicity) (int64, error) {
	return db.count("remove bulk", func(s *engine.Session) int64 { return s.RemoveBulk(keys, a == Atomic) })
}

// count runs an engine call that returns -1 on failure.
func (db *DB) count(op string, fn func(s *engine.Session) int64) (int64, error) {
	n := int64(-1)
	err := db.with(func(s *engine.Session) error {
		if n = fn(s); n < 0 {
			return classify(op, s)
		}
		return nil
	})
	return n, err
}

// GetBulkString is GetBulk for strings.
func (db *DB) GetBulkString(keys []string, a Atomicity) (map[string]string, error) {
	raw, err := db.encodeAll(keys)
	if err != nil {
		return nil, err
	}
	recs, err := db.GetBulk(raw, a)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(recs))
	for k, v := range recs {
		key, err := db.decode([]byte(k))
		if err != nil {
			return nil, err
		}
		if out[key], err = db.decode(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetBulkString is SetBulk for strings.
func (db *DB) SetBulkString(recs map[string]string, a Atomicity) (int64, error) {
	raw := make(map[string][]byte, len(recs))
	for k, v := range recs {
		key, val, err := db.encodePair(k, v)
		if err != nil {
			return -1, err
		}
		raw[string(key)] = val
	}
	return db.SetBulk(raw, a)
}

// RemoveBulkString is RemoveBulk for strings.
func (db *DB) RemoveBulkString(keys []string, a Atomicity) (int64, error) {
	raw, err := db.encodeAll(keys)
	if err != nil {
		return -1, err
	}
	return db.RemoveBulk(raw, a)
}
