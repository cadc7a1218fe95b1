package store

import (
	"github.com/ssargent/cabinetdb/pkg/engine"
)

// Get returns the value of key, or nil when the record does not exist. An
// existing empty value is returned as a non-nil empty slice.
func (db *DB) Get(key []byte) ([]byte, error) {
	var v []byte
	err := db.with(func(s *engine.Session) error {
		if v = s.Get(key); v == nil {
			return classify("get", s, benign...)
		}
		return nil
	})
	return v, err
}

// Set stores value under key, replacing any existing record.
func (db *DB) Set(key, value []byte) error {
	return db.with(func(s *engine.Session) error {
		if !s.Set(key, value) {
			return classify("set", s)
		}
		return nil
	})
}

// Remove deletes key and reports whether it existed.
func (db *DB) Remove(key []byte) (bool, error) {
	return db.flag("remove", func(s *engine.Session) bool { return s.Remove(key) })
}

// Append adds value to the end of the record, creating it if needed.
func (db *DB) Append(key, value []byte) error {
	return db.with(func(s *engine.Session) error {
		if !s.Append(key, value) {
			return classify("append", s)
		}
		return nil
	})
}

// Replace stores value only when key already exists and reports whether it
// did.
func (db *DB) Replace(key, value []byte) (bool, error) {
	return db.flag("replace", func(s *engine.Session) bool { return s.Replace(key, value) })
}

// PutIfAbsent stores value only when key does not exist. It reports
// whether the record was absent.
func (db *DB) PutIfAbsent(key, value []byte) (bool, error) {
	return db.flag("put if absent", func(s *engine.Session) bool { return s.Add(key, value) })
}

// CompareAndSwap replaces the value of key with nv if it currently equals
// old. A nil old requires the record to be absent and a nil nv removes the
// record. It reports whether the swap happened; a value mismatch is false
// with a nil error, any other failure is returned.
func (db *DB) CompareAndSwap(key, old, nv []byte) (bool, error) {
	ok := false
	err := db.with(func(s *engine.Session) error {
		if ok = s.CAS(key, old, nv); ok || s.Error().Conflict() {
			return nil
		}
		return classify("compare and swap", s, benign...)
	})
	return ok, err
}

// GetAndRemove removes key and returns its value, or nil when absent.
func (db *DB) GetAndRemove(key []byte) ([]byte, error) {
	var v []byte
	err := db.with(func(s *engine.Session) error {
		if v = s.Seize(key); v == nil {
			return classify("get and remove", s, benign...)
		}
		return nil
	})
	return v, err
}

// ValueSize returns the size of the value of key, or -1 when absent.
func (db *DB) ValueSize(key []byte) (int, error) {
	n := -1
	err := db.with(func(s *engine.Session) error {
		if n = s.Check(key); n < 0 {
			return classify("value size", s, benign...)
		}
		return nil
	})
	return n, err
}

// Exists reports whether key has a record.
func (db *DB) Exists(key []byte) (bool, error) {
	n, err := db.ValueSize(key)
	return n >= 0, err
}

// flag runs a boolean engine call, reporting benign codes as false.
func (db *DB) flag(op string, fn func(s *engine.Session) bool) (bool, error) {
	ok := false
	err := db.with(func(s *engine.Session) error {
		if ok = fn(s); !ok {
			return classify(op, s, benign...)
		}
		return nil
	})
	return ok, err
}

// GetString returns the decoded value of key and whether it exists.
func (db *DB) GetString(key string) (string, bool, error) {
	k, err := db.encode(key)
	if err != nil {
		return "", false, err
	}
	v, err := db.Get(k)
	if err != nil || v == nil {
		return "", false, err
	}
	s, err := db.decode(v)
	return s, err == nil, err
}

// SetString is Set for strings.
func (db *DB) SetString(key, value string) error {
	k, v, err := db.encodePair(key, value)
	if err != nil {
		return err
	}
	return db.Set(k, v)
}

// RemoveString is Remove for strings.
func (db *DB) RemoveString(key string) (bool, error) {
	k, err := db.encode(key)
	if err != nil {
		return false, err
	}
	return db.Remove(k)
}

// AppendString is Append for strings.
func (db *DB) AppendString(key, value string) error {
	k, v, err := db.encodePair(key, value)
	if err != nil {
		return err
	}
	return db.Append(k, v)
}

// ReplaceString is Replace for strings.
func (db *DB) ReplaceString(key, value string) (bool, error) {
	k, v, err := db.encodePair(key, value)
	if err != nil {
		return false, err
	}
	return db.Replace(k, v)
}

// PutIfAbsentString is PutIfAbsent for strings.
func (db *DB) PutIfAbsentString(key, value string) (bool, error) {
	k, v, err := db.encodePair(key, value)
	if err != nil {
		return false, err
	}
	return db.PutIfAbsent(k, v)
}

// CompareAndSwapString is CompareAndSwap for strings; nil pointers keep
// their byte-level meaning.
func (db *DB) CompareAndSwapString(key string, old, nv *string) (bool, error) {
	k, err := db.encode(key)
	if err != nil {
		return false, err
	}
	var o, n []byte
	if old != nil {
		if o, err = db.encode(*old); err != nil {
			return false, err
		}
		o = nonNil(o)
	}
	if nv != nil {
		if n, err = db.encode(*nv); err != nil {
			return false, err
		}
		n = nonNil(n)
	}
	return db.CompareAndSwap(k, o, n)
}

// GetAndRemoveString is GetAndRemove for strings.
func (db *DB) GetAndRemoveString(key string) (string, bool, error) {
	k, err := db.encode(key)
	if err != nil {
		return "", false, err
	}
	v, err := db.GetAndRemove(k)
	if err != nil || v == nil {
		return "", false, err
	}
	s, err := db.decode(v)
	return s, err == nil, err
}

// ExistsString is Exists for strings.
func (db *DB) ExistsString(key string) (bool, error) {
	k, err := db.encode(key)
	if err != nil {
		return false, err
	}
	return db.Exists(k)
}

// ValueSizeString is ValueSize for a string key.
func (db *DB) ValueSizeString(key string) (int, error) {
	k, err := db.encode(key)
	if err != nil {
		return -1, err
	}
	return db.ValueSize(k)
}

func (db *DB) encodePair(key, value string) ([]byte, []byte, error) {
	k, err := db.encode(key)
	if err != nil {
		return nil, nil, err
	}
	v, err := db.encode(value)
	if err != nil {
		return nil, nil, err
	}
	return k, v, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
