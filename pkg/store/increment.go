package store

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/cabinetdb/pkg/codec"
	"github.com/ssargent/cabinetdb/pkg/engine"
)

// Counters are stored as 8-byte big-endian integers and decimals as 16-byte
// 64.64 fixed-point values. The engine reserves the extreme orig values to
// select its miss policy.
const (
	failOnMiss  = math.MinInt64
	deltaOnMiss = math.MaxInt64
)

// ErrReservedDefault is returned when a default collides with a value the
// engine reserves for its miss policies.
var ErrReservedDefault = errors.New("store: default value is reserved")

// Increment adds delta to the counter under key. A missing key fails with
// ErrKeyNotFound.
func (db *DB) Increment(key []byte, delta int64) (int64, error) {
	return db.increment("increment", key, delta, failOnMiss)
}

// IncrementOrSet adds delta to the counter under key, creating it with
// delta when missing.
func (db *DB) IncrementOrSet(key []byte, delta int64) (int64, error) {
	return db.increment("increment or set", key, delta, deltaOnMiss)
}

// IncrementOrSetDefault adds delta to the counter under key, starting from
// def when missing. math.MinInt64 and math.MaxInt64 are not accepted as
// defaults.
func (db *DB) IncrementOrSetDefault(key []byte, delta, def int64) (int64, error) {
	if def == failOnMiss || def == deltaOnMiss {
		return 0, errors.Wrapf(ErrReservedDefault, "%d", def)
	}
	return db.increment("increment or set default", key, delta, def)
}

func (db *DB) increment(op string, key []byte, delta, orig int64) (int64, error) {
	var n int64
	err := db.with(func(s *engine.Session) error {
		n = s.Increment(key, delta, orig)
		if n == math.MinInt64 && s.Error() != nil {
			return classifyMiss(op, key, s)
		}
		return nil
	})
	return n, err
}

// IncrementDecimal adds delta to the fixed-point decimal under key. A
// missing key fails with ErrKeyNotFound.
func (db *DB) IncrementDecimal(key []byte, delta float64) (float64, error) {
	return db.incrementDecimal("increment decimal", key, delta, math.Inf(-1))
}

// IncrementDecimalOrSet adds delta to the decimal under key, creating it
// with delta when missing.
func (db *DB) IncrementDecimalOrSet(key []byte, delta float64) (float64, error) {
	return db.incrementDecimal("increment decimal or set", key, delta, math.Inf(1))
}

// IncrementDecimalOrSetDefault adds delta to the decimal under key,
// starting from def when missing. Infinite and NaN defaults are rejected.
func (db *DB) IncrementDecimalOrSetDefault(key []byte, delta, def float64) (float64, error) {
	if math.IsInf(def, 0) || math.IsNaN(def) {
		return 0, errors.Wrapf(ErrReservedDefault, "%v", def)
	}
	return db.incrementDecimal("increment decimal or set default", key, delta, def)
}

func (db *DB) incrementDecimal(op string, key []byte, delta, orig float64) (float64, error) {
	var f float64
	err := db.with(func(s *engine.Session) error {
		f = s.IncrementDouble(key, delta, orig)
		if math.IsNaN(f) && s.Error() != nil {
			return classifyMiss(op, key, s)
		}
		return nil
	})
	return f, err
}

// GetDecimal reads the fixed-point decimal under key. found is false when
// the record does not exist.
func (db *DB) GetDecimal(key []byte) (v float64, found bool, err error) {
	b, err := db.Get(key)
	if err != nil || b == nil {
		return 0, false, err
	}
	v, err = codec.DecimalToFloat(b)
	if err != nil {
		return 0, true, errors.Wrapf(err, "decimal %q", key)
	}
	return v, true, nil
}

// GetCounter reads the integer counter under key.
func (db *DB) GetCounter(key []byte) (v int64, found bool, err error) {
	b, err := db.Get(key)
	if err != nil || b == nil {
		return 0, false, err
	}
	v, err = codec.BytesToInt64(b)
	if err != nil {
		return 0, true, errors.Wrapf(err, "counter %q", key)
	}
	return v, true, nil
}

// IncrementString is Increment with the key encoded under the handle's
// encoding.
func (db *DB) IncrementString(key string, delta int64) (int64, error) {
	k, err := db.encode(key)
	if err != nil {
		return 0, err
	}
	return db.Increment(k, delta)
}

// IncrementOrSetString is IncrementOrSet for a string key.
func (db *DB) IncrementOrSetString(key string, delta int64) (int64, error) {
	k, err := db.encode(key)
	if err != nil {
		return 0, err
	}
	return db.IncrementOrSet(k, delta)
}

// IncrementOrSetDefaultString is IncrementOrSetDefault for a string key.
func (db *DB) IncrementOrSetDefaultString(key string, delta, def int64) (int64, error) {
	k, err := db.encode(key)
	if err != nil {
		return 0, err
	}
	return db.IncrementOrSetDefault(k, delta, def)
}

// IncrementDecimalString is IncrementDecimal for a string key.
func (db *DB) IncrementDecimalString(key string, delta float64) (float64, error) {
	k, err := db.encode(key)
	if err != nil {
		return 0, err
	}
	return db.IncrementDecimal(k, delta)
}

// IncrementDecimalOrSetString is IncrementDecimalOrSet for a string key.
func (db *DB) IncrementDecimalOrSetString(key string, delta float64) (float64, error) {
	k, err := db.encode(key)
	if err != nil {
		return 0, err
	}
	return db.IncrementDecimalOrSet(k, delta)
}

// IncrementDecimalOrSetDefaultString is IncrementDecimalOrSetDefault for a
// string key.
func (db *DB) IncrementDecimalOrSetDefaultString(key string, delta, def float64) (float64, error) {
	k, err := db.encode(key)
	if err != nil {
		return 0, err
	}
	return db.IncrementDecimalOrSetDefault(k, delta, def)
}
