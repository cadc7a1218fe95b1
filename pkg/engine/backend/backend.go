// Package backend defines the storage contract the engine drives. Each store
// type is served by one Backend implementation.
package backend

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Position selects where Locate lands relative to a key.
type Position int

const (
	First Position = iota
	Last
	AtOrAfter
	After
	AtOrBefore
	Before
)

// Errors a backend reports for conditions the engine maps to specific codes.
// Anything else is treated as a system error.
var (
	ErrNotSupported = errors.New("operation not supported by this store type")
	ErrCorrupt      = errors.New("store data is corrupt")
	ErrReadOnly     = errors.New("store is read-only")
	ErrBusy         = errors.New("store is locked by another process")
)

// Backend stores records. Implementations must be safe for concurrent use;
// the engine serializes operations on the same key.
type Backend interface {
	// Get returns a copy of the value stored under key.
	Get(key []byte) (value []byte, found bool, err error)
	Set(key, value []byte) error
	Delete(key []byte) (found bool, err error)
	// Locate finds the record at pos relative to key (key is ignored for
	// First and Last). Unordered backends return ErrNotSupported for
	// Last, AtOrBefore and Before.
	Locate(pos Position, key []byte) (k, v []byte, ok bool, err error)
	// Scan visits every record in store order until fn returns false.
	// fn must not modify the backend, and key and value are only valid
	// until fn returns.
	Scan(fn func(key, value []byte) bool) error
	Clear() error
	Count() (int64, error)
	Size() (int64, error)
	// Sync flushes buffered writes, and forces them to stable storage when hard is set.
	Sync(hard bool) error
	Close() error
	// Ordered reports whether iteration follows key order.
	Ordered() bool
	Status() map[string]string
}

// Copier is implemented by backends that can duplicate their files.
type Copier interface {
	CopyTo(dest string) error
}

// Options configure a backend at open time.
type Options struct {
	Path     string
	ReadOnly bool
	Create   bool
	Truncate bool
	NoLock   bool
	TryLock  bool
	NoRepair bool
	Params   Params
	Logger   zerolog.Logger
}

// Factory opens a backend.
type Factory func(opts Options) (Backend, error)

// Params are the tuning arguments of a database descriptor.
type Params map[string]string

// String returns the named parameter or def.
func (p Params) String(name, def string) string {
	if v, ok := p[name]; ok && v != "" {
		return v
	}
	return def
}

// Int returns the named parameter as an integer or def. Size suffixes k, m
// and g are accepted.
func (p Params) Int(name string, def int64) (int64, error) {
	v, ok := p[name]
	if !ok || v == "" {
		return def, nil
	}
	n, err := ParseSize(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parameter %s", name)
	}
	return n, nil
}

// HasOption reports whether the opts parameter contains flag (s, l or c).
func (p Params) HasOption(flag byte) bool {
	return strings.IndexByte(p["opts"], flag) >= 0
}

// ParseSize parses an integer with an optional k, m or g suffix.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	mult := int64(1)
	if s != "" {
		switch s[len(s)-1] {
		case 'k':
			mult = 1 << 10
		case 'm':
			mult = 1 << 20
		case 'g':
			mult = 1 << 30
		}
		if mult != 1 {
			s = s[:len(s)-1]
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Newf("invalid number %q", s)
	}
	return n * mult, nil
}
