// Package store is the typed access layer over the CabinetDB engine. It
// turns the engine's boolean and sentinel results into Go values and
// classified errors.
//
// A DB is safe for concurrent use. Visitors, file processors and map-reduce
// callbacks run while the engine holds a record or store lock; calling back
// into the same DB from inside one can deadlock.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ssargent/cabinetdb/pkg/codec"
	"github.com/ssargent/cabinetdb/pkg/config"
	"github.com/ssargent/cabinetdb/pkg/engine"
	"github.com/ssargent/cabinetdb/pkg/log"
)

// DB is a handle on one database. It starts closed.
type DB struct {
	desc config.Descriptor
	eng  *engine.DB
	log  zerolog.Logger

	mu       sync.Mutex // serializes Open and Close
	open     atomic.Bool
	enc      atomic.Pointer[codec.Text]
	sessions sync.Pool
}

// Option configures a DB.
type Option func(*DB)

// WithLogger replaces the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(db *DB) { db.log = l }
}

// WithEncoding sets the initial string encoding.
func WithEncoding(t *codec.Text) Option {
	return func(db *DB) {
		if t != nil {
			db.enc.Store(t)
		}
	}
}

// New returns a closed handle for the database described by desc.
func New(desc config.Descriptor, opts ...Option) *DB {
	db := &DB{
		desc: desc,
		eng:  engine.New(),
		log:  log.Store,
	}
	db.enc.Store(codec.UTF8)
	db.sessions.New = func() any { return db.eng.Session() }
	for _, opt := range opts {
		opt(db)
	}
	db.eng.TuneEncoding(db.enc.Load().Name())
	db.log = db.log.With().Str("db", desc.Path).Logger()
	return db
}

// Descriptor returns the descriptor the handle was created with.
func (db *DB) Descriptor() config.Descriptor { return db.desc }

// Open opens the database.
func (db *DB) Open() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.open.Load() {
		return ErrAlreadyOpen
	}
	s := db.eng.Session()
	if !s.Open(db.desc.String(), db.desc.Mode) {
		return classify("open", s)
	}
	db.open.Store(true)
	db.log.Info().Str("type", db.desc.Type.String()).Str("mode", db.desc.Mode.String()).Msg("database opened")
	return nil
}

// Close closes the database, rolling back an unfinished transaction.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open.Load() {
		return ErrClosed
	}
	db.open.Store(false)
	s := db.eng.Session()
	if !s.Close() {
		return classify("close", s)
	}
	db.log.Info().Msg("database closed")
	return nil
}

// IsOpen reports whether the handle is open.
func (db *DB) IsOpen() bool { return db.open.Load() }

// SetEncoding changes the charset used by every later string conversion on
// this handle. Names are IANA or WHATWG charset names.
func (db *DB) SetEncoding(name string) error {
	t, err := codec.LookupText(name)
	if err != nil {
		return err
	}
	db.enc.Store(t)
	db.eng.TuneEncoding(t.Name())
	return nil
}

// Encoding returns the current charset name.
func (db *DB) Encoding() string { return db.enc.Load().Name() }

// session checks the handle is open and borrows an engine session.
func (db *DB) session() (*engine.Session, error) {
	if !db.open.Load() {
		return nil, ErrClosed
	}
	return db.sessions.Get().(*engine.Session), nil
}

func (db *DB) release(s *engine.Session) { db.sessions.Put(s) }

// with runs fn on a borrowed session.
func (db *DB) with(fn func(s *engine.Session) error) error {
	s, err := db.session()
	if err != nil {
		return err
	}
	defer db.release(s)
	return fn(s)
}

func (db *DB) encode(s string) ([]byte, error) { return db.enc.Load().Encode(s) }

func (db *DB) decode(b []byte) (string, error) { return db.enc.Load().Decode(b) }

func (db *DB) encodeAll(ss []string) ([][]byte, error) {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		b, err := db.encode(s)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func (db *DB) decodeAll(bs [][]byte) ([]string, error) {
	out := make([]string, len(bs))
	for i, b := range bs {
		s, err := db.decode(b)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
