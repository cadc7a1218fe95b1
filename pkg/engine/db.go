// Package engine is the record storage engine behind the store facade. It
// speaks in boolean and sentinel results: every failing call records an
// *Error on the calling Session, readable with Session.Error.
package engine

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
	"github.com/ssargent/cabinetdb/pkg/log"
)

const slotCount = 64

// DB is a database handle shared by any number of goroutines. Each goroutine
// drives it through its own Session.
type DB struct {
	// mu is the whole-store lock; record operations hold it shared.
	mu    sync.RWMutex
	slots [slotCount]sync.Mutex

	be     backend.Backend
	desc   Descriptor
	mode   Mode
	log    zerolog.Logger
	logOut io.Closer

	tran     transaction
	encoding atomic.Value
}

// New returns a closed database handle.
func New() *DB {
	db := &DB{log: log.Engine}
	db.tran.cond = sync.NewCond(&db.tran.mu)
	db.encoding.Store("utf-8")
	return db
}

// TuneEncoding records the charset callers use for string records. The
// engine stores bytes either way; the name shows up in Status.
func (db *DB) TuneEncoding(name string) {
	db.encoding.Store(name)
}

// Session is a caller's view of a DB with its own error register. A
// Session must not be used by two goroutines at once.
type Session struct {
	db  *DB
	err *Error
}

// Session returns a new session on db.
func (db *DB) Session() *Session {
	return &Session{db: db}
}

// DB returns the handle the session belongs to.
func (s *Session) DB() *DB { return s.db }

// Error returns the failure recorded by the last failed call, or nil.
func (s *Session) Error() *Error { return s.err }

func (s *Session) reset() { s.err = nil }

func (s *Session) fail(code Code, msg string) {
	s.err = &Error{Code: code, Message: msg}
}

func (s *Session) failErr(err error) {
	s.err = &Error{Code: codeOf(err), Message: err.Error()}
	if s.err.Code == System || s.err.Code == Broken {
		s.db.log.Warn().Err(err).Str("code", s.err.Code.String()).Msg("backend failure")
	}
}

// Open opens the database described by desc.
func (s *Session) Open(desc string, mode Mode) bool {
	s.reset()
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.be != nil {
		s.fail(Invalid, msgAlreadyOpen)
		return false
	}
	d, err := ParseDescriptor(desc)
	if err != nil {
		s.fail(Invalid, err.Error())
		return false
	}
	factory := factoryFor(d.Type)
	if factory == nil {
		s.fail(NoImpl, "no implementation for "+d.Type.String())
		return false
	}
	if !mode.Has(Writer) {
		mode |= Reader
		mode &^= Create | Truncate
	}

	logger, closer, err := openLogger(d.Params)
	if err != nil {
		s.fail(Invalid, err.Error())
		return false
	}

	be, err := factory(backend.Options{
		Path:     d.Path,
		ReadOnly: !mode.Has(Writer),
		Create:   mode.Has(Create),
		Truncate: mode.Has(Truncate),
		NoLock:   mode.Has(NoLock),
		TryLock:  mode.Has(TryLock),
		NoRepair: mode.Has(NoRepair),
		Params:   d.Params,
		Logger:   logger,
	})
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		s.failErr(err)
		if errors.Is(err, os.ErrNotExist) {
			s.err.Code = NoRepos
		}
		return false
	}
	if mode.Has(Truncate) && d.Type.InMemory() {
		if err := be.Clear(); err != nil {
			_ = be.Close()
			s.failErr(err)
			return false
		}
	}

	db.be, db.desc, db.mode, db.log, db.logOut = be, d, mode, logger, closer
	db.log.Debug().Str("path", d.Path).Str("type", d.Type.String()).Str("mode", mode.String()).Msg("opened")
	return true
}

// Close closes the database. An active transaction is rolled back.
func (s *Session) Close() bool {
	s.reset()
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.be == nil {
		s.fail(Invalid, msgNotOpened)
		return false
	}
	ok := true
	if db.tran.active.Load() {
		if err := db.rollbackLocked(); err != nil {
			s.failErr(err)
			ok = false
		}
		db.finishTransaction()
	}
	if err := db.be.Sync(false); err != nil && ok {
		s.failErr(err)
		ok = false
	}
	if err := db.be.Close(); err != nil && ok {
		s.failErr(err)
		ok = false
	}
	db.log.Debug().Str("path", db.desc.Path).Msg("closed")
	db.be = nil
	if db.logOut != nil {
		_ = db.logOut.Close()
		db.logOut = nil
	}
	db.log = log.Engine
	return ok
}

// IsOpen reports whether the handle is open.
func (db *DB) IsOpen() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.be != nil
}

// lockShared takes the whole-store lock shared and checks the handle is
// open. writable additionally requires a writer handle.
func (s *Session) lockShared(writable bool) bool {
	db := s.db
	if db.mode.Has(TryLock) {
		if !db.mu.TryRLock() {
			s.fail(Logic, msgCompetition)
			return false
		}
	} else {
		db.mu.RLock()
	}
	if !s.checkLocked(writable) {
		db.mu.RUnlock()
		return false
	}
	return true
}

// lockExclusive takes the whole-store lock exclusively.
func (s *Session) lockExclusive(writable bool) bool {
	db := s.db
	if db.mode.Has(TryLock) {
		if !db.mu.TryLock() {
			s.fail(Logic, msgCompetition)
			return false
		}
	} else {
		db.mu.Lock()
	}
	if !s.checkLocked(writable) {
		db.mu.Unlock()
		return false
	}
	return true
}

func (s *Session) checkLocked(writable bool) bool {
	if s.db.be == nil {
		s.fail(Invalid, msgNotOpened)
		return false
	}
	if writable && !s.db.mode.Has(Writer) {
		s.fail(NoPerm, msgNoPermission)
		return false
	}
	return true
}

func slotOf(key []byte) int {
	return int(xxhash.Sum64(key) % slotCount)
}

// lockKey locks the record slot of key and returns the unlock function.
func (db *DB) lockKey(key []byte) func() {
	m := &db.slots[slotOf(key)]
	m.Lock()
	return m.Unlock
}

// lockKeys locks the slots of every key in ascending slot order.
func (db *DB) lockKeys(keys [][]byte) func() {
	var used [slotCount]bool
	for _, k := range keys {
		used[slotOf(k)] = true
	}
	var locked []int
	for i, u := range used {
		if u {
			db.slots[i].Lock()
			locked = append(locked, i)
		}
	}
	return func() {
		for j := len(locked) - 1; j >= 0; j-- {
			db.slots[locked[j]].Unlock()
		}
	}
}

// synced applies the auto synchronization modes after an update.
func (s *Session) synced() bool {
	db := s.db
	var err error
	switch {
	case db.mode.Has(AutoTran):
		err = db.be.Sync(true)
	case db.mode.Has(AutoSync):
		err = db.be.Sync(false)
	}
	if err != nil {
		s.failErr(err)
		return false
	}
	return true
}
