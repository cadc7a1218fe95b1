package engine

import (
	"sync"
	"sync/atomic"
)

type undo struct {
	key   []byte
	value []byte
	found bool
}

// transaction is the single transaction slot of a DB.
type transaction struct {
	mu     sync.Mutex
	cond   *sync.Cond
	busy   bool // a transaction owns the slot
	active atomic.Bool
	hard   bool

	jmu     sync.Mutex
	seen    map[string]struct{}
	journal []undo
}

// journal records the state of key before its first change inside a
// transaction.
func (db *DB) journal(key, old []byte, found bool) {
	if !db.tran.active.Load() {
		return
	}
	t := &db.tran
	t.jmu.Lock()
	defer t.jmu.Unlock()
	if _, ok := t.seen[string(key)]; ok {
		return
	}
	t.seen[string(key)] = struct{}{}
	u := undo{key: append([]byte{}, key...), found: found}
	if found {
		u.value = append([]byte{}, old...)
	}
	t.journal = append(t.journal, u)
}

// rollbackLocked restores the journal. The caller holds the exclusive lock.
func (db *DB) rollbackLocked() error {
	t := &db.tran
	for i := len(t.journal) - 1; i >= 0; i-- {
		u := t.journal[i]
		var err error
		if u.found {
			err = db.be.Set(u.key, u.value)
		} else {
			_, err = db.be.Delete(u.key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// finishTransaction releases the transaction slot.
func (db *DB) finishTransaction() {
	t := &db.tran
	t.active.Store(false)
	t.journal, t.seen = nil, nil
	t.mu.Lock()
	t.busy = false
	t.mu.Unlock()
	t.cond.Broadcast()
}

// BeginTransaction starts a transaction, waiting while another one is in
// progress. hard selects physical synchronization at commit.
func (s *Session) BeginTransaction(hard bool) bool {
	return s.begin(hard, s.db.mode.Has(TryLock))
}

// BeginTransactionTry starts a transaction without waiting.
func (s *Session) BeginTransactionTry(hard bool) bool {
	return s.begin(hard, true)
}

func (s *Session) begin(hard, try bool) bool {
	s.reset()
	db := s.db
	if !db.IsOpen() {
		s.fail(Invalid, msgNotOpened)
		return false
	}

	t := &db.tran
	t.mu.Lock()
	for t.busy {
		if try {
			t.mu.Unlock()
			s.fail(Logic, msgCompetition)
			return false
		}
		t.cond.Wait()
	}
	t.busy = true
	t.mu.Unlock()

	if !s.lockExclusive(true) {
		db.finishTransaction()
		return false
	}
	defer db.mu.Unlock()

	if err := db.be.Sync(hard); err != nil {
		s.failErr(err)
		db.finishTransaction()
		return false
	}
	t.hard = hard
	t.seen = make(map[string]struct{})
	t.journal = nil
	t.active.Store(true)
	return true
}

// EndTransaction commits or aborts the current transaction.
func (s *Session) EndTransaction(commit bool) bool {
	s.reset()
	db := s.db
	if !s.lockExclusive(false) {
		return false
	}
	defer db.mu.Unlock()
	if !db.tran.active.Load() {
		s.fail(Invalid, msgNotInTran)
		return false
	}
	defer db.finishTransaction()

	if !commit {
		if err := db.rollbackLocked(); err != nil {
			s.failErr(err)
			return false
		}
		db.log.Debug().Int("records", len(db.tran.journal)).Msg("transaction aborted")
	}
	if err := db.be.Sync(db.tran.hard); err != nil {
		s.failErr(err)
		return false
	}
	return true
}
