package store

import (
	"github.com/cockroachdb/errors"

	"github.com/ssargent/cabinetdb/pkg/engine"
)

// Synchronization selects how a transaction is flushed when it ends.
type Synchronization int

const (
	// Logical syncs to the operating system.
	Logical Synchronization = iota
	// Physical syncs to the device.
	Physical
)

// Begin starts a transaction. Transactions do not nest; under the TryLock
// mode Begin fails instead of waiting for another transaction.
func (db *DB) Begin(sync Synchronization) error {
	return db.with(func(s *engine.Session) error {
		if !s.BeginTransaction(sync == Physical) {
			return classify("begin", s)
		}
		return nil
	})
}

// Commit ends the transaction and keeps its changes.
func (db *DB) Commit() error { return db.end("commit", true) }

// Rollback ends the transaction and undoes its changes.
func (db *DB) Rollback() error { return db.end("rollback", false) }

func (db *DB) end(op string, commit bool) error {
	return db.with(func(s *engine.Session) error {
		if !s.EndTransaction(commit) {
			return classify(op, s)
		}
		return nil
	})
}

// Transaction runs fn in a transaction. It commits when fn returns nil and
// rolls back when fn fails or panics.
func (db *DB) Transaction(sync Synchronization, fn func() error) (err error) {
	if err := db.Begin(sync); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if rerr := db.Rollback(); rerr != nil {
				db.log.Error().Err(rerr).Msg("rollback after panic")
			}
			panic(r)
		}
	}()

	if err := fn(); err != nil {
		if rerr := db.Rollback(); rerr != nil {
			return errors.CombineErrors(err, rerr)
		}
		return err
	}
	return db.Commit()
}
