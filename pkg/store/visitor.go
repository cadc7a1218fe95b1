package store

import (
	"github.com/ssargent/cabinetdb/pkg/engine"
)

type outcomeKind uint8

const (
	unchanged outcomeKind = iota
	deleted
	replaced
	replacedText
)

// Outcome is what a mutating visitor does with a record: leave it, delete
// it or replace its value. The zero Outcome is Unchanged.
type Outcome struct {
	kind  outcomeKind
	value []byte
	text  string
}

var (
	// Unchanged leaves the record as it is.
	Unchanged = Outcome{}
	// Deleted removes the record.
	Deleted = Outcome{kind: deleted}
)

// Replace stores value as the new record value. Replacing a missing record
// creates it.
func Replace(value []byte) Outcome {
	return Outcome{kind: replaced, value: nonNil(value)}
}

// ReplaceString is Replace with a string encoded under the handle's
// encoding.
func ReplaceString(value string) Outcome {
	return Outcome{kind: replacedText, text: value}
}

// IsUnchanged reports whether o leaves the record alone.
func (o Outcome) IsUnchanged() bool { return o.kind == unchanged }

// IsDeleted reports whether o removes the record.
func (o Outcome) IsDeleted() bool { return o.kind == deleted }

// Visitor reads records. Visit is called for an existing record and
// VisitEmpty for a missing one. The slices are only valid during the call.
type Visitor interface {
	Visit(key, value []byte)
	VisitEmpty(key []byte)
}

// MutatingVisitor is a Visitor that decides the fate of each record.
type MutatingVisitor interface {
	Visit(key, value []byte) Outcome
	VisitEmpty(key []byte) Outcome
}

// StringVisitor is Visitor with keys and values decoded under the handle's
// encoding.
type StringVisitor interface {
	Visit(key, value string)
	VisitEmpty(key string)
}

// StringMutatingVisitor is MutatingVisitor over decoded strings.
type StringMutatingVisitor interface {
	Visit(key, value string) Outcome
	VisitEmpty(key string) Outcome
}

// VisitorFuncs adapts functions to Visitor; nil functions do nothing.
type VisitorFuncs struct {
	Full  func(key, value []byte)
	Empty func(key []byte)
}

func (v VisitorFuncs) Visit(key, value []byte) {
	if v.Full != nil {
		v.Full(key, value)
	}
}

func (v VisitorFuncs) VisitEmpty(key []byte) {
	if v.Empty != nil {
		v.Empty(key)
	}
}

// MutatingVisitorFuncs adapts functions to MutatingVisitor; nil functions
// return Unchanged.
type MutatingVisitorFuncs struct {
	Full  func(key, value []byte) Outcome
	Empty func(key []byte) Outcome
}

func (v MutatingVisitorFuncs) Visit(key, value []byte) Outcome {
	if v.Full == nil {
		return Unchanged
	}
	return v.Full(key, value)
}

func (v MutatingVisitorFuncs) VisitEmpty(key []byte) Outcome {
	if v.Empty == nil {
		return Unchanged
	}
	return v.Empty(key)
}

// StringVisitorFuncs adapts functions to StringVisitor; nil functions do
// nothing.
type StringVisitorFuncs struct {
	Full  func(key, value string)
	Empty func(key string)
}

func (v StringVisitorFuncs) Visit(key, value string) {
	if v.Full != nil {
		v.Full(key, value)
	}
}

func (v StringVisitorFuncs) VisitEmpty(key string) {
	if v.Empty != nil {
		v.Empty(key)
	}
}

// StringMutatingVisitorFuncs adapts functions to StringMutatingVisitor;
// nil functions return Unchanged.
type StringMutatingVisitorFuncs struct {
	Full  func(key, value string) Outcome
	Empty func(key string) Outcome
}

func (v StringMutatingVisitorFuncs) Visit(key, value string) Outcome {
	if v.Full == nil {
		return Unchanged
	}
	return v.Full(key, value)
}

func (v StringMutatingVisitorFuncs) VisitEmpty(key string) Outcome {
	if v.Empty == nil {
		return Unchanged
	}
	return v.Empty(key)
}

// adapter turns a store visitor into an engine visitor. A conversion
// failure is kept in err and the record left alone; it is reported after
// the engine call returns.
type adapter struct {
	db       *DB
	writable bool
	full     func(key, value []byte) (Outcome, error)
	empty    func(key []byte) (Outcome, error)
	err      error
}

func (a *adapter) VisitFull(key, value []byte) []byte {
	if a.err != nil {
		return engine.Nop
	}
	o, err := a.full(key, value)
	return a.result(o, err)
}

func (a *adapter) VisitEmpty(key []byte) []byte {
	if a.err != nil {
		return engine.Nop
	}
	o, err := a.empty(key)
	return a.result(o, err)
}

// result maps an Outcome onto the engine's reserved slices. Replacement
// values are copied, so a value equal to a reserved slice is stored as data.
func (a *adapter) result(o Outcome, err error) []byte {
	if err != nil {
		a.err = err
		return engine.Nop
	}
	switch o.kind {
	case deleted:
		return engine.Remove
	case replaced:
		return append(make([]byte, 0, len(o.value)), o.value...)
	case replacedText:
		b, err := a.db.encode(o.text)
		if err != nil {
			a.err = err
			return engine.Nop
		}
		return nonNil(b)
	}
	return engine.Nop
}

func (db *DB) readAdapter(v Visitor) *adapter {
	return &adapter{
		db: db,
		full: func(k, val []byte) (Outcome, error) {
			v.Visit(k, val)
			return Unchanged, nil
		},
		empty: func(k []byte) (Outcome, error) {
			v.VisitEmpty(k)
			return Unchanged, nil
		},
	}
}

func (db *DB) mutatingAdapter(v MutatingVisitor) *adapter {
	return &adapter{
		db:       db,
		writable: true,
		full:     func(k, val []byte) (Outcome, error) { return v.Visit(k, val), nil },
		empty:    func(k []byte) (Outcome, error) { return v.VisitEmpty(k), nil },
	}
}

func (db *DB) stringReadAdapter(v StringVisitor) *adapter {
	return &adapter{
		db: db,
		full: func(k, val []byte) (Outcome, error) {
			ks, vs, err := db.decodePair(k, val)
			if err != nil {
				return Unchanged, err
			}
			v.Visit(ks, vs)
			return Unchanged, nil
		},
		empty: func(k []byte) (Outcome, error) {
			ks, err := db.decode(k)
			if err != nil {
				return Unchanged, err
			}
			v.VisitEmpty(ks)
			return Unchanged, nil
		},
	}
}

func (db *DB) stringMutatingAdapter(v StringMutatingVisitor) *adapter {
	return &adapter{
		db:       db,
		writable: true,
		full: func(k, val []byte) (Outcome, error) {
			ks, vs, err := db.decodePair(k, val)
			if err != nil {
				return Unchanged, err
			}
			return v.Visit(ks, vs), nil
		},
		empty: func(k []byte) (Outcome, error) {
			ks, err := db.decode(k)
			if err != nil {
				return Unchanged, err
			}
			return v.VisitEmpty(ks), nil
		},
	}
}

func (db *DB) decodePair(k, v []byte) (string, string, error) {
	ks, err := db.decode(k)
	if err != nil {
		return "", "", err
	}
	vs, err := db.decode(v)
	if err != nil {
		return "", "", err
	}
	return ks, vs, nil
}

// run hands a to the engine through fn and reports a conversion failure
// before any engine failure.
func (db *DB) run(op string, a *adapter, fn func(s *engine.Session, v engine.Visitor) bool) error {
	return db.with(func(s *engine.Session) error {
		ok := fn(s, a)
		if a.err != nil {
			return a.err
		}
		if !ok {
			return classify(op, s)
		}
		return nil
	})
}

func (db *DB) accept(key []byte, a *adapter) error {
	return db.run("accept", a, func(s *engine.Session, v engine.Visitor) bool {
		return s.Accept(key, v, a.writable)
	})
}

func (db *DB) acceptBulk(keys [][]byte, a *adapter) error {
	return db.run("accept bulk", a, func(s *engine.Session, v engine.Visitor) bool {
		return s.AcceptBulk(keys, v, a.writable)
	})
}

func (db *DB) iterate(a *adapter) error {
	return db.run("iterate", a, func(s *engine.Session, v engine.Visitor) bool {
		return s.Iterate(v, a.writable)
	})
}

// Accept calls v for the record of key while holding its lock.
func (db *DB) Accept(key []byte, v Visitor) error { return db.accept(key, db.readAdapter(v)) }

// AcceptMutating calls v for the record of key and applies its Outcome.
func (db *DB) AcceptMutating(key []byte, v MutatingVisitor) error {
	return db.accept(key, db.mutatingAdapter(v))
}

// AcceptBulk calls v for each key with every key locked for the whole call.
func (db *DB) AcceptBulk(keys [][]byte, v Visitor) error {
	return db.acceptBulk(keys, db.readAdapter(v))
}

// AcceptBulkMutating is AcceptBulk applying each Outcome.
func (db *DB) AcceptBulkMutating(keys [][]byte, v MutatingVisitor) error {
	return db.acceptBulk(keys, db.mutatingAdapter(v))
}

// Iterate calls v for every record with the store locked.
func (db *DB) Iterate(v Visitor) error { return db.iterate(db.readAdapter(v)) }

// IterateMutating is Iterate applying each Outcome.
func (db *DB) IterateMutating(v MutatingVisitor) error { return db.iterate(db.mutatingAdapter(v)) }

// AcceptString is Accept for strings.
func (db *DB) AcceptString(key string, v StringVisitor) error {
	k, err := db.encode(key)
	if err != nil {
		return err
	}
	return db.accept(k, db.stringReadAdapter(v))
}

// AcceptMutatingString is AcceptMutating for strings.
func (db *DB) AcceptMutatingString(key string, v StringMutatingVisitor) error {
	k, err := db.encode(key)
	if err != nil {
		return err
	}
	return db.accept(k, db.stringMutatingAdapter(v))
}

// AcceptBulkString is AcceptBulk for strings.
func (db *DB) AcceptBulkString(keys []string, v StringVisitor) error {
	raw, err := db.encodeAll(keys)
	if err != nil {
		return err
	}
	return db.acceptBulk(raw, db.stringReadAdapter(v))
}

// AcceptBulkMutatingString is AcceptBulkMutating for strings.
func (db *DB) AcceptBulkMutatingString(keys []string, v StringMutatingVisitor) error {
	raw, err := db.encodeAll(keys)
	if err != nil {
		return err
	}
	return db.acceptBulk(raw, db.stringMutatingAdapter(v))
}

// IterateString is Iterate for strings.
func (db *DB) IterateString(v StringVisitor) error { return db.iterate(db.stringReadAdapter(v)) }

// IterateMutatingString is IterateMutating for strings.
func (db *DB) IterateMutatingString(v StringMutatingVisitor) error {
	return db.iterate(db.stringMutatingAdapter(v))
}
