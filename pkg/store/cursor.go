package store

import (
	"github.com/ssargent/cabinetdb/pkg/engine"
)

// CursorState is the position of a cursor.
type CursorState int

const (
	Unpositioned CursorState = iota
	Positioned
	Disabled
)

func (s CursorState) String() string {
	switch s {
	case Positioned:
		return "positioned"
	case Disabled:
		return "disabled"
	}
	return "unpositioned"
}

// Cursor walks the records of a DB. Tree stores are walked in key order;
// hash stores in an unspecified but stable order and only forwards. A
// Cursor is not safe for concurrent use and must be closed; WithCursor does
// that for you.
//
// Moving off either end, or starting on an empty store, is not an error:
// the call returns false and the cursor becomes Unpositioned.
type Cursor struct {
	db     *DB
	c      *engine.Cursor
	closed bool
}

// Cursor returns an unpositioned cursor.
func (db *DB) Cursor() (*Cursor, error) {
	s, err := db.session()
	if err != nil {
		return nil, err
	}
	defer db.release(s)
	return &Cursor{db: db, c: s.Cursor()}, nil
}

// WithCursor runs fn with a new cursor and closes it however fn returns.
func (db *DB) WithCursor(fn func(c *Cursor) error) error {
	c, err := db.Cursor()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// State returns the cursor state.
func (c *Cursor) State() CursorState {
	switch {
	case c.closed:
		return Disabled
	case c.c.Positioned():
		return Positioned
	}
	return Unpositioned
}

// Close releases the cursor. Closing twice returns ErrCursorClosed.
func (c *Cursor) Close() error {
	if c.closed {
		return ErrCursorClosed
	}
	c.closed = true
	c.c.Disable()
	return nil
}

func (c *Cursor) check() error {
	if c.closed {
		return ErrCursorClosed
	}
	if !c.db.IsOpen() {
		return ErrClosed
	}
	return nil
}

// move runs a positioning call; NoRec and DupRec mean no record there.
func (c *Cursor) move(op string, fn func() bool) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if fn() {
		return true, nil
	}
	return false, classify(op, c.c, benign...)
}

// ScanForwardFromStart moves to the first record.
func (c *Cursor) ScanForwardFromStart() (bool, error) {
	return c.move("cursor jump", c.c.Jump)
}

// ScanForwardFromKey moves to key, or the record after it.
func (c *Cursor) ScanForwardFromKey(key []byte) (bool, error) {
	return c.move("cursor jump", func() bool { return c.c.JumpKey(key) })
}

// ScanBackwardsFromEnd moves to the last record. Hash stores fail with
// ErrNotImplemented.
func (c *Cursor) ScanBackwardsFromEnd() (bool, error) {
	return c.move("cursor jump back", c.c.JumpBack)
}

// ScanBackwardsFromKey moves to key, or the record before it. Hash stores
// fail with ErrNotImplemented.
func (c *Cursor) ScanBackwardsFromKey(key []byte) (bool, error) {
	return c.move("cursor jump back", func() bool { return c.c.JumpBackKey(key) })
}

// ScanForwardFromKeyString is ScanForwardFromKey with the key encoded under
// the handle's encoding.
func (c *Cursor) ScanForwardFromKeyString(key string) (bool, error) {
	k, err := c.db.encode(key)
	if err != nil {
		return false, err
	}
	return c.ScanForwardFromKey(k)
}

// ScanBackwardsFromKeyString is ScanBackwardsFromKey for a string key.
func (c *Cursor) ScanBackwardsFromKeyString(key string) (bool, error) {
	k, err := c.db.encode(key)
	if err != nil {
		return false, err
	}
	return c.ScanBackwardsFromKey(k)
}

// StepForwards moves to the next record.
func (c *Cursor) StepForwards() (bool, error) {
	return c.move("cursor step", c.c.Step)
}

// StepBackwards moves to the previous record. Hash stores fail with
// ErrNotImplemented.
func (c *Cursor) StepBackwards() (bool, error) {
	return c.move("cursor step back", c.c.StepBack)
}

// Entry returns the current record and steps forwards afterwards when step
// is set. key is nil when the cursor is not on a record.
func (c *Cursor) Entry(step bool) (key, value []byte, err error) {
	if err := c.check(); err != nil {
		return nil, nil, err
	}
	if key, value = c.c.Get(step); key == nil {
		return nil, nil, classify("cursor get", c.c, benign...)
	}
	return key, value, nil
}

// Key is Entry returning only the key.
func (c *Cursor) Key(step bool) ([]byte, error) {
	k, _, err := c.Entry(step)
	return k, err
}

// Value is Entry returning only the value.
func (c *Cursor) Value(step bool) ([]byte, error) {
	k, v, err := c.Entry(step)
	if k == nil {
		return nil, err
	}
	return v, nil
}

// EntryString is Entry decoded under the handle's encoding. ok is false
// when the cursor is not on a record.
func (c *Cursor) EntryString(step bool) (key, value string, ok bool, err error) {
	k, v, err := c.Entry(step)
	if err != nil || k == nil {
		return "", "", false, err
	}
	key, value, err = c.db.decodePair(k, v)
	return key, value, err == nil, err
}

// KeyString is Key decoded under the handle's encoding.
func (c *Cursor) KeyString(step bool) (string, bool, error) {
	k, _, ok, err := c.EntryString(step)
	return k, ok, err
}

// ValueString is Value decoded under the handle's encoding.
func (c *Cursor) ValueString(step bool) (string, bool, error) {
	_, v, ok, err := c.EntryString(step)
	return v, ok, err
}

// accept visits the current record through a.
func (c *Cursor) accept(a *adapter, step bool) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	ok := c.c.Accept(a, a.writable, step)
	if a.err != nil {
		return false, a.err
	}
	if !ok {
		return false, classify("cursor accept", c.c, benign...)
	}
	return true, nil
}

// Accept calls v with the current record and steps forwards afterwards when
// step is set. It reports false when the cursor is not on a record.
func (c *Cursor) Accept(v Visitor, step bool) (bool, error) {
	return c.accept(c.db.readAdapter(v), step)
}

// AcceptMutating is Accept applying the visitor's Outcome.
func (c *Cursor) AcceptMutating(v MutatingVisitor, step bool) (bool, error) {
	return c.accept(c.db.mutatingAdapter(v), step)
}

// AcceptString is Accept over decoded strings.
func (c *Cursor) AcceptString(v StringVisitor, step bool) (bool, error) {
	return c.accept(c.db.stringReadAdapter(v), step)
}

// AcceptMutatingString is AcceptMutating over decoded strings.
func (c *Cursor) AcceptMutatingString(v StringMutatingVisitor, step bool) (bool, error) {
	return c.accept(c.db.stringMutatingAdapter(v), step)
}

// SetValue replaces the value of the current record.
func (c *Cursor) SetValue(value []byte, step bool) (bool, error) {
	return c.AcceptMutating(MutatingVisitorFuncs{
		Full: func(_, _ []byte) Outcome { return Replace(value) },
	}, step)
}

// SetValueString is SetValue for strings.
func (c *Cursor) SetValueString(value string, step bool) (bool, error) {
	return c.AcceptMutating(MutatingVisitorFuncs{
		Full: func(_, _ []byte) Outcome { return ReplaceString(value) },
	}, step)
}

// Remove deletes the current record and moves to the next one.
func (c *Cursor) Remove() (bool, error) {
	return c.move("cursor remove", c.c.Remove)
}

// Seize returns the current record and removes it, moving to the next one.
func (c *Cursor) Seize() (key, value []byte, err error) {
	if err := c.check(); err != nil {
		return nil, nil, err
	}
	if key, value = c.c.Seize(); key == nil {
		return nil, nil, classify("cursor seize", c.c, benign...)
	}
	return key, value, nil
}
