package engine

import "github.com/ssargent/cabinetdb/pkg/engine/backend"

// Cursor walks the records of a DB. It remembers the key it is on and finds
// it again on every call, so it tolerates concurrent updates. A Cursor is
// not safe for concurrent use.
type Cursor struct {
	sess     *Session
	key      []byte // nil when not positioned
	disabled bool
}

// Cursor returns an unpositioned cursor on the session's database.
func (s *Session) Cursor() *Cursor {
	return &Cursor{sess: s.db.Session()}
}

// Error returns the failure recorded by the cursor's last failed call.
func (c *Cursor) Error() *Error { return c.sess.Error() }

// DB returns the database the cursor walks.
func (c *Cursor) DB() *DB { return c.sess.db }

// Disable releases the cursor. Every later call fails with Invalid.
func (c *Cursor) Disable() {
	c.disabled = true
	c.key = nil
}

// begin resets the register and takes the store lock shared.
func (c *Cursor) begin(writable bool) bool {
	c.sess.reset()
	if c.disabled {
		c.sess.fail(Invalid, "cursor disabled")
		return false
	}
	return c.sess.lockShared(writable)
}

func (c *Cursor) end() { c.sess.db.mu.RUnlock() }

// locate moves to pos relative to key. ok is false when there is no such
// record; the cursor is then unpositioned.
func (c *Cursor) locate(pos backend.Position, key []byte) bool {
	be := c.sess.db.be
	if !be.Ordered() && (pos == backend.Last || pos == backend.Before || pos == backend.AtOrBefore) {
		c.sess.fail(NoImpl, msgNoImpl)
		return false
	}
	k, _, ok, err := be.Locate(pos, key)
	if err != nil {
		c.sess.failErr(err)
		return false
	}
	if !ok {
		c.key = nil
		c.sess.fail(NoRec, msgNoRecord)
		return false
	}
	c.key = k
	return true
}

// Jump moves to the first record.
func (c *Cursor) Jump() bool {
	if !c.begin(false) {
		return false
	}
	defer c.end()
	return c.locate(backend.First, nil)
}

// JumpKey moves to key, or the next record after it in store order.
func (c *Cursor) JumpKey(key []byte) bool {
	if !c.begin(false) {
		return false
	}
	defer c.end()
	return c.locate(backend.AtOrAfter, key)
}

// JumpBack moves to the last record. Hash stores fail with NoImpl.
func (c *Cursor) JumpBack() bool {
	if !c.begin(false) {
		return false
	}
	defer c.end()
	return c.locate(backend.Last, nil)
}

// JumpBackKey moves to key, or the record before it. Hash stores fail
// with NoImpl.
func (c *Cursor) JumpBackKey(key []byte) bool {
	if !c.begin(false) {
		return false
	}
	defer c.end()
	return c.locate(backend.AtOrBefore, key)
}

// Step moves to the next record.
func (c *Cursor) Step() bool {
	if !c.begin(false) {
		return false
	}
	defer c.end()
	if !c.positioned() {
		return false
	}
	return c.locate(backend.After, c.key)
}

// StepBack moves to the previous record. Hash stores fail with NoImpl.
func (c *Cursor) StepBack() bool {
	if !c.begin(false) {
		return false
	}
	defer c.end()
	if !c.positioned() {
		return false
	}
	return c.locate(backend.Before, c.key)
}

// Positioned reports whether the cursor is on a record.
func (c *Cursor) Positioned() bool { return c.key != nil }

func (c *Cursor) positioned() bool {
	if c.key == nil {
		c.sess.fail(NoRec, msgNoRecord)
		return false
	}
	return true
}

// current finds the record the cursor is on, or the next one if it was
// removed, and holds its slot. The returned func releases the slot.
func (c *Cursor) current() (func(), bool) {
	if !c.positioned() {
		return nil, false
	}
	for {
		if !c.locate(backend.AtOrAfter, c.key) {
			return nil, false
		}
		unlock := c.sess.db.lockKey(c.key)
		_, found, err := c.sess.db.be.Get(c.key)
		if err != nil {
			unlock()
			c.sess.failErr(err)
			return nil, false
		}
		if found {
			return unlock, true
		}
		unlock()
	}
}

// Accept visits the current record, then steps forward when step is set.
func (c *Cursor) Accept(v Visitor, writable, step bool) bool {
	if !c.begin(writable) {
		return false
	}
	defer c.end()
	unlock, ok := c.current()
	if !ok {
		return false
	}
	key := c.key
	ok = c.sess.acceptLocked(key, v, writable)
	unlock()
	if ok && step {
		c.locate(backend.After, key)
		c.sess.reset()
	}
	return ok
}

// SetValue replaces the value of the current record.
func (c *Cursor) SetValue(value []byte, step bool) bool {
	return c.Accept(VisitorFuncs{Full: func(_, _ []byte) []byte { return nonNil(value) }}, true, step)
}

// Remove deletes the current record and moves to the next one.
func (c *Cursor) Remove() bool {
	if !c.begin(true) {
		return false
	}
	defer c.end()
	unlock, ok := c.current()
	if !ok {
		return false
	}
	key := c.key
	ok = c.sess.acceptLocked(key, VisitorFuncs{Full: func(_, _ []byte) []byte { return Remove }}, true)
	unlock()
	if ok {
		c.locate(backend.After, key)
		c.sess.reset()
	}
	return ok
}

// Get returns the current key and value, then steps when step is set. It
// returns nils on failure.
func (c *Cursor) Get(step bool) (key, value []byte) {
	ok := c.Accept(VisitorFuncs{Full: func(k, v []byte) []byte {
		key = append([]byte{}, k...)
		value = append([]byte{}, v...)
		return Nop
	}}, false, step)
	if !ok {
		return nil, nil
	}
	return key, value
}

// GetKey returns the current key.
func (c *Cursor) GetKey(step bool) []byte {
	k, _ := c.Get(step)
	return k
}

// GetValue returns the current value.
func (c *Cursor) GetValue(step bool) []byte {
	k, v := c.Get(step)
	if k == nil {
		return nil
	}
	return v
}

// Seize returns the current record and removes it.
func (c *Cursor) Seize() (key, value []byte) {
	if !c.begin(true) {
		return nil, nil
	}
	defer c.end()
	unlock, ok := c.current()
	if !ok {
		return nil, nil
	}
	k := c.key
	ok = c.sess.acceptLocked(k, VisitorFuncs{Full: func(kk, v []byte) []byte {
		key = append([]byte{}, kk...)
		value = append([]byte{}, v...)
		return Remove
	}}, true)
	unlock()
	if !ok {
		return nil, nil
	}
	c.locate(backend.After, k)
	c.sess.reset()
	return key, value
}
