package engine

import "sort"

// GetBulk returns the values of the keys that exist. With atomic set, every
// slot is held for the duration so the result is a consistent view.
func (s *Session) GetBulk(keys [][]byte, atomic bool) map[string][]byte {
	s.reset()
	if !s.lockShared(false) {
		return nil
	}
	defer s.db.mu.RUnlock()
	if atomic {
		defer s.db.lockKeys(keys)()
	}

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if !atomic {
			unlock := s.db.lockKey(k)
			v, found, err := s.db.be.Get(k)
			unlock()
			if err != nil {
				s.failErr(err)
				return nil
			}
			if found {
				out[string(k)] = v
			}
			continue
		}
		v, found, err := s.db.be.Get(k)
		if err != nil {
			s.failErr(err)
			return nil
		}
		if found {
			out[string(k)] = v
		}
	}
	return out
}

// SetBulk stores every record and returns how many were stored, or -1.
// With atomic set, a failure undoes the records already written.
func (s *Session) SetBulk(recs map[string][]byte, atomic bool) int64 {
	keys := make([][]byte, 0, len(recs))
	for k := range recs {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i]) < string(keys[j]) })
	return s.bulkWrite(keys, atomic, func(k []byte, _ []byte, _ bool) ([]byte, bool) {
		return nonNil(recs[string(k)]), true
	})
}

// RemoveBulk deletes the keys and returns how many existed, or -1.
func (s *Session) RemoveBulk(keys [][]byte, atomic bool) int64 {
	return s.bulkWrite(keys, atomic, func(_ []byte, _ []byte, found bool) ([]byte, bool) {
		return Remove, found
	})
}

// bulkWrite applies change to each key. change returns the new value (or
// Remove) and whether the key counts toward the result.
func (s *Session) bulkWrite(keys [][]byte, atomic bool, change func(k, old []byte, found bool) ([]byte, bool)) int64 {
	s.reset()
	if !s.lockShared(true) {
		return -1
	}
	db := s.db
	defer db.mu.RUnlock()
	if atomic {
		defer db.lockKeys(keys)()
	}

	be := db.be
	var (
		count int64
		done  []undo
	)
	revert := func() {
		for i := len(done) - 1; i >= 0; i-- {
			u := done[i]
			var err error
			if u.found {
				err = be.Set(u.key, u.value)
			} else {
				_, err = be.Delete(u.key)
			}
			if err != nil {
				db.log.Error().Err(err).Bytes("key", u.key).Msg("bulk undo failed")
			}
		}
	}

	for _, k := range keys {
		var unlock func()
		if !atomic {
			unlock = db.lockKey(k)
		}
		old, found, err := be.Get(k)
		if err == nil {
			res, counts := change(k, old, found)
			if counts {
				count++
			}
			if IsRemove(res) {
				if found {
					db.journal(k, old, true)
					_, err = be.Delete(k)
				}
			} else {
				db.journal(k, old, found)
				err = be.Set(k, res)
			}
			if err == nil && atomic {
				done = append(done, undo{key: k, value: old, found: found})
			}
		}
		if unlock != nil {
			unlock()
		}
		if err != nil {
			s.failErr(err)
			if atomic {
				revert()
			}
			return -1
		}
	}
	if !s.synced() {
		return -1
	}
	return count
}
