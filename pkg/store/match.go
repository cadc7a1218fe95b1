package store

import (
	"github.com/ssargent/cabinetdb/pkg/codec"
	"github.com/ssargent/cabinetdb/pkg/engine"
)

const unlimited = -1

// MatchPrefix returns every key beginning with prefix. Tree stores return
// keys in order.
func (db *DB) MatchPrefix(prefix []byte) ([][]byte, error) {
	return db.match("match prefix", func(s *engine.Session) [][]byte { return s.MatchPrefix(prefix, unlimited) })
}

// MatchPrefixLimit returns at most limit keys beginning with prefix.
func (db *DB) MatchPrefixLimit(prefix []byte, limit int64) ([][]byte, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	return db.match("match prefix", func(s *engine.Session) [][]byte { return s.MatchPrefix(prefix, limit) })
}

// MatchRegex returns every key matching the regular expression pattern.
func (db *DB) MatchRegex(pattern string) ([][]byte, error) {
	return db.match("match regex", func(s *engine.Session) [][]byte { return s.MatchRegex(pattern, unlimited) })
}

// MatchRegexLimit returns at most limit keys matching pattern.
func (db *DB) MatchRegexLimit(pattern string, limit int64) ([][]byte, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	return db.match("match regex", func(s *engine.Session) [][]byte { return s.MatchRegex(pattern, limit) })
}

// MatchSimilar returns the keys within Levenshtein distance of origin,
// closest first. With utf set the distance counts runes instead of bytes.
func (db *DB) MatchSimilar(origin []byte, distance int, utf bool) ([][]byte, error) {
	return db.match("match similar", func(s *engine.Session) [][]byte {
		return s.MatchSimilar(origin, distance, utf, unlimited)
	})
}

// MatchSimilarLimit is MatchSimilar returning at most limit keys.
func (db *DB) MatchSimilarLimit(origin []byte, distance int, utf bool, limit int64) ([][]byte, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	return db.match("match similar", func(s *engine.Session) [][]byte {
		return s.MatchSimilar(origin, distance, utf, limit)
	})
}

func (db *DB) match(op string, fn func(s *engine.Session) [][]byte) ([][]byte, error) {
	var keys [][]byte
	err := db.with(func(s *engine.Session) error {
		if keys = fn(s); keys == nil {
			return classify(op, s)
		}
		return nil
	})
	return keys, err
}

// MatchPrefixString is MatchPrefix for strings.
func (db *DB) MatchPrefixString(prefix string) ([]string, error) {
	p, err := db.encode(prefix)
	if err != nil {
		return nil, err
	}
	return db.matchStrings(func() ([][]byte, error) { return db.MatchPrefix(p) })
}

// MatchPrefixStringLimit is MatchPrefixLimit for strings.
func (db *DB) MatchPrefixStringLimit(prefix string, limit int64) ([]string, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	p, err := db.encode(prefix)
	if err != nil {
		return nil, err
	}
	return db.matchStrings(func() ([][]byte, error) { return db.MatchPrefixLimit(p, limit) })
}

// MatchRegexString is MatchRegex returning decoded keys.
func (db *DB) MatchRegexString(pattern string) ([]string, error) {
	return db.matchStrings(func() ([][]byte, error) { return db.MatchRegex(pattern) })
}

// MatchRegexStringLimit is MatchRegexLimit returning decoded keys.
func (db *DB) MatchRegexStringLimit(pattern string, limit int64) ([]string, error) {
	return db.matchStrings(func() ([][]byte, error) { return db.MatchRegexLimit(pattern, limit) })
}

// MatchSimilarString is MatchSimilar for strings. Distance counts runes
// when the handle encoding is UTF-8 and bytes otherwise.
func (db *DB) MatchSimilarString(origin string, distance int) ([]string, error) {
	o, utf, err := db.similarOrigin(origin)
	if err != nil {
		return nil, err
	}
	return db.matchStrings(func() ([][]byte, error) { return db.MatchSimilar(o, distance, utf) })
}

// MatchSimilarStringLimit is MatchSimilarLimit for strings, measuring
// distance as MatchSimilarString does.
func (db *DB) MatchSimilarStringLimit(origin string, distance int, limit int64) ([]string, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	o, utf, err := db.similarOrigin(origin)
	if err != nil {
		return nil, err
	}
	return db.matchStrings(func() ([][]byte, error) { return db.MatchSimilarLimit(o, distance, utf, limit) })
}

func (db *DB) similarOrigin(origin string) ([]byte, bool, error) {
	enc := db.enc.Load()
	o, err := enc.Encode(origin)
	return o, enc == codec.UTF8, err
}

func (db *DB) matchStrings(fn func() ([][]byte, error)) ([]string, error) {
	keys, err := fn()
	if err != nil {
		return nil, err
	}
	return db.decodeAll(keys)
}
