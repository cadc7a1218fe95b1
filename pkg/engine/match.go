package engine

import (
	"bytes"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

// MatchPrefix returns up to max keys beginning with prefix; a negative max
// means no limit. Tree stores return keys in order.
func (s *Session) MatchPrefix(prefix []byte, max int64) [][]byte {
	s.reset()
	if !s.lockShared(false) {
		return nil
	}
	defer s.db.mu.RUnlock()

	out := [][]byte{}
	if max == 0 {
		return out
	}
	be := s.db.be
	if !be.Ordered() {
		return s.scanKeys(out, max, func(k []byte) bool { return bytes.HasPrefix(k, prefix) })
	}

	k, _, ok, err := be.Locate(backend.AtOrAfter, prefix)
	for ; ok && err == nil && bytes.HasPrefix(k, prefix); k, _, ok, err = be.Locate(backend.After, k) {
		out = append(out, k)
		if max > 0 && int64(len(out)) >= max {
			break
		}
	}
	if err != nil {
		s.failErr(err)
		return nil
	}
	return out
}

// MatchRegex returns up to max keys matching the regular expression.
func (s *Session) MatchRegex(pattern string, max int64) [][]byte {
	s.reset()
	re, err := regexp.Compile(pattern)
	if err != nil {
		s.fail(Logic, "compilation failed: "+err.Error())
		return nil
	}
	if !s.lockShared(false) {
		return nil
	}
	defer s.db.mu.RUnlock()

	out := [][]byte{}
	if max == 0 {
		return out
	}
	return s.scanKeys(out, max, re.Match)
}

func (s *Session) scanKeys(out [][]byte, max int64, match func([]byte) bool) [][]byte {
	err := s.db.be.Scan(func(k, _ []byte) bool {
		if match(k) {
			out = append(out, append([]byte{}, k...))
		}
		return max < 0 || int64(len(out)) < max
	})
	if err != nil {
		s.failErr(err)
		return nil
	}
	return out
}

// MatchSimilar returns up to max keys within edit distance rng of origin,
// nearest first and then in key order. utf measures the distance in runes
// rather than bytes.
func (s *Session) MatchSimilar(origin []byte, rng int, utf bool, max int64) [][]byte {
	s.reset()
	if !s.lockShared(false) {
		return nil
	}
	defer s.db.mu.RUnlock()

	type hit struct {
		key  []byte
		dist int
	}
	var hits []hit
	dist := byteDistance
	if utf {
		dist = runeDistance
	}
	err := s.db.be.Scan(func(k, _ []byte) bool {
		if d := dist(origin, k); d <= rng {
			hits = append(hits, hit{key: append([]byte{}, k...), dist: d})
		}
		return true
	})
	if err != nil {
		s.failErr(err)
		return nil
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return bytes.Compare(hits[i].key, hits[j].key) < 0
	})
	if max >= 0 && int64(len(hits)) > max {
		hits = hits[:max]
	}
	out := make([][]byte, len(hits))
	for i, h := range hits {
		out[i] = h.key
	}
	return out
}

func byteDistance(a, b []byte) int {
	return levenshtein(len(a), len(b), func(i, j int) bool { return a[i] == b[j] })
}

func runeDistance(a, b []byte) int {
	ra, rb := toRunes(a), toRunes(b)
	return levenshtein(len(ra), len(rb), func(i, j int) bool { return ra[i] == rb[j] })
}

func toRunes(b []byte) []rune {
	out := make([]rune, 0, utf8.RuneCount(b))
	for len(b) > 0 {
		r, n := utf8.DecodeRune(b)
		out = append(out, r)
		b = b[n:]
	}
	return out
}

// levenshtein computes the edit distance with two rows.
func levenshtein(n, m int, eq func(i, j int) bool) int {
	prev := make([]int, m+1)
	cur := make([]int, m+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		cur[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if eq(i-1, j-1) {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[m]
}
