package engine

import "strings"

// Mode is the open mode bitmask.
type Mode uint32

const (
	Reader   Mode = 1 << 0
	Writer   Mode = 1 << 1
	Create   Mode = 1 << 2
	Truncate Mode = 1 << 3
	AutoTran Mode = 1 << 4
	AutoSync Mode = 1 << 5
	NoLock   Mode = 1 << 6
	TryLock  Mode = 1 << 7
	NoRepair Mode = 1 << 8
)

var modeNames = []struct {
	m    Mode
	name string
}{
	{Reader, "reader"},
	{Writer, "writer"},
	{Create, "create"},
	{Truncate, "truncate"},
	{AutoTran, "autotran"},
	{AutoSync, "autosync"},
	{NoLock, "nolock"},
	{TryLock, "trylock"},
	{NoRepair, "norepair"},
}

// Has reports whether every bit of flag is set.
func (m Mode) Has(flag Mode) bool { return m&flag == flag }

func (m Mode) String() string {
	var parts []string
	for _, n := range modeNames {
		if m.Has(n.m) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseMode parses a "|" or "," separated list of mode names.
func ParseMode(s string) (Mode, bool) {
	var m Mode
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '|' || r == ',' }) {
		f = strings.TrimSpace(f)
		found := false
		for _, n := range modeNames {
			if n.name == f {
				m |= n.m
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return m, true
}
