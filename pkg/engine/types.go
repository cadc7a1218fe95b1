package engine

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
	"github.com/ssargent/cabinetdb/pkg/engine/bolttree"
	"github.com/ssargent/cabinetdb/pkg/engine/loghash"
	"github.com/ssargent/cabinetdb/pkg/engine/memory"
	"github.com/ssargent/cabinetdb/pkg/engine/pebbletree"
)

// Type identifies a database organisation.
type Type int

const (
	Void      Type = 0x00
	ProtoHash Type = 0x10
	ProtoTree Type = 0x11
	Stash     Type = 0x18
	CacheHash Type = 0x20
	CacheTree Type = 0x21
	FileHash  Type = 0x30
	FileTree  Type = 0x31
	DirHash   Type = 0x40
	DirTree   Type = 0x41
	PlainText Type = 0x50
)

type typeInfo struct {
	name    string
	ident   string // path for in-memory types, extension for the rest
	ordered bool
	memory  bool
}

var types = map[Type]typeInfo{
	ProtoHash: {"prototype hash", "-", false, true},
	ProtoTree: {"prototype tree", "+", true, true},
	Stash:     {"stash", ":", false, true},
	CacheHash: {"cache hash", "*", false, true},
	CacheTree: {"cache tree", "%", true, true},
	FileHash:  {"file hash", ".kch", false, false},
	FileTree:  {"file tree", ".kct", true, false},
	DirHash:   {"directory hash", ".kcd", false, false},
	DirTree:   {"directory tree", ".kcf", true, false},
	PlainText: {"plain text", ".kcx", true, false},
}

// typeAliases are the values accepted by the "type" descriptor parameter.
var typeAliases = map[string]Type{
	"phash": ProtoHash, "ptree": ProtoTree, "stash": Stash,
	"cache": CacheHash, "chash": CacheHash, "grass": CacheTree, "ctree": CacheTree,
	"hash": FileHash, "kch": FileHash, "tree": FileTree, "kct": FileTree,
	"dir": DirHash, "kcd": DirHash, "forest": DirTree, "kcf": DirTree,
	"text": PlainText, "kcx": PlainText,
}

func (t Type) String() string {
	if i, ok := types[t]; ok {
		return i.name
	}
	return "void"
}

// Ident returns the in-memory path ("-", "+", ...) or file extension of t.
func (t Type) Ident() string { return types[t].ident }

// Ordered reports whether records of t are kept in key order.
func (t Type) Ordered() bool { return types[t].ordered }

// InMemory reports whether t keeps no files.
func (t Type) InMemory() bool { return types[t].memory }

// Types lists every known database type.
func Types() []Type {
	return []Type{ProtoHash, ProtoTree, Stash, CacheHash, CacheTree, FileHash, FileTree, DirHash, DirTree, PlainText}
}

// TypeOf infers the type from a path: the in-memory identifiers or a file
// extension. It returns Void when nothing matches.
func TypeOf(path string) Type {
	ext := strings.ToLower(filepath.Ext(path))
	for t, i := range types {
		if i.memory && path == i.ident {
			return t
		}
		if !i.memory && ext == i.ident {
			return t
		}
	}
	return Void
}

// TypeByName resolves a "type" parameter value such as "kct" or "grass".
func TypeByName(name string) (Type, bool) {
	name = strings.ToLower(strings.TrimPrefix(name, "."))
	if t, ok := typeAliases[name]; ok {
		return t, true
	}
	for t, i := range types {
		if i.memory && i.ident == name {
			return t, true
		}
	}
	return Void, false
}

// descriptor parameters understood by at least one backend
var knownParams = map[string]bool{
	"type": true, "log": true, "logkind": true, "logpx": true,
	"bnum": true, "opts": true, "zcomp": true, "zkey": true,
	"pccap": true, "psiz": true, "rcomp": true, "msiz": true,
	"fpow": true, "dfunit": true, "apow": true,
	"capcnt": true, "capsiz": true,
}

// Descriptor is a parsed "path#name=value#..." open string.
type Descriptor struct {
	Path   string
	Type   Type
	Params backend.Params
}

// ErrBadDescriptor is returned by ParseDescriptor.
var ErrBadDescriptor = errors.New("invalid database descriptor")

// ParseDescriptor splits desc into its path and tuning parameters and
// resolves the database type.
func ParseDescriptor(desc string) (Descriptor, error) {
	parts := strings.Split(desc, "#")
	d := Descriptor{Path: parts[0], Params: backend.Params{}}
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return d, errors.Wrapf(ErrBadDescriptor, "malformed parameter %q", p)
		}
		if !knownParams[name] {
			return d, errors.Wrapf(ErrBadDescriptor, "unknown parameter %q", name)
		}
		d.Params[name] = value
	}
	if rc := d.Params["rcomp"]; rc != "" && rc != "lex" {
		return d, errors.Wrapf(ErrBadDescriptor, "unsupported comparator %q", rc)
	}

	if name := d.Params["type"]; name != "" {
		t, ok := TypeByName(name)
		if !ok {
			return d, errors.Wrapf(ErrBadDescriptor, "unknown type %q", name)
		}
		d.Type = t
	} else {
		d.Type = TypeOf(d.Path)
	}
	if d.Type == Void {
		return d, errors.Wrapf(ErrBadDescriptor, "cannot infer the type of %q", d.Path)
	}
	return d, nil
}

var (
	registryMu sync.RWMutex
	registry   = map[Type]backend.Factory{
		ProtoHash: memory.NewHash,
		ProtoTree: memory.NewTree,
		Stash:     memory.NewHash,
		CacheHash: memory.NewHash,
		CacheTree: memory.NewTree,
		FileHash:  loghash.OpenFile,
		DirHash:   loghash.OpenDir,
		FileTree:  bolttree.Open,
		DirTree:   pebbletree.Open,
	}
)

// Register replaces the backend factory for t and returns the previous one.
func Register(t Type, f backend.Factory) backend.Factory {
	registryMu.Lock()
	defer registryMu.Unlock()
	prev := registry[t]
	if f == nil {
		delete(registry, t)
	} else {
		registry[t] = f
	}
	return prev
}

func factoryFor(t Type) backend.Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[t]
}
