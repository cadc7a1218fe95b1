package config

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/cabinetdb/pkg/codec"
	"github.com/ssargent/cabinetdb/pkg/engine"
)

// Argument is a database tuning parameter.
type Argument string

const (
	ArgOptions        Argument = "opts"
	ArgLogAppender    Argument = "log"
	ArgLogLevel       Argument = "logkind"
	ArgLogPrefix      Argument = "logpx"
	ArgBuckets        Argument = "bnum"
	ArgCompressor     Argument = "zcomp"
	ArgCipherKey      Argument = "zkey"
	ArgPageCacheSize  Argument = "pccap"
	ArgPageSize       Argument = "psiz"
	ArgPageComparator Argument = "rcomp"
	ArgMemoryMapSize  Argument = "msiz"
	ArgFreeBlockPool  Argument = "fpow"
	ArgDefragUnit     Argument = "dfunit"
	ArgAlignmentPower Argument = "apow"
	ArgMaxRecords     Argument = "capcnt"
	ArgMaxMemory      Argument = "capsiz"
)

// typeSet is a set of database types.
type typeSet map[engine.Type]struct{}

func typesOf(ts ...engine.Type) typeSet {
	s := make(typeSet, len(ts))
	for _, t := range ts {
		s[t] = struct{}{}
	}
	return s
}

var (
	allTypes   = typesOf(engine.Types()...)
	persistent = typesOf(engine.CacheHash, engine.CacheTree, engine.FileHash, engine.FileTree, engine.DirHash, engine.DirTree)
	paged      = typesOf(engine.CacheTree, engine.FileTree, engine.DirTree)
	fileOnly   = typesOf(engine.FileHash, engine.FileTree)
)

// supportedBy maps each argument to the database types that accept it.
var supportedBy = map[Argument]typeSet{
	ArgOptions:        persistent,
	ArgLogAppender:    allTypes,
	ArgLogLevel:       allTypes,
	ArgLogPrefix:      allTypes,
	ArgBuckets:        typesOf(engine.Stash, engine.CacheHash, engine.CacheTree, engine.FileHash, engine.FileTree),
	ArgCompressor:     persistent,
	ArgCipherKey:      persistent,
	ArgPageCacheSize:  paged,
	ArgPageSize:       paged,
	ArgPageComparator: paged,
	ArgMemoryMapSize:  fileOnly,
	ArgFreeBlockPool:  fileOnly,
	ArgDefragUnit:     fileOnly,
	ArgAlignmentPower: fileOnly,
	ArgMaxRecords:     typesOf(engine.CacheHash),
	ArgMaxMemory:      typesOf(engine.CacheHash),
}

// Supports reports whether arg may be used with t.
func (a Argument) Supports(t engine.Type) bool {
	_, ok := supportedBy[a][t]
	return ok
}

// Option is a flag of the opts argument.
type Option byte

const (
	OptionSmall    Option = 's'
	OptionLinear   Option = 'l'
	OptionCompress Option = 'c'
)

// Log levels accepted by LogLevel.
const (
	LogDebug = "debug"
	LogInfo  = "info"
	LogWarn  = "warn"
	LogError = "error"
)

// Log appenders accepted by LogAppender besides a file path.
const (
	LogStdout = "-"
	LogStderr = "+"
)

// DefaultMode is used when a builder is given no modes.
const DefaultMode = engine.Writer | engine.Create

var (
	// ErrUnknownType is returned when a file name carries no known extension.
	ErrUnknownType = errors.New("could not determine database type")
	// ErrUnsupportedArgument is returned when an argument does not apply to the type.
	ErrUnsupportedArgument = errors.New("argument not supported by database type")
	// ErrNeedsPath is returned for file types built without a path and
	// memory types built with one.
	ErrNeedsPath = errors.New("database type and storage do not match")
)

// TypeByFileName infers the type from a file name extension, or from the
// in-memory identifiers ("-", "+", ":", "*", "%").
func TypeByFileName(name string) (engine.Type, error) {
	ident := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		ident = name[i+1:]
	}
	for _, t := range engine.Types() {
		if strings.TrimPrefix(t.Ident(), ".") == ident {
			return t, nil
		}
	}
	return engine.Void, errors.Wrapf(ErrUnknownType, "from file name %q", name)
}

// Descriptor is everything needed to open a database.
type Descriptor struct {
	Type engine.Type
	Path string
	Args map[Argument]string
	Mode engine.Mode
}

// String renders the engine open string, "path#name=value#...", with
// arguments in name order.
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteString(d.Path)
	names := make([]string, 0, len(d.Args))
	for a := range d.Args {
		names = append(names, string(a))
	}
	sort.Strings(names)
	for _, n := range names {
		b.WriteByte('#')
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(d.Args[Argument(n)])
	}
	return b.String()
}

// Builder assembles a Descriptor. The first invalid argument is remembered
// and returned by Build.
type Builder struct {
	typ     engine.Type
	path    string
	mode    engine.Mode
	options map[Option]struct{}
	args    map[Argument]string
	err     error
}

// NewBuilder starts a descriptor for the database file or directory at
// path; the type comes from its extension.
func NewBuilder(path string) *Builder {
	b := &Builder{args: map[Argument]string{}, options: map[Option]struct{}{}}
	t, err := TypeByFileName(filepath.Base(path))
	if err != nil {
		b.err = err
		return b
	}
	if t.InMemory() {
		b.typ, b.path = t, t.Ident()
		return b
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		b.err = errors.Wrapf(err, "resolving %s", path)
		return b
	}
	b.typ, b.path = t, abs
	return b
}

// NewMemoryBuilder starts a descriptor for an in-memory type.
func NewMemoryBuilder(t engine.Type) *Builder {
	b := &Builder{typ: t, path: t.Ident(), args: map[Argument]string{}, options: map[Option]struct{}{}}
	if !t.InMemory() {
		b.err = errors.Wrapf(ErrNeedsPath, "%s requires a file system path", t)
	}
	return b
}

// Type returns the resolved database type.
func (b *Builder) Type() engine.Type { return b.typ }

func (b *Builder) set(a Argument, value string) *Builder {
	if b.err != nil {
		return b
	}
	if !a.Supports(b.typ) {
		b.err = errors.Wrapf(ErrUnsupportedArgument, "%s with %s", a, b.typ)
		return b
	}
	b.args[a] = value
	return b
}

func (b *Builder) setInt(a Argument, n int64) *Builder {
	return b.set(a, strconv.FormatInt(n, 10))
}

// Modes adds open modes.
func (b *Builder) Modes(modes ...engine.Mode) *Builder {
	for _, m := range modes {
		b.mode |= m
	}
	return b
}

// Options adds opts flags.
func (b *Builder) Options(opts ...Option) *Builder {
	for _, o := range opts {
		b.options[o] = struct{}{}
	}
	flags := make([]byte, 0, len(b.options))
	for _, o := range []Option{OptionSmall, OptionLinear, OptionCompress} {
		if _, ok := b.options[o]; ok {
			flags = append(flags, byte(o))
		}
	}
	return b.set(ArgOptions, string(flags))
}

// LogAppender sends engine logs to a file, LogStdout or LogStderr.
func (b *Builder) LogAppender(dest string) *Builder { return b.set(ArgLogAppender, dest) }

// LogLevel sets the engine log level.
func (b *Builder) LogLevel(level string) *Builder { return b.set(ArgLogLevel, level) }

// LogPrefix tags engine log lines.
func (b *Builder) LogPrefix(prefix string) *Builder { return b.set(ArgLogPrefix, prefix) }

// Buckets sets the initial hash index capacity.
func (b *Builder) Buckets(n int64) *Builder { return b.setInt(ArgBuckets, n) }

// Compressor selects the value compressor by name.
func (b *Builder) Compressor(name string) *Builder {
	if _, err := codec.CompressorByName(name); err != nil && b.err == nil {
		b.err = err
		return b
	}
	return b.set(ArgCompressor, name)
}

// CipherKey encrypts stored values with key.
func (b *Builder) CipherKey(key string) *Builder { return b.set(ArgCipherKey, key) }

// PageCacheSize sets the page cache in bytes.
func (b *Builder) PageCacheSize(n int64) *Builder { return b.setInt(ArgPageCacheSize, n) }

// PageSize sets the page or block size in bytes.
func (b *Builder) PageSize(n int64) *Builder { return b.setInt(ArgPageSize, n) }

// PageComparator selects the key comparator; only "lex" is available.
func (b *Builder) PageComparator(name string) *Builder { return b.set(ArgPageComparator, name) }

// MemoryMapSize sets the initial memory map size in bytes.
func (b *Builder) MemoryMapSize(n int64) *Builder { return b.setInt(ArgMemoryMapSize, n) }

// FreeBlockPoolSize sets the free block pool power.
func (b *Builder) FreeBlockPoolSize(n int64) *Builder { return b.setInt(ArgFreeBlockPool, n) }

// DefragUnit compacts after that many dead records.
func (b *Builder) DefragUnit(n int64) *Builder { return b.setInt(ArgDefragUnit, n) }

// AlignmentPower sets the record alignment power.
func (b *Builder) AlignmentPower(n int64) *Builder { return b.setInt(ArgAlignmentPower, n) }

// MaximumRecords caps a cache hash by record count.
func (b *Builder) MaximumRecords(n int64) *Builder { return b.setInt(ArgMaxRecords, n) }

// MaximumMemory caps a cache hash by size in bytes.
func (b *Builder) MaximumMemory(n int64) *Builder { return b.setInt(ArgMaxMemory, n) }

// Build returns the descriptor or the first error met while building.
func (b *Builder) Build() (Descriptor, error) {
	if b.err != nil {
		return Descriptor{}, b.err
	}
	mode := b.mode
	if mode == 0 {
		mode = DefaultMode
	}
	args := make(map[Argument]string, len(b.args))
	for k, v := range b.args {
		args[k] = v
	}
	return Descriptor{Type: b.typ, Path: b.path, Args: args, Mode: mode}, nil
}
