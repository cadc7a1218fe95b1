package store

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/cabinetdb/pkg/engine"
)

// Category groups engine failures.
type Category int

const (
	NotImplemented Category = iota + 1
	InvalidOperation
	NoRepository
	NoPermission
	BrokenFile
	LogicalInconsistency
	SystemError
	UnknownError
	UnrecognizedCode
	// Internal means the engine reported a failure but its error state
	// could not be read.
	Internal
)

var categoryNames = map[Category]string{
	NotImplemented:       "not implemented",
	InvalidOperation:     "invalid operation",
	NoRepository:         "no repository",
	NoPermission:         "no permission",
	BrokenFile:           "broken file",
	LogicalInconsistency: "logical inconsistency",
	SystemError:          "system error",
	UnknownError:         "unknown error",
	UnrecognizedCode:     "unrecognized code",
	Internal:             "internal error",
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Error is a classified engine failure.
type Error struct {
	Category Category
	Code     engine.Code
	Message  string
	// Op names the store operation that failed.
	Op string
}

func (e *Error) Error() string {
	msg := e.Category.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return msg
}

// Is matches any *Error of the same category, so the category sentinels
// below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Category == e.Category
}

// One sentinel per category, for errors.Is.
var (
	ErrNotImplemented       = &Error{Category: NotImplemented}
	ErrInvalidOperation     = &Error{Category: InvalidOperation}
	ErrNoRepository         = &Error{Category: NoRepository}
	ErrNoPermission         = &Error{Category: NoPermission}
	ErrBrokenFile           = &Error{Category: BrokenFile}
	ErrLogicalInconsistency = &Error{Category: LogicalInconsistency}
	ErrSystem               = &Error{Category: SystemError}
	ErrUnknown              = &Error{Category: UnknownError}
	ErrUnrecognizedCode     = &Error{Category: UnrecognizedCode}
	ErrInternal             = &Error{Category: Internal}
)

// Precondition failures, raised before the engine is called.
var (
	ErrClosed       = errors.New("store: database is closed")
	ErrAlreadyOpen  = errors.New("store: database is already open")
	ErrCursorClosed = errors.New("store: cursor is closed")
	ErrInvalidLimit = errors.New("store: limit must be positive")
	ErrKeyNotFound  = errors.New("store: key not found")
	ErrMergeSource  = errors.New("store: invalid merge source")
)

// CategoryOf returns the category of a classified failure, or 0.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return 0
}

var codeCategories = map[engine.Code]Category{
	engine.NoImpl:  NotImplemented,
	engine.Invalid: InvalidOperation,
	engine.NoRepos: NoRepository,
	engine.NoPerm:  NoPermission,
	engine.Broken:  BrokenFile,
	engine.Logic:   LogicalInconsistency,
	engine.System:  SystemError,
	engine.Misc:    UnknownError,
	// Benign codes only surface where a call site does not accept them.
	engine.Success: LogicalInconsistency,
	engine.DupRec:  LogicalInconsistency,
	engine.NoRec:   LogicalInconsistency,
}

// benign is the default set of codes treated as a plain negative result.
var benign = []engine.Code{engine.Success, engine.DupRec, engine.NoRec}

// errorSource is anything holding an engine error register.
type errorSource interface {
	Error() *engine.Error
}

// classify reads the error state of src after a failed call. Codes in
// accept are benign and yield nil; everything else becomes an *Error.
func classify(op string, src errorSource, accept ...engine.Code) error {
	e := src.Error()
	if e == nil {
		return &Error{Category: Internal, Op: op, Message: "engine reported a failure without error state"}
	}
	if slices.Contains(accept, e.Code) {
		return nil
	}
	cat, ok := codeCategories[e.Code]
	if !ok {
		cat = UnrecognizedCode
	}
	return &Error{Category: cat, Code: e.Code, Message: e.Message, Op: op}
}

// classifyMiss is classify for calls where a missing record is a failure
// the caller must see.
func classifyMiss(op string, key []byte, src errorSource, accept ...engine.Code) error {
	if e := src.Error(); e != nil && e.Code == engine.NoRec {
		return errors.Wrapf(ErrKeyNotFound, "%s %q", op, key)
	}
	return classify(op, src, accept...)
}
