package engine

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

// Code is an engine status code.
type Code int

const (
	Success Code = 0
	NoImpl  Code = 1
	Invalid Code = 2
	NoRepos Code = 3
	NoPerm  Code = 4
	Broken  Code = 5
	DupRec  Code = 6
	NoRec   Code = 7
	Logic   Code = 8
	System  Code = 9
	Misc    Code = 15
)

var codeNames = map[Code]string{
	Success: "success",
	NoImpl:  "not implemented",
	Invalid: "invalid operation",
	NoRepos: "no repository",
	NoPerm:  "no permission",
	Broken:  "broken file",
	DupRec:  "record duplication",
	NoRec:   "no record",
	Logic:   "logical inconsistency",
	System:  "system error",
	Misc:    "miscellaneous error",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("unknown code %d", int(c))
}

// Error is the last failure recorded on a session or cursor.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Code.String() + ": " + e.Message
}

// Conflict reports whether e is a compare-and-swap mismatch rather than
// another logical failure such as lock competition.
func (e *Error) Conflict() bool {
	return e != nil && e.Code == Logic && e.Message == msgConflict
}

// Messages used for the common failures.
const (
	msgNotOpened    = "not opened"
	msgAlreadyOpen  = "already opened"
	msgNoPermission = "permission denied"
	msgNoRecord     = "no record"
	msgDuplicate    = "record duplication"
	msgInconsistent = "logical inconsistency"
	msgConflict     = "status conflict"
	msgCompetition  = "competition avoided"
	msgNotInTran    = "not in transaction"
	msgNoImpl       = "not implemented"
)

// codeOf classifies a backend failure.
func codeOf(err error) Code {
	switch {
	case errors.Is(err, backend.ErrCorrupt):
		return Broken
	case errors.Is(err, backend.ErrNotSupported):
		return NoImpl
	case errors.Is(err, backend.ErrReadOnly), errors.Is(err, os.ErrPermission):
		return NoPerm
	case errors.Is(err, backend.ErrBusy):
		return Logic
	case errors.Is(err, os.ErrNotExist):
		return NoRepos
	}
	return System
}
