package log

import (
	"github.com/rs/zerolog"
)

// Guard runs fn and converts its outcome to a success flag. Errors and panics
// are logged under msg and absorbed; they never reach the caller.
func Guard(l zerolog.Logger, msg string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg(msg)
			ok = false
		}
	}()

	if err := fn(); err != nil {
		l.Error().Err(err).Msg(msg)
		return false
	}
	return true
}
