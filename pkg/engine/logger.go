package engine

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
	"github.com/ssargent/cabinetdb/pkg/log"
)

// openLogger builds the engine logger from the log, logkind and logpx
// parameters. log names a file, or "-" for stdout and "+" for stderr.
// Without it the shared engine logger is used.
func openLogger(p backend.Params) (zerolog.Logger, io.Closer, error) {
	dest := p.String("log", "")
	if dest == "" {
		l := log.Engine
		if px := p.String("logpx", ""); px != "" {
			l = l.With().Str("prefix", px).Logger()
		}
		return l, nil, nil
	}

	level := zerolog.InfoLevel
	if kind := p.String("logkind", ""); kind != "" {
		lv, err := log.ParseLogLevel(kind)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrapf(err, "logkind %q", kind)
		}
		level = lv
	}

	var (
		out    io.Writer
		closer io.Closer
	)
	switch dest {
	case "-":
		out = os.Stdout
	case "+":
		out = os.Stderr
	default:
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrap(err, "opening engine log")
		}
		out, closer = f, f
	}

	l := log.New(out, level, "engine")
	if px := p.String("logpx", ""); px != "" {
		l = l.With().Str("prefix", px).Logger()
	}
	return l, closer, nil
}
