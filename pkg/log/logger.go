// Package log holds the zerolog component loggers shared across CabinetDB.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggerType selects the output format.
type LoggerType uint8

const (
	ConsoleLogger LoggerType = iota
	JSONLogger
)

// Component loggers. They are usable before Init and write JSON to stderr at
// info level until reconfigured.
var (
	Root      zerolog.Logger
	Engine    zerolog.Logger
	Store     zerolog.Logger
	MapReduce zerolog.Logger
	API       zerolog.Logger
)

func init() {
	Init(Options{LogLevel: zerolog.InfoLevel, Type: JSONLogger, Output: os.Stderr})
}

// Options for Logger
type Options struct {
	// Enable Debug loglevel, default Info
	LogLevel zerolog.Level
	Type     LoggerType
	// Output defaults to stdout.
	Output io.Writer
}

// ParseLogLevel parses a level name such as "debug" or "warn".
func ParseLogLevel(loglevel string) (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(loglevel)))
}

// ParseLoggerType maps "console" or "json" to a LoggerType.
func ParseLoggerType(name string) (LoggerType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "console", "text":
		return ConsoleLogger, nil
	case "json":
		return JSONLogger, nil
	}
	return ConsoleLogger, fmt.Errorf("unknown log format %q", name)
}

// Init rebuilds every component logger.
func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	switch opts.Type {
	case ConsoleLogger:
		Root = zerolog.New(newConsoleWriter(out)).Level(opts.LogLevel).
			With().Timestamp().Logger()
	default:
		Root = zerolog.New(out).Level(opts.LogLevel).
			With().Timestamp().Logger()
	}
	Engine = Component("engine")
	Store = Component("store")
	MapReduce = Component("mapreduce")
	API = Component("api")
}

// Component derives a logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Root.With().Str("component", name).Logger()
}

// New builds a standalone JSON logger, used for per-database log destinations.
func New(w io.Writer, level zerolog.Level, component string) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}

	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}

	cw.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("message: \"%s\" |", i)
	}

	cw.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("\"%s\": ", i)
	}

	cw.FormatFieldValue = func(i interface{}) string {
		return fmt.Sprintf("\"%s\" |", i)
	}

	cw.FormatErrFieldValue = func(i interface{}) string {
		return fmt.Sprintf(" %s |", i)
	}
	return cw
}
