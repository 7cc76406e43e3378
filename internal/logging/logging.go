// Package logging builds the updater's leveled log stream.
package logging

import (
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultPrefix tags every line written by the updater.
const DefaultPrefix = "updater"

// TimeFormat is the timestamp layout of every log line.
const TimeFormat = "2006-01-02 15:04:05"

// Options controls logger construction.
type Options struct {
	Verbose bool   // debug level
	Quiet   bool   // error level; wins over Verbose
	File    string // optional rotating log file
	Prefix  string
}

// Level maps the verbosity flags to a log level.
func (o Options) Level() log.Level {
	switch {
	case o.Quiet:
		return log.ErrorLevel
	case o.Verbose:
		return log.DebugLevel
	default:
		return log.InfoLevel
	}
}

// New returns a logger writing to w and, when opts.File is set, to a
// rotating log file. The returned closer releases the file.
func New(w io.Writer, opts Options) (*log.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		file := &lumberjack.Logger{
			// Log file absolute path, os agnostic
			Filename:   filepath.ToSlash(opts.File),
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		w = io.MultiWriter(w, file)
		closer = file
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	logger := log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           opts.Level(),
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
	})
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
