// Package logging builds the structured logger shared by the pipeline and
// the command line tools.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options selects level, format and destination of log output.
type Options struct {
	Level  string
	Format string

	// File sends output to a rotating log file instead of stderr
	File       string
	MaxSizeMB  int
	MaxAgeDays int
}

// New creates a logger from opts. The returned closer releases the log file
// and is never nil.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nopCloser{}, errors.Wrapf(err, "invalid log level %q", level)
	}
	logger.SetLevel(lvl)

	switch opts.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if opts.File == "" {
		logger.SetOutput(os.Stderr)
		return logger, nopCloser{}, nil
	}

	fmt.Printf("Sending log messages to: %s\n", opts.File)
	l := &lumberjack.Logger{
		Filename: opts.File,
		MaxSize:  opts.MaxSizeMB,  // megabytes
		MaxAge:   opts.MaxAgeDays, // days
	}
	logger.SetOutput(l)
	return logger, l, nil
}

// Discard returns a logger that drops everything. Tests and library callers
// that do not care about progress output use it.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
