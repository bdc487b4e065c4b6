// Package logging constructs the engine's loggers.
//
// Every component takes an injected *log.Logger; this package decides
// where those loggers write. With a log file configured, output goes
// to a size-rotated file and stderr; without one, stderr only.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/theonlywayisdigital/donedex-sub002/internal/config"
)

// Setup builds the shared log sink from configuration. The returned
// closer flushes and releases the rotated file; it is a no-op when
// logging only to stderr.
func Setup(cfg config.LogConfig) (io.Writer, io.Closer, error) {
	if cfg.File == "" {
		return os.Stderr, nopCloser{}, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	return io.MultiWriter(os.Stderr, rotator), rotator, nil
}

// New returns a prefixed logger over the shared sink. Prefixes follow
// the "[component] " convention used across the engine.
func New(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
