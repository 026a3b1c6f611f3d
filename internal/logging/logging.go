// Package logging builds the application logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/eddiefleurent/finance_dashboard/internal/config"
)

// New creates a logger from cfg. When cfg.File is set, output goes to both
// stdout and a rotating file; the returned closer releases the file.
func New(cfg config.LoggingConfig) (*logrus.Logger, io.Closer, error) {
	return newWithConsole(cfg, os.Stdout)
}

// NewStderr is New with console output on stderr.
func NewStderr(cfg config.LoggingConfig) (*logrus.Logger, io.Closer, error) {
	return newWithConsole(cfg, os.Stderr)
}

func newWithConsole(cfg config.LoggingConfig, console io.Writer) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	if cfg.File == "" {
		logger.SetOutput(console)
		return logger, nopCloser{}, nil
	}

	// Ensure log directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(console, fileWriter))
	return logger, fileWriter, nil
}

// Discard returns a logger that drops everything; used by tests and pure components.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
