package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a logger built by New.
type Options struct {
	// Verbosity maps 0..3 to warn, info, debug and trace.
	Verbosity int

	// Console receives human readable output. Nil means os.Stderr.
	Console io.Writer

	// File is an optional JSON log file opened in append mode. An empty
	// string disables file logging.
	File string

	NoColor bool
}

// LevelForVerbosity returns the zerolog level for a -v count.
func LevelForVerbosity(verbosity int) zerolog.Level {
	switch verbosity {
	case 0:
		return zerolog.WarnLevel
	case 1:
		return zerolog.InfoLevel
	case 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// New builds a logger writing to the console and, when configured, a log
// file. The returned close function releases the log file.
//
// Nothing here touches zerolog's global logger: callers pass the result
// down explicitly, so several sessions can log at different levels in the
// same process.
func New(opts Options) (zerolog.Logger, func() error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	// Configure console output with pretty printing
	consoleWriter := zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.Kitchen,
		NoColor:    opts.NoColor,
	}

	writers := []io.Writer{consoleWriter}
	closeFn := func() error { return nil }

	var fileErr error
	if opts.File != "" {
		fh, err := setupLogFile(opts.File)
		if err == nil {
			writers = append(writers, fh)
			closeFn = fh.Close
		}
		fileErr = err
	}

	logger := zerolog.New(io.MultiWriter(writers...)).
		Level(LevelForVerbosity(opts.Verbosity)).
		With().Timestamp().Logger()

	// If we couldn't create the log file, log the error now with the new logger
	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("path", opts.File).Msg("Failed to create log file, logging to console only")
	}

	// Add caller information for debug and trace levels
	if opts.Verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}

	logger.Debug().Int("verbosity", opts.Verbosity).Str("logFile", opts.File).Msg("Logger initialized")
	return logger, closeFn
}

// Nop returns a disabled logger, used as the default for library options.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Component returns a contextualized logger with the given name
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// WithFields returns a logger with additional fields
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	for k, v := range fields {
		logger = logger.With().Interface(k, v).Logger()
	}
	return logger
}

// DefaultLogFilePath returns the path to the log file.
// It respects XDG_STATE_HOME if set, otherwise uses ~/.local/state/hierosoft/
func DefaultLogFilePath() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			// Fallback to current directory if we can't get home
			return "hierosoft.log"
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "hierosoft", "hierosoft.log")
}

// setupLogFile creates the log file and its parent directories
func setupLogFile(logPath string) (*os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return file, nil
}

// LogDuration logs the duration of an operation
func LogDuration(logger zerolog.Logger, start time.Time, operation string) {
	logger.Debug().
		Str("operation", operation).
		Dur("duration", time.Since(start)).
		Msg("Operation completed")
}

// LogOperationStart logs the start of an operation and returns a function to log its completion
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().
		Str("operation", operation).
		Msg("Operation started")

	return func() {
		LogDuration(logger, start, operation)
	}
}
