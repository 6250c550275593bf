package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	scrubMu     sync.RWMutex
	scrubValues []string
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithPoolID creates a child logger with pool_id field
func WithPoolID(poolID string) zerolog.Logger {
	return Logger.With().Str("pool_id", poolID).Logger()
}

// WithJobID creates a child logger with job_id field
func WithJobID(jobID string) zerolog.Logger {
	return Logger.With().Str("job_id", jobID).Logger()
}

// WithTaskID creates a child logger with task_id field
func WithTaskID(taskID string) zerolog.Logger {
	return Logger.With().Str("task_id", taskID).Logger()
}

// WithFederationID creates a child logger with federation_id field
func WithFederationID(federationID string) zerolog.Logger {
	return Logger.With().Str("federation_id", federationID).Logger()
}

// WithActionID creates a child logger with action_id field
func WithActionID(actionID string) zerolog.Logger {
	return Logger.With().Str("action_id", actionID).Logger()
}

// RegisterSecret records a plaintext value the credential store has handed
// out so that Scrub can redact it from anything about to be logged. Secrets
// must never be persisted or logged in the clear (spec.md §4.B).
func RegisterSecret(plaintext string) {
	if plaintext == "" {
		return
	}
	scrubMu.Lock()
	defer scrubMu.Unlock()
	scrubValues = append(scrubValues, plaintext)
}

// Scrub replaces every registered secret value found in msg with "***".
// Call sites that echo external command output (start-task stdout/stderr,
// federation proxy log mirroring) must pass the text through Scrub first.
func Scrub(msg string) string {
	scrubMu.RLock()
	defer scrubMu.RUnlock()
	for _, v := range scrubValues {
		msg = strings.ReplaceAll(msg, v, "***")
	}
	return msg
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
