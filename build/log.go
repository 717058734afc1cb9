package build

import (
	"fmt"
	"io"
	"strings"

	"github.com/btcsuite/btclog"
)

// LogType is the kind of log writer selected by the build tags.
type LogType byte

const (
	// LogTypeNone discards all output.
	LogTypeNone LogType = iota

	// LogTypeStdOut writes to stdout only.
	LogTypeStdOut

	// LogTypeDefault writes to stdout and to the log rotator.
	LogTypeDefault
)

// String returns the name of the log type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// LogWriter is the writer behind the logging backend. Its Write method is
// selected by the "stdlog" and "nolog" build tags.
type LogWriter struct {
	// Rotator receives a copy of every line in default builds. It is
	// usually a RotatingLogWriter, which drops lines until initialized.
	Rotator io.Writer
}

// NewSubLogger returns the logger of a subsystem. In production builds, and in
// development builds writing to the default writer, it is created with
// genSubLogger. Development builds with the stdlog tag give every subsystem
// its own stdout logger at LogLevel, which is what unit tests use. Everything
// else gets a disabled logger.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	useBackend := Deployment == Production ||
		LoggingType == LogTypeDefault

	switch {
	case useBackend && genSubLogger != nil:
		return genSubLogger(subsystem)

	case Deployment == Development && LoggingType == LogTypeStdOut:
		logger := btclog.NewBackend(&LogWriter{}).Logger(subsystem)

		level, _ := btclog.LevelFromString(LogLevel)
		logger.SetLevel(level)

		return logger
	}

	return btclog.Disabled
}

// SubLoggers maps subsystem names to their loggers.
type SubLoggers map[string]btclog.Logger

// LeveledSubLogger is a registry of subsystem loggers whose levels can be
// changed at runtime.
type LeveledSubLogger interface {
	// SubLoggers returns all registered loggers.
	SubLoggers() SubLoggers

	// SupportedSubsystems returns the sorted subsystem names.
	SupportedSubsystems() []string

	// SetLogLevel sets the level of a single subsystem.
	SetLogLevel(subsystemID string, logLevel string)

	// SetLogLevels sets the level of every subsystem.
	SetLogLevels(logLevel string)
}

// ParseAndSetDebugLevels applies a debug level string to logger. The string
// is either a single level for all subsystems, a comma
// separated list of subsystem=level pairs, or a global level followed by
// such pairs.
func ParseAndSetDebugLevels(level string, logger LeveledSubLogger) error {
	if level == "" {
		return fmt.Errorf("invalid log level: %q", level)
	}

	entries := strings.Split(level, ",")

	// A leading entry without a subsystem applies to all of them.
	if !strings.Contains(entries[0], "=") {
		if !validLogLevel(entries[0]) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", entries[0])
		}

		logger.SetLogLevels(entries[0])
		entries = entries[1:]
	}

	subLoggers := logger.SubLoggers()
	for _, entry := range entries {
		subsysID, logLevel, ok := strings.Cut(entry, "=")
		if !ok || strings.Contains(logLevel, "=") {
			return fmt.Errorf("the specified debug level has an "+
				"invalid subsystem/level pair [%v] -- use "+
				"format subsystem1=level1,subsystem2=level2",
				entry)
		}

		if _, exists := subLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid -- supported subsystems are %v",
				subsysID, logger.SupportedSubsystems())
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", logLevel)
		}

		logger.SetLogLevel(subsysID, logLevel)
	}

	return nil
}

// validLogLevel reports whether btclog knows logLevel.
func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}
