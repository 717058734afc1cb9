package keyoracle

import (
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/keyoracle/keyoracle/build"
	"github.com/keyoracle/keyoracle/dispatcher"
	"github.com/keyoracle/keyoracle/hostrpc"
	"github.com/keyoracle/keyoracle/keychain"
	"github.com/keyoracle/keyoracle/monitoring"
	"github.com/keyoracle/keyoracle/prompt"
	"github.com/keyoracle/keyoracle/session"
	"github.com/keyoracle/keyoracle/signal"
	"github.com/keyoracle/keyoracle/signer"
	"github.com/keyoracle/keyoracle/wallet"
	"github.com/keyoracle/keyoracle/walletunlocker"
)

const (
	// Subsystem is the logging code of the root package.
	Subsystem = "ORCL"

	signalSubsystem = "SGNL"
)

// Loggers per subsystem. A single backend logger is created and all subsystem
// loggers created from it will write to the backend. When adding new
// subsystems, add the subsystem logger to the init function below.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file. This must be performed early during application startup by
// ValidateConfig.
var (
	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator = build.NewRotatingLogWriter()

	logWriter = &build.LogWriter{Rotator: logRotator}

	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(logWriter)

	// subsystemLoggers maps each subsystem identifier to its associated
	// logger.
	subsystemLoggers = build.SubLoggers{}

	registry = subLoggerRegistry{}

	orclLog = build.NewSubLogger(Subsystem, backendLog.Logger)
)

// Initialize package-global logger variables.
func init() {
	setSubLogger(Subsystem, orclLog)
	addSubLogger(signalSubsystem, signal.UseLogger)
	addSubLogger(keychain.Subsystem, keychain.UseLogger)
	addSubLogger(session.Subsystem, session.UseLogger)
	addSubLogger(walletunlocker.Subsystem, walletunlocker.UseLogger)
	addSubLogger(wallet.Subsystem, wallet.UseLogger)
	addSubLogger(signer.Subsystem, signer.UseLogger)
	addSubLogger(prompt.Subsystem, prompt.UseLogger)
	addSubLogger(dispatcher.Subsystem, dispatcher.UseLogger)
	addSubLogger(hostrpc.Subsystem, hostrpc.UseLogger)
	addSubLogger(monitoring.Subsystem, monitoring.UseLogger)
}

// addSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func addSubLogger(subsystem string, useLoggers ...func(btclog.Logger)) {
	logger := build.NewSubLogger(subsystem, backendLog.Logger)
	setSubLogger(subsystem, logger, useLoggers...)
}

// setSubLogger is a helper method to conveniently register the logger of a
// sub system.
func setSubLogger(subsystem string, logger btclog.Logger,
	useLoggers ...func(btclog.Logger)) {

	subsystemLoggers[subsystem] = logger
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}

// subLoggerRegistry exposes the subsystem loggers to
// build.ParseAndSetDebugLevels.
type subLoggerRegistry struct{}

// A compile time check to ensure subLoggerRegistry implements the
// build.LeveledSubLogger interface.
var _ build.LeveledSubLogger = subLoggerRegistry{}

// SubLoggers returns all currently registered subsystem loggers.
func (subLoggerRegistry) SubLoggers() build.SubLoggers {
	return subsystemLoggers
}

// SupportedSubsystems returns a sorted string slice of all keys in the
// subsystems map, corresponding to the names of the subsystems.
func (subLoggerRegistry) SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	sort.Strings(subsystems)

	return subsystems
}

// SetLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored.
func (subLoggerRegistry) SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for all subsystem loggers to the passed
// level.
func (r subLoggerRegistry) SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		r.SetLogLevel(subsystemID, logLevel)
	}
}
