package build

import (
	"sync"

	"github.com/btcsuite/btclog"
)

// ShutdownLogger is a logger that requests a shutdown of the process the
// first time a critical message is logged.
type ShutdownLogger struct {
	btclog.Logger

	once     sync.Once
	shutdown func()
}

// NewShutdownLogger wraps logger. The shutdown closure is usually
// signal.Interceptor.RequestShutdown.
func NewShutdownLogger(logger btclog.Logger, shutdown func()) *ShutdownLogger {
	return &ShutdownLogger{
		Logger:   logger,
		shutdown: shutdown,
	}
}

// requestShutdown invokes the shutdown closure once.
func (s *ShutdownLogger) requestShutdown() {
	s.once.Do(func() {
		s.Logger.Info("Sending request for shutdown")
		s.shutdown()
	})
}

// Criticalf logs at LevelCritical and requests a shutdown.
//
// NOTE: Part of the btclog.Logger interface.
func (s *ShutdownLogger) Criticalf(format string, params ...interface{}) {
	s.Logger.Criticalf(format, params...)
	s.requestShutdown()
}

// Critical logs at LevelCritical and requests a shutdown.
//
// NOTE: Part of the btclog.Logger interface.
func (s *ShutdownLogger) Critical(v ...interface{}) {
	s.Logger.Critical(v...)
	s.requestShutdown()
}
