package build

import (
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

type mockRegistry struct {
	loggers SubLoggers
	levels  map[string]string
}

func newMockRegistry(subsystems ...string) *mockRegistry {
	r := &mockRegistry{
		loggers: make(SubLoggers),
		levels:  make(map[string]string),
	}
	for _, s := range subsystems {
		r.loggers[s] = btclog.Disabled
	}

	return r
}

func (r *mockRegistry) SubLoggers() SubLoggers {
	return r.loggers
}

func (r *mockRegistry) SupportedSubsystems() []string {
	var names []string
	for name := range r.loggers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (r *mockRegistry) SetLogLevel(subsystemID string, logLevel string) {
	r.levels[subsystemID] = logLevel
}

func (r *mockRegistry) SetLogLevels(logLevel string) {
	for name := range r.loggers {
		r.SetLogLevel(name, logLevel)
	}
}

// TestParseAndSetDebugLevels covers the accepted and rejected level
// strings.
func TestParseAndSetDebugLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		level  string
		levels map[string]string
		err    string
	}{{
		name:  "global",
		level: "debug",
		levels: map[string]string{
			"SIGN": "debug", "HOST": "debug",
		},
	}, {
		name:  "global and pair",
		level: "info,SIGN=trace",
		levels: map[string]string{
			"SIGN": "trace", "HOST": "info",
		},
	}, {
		name:  "pairs only",
		level: "HOST=warn",
		levels: map[string]string{
			"HOST": "warn",
		},
	}, {
		name:  "empty",
		level: "",
		err:   "invalid log level",
	}, {
		name:  "bad global",
		level: "loud",
		err:   "debug level [loud] is invalid",
	}, {
		name:  "unknown subsystem",
		level: "info,NOPE=debug",
		err:   "subsystem [NOPE] is invalid",
	}, {
		name:  "bad pair level",
		level: "SIGN=loud",
		err:   "debug level [loud] is invalid",
	}, {
		name:  "malformed pair",
		level: "info,SIGN",
		err:   "invalid subsystem/level pair [SIGN]",
	}, {
		name:  "double equals",
		level: "SIGN=debug=info",
		err:   "invalid subsystem/level pair",
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			r := newMockRegistry("SIGN", "HOST")
			err := ParseAndSetDebugLevels(test.level, r)
			if test.err != "" {
				require.ErrorContains(t, err, test.err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.levels, r.levels)
		})
	}
}

// TestNames covers the names of the build enums.
func TestNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, "production", Production.String())
	require.Equal(t, "development", Development.String())
	require.Equal(t, "unknown", DeploymentType(7).String())

	require.Equal(t, "none", LogTypeNone.String())
	require.Equal(t, "stdout", LogTypeStdOut.String())
	require.Equal(t, "default", LogTypeDefault.String())
}

// TestNewSubLoggerDisabled checks that production builds without a backend
// do not log.
func TestNewSubLoggerDisabled(t *testing.T) {
	t.Parallel()

	if Deployment != Production {
		t.Skip("development build")
	}

	require.Equal(t, btclog.Disabled, NewSubLogger("TEST", nil))
}

// TestVersion checks the version and rotating writer before initialization.
func TestVersion(t *testing.T) {
	t.Parallel()

	require.Regexp(t, `^\d+\.\d+\.\d+`, Version())

	w := NewRotatingLogWriter()
	require.Nil(t, w.Pipe())

	n, err := w.Write([]byte("dropped"))
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.NoError(t, w.Close())
}

// TestRotatingLogWriter writes through an initialized rotator.
func TestRotatingLogWriter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	w := NewRotatingLogWriter()
	require.NoError(t, w.InitLogRotator(dir+"/logs/test.log", 1, 2))
	require.NotNil(t, w.Pipe())

	_, err := w.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

// TestShutdownLogger checks that critical messages request a single
// shutdown.
func TestShutdownLogger(t *testing.T) {
	t.Parallel()

	var calls int
	logger := NewShutdownLogger(btclog.Disabled, func() {
		calls++
	})

	logger.Info("not critical")
	require.Zero(t, calls)

	logger.Criticalf("failed: %v", "disk")
	logger.Critical("again")
	require.Equal(t, 1, calls)
}

// TestRotatingLogWriterReinit replaces the rotator while lines are written
// concurrently.
func TestRotatingLogWriterReinit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewRotatingLogWriter()
	writer := &LogWriter{Rotator: w}

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case <-done:
				return
			default:
			}
			_, _ = w.Write([]byte("line\n"))
		}
	}()

	for i := 0; i < 3; i++ {
		logFile := filepath.Join(dir, "logs", "test.log")
		require.NoError(t, w.InitLogRotator(logFile, 1, 2))
	}

	close(done)
	wg.Wait()

	n, err := writer.Write([]byte("last\n"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, w.Close())
	require.Nil(t, w.Pipe())
}
