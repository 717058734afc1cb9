package keyoracle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/keyoracle/keyoracle/signal"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.OracleDir = t.TempDir()

	return cfg
}

// TestValidateConfigErrors covers the rejected option combinations.
func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		err    string
	}{{
		name: "two networks",
		modify: func(c *Config) {
			c.TestNet3 = true
			c.RegTest = true
		},
		err: "can't be used together",
	}, {
		name: "no stretching",
		modify: func(c *Config) {
			c.StretchIterations = 0
		},
		err: "stretchiterations",
	}, {
		name: "no token length",
		modify: func(c *Config) {
			c.TokenLength = 0
		},
		err: "tokenlength",
	}, {
		name: "negative log files",
		modify: func(c *Config) {
			c.MaxLogFiles = -1
		},
		err: "maxlogfiles",
	}, {
		name: "no host listener",
		modify: func(c *Config) {
			c.Host.Listen = ""
		},
		err: "host.listen",
	}, {
		name: "prometheus without listener",
		modify: func(c *Config) {
			c.Prometheus.Enable = true
			c.Prometheus.Listen = ""
		},
		err: "prometheus.listen",
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig(t)
			test.modify(&cfg)

			_, err := ValidateConfig(cfg, "", signal.Interceptor{})
			require.ErrorContains(t, err, test.err)
		})
	}
}

// TestValidateConfig checks network selection, path relocation and debug
// levels of a valid configuration.
func TestValidateConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.TestNet3 = true
	cfg.DebugLevel = "info,SIGN=debug"

	clean, err := ValidateConfig(cfg, "", signal.Interceptor{})
	require.NoError(t, err)
	require.Equal(t, &chaincfg.TestNet3Params, clean.ActiveNetParams)
	require.Equal(t, filepath.Join(
		cfg.OracleDir, defaultLogDirname, "testnet3",
	), clean.LogDir)

	info, err := os.Stat(clean.LogDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	cfg = testConfig(t)
	cfg.DebugLevel = "SIGN=loud"
	_, err = ValidateConfig(cfg, "", signal.Interceptor{})
	require.ErrorContains(t, err, "error parsing debug level")
}

// TestDefaultConfig checks the production defaults.
func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.EqualValues(t, 1500000, cfg.StretchIterations)
	require.Equal(t, 64, cfg.TokenLength)
	require.Equal(t, &chaincfg.MainNetParams, cfg.ActiveNetParams)
	require.False(t, cfg.Prometheus.Enable)
	require.NotEmpty(t, cfg.Host.Listen)
}

// TestCleanAndExpandPath covers home and environment expansion.
func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("KEYORACLE_TEST_DIR", "/tmp/oracle")

	require.Empty(t, CleanAndExpandPath(""))
	require.Equal(t, "/tmp/oracle/logs",
		CleanAndExpandPath("$KEYORACLE_TEST_DIR/./logs/"))

	expanded := CleanAndExpandPath("~/oracle")
	require.False(t, strings.HasPrefix(expanded, "~"))
	require.True(t, strings.HasSuffix(expanded, "/oracle"))
}

// TestSubLoggerRegistry checks that every package logger is registered.
func TestSubLoggerRegistry(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{
		"DISP", "HOST", "KCHN", "MNTR", "ORCL", "PRMT", "SESS",
		"SGNL", "SIGN", "UNLK", "WLLT",
	}, registry.SupportedSubsystems())
}
