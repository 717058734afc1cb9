// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers

package keyoracle

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
	"github.com/keyoracle/keyoracle/build"
	"github.com/keyoracle/keyoracle/keychain"
	"github.com/keyoracle/keyoracle/lnutils"
	"github.com/keyoracle/keyoracle/signal"
)

const (
	defaultConfigFilename = "keyoracle.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "keyoracle.log"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10

	defaultHostListen       = "localhost:8765"
	defaultPrometheusListen = "localhost:9092"
)

var (
	// DefaultOracleDir is the default directory where the oracle keeps its
	// configuration and logs.
	DefaultOracleDir = btcutil.AppDataDir("keyoracle", false)

	// DefaultConfigFile is the default full path of the config file.
	DefaultConfigFile = filepath.Join(DefaultOracleDir, defaultConfigFilename)

	defaultLogDir = filepath.Join(DefaultOracleDir, defaultLogDirname)
)

// Host holds the options of the host facing websocket endpoint.
type Host struct {
	Listen string `long:"listen" description:"Interface/port the host websocket endpoint listens on"`

	AllowedOrigins []string `long:"allowedorigin" description:"Browser origin allowed to connect. May be repeated. If unset, only origins matching the listen host are accepted"`
}

// Prometheus holds the options of the metrics exporter.
type Prometheus struct {
	Enable bool `long:"enable" description:"Export request metrics to Prometheus"`

	Listen string `long:"listen" description:"Interface/port the /metrics endpoint listens on"`
}

// Config defines the configuration options for keyoracled.
//
// See LoadConfig for further details regarding the configuration loading and
// parsing process.
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	OracleDir  string `long:"oracledir" description:"The base directory that contains the config file and logs"`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	MaxLogFiles    int `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	TestNet3 bool `long:"testnet" description:"Use the test network"`
	RegTest  bool `long:"regtest" description:"Use the regression test network"`

	StretchIterations uint32 `long:"stretchiterations" description:"Number of SHA-512 rounds applied to email and passphrase"`
	TokenLength       int    `long:"tokenlength" description:"Length in bytes of every key derivation token"`
	Owner             string `long:"owner" description:"Name shown when asking for the passphrase and confirming transactions"`

	Host *Host `group:"host" namespace:"host"`

	Prometheus *Prometheus `group:"prometheus" namespace:"prometheus"`

	// ActiveNetParams is the network selected by the flags.
	ActiveNetParams *chaincfg.Params `no-flag:"true"`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		OracleDir:         DefaultOracleDir,
		ConfigFile:        DefaultConfigFile,
		LogDir:            defaultLogDir,
		MaxLogFiles:       defaultMaxLogFiles,
		MaxLogFileSize:    defaultMaxLogFileSize,
		DebugLevel:        defaultLogLevel,
		StretchIterations: keychain.DefaultStretchIterations,
		TokenLength:       keychain.DefaultTokenLength,
		Host: &Host{
			Listen: defaultHostListen,
		},
		Prometheus: &Prometheus{
			Listen: defaultPrometheusListen,
		},
		ActiveNetParams: &chaincfg.MainNetParams,
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig(interceptor signal.Interceptor) (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", build.Version(),
			"commit="+build.Commit)
		os.Exit(0)
	}

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their oracledir, then we should assume they intend to use
	// the config file within it.
	configFileDir := CleanAndExpandPath(preCfg.OracleDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultOracleDir {
		if configFilePath == DefaultConfigFile {
			configFilePath = filepath.Join(
				configFileDir, defaultConfigFilename,
			)
		}
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	// Make sure everything we just loaded makes sense.
	cleanCfg, err := ValidateConfig(cfg, usageMessage, interceptor)
	if err != nil {
		return nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid options.
	if configFileError != nil {
		orclLog.Warnf("%v", configFileError)
	}

	return cleanCfg, nil
}

// ValidateConfig check the given configuration to be sane. This makes sure no
// illegal values or combination of values are set. All file system paths are
// normalized. The cleaned up config is returned on success.
func ValidateConfig(cfg Config, usageMessage string,
	interceptor signal.Interceptor) (*Config, error) {

	funcName := "ValidateConfig"
	mkErr := func(format string, args ...interface{}) error {
		err := fmt.Errorf("%s: "+format, append(
			[]interface{}{funcName}, args...,
		)...)
		_, _ = fmt.Fprintln(os.Stderr, err)
		_, _ = fmt.Fprintln(os.Stderr, usageMessage)

		return err
	}

	// If the provided oracle directory is not the default, we'll modify
	// the path to all of the files and directories that will live within
	// it.
	oracleDir := CleanAndExpandPath(cfg.OracleDir)
	if oracleDir != DefaultOracleDir && cfg.LogDir == defaultLogDir {
		cfg.LogDir = filepath.Join(oracleDir, defaultLogDirname)
	}
	cfg.OracleDir = oracleDir
	cfg.ConfigFile = CleanAndExpandPath(cfg.ConfigFile)
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	cfg.ActiveNetParams = &chaincfg.MainNetParams
	if cfg.TestNet3 {
		numNets++
		cfg.ActiveNetParams = &chaincfg.TestNet3Params
	}
	if cfg.RegTest {
		numNets++
		cfg.ActiveNetParams = &chaincfg.RegressionNetParams
	}
	if numNets > 1 {
		return nil, mkErr("the testnet and regtest params can't be " +
			"used together -- choose one of the two")
	}

	switch {
	case cfg.StretchIterations == 0:
		return nil, mkErr("stretchiterations must be positive")

	case cfg.TokenLength <= 0:
		return nil, mkErr("tokenlength must be positive")

	case cfg.MaxLogFiles < 0:
		return nil, mkErr("maxlogfiles must be non-negative")

	case cfg.MaxLogFileSize <= 0:
		return nil, mkErr("maxlogfilesize must be positive")

	case cfg.Host == nil || cfg.Host.Listen == "":
		return nil, mkErr("host.listen must be set")

	case cfg.Prometheus != nil && cfg.Prometheus.Enable &&
		cfg.Prometheus.Listen == "":

		return nil, mkErr("prometheus.listen must be set when the " +
			"exporter is enabled")
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network in the same fashion as the data directory.
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.ActiveNetParams.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems",
			registry.SupportedSubsystems())
		os.Exit(0)
	}

	if err := lnutils.CreateDir(cfg.LogDir, 0700); err != nil {
		return nil, mkErr("failed to create log directory: %v", err)
	}

	// Initialize logging at the default logging level.
	err := logRotator.InitLogRotator(
		filepath.Join(cfg.LogDir, defaultLogFilename),
		cfg.MaxLogFileSize, cfg.MaxLogFiles,
	)
	if err != nil {
		return nil, mkErr("log rotation setup failed: %v", err)
	}
	signal.UseLogger(build.NewShutdownLogger(
		subsystemLoggers[signalSubsystem], interceptor.RequestShutdown,
	))

	// Parse, validate, and set debug log level(s).
	err = build.ParseAndSetDebugLevels(cfg.DebugLevel, registry)
	if err != nil {
		return nil, mkErr("error parsing debug level: %v", err)
	}

	return &cfg, nil
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
