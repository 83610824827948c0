package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/remnetwork/dvm-miner/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultIdentityFile is the default name of the file containing the
	// node's persisted identity and commitment. It is plain JSON and may be
	// hand-edited between runs, except that blanking node_id causes a new
	// identity to be generated.
	DefaultIdentityFile = "config.json"

	// DefaultManifestFile is the default name of the autosave snapshot
	// containing the ids of the stored vector records.
	DefaultManifestFile = "manifest.json"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database used when persistent storage is enabled.
	DefaultBadgerFile = "badger_db"

	// DefaultReferralFile is the name of the informational file written after
	// a successful registration.
	DefaultReferralFile = "referral_info.txt"
)

// Default configuration values.
const (
	DefaultLogLevel            = "debug"
	DefaultCoordinatorAddr     = "coordinator.getrem.online:9443"
	DefaultServiceAddr         = "127.0.0.1:8090"
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultHeartbeatTimeout    = 10 * time.Second
	DefaultAutosaveInterval    = 5 * time.Minute
	DefaultDialTimeout         = 10 * time.Second
	DefaultRegistrationTimeout = 10 * time.Second
	DefaultWriteTimeout        = 10 * time.Second
	DefaultMinBackoff          = 1 * time.Second
	DefaultMaxBackoff          = 30 * time.Second
	DefaultStablePeriod        = 60 * time.Second
	DefaultFailureThreshold    = 3
	DefaultShutdownGrace       = 5 * time.Second
	DefaultStore               = false
	DefaultSkipVerify          = false
	DefaultNoTLS               = false
)

// Config contains all the configuration properties of a miner node.
type Config struct {
	// DataDir is the top-level directory containing miner configuration and
	// data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// CoordinatorAddr is the host:port of the coordinator endpoint that the
	// node registers with and takes work from.
	CoordinatorAddr string `mapstructure:"coordinator"`

	// NoService disables the local HTTP stats service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the local HTTP stats service.
	ServiceAddr string `mapstructure:"service-listen"`

	// HeartbeatInterval is the frequency of liveness signals sent to the
	// coordinator while the session is active.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat"`

	// HeartbeatTimeout is how long to wait for a heartbeat acknowledgement
	// before counting the heartbeat as missed.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat-timeout"`

	// AutosaveInterval is the frequency of durable snapshots of the identity
	// and the store manifest.
	AutosaveInterval time.Duration `mapstructure:"autosave"`

	// DialTimeout is the timeout of connection attempts to the coordinator.
	DialTimeout time.Duration `mapstructure:"timeout"`

	// RegistrationTimeout is how long to wait for the registration
	// acknowledgement before tearing the connection down and retrying.
	RegistrationTimeout time.Duration `mapstructure:"registration-timeout"`

	// WriteTimeout is the I/O deadline applied to outbound messages.
	WriteTimeout time.Duration `mapstructure:"write-timeout"`

	// MinBackoff is the initial reconnection delay. The delay doubles after
	// every failed attempt up to MaxBackoff, and resets to MinBackoff after a
	// session has been active for StablePeriod.
	MinBackoff time.Duration `mapstructure:"min-backoff"`

	// MaxBackoff caps the reconnection delay.
	MaxBackoff time.Duration `mapstructure:"max-backoff"`

	// StablePeriod is how long a session must remain active before the
	// reconnection delay resets to MinBackoff.
	StablePeriod time.Duration `mapstructure:"stable-period"`

	// FailureThreshold is the number of consecutive missed heartbeat
	// acknowledgements or challenge deadlines that forces a reconnect.
	FailureThreshold int `mapstructure:"failure-threshold"`

	// ShutdownGrace bounds how long in-flight challenge responses are drained
	// on shutdown before the transport is forced closed.
	ShutdownGrace time.Duration `mapstructure:"shutdown-grace"`

	// Store activates persistent storage of vector records, so that the
	// store contents survive a restart.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// SkipVerify controls whether the TLS client verifies the coordinator's
	// certificate chain and host name. This should be used only for testing.
	SkipVerify bool `mapstructure:"skip-verify"`

	// NoTLS connects over plain TCP. This should be used only for testing
	// against a local coordinator.
	NoTLS bool `mapstructure:"no-tls"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:             DefaultDataDir(),
		LogLevel:            DefaultLogLevel,
		CoordinatorAddr:     DefaultCoordinatorAddr,
		ServiceAddr:         DefaultServiceAddr,
		HeartbeatInterval:   DefaultHeartbeatInterval,
		HeartbeatTimeout:    DefaultHeartbeatTimeout,
		AutosaveInterval:    DefaultAutosaveInterval,
		DialTimeout:         DefaultDialTimeout,
		RegistrationTimeout: DefaultRegistrationTimeout,
		WriteTimeout:        DefaultWriteTimeout,
		MinBackoff:          DefaultMinBackoff,
		MaxBackoff:          DefaultMaxBackoff,
		StablePeriod:        DefaultStablePeriod,
		FailureThreshold:    DefaultFailureThreshold,
		ShutdownGrace:       DefaultShutdownGrace,
		Store:               DefaultStore,
		DatabaseDir:         DefaultDatabaseDir(),
		SkipVerify:          DefaultSkipVerify,
		NoTLS:               DefaultNoTLS,
	}

	return config
}

// NewTestConfig returns a config object with default values and a logger
// that writes through testing.T, so component logs only show for failed
// tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level miner directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitly
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// IdentityFile returns the full path of the file containing the persisted
// identity.
func (c *Config) IdentityFile() string {
	return filepath.Join(c.DataDir, DefaultIdentityFile)
}

// ManifestFile returns the full path of the autosave snapshot file.
func (c *Config) ManifestFile() string {
	return filepath.Join(c.DataDir, DefaultManifestFile)
}

// ReferralFile returns the full path of the referral information file.
func (c *Config) ReferralFile() string {
	return filepath.Join(c.DataDir, DefaultReferralFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "dvm-miner".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "dvm-miner")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir returns the default directory name for top-level miner
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".DVMMiner")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "DVMMiner")
		} else {
			return filepath.Join(home, ".dvm-miner")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
