package commands

import (
	"github.com/remnetwork/dvm-miner/src/miner"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewStartCmd returns the command that starts a miner node
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Short:   "Start node",
		PreRunE: loadConfig,
		RunE:    startMiner,
	}
	AddStartFlags(cmd)
	return cmd
}

/*******************************************************************************
* START
*******************************************************************************/

func startMiner(cmd *cobra.Command, args []string) error {
	if _config.LogFile != "" {
		_config.Miner.Logger().Logger.Hooks.Add(lfshook.NewHook(
			_config.LogFile,
			&logrus.JSONFormatter{},
		))
	}

	engine := miner.NewMiner(&_config.Miner)

	if err := engine.Init(); err != nil {
		_config.Miner.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	return engine.Run()
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddStartFlags adds flags to the Start command
func AddStartFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Miner.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Miner.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Optional file to mirror logs to, in JSON")

	// Network
	cmd.Flags().StringP("coordinator", "c", _config.Miner.CoordinatorAddr, "Address of the coordinator endpoint")
	cmd.Flags().DurationP("timeout", "t", _config.Miner.DialTimeout, "Connection dial timeout")
	cmd.Flags().Duration("registration-timeout", _config.Miner.RegistrationTimeout, "Registration ack timeout")
	cmd.Flags().Duration("write-timeout", _config.Miner.WriteTimeout, "Outbound message deadline")
	cmd.Flags().Bool("skip-verify", _config.Miner.SkipVerify, "Skip TLS certificate verification (testing only)")
	cmd.Flags().Bool("no-tls", _config.Miner.NoTLS, "Connect over plain TCP (testing only)")

	// Service
	cmd.Flags().Bool("no-service", _config.Miner.NoService, "Do not serve the local HTTP API")
	cmd.Flags().StringP("service-listen", "s", _config.Miner.ServiceAddr, "Listen IP:Port for the local HTTP API")

	// Store
	cmd.Flags().Bool("store", _config.Miner.Store, "Use badgerDB persistent store")
	cmd.Flags().String("db", _config.Miner.DatabaseDir, "Database directory")

	// Session
	cmd.Flags().Duration("heartbeat", _config.Miner.HeartbeatInterval, "Time between heartbeats")
	cmd.Flags().Duration("heartbeat-timeout", _config.Miner.HeartbeatTimeout, "Heartbeat ack timeout")
	cmd.Flags().Duration("autosave", _config.Miner.AutosaveInterval, "Time between durable snapshots")
	cmd.Flags().Duration("min-backoff", _config.Miner.MinBackoff, "Initial reconnection delay")
	cmd.Flags().Duration("max-backoff", _config.Miner.MaxBackoff, "Maximum reconnection delay")
	cmd.Flags().Duration("stable-period", _config.Miner.StablePeriod, "Active time before the backoff resets")
	cmd.Flags().Int("failure-threshold", _config.Miner.FailureThreshold, "Consecutive failures that force a reconnect")
	cmd.Flags().Duration("shutdown-grace", _config.Miner.ShutdownGrace, "Drain bound for in-flight work on shutdown")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Miner.SetDataDir(_config.Miner.DataDir)

	logFields := logrus.Fields{
		"DataDir":             _config.Miner.DataDir,
		"CoordinatorAddr":     _config.Miner.CoordinatorAddr,
		"ServiceAddr":         _config.Miner.ServiceAddr,
		"NoService":           _config.Miner.NoService,
		"LogLevel":            _config.Miner.LogLevel,
		"Store":               _config.Miner.Store,
		"HeartbeatInterval":   _config.Miner.HeartbeatInterval,
		"HeartbeatTimeout":    _config.Miner.HeartbeatTimeout,
		"AutosaveInterval":    _config.Miner.AutosaveInterval,
		"DialTimeout":         _config.Miner.DialTimeout,
		"RegistrationTimeout": _config.Miner.RegistrationTimeout,
		"MinBackoff":          _config.Miner.MinBackoff,
		"MaxBackoff":          _config.Miner.MaxBackoff,
		"StablePeriod":        _config.Miner.StablePeriod,
		"FailureThreshold":    _config.Miner.FailureThreshold,
		"ShutdownGrace":       _config.Miner.ShutdownGrace,
	}

	if _config.Miner.Store {
		logFields["DatabaseDir"] = _config.Miner.DatabaseDir
	}

	_config.Miner.Logger().WithFields(logFields).Debug("START")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/miner.toml (.json, .yaml also work)
	viper.SetConfigName("miner")               // name of config file (without extension)
	viper.AddConfigPath(_config.Miner.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Miner.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Miner.Logger().Debugf("No config file found in: %s", _config.Miner.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
