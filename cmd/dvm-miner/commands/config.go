package commands

import (
	"github.com/remnetwork/dvm-miner/src/config"
)

//CLIConfig contains configuration for the Start command
type CLIConfig struct {
	Miner   config.Config `mapstructure:",squash"`
	LogFile string        `mapstructure:"log-file"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Miner: *config.NewDefaultConfig(),
	}
}
