package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for the miner
var RootCmd = &cobra.Command{
	Use:              "dvm-miner",
	Short:            "dvm-miner vector memory node",
	TraverseChildren: true,
}
