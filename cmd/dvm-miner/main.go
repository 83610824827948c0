package main

import (
	"os"

	_ "net/http/pprof"

	cmd "github.com/remnetwork/dvm-miner/cmd/dvm-miner/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.NewStartCmd(),
		cmd.NewStatusCmd(),
		cmd.VersionCmd)

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
