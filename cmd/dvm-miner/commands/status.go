package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/remnetwork/dvm-miner/src/identity"
	"github.com/remnetwork/dvm-miner/src/store"
	"github.com/spf13/cobra"
)

//NewStatusCmd returns the command that inspects the persisted node state
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show persisted identity and store summary",
		RunE:  status,
	}
	AddStatusFlags(cmd)
	return cmd
}

//AddStatusFlags adds flags to the Status command
func AddStatusFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.Miner.DataDir, "Top-level directory for configuration and data")
}

// statusReport is the JSON document printed by the status command.
type statusReport struct {
	Identity *identity.NodeIdentity `json:"identity"`
	Manifest *store.Manifest        `json:"manifest,omitempty"`
}

// status reads the persisted identity and the last autosave snapshot without
// opening a coordinator session. It fails when no identity has been persisted
// yet, or when the identity file is corrupt.
func status(cmd *cobra.Command, args []string) error {
	if datadir, err := cmd.Flags().GetString("datadir"); err == nil && datadir != "" {
		_config.Miner.SetDataDir(datadir)
	}

	buf, err := os.ReadFile(_config.Miner.IdentityFile())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no identity found in %s; run 'dvm-miner start' first", _config.Miner.DataDir)
		}
		return err
	}

	id := new(identity.NodeIdentity)
	if err := json.Unmarshal(buf, id); err != nil {
		return fmt.Errorf("corrupt identity file %s: %v", _config.Miner.IdentityFile(), err)
	}

	report := statusReport{Identity: id}

	// The manifest is optional; a node that never completed an autosave has
	// none.
	if m, err := store.ReadManifest(_config.Miner.ManifestFile()); err == nil {
		report.Manifest = m
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))

	return nil
}
