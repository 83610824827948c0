package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewTestConfigLogsThroughTestingT(t *testing.T) {
	conf := NewTestConfig(t)

	entry := conf.Logger()
	assert.Equal(t, logrus.DebugLevel, entry.Logger.Level)

	// The test logger routes output through t.Log, not straight to stderr.
	assert.NotEqual(t, os.Stderr, entry.Logger.Out)
}

func TestSetDataDirUpdatesDefaultDatabaseDir(t *testing.T) {
	conf := NewDefaultConfig()

	conf.SetDataDir("/tmp/miner-data")
	assert.Equal(t, filepath.Join("/tmp/miner-data", DefaultBadgerFile), conf.DatabaseDir)

	// An explicitly chosen database dir is left alone.
	custom := NewDefaultConfig()
	custom.DatabaseDir = "/var/lib/miner-db"
	custom.SetDataDir("/tmp/miner-data")
	assert.Equal(t, "/var/lib/miner-db", custom.DatabaseDir)
}

func TestFilePaths(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/miner-data")

	assert.Equal(t, "/tmp/miner-data/"+DefaultIdentityFile, conf.IdentityFile())
	assert.Equal(t, "/tmp/miner-data/"+DefaultManifestFile, conf.ManifestFile())
	assert.Equal(t, "/tmp/miner-data/"+DefaultReferralFile, conf.ReferralFile())
}
