package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ve-ledger/ledger"
	"ve-ledger/repository"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(body), 0o600))
	return file
}

func TestLoad_File(t *testing.T) {
	file := writeFile(t, `
server:
  port: 9001
leveldb:
  path: /tmp/ledger
ledger:
  page_capacity: 4
  max_boundaries_per_maintain: 10
`)
	c, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, 9001, c.Port)
	require.Equal(t, "/tmp/ledger", c.LevelDB)
	require.Equal(t, uint64(4), c.Storage.PageCapacity)
	require.Equal(t, 10, c.Ledger.MaxBoundariesPerMaintain)

	// unset keys keep their defaults
	require.Equal(t, "info", c.LogLevel)
	require.Equal(t, ledger.DefaultParams().MinLockAmount, c.Ledger.MinLockAmount)
	require.Equal(t, repository.DefaultParams().BondBase, c.Storage.BondBase)
}

func TestLoad_EnvOverride(t *testing.T) {
	file := writeFile(t, "server:\n  port: 9001\n")
	t.Setenv("VELEDGER_SERVER_PORT", "9100")
	t.Setenv("VELEDGER_LEDGER_MIN_LOCK_AMOUNT", "5")

	c, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, 9100, c.Port)
	require.Equal(t, uint64(5), c.Ledger.MinLockAmount)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	file := writeFile(t, "ledger:\n  page_capacity: 0\n")
	_, err := Load(file)
	require.Error(t, err)
}
