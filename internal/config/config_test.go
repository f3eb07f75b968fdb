package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("STATE_STORE_DIRECTORY", "/tmp/slimechain")
	t.Setenv("DROP_OWNER", "alice")
	t.Setenv("DROP_MAX_PER_TX", "3")
	t.Setenv("DROP_COST_NATIVE", "5000000")

	cfg, err := LoadEnv()
	require.NoErrorf(t, err, "failed to load config: %v", err)

	require.Equal(t, "/tmp/slimechain", cfg.StateStore.Directory)
	require.Equal(t, "alice", cfg.Drop.Owner)
	require.EqualValues(t, 3, cfg.Drop.MaxPerTx)
	require.Equal(t, "5000000", cfg.Drop.CostNative)

	// Untouched fields keep their defaults
	require.Equal(t, Default().Drop.Name, cfg.Drop.Name)
}

func TestLoadJson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"state_store": {"directory": "data"},
		"drop": {"owner": "bob", "max_supply": 42}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadJson(path)
	require.NoErrorf(t, err, "failed to load config: %v", err)

	require.Equal(t, "data", cfg.StateStore.Directory)
	require.Equal(t, "bob", cfg.Drop.Owner)
	require.EqualValues(t, 42, cfg.Drop.MaxSupply)
	require.Equal(t, Default().Drop.Symbol, cfg.Drop.Symbol)
}

func TestLoadJsonMissingFile(t *testing.T) {
	_, err := LoadJson(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
