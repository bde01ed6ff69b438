package pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/auction-house/internal/initializer"
	"github.com/leafsii/auction-house/internal/ledger"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "init.json")

	_, err := ReadConfig(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	want := InitConfig{
		GenesisPath: "genesis.json",
		Params:      initializer.DefaultParams(),
		Result:      initializer.Result{Marketplace: ledger.Pubkey{7, 1, 9}},
	}
	require.NoError(t, WriteConfig(path, want))
	got, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, want.GenesisPath, got.GenesisPath)
	assert.Equal(t, want.Params, got.Params)
	assert.Equal(t, want.Result.Marketplace, got.Result.Marketplace)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	empty, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, empty.GenesisPath)
}
