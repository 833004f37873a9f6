package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default().Parameters.BlockIntervalSeconds, cfg.Parameters.BlockIntervalSeconds)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Parameters, reloaded.Parameters)
}

func TestValidateRejectsZeroBlockInterval(t *testing.T) {
	cfg := Default()
	cfg.Parameters.BlockIntervalSeconds = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroUndoWindow(t *testing.T) {
	cfg := Default()
	cfg.UndoWindowDepth = 0
	require.Error(t, cfg.Validate())
}

func TestToChainParametersRoundTrips(t *testing.T) {
	cfg := Default()
	params := cfg.Parameters.ToChainParameters()
	require.Equal(t, cfg.Parameters.ActiveWitnessCount, params.ActiveWitnessCount)
	require.Equal(t, cfg.Parameters.BulkDiscountBonusMax, params.BulkDiscountBonusMax)
}
