package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarel/market-watch/internal/universe"
)

func TestParseStrictBoolAcceptsKnownForms(t *testing.T) {
	for _, s := range []string{"true", "YES", "On", "1"} {
		b, err := ParseStrictBool(s)
		require.NoError(t, err)
		assert.True(t, b)
	}
	for _, s := range []string{"false", "NO", "Off", "0"} {
		b, err := ParseStrictBool(s)
		require.NoError(t, err)
		assert.False(t, b)
	}
}

func TestParseStrictBoolRejectsUnknownStrings(t *testing.T) {
	_, err := ParseStrictBool("truthy")
	assert.Error(t, err)

	_, err = ParseStrictBool("")
	assert.Error(t, err)
}

func TestSetAutoTradeAppliesStrictParse(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	require.NoError(t, cfg.SetAutoTrade("off"))
	assert.False(t, cfg.AutoTrade)

	err := cfg.SetAutoTrade("nope")
	assert.Error(t, err)
}

func TestLoadRuntimeConfigDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadRuntimeConfig(universe.Simulation)
	require.NoError(t, err)
	assert.Equal(t, "momentum", cfg.Strategy)
	assert.Equal(t, DefaultRuntimeConfig().Watchlist, cfg.Watchlist)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg := DefaultRuntimeConfig()
	cfg.MaxDailyTrades = 42
	require.NoError(t, cfg.Save(universe.Paper))

	loaded, err := LoadRuntimeConfig(universe.Paper)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.MaxDailyTrades)
}
