package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUniverse(t *testing.T) {
	u, err := ParseUniverse("LIVE")
	require.NoError(t, err)
	assert.Equal(t, Live, u)

	_, err = ParseUniverse("nonsense")
	assert.Error(t, err)
}

func TestUniverseProperties(t *testing.T) {
	assert.True(t, Live.IsRealCapital())
	assert.False(t, Paper.IsRealCapital())
	assert.False(t, Simulation.IsRealCapital())

	assert.True(t, Simulation.AllowsMarketHoursOverride())
	assert.False(t, Live.AllowsMarketHoursOverride())

	assert.Equal(t, "LIVE_VERIFIED", Live.DefaultValidityClass())
	assert.Equal(t, "PAPER_ONLY", Paper.DefaultValidityClass())
	assert.Equal(t, "SIM_VALID_FOR_TRAINING", Simulation.DefaultValidityClass())
}

func TestNewContextGeneratesSessionID(t *testing.T) {
	ctx, err := NewContext(Simulation, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, ctx.SessionID())
	assert.Equal(t, Simulation, ctx.Universe())
	assert.Equal(t, "SIM_VALID_FOR_TRAINING", ctx.ValidityClass())
}

func TestNewContextRejectsInvalidUniverse(t *testing.T) {
	_, err := NewContext(Universe("bogus"), "s", "")
	assert.Error(t, err)
}

func TestPathHelpers(t *testing.T) {
	ctx, err := NewContext(Live, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "data/live/config.json", ctx.DataPath("config.json"))
	assert.Equal(t, "logs/live/trades.jsonl", ctx.LogPath("trades.jsonl"))
	assert.Equal(t, "data/shared/sector_map.json", SharedDataPath("sector_map.json"))
}

func TestValidateUniverseTransitionRejectsSameUniverse(t *testing.T) {
	_, err := ValidateUniverseTransition(Live, Live, "noop")
	assert.Error(t, err)
}

func TestValidateUniverseTransitionProducesAudit(t *testing.T) {
	tr, err := ValidateUniverseTransition(Paper, Live, "operator_promote")
	require.NoError(t, err)
	assert.Equal(t, Paper, tr.FromUniverse)
	assert.Equal(t, Live, tr.ToUniverse)
	assert.NotEmpty(t, tr.TransitionID)
}
