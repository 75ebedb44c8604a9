package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriodCutoffAllAndEmpty(t *testing.T) {
	cutoff, err := ParsePeriodCutoff("")
	require.NoError(t, err)
	assert.Nil(t, cutoff)

	cutoff, err = ParsePeriodCutoff("all")
	require.NoError(t, err)
	assert.Nil(t, cutoff)
}

func TestParsePeriodCutoffYTD(t *testing.T) {
	cutoff, err := ParsePeriodCutoff("ytd")
	require.NoError(t, err)
	require.NotNil(t, cutoff)
	assert.Equal(t, time.January, cutoff.Month())
	assert.Equal(t, 1, cutoff.Day())
}

func TestParsePeriodCutoffRelativeUnits(t *testing.T) {
	now := time.Now().UTC()

	cutoff, err := ParsePeriodCutoff("7d")
	require.NoError(t, err)
	assert.WithinDuration(t, now.AddDate(0, 0, -7), *cutoff, time.Minute)

	cutoff, err = ParsePeriodCutoff("2w")
	require.NoError(t, err)
	assert.WithinDuration(t, now.AddDate(0, 0, -14), *cutoff, time.Minute)

	cutoff, err = ParsePeriodCutoff("1m")
	require.NoError(t, err)
	assert.WithinDuration(t, now.AddDate(0, 0, -30), *cutoff, time.Minute)
}

func TestParsePeriodCutoffInvalid(t *testing.T) {
	_, err := ParsePeriodCutoff("banana")
	assert.Error(t, err)

	_, err = ParsePeriodCutoff("5x")
	assert.Error(t, err)
}
