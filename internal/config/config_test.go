package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestModelConfigGetDisableDuration(t *testing.T) {
	t.Parallel()

	require.Equal(t, 5*time.Minute, ModelConfig{}.GetDisableDuration())
	require.Equal(t, 10*time.Second, ModelConfig{DisableDuration: 10}.GetDisableDuration())
}

func TestConfigGetPremiumModel(t *testing.T) {
	t.Parallel()

	var c Config
	require.Equal(t, "gemini-2.5-pro", c.GetPremiumModel())

	c.PremiumModel = "gemini-2.5-flash"
	require.Equal(t, "gemini-2.5-flash", c.GetPremiumModel())
}

func TestConfigGetDefaultModel(t *testing.T) {
	t.Parallel()

	var c Config
	require.Equal(t, "gemini-2.5-pro", c.GetDefaultModel(), "falls back to premium model when unset")

	c.DefaultModel = "gemini-2.5-flash"
	require.Equal(t, "gemini-2.5-flash", c.GetDefaultModel())
}

func TestConfigGetRetentionOption(t *testing.T) {
	t.Parallel()

	var c Config
	require.False(t, c.GetRetentionOption().IsPresent())

	c.UsageRecordRetentionSeconds = 60
	opt := c.GetRetentionOption()
	require.True(t, opt.IsPresent())
	require.Equal(t, time.Minute, opt.MustGet())
}

func TestConfigParseQuotaResetBaseDate(t *testing.T) {
	t.Parallel()

	var c Config
	base, err := c.ParseQuotaResetBaseDate()
	require.NoError(t, err)
	require.True(t, base.IsZero())

	c.QuotaResetDatetime = "2024-03-01 01:00"
	base, err = c.ParseQuotaResetBaseDate()
	require.NoError(t, err)
	require.Equal(t, 2024, base.Year())
	require.Equal(t, time.March, base.Month())
	require.Equal(t, 1, base.Day())

	c.QuotaResetDatetime = "not-a-date"
	_, err = c.ParseQuotaResetBaseDate()
	require.Error(t, err)
}

func TestConfigResolveTimezone(t *testing.T) {
	t.Parallel()

	var c Config
	loc, err := c.ResolveTimezone()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)

	c.Timezone = "America/Los_Angeles"
	loc, err = c.ResolveTimezone()
	require.NoError(t, err)
	require.Equal(t, "America/Los_Angeles", loc.String())

	c.Timezone = "Not/A_Zone"
	_, err = c.ResolveTimezone()
	require.Error(t, err)
}
