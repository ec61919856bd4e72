package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		PriorityKeys: []string{"AIza-one"},
		Models: map[string]ModelConfig{
			"gemini-2.5-pro":   {TPMLimit: 100000, RecoveryThreshold: 10000, DisableDuration: 300},
			"gemini-2.5-flash": {TPMLimit: 200000, RecoveryThreshold: 20000, DisableDuration: 300},
		},
		FallbackStrategy: map[string][]string{
			"gemini-2.5-pro": {"gemini-2.5-pro", "gemini-2.5-flash"},
		},
		DefaultModel:                "gemini-2.5-pro",
		Timezone:                    "America/Los_Angeles",
		UsageRecordRetentionSeconds: 86400,
		DailyQuotaLimit:             2000000,
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	t.Parallel()
	require.NoError(t, validConfig().Validate())
}

func TestValidateRequiresAtLeastOneKey(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.PriorityKeys = nil
	require.Error(t, c.Validate())
}

func TestValidateRejectsEmptyKeyString(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.PriorityKeys = []string{""}
	require.Error(t, c.Validate())
}

func TestValidateRejectsDuplicateKeyAcrossTiers(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.SecondaryKeys = []string{"AIza-one"}
	require.Error(t, c.Validate())
}

func TestValidateRequiresAtLeastOneModel(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.Models = nil
	require.Error(t, c.Validate())
}

func TestValidateRejectsNonPositiveTPMLimit(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.Models["gemini-2.5-pro"] = ModelConfig{TPMLimit: 0}
	require.Error(t, c.Validate())
}

func TestValidateRejectsUnknownDefaultModel(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.DefaultModel = "not-a-model"
	require.Error(t, c.Validate())
}

func TestValidateRejectsUnknownPremiumModel(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.PremiumModel = "not-a-model"
	require.Error(t, c.Validate())
}

func TestValidateRejectsUnknownModelInFallbackStrategy(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.FallbackStrategy["gemini-2.5-pro"] = []string{"not-a-model"}
	require.Error(t, c.Validate())
}

func TestValidateRejectsInvalidTimezone(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.Timezone = "Not/A_Zone"
	require.Error(t, c.Validate())
}

func TestValidateRejectsMalformedQuotaResetDatetime(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.QuotaResetDatetime = "garbage"
	require.Error(t, c.Validate())
}

func TestValidateRejectsNegativeLimits(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.UsageRecordRetentionSeconds = -1
	require.Error(t, c.Validate())

	c = validConfig()
	c.DailyQuotaLimit = -1
	require.Error(t, c.Validate())

	c = validConfig()
	c.MaxConsecutive429 = -1
	require.Error(t, c.Validate())
}

func TestValidateRejectsNegativeHealthTuning(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Health.CircuitBreaker.FailureThreshold = -1
	require.Error(t, c.Validate())

	c = validConfig()
	c.Health.CircuitBreaker.OpenDurationMS = -1
	require.Error(t, c.Validate())

	c = validConfig()
	c.Health.CircuitBreaker.HalfOpenProbes = -1
	require.Error(t, c.Validate())

	c = validConfig()
	c.Health.HealthCheck.IntervalMS = -1
	require.Error(t, c.Validate())
}

func TestValidateRejectsInvalidLogLevel(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.Logging.Level = "verbose"
	require.Error(t, c.Validate())
}

func TestValidateRejectsInvalidLogFormat(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.Logging.Format = "xml"
	require.Error(t, c.Validate())
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.PriorityKeys = nil
	c.Models = nil

	err := c.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.GreaterOrEqual(t, len(verr.Errors), 2)
}
