// Package config provides configuration loading, parsing, and validation for quotaproxy.
package config

import (
	"fmt"
	"time"
)

// Validate checks the configuration for errors. It validates all
// required fields, valid values, and cross-field constraints. Returns
// a ValidationError containing all errors found, or nil if valid.
func (c *Config) Validate() error {
	errs := &ValidationError{Errors: nil}

	validateKeys(c, errs)
	validateModels(c, errs)
	validateFallbackStrategy(c, errs)
	validateSchedule(c, errs)
	validateLimits(c, errs)
	validateHealth(c, errs)

	return errs.ToError()
}

// validateKeys validates the priority/secondary key pools.
func validateKeys(cfg *Config, errs *ValidationError) {
	if len(cfg.PriorityKeys)+len(cfg.SecondaryKeys) == 0 {
		errs.Add("at least one of priority_keys or secondary_keys is required")
	}

	seen := make(map[string]bool, len(cfg.PriorityKeys)+len(cfg.SecondaryKeys))
	checkDup := func(field string, keys []string) {
		for idx, k := range keys {
			if k == "" {
				errs.Addf("%s[%d] must not be empty", field, idx)
				continue
			}
			if seen[k] {
				errs.Addf("duplicate key across priority_keys/secondary_keys: %s", k)
			}
			seen[k] = true
		}
	}
	checkDup("priority_keys", cfg.PriorityKeys)
	checkDup("secondary_keys", cfg.SecondaryKeys)
}

// validateModels validates the models map and default/premium model
// references.
func validateModels(cfg *Config, errs *ValidationError) {
	if len(cfg.Models) == 0 {
		errs.Add("at least one entry in models is required")
		return
	}

	for name, mc := range cfg.Models {
		prefix := fmt.Sprintf("models[%s]", name)
		if mc.TPMLimit <= 0 {
			errs.Addf("%s.tpm_limit must be > 0 (got %d)", prefix, mc.TPMLimit)
		}
		if mc.RecoveryThreshold < 0 {
			errs.Addf("%s.recovery_threshold must be >= 0 (got %d)", prefix, mc.RecoveryThreshold)
		}
		if mc.DisableDuration < 0 {
			errs.Addf("%s.disable_duration must be >= 0 (got %d)", prefix, mc.DisableDuration)
		}
	}

	if cfg.DefaultModel != "" {
		if _, ok := cfg.Models[cfg.DefaultModel]; !ok {
			errs.Addf("default_model %q is not present in models", cfg.DefaultModel)
		}
	}
	premium := cfg.GetPremiumModel()
	if _, ok := cfg.Models[premium]; !ok {
		errs.Addf("premium_model %q is not present in models", premium)
	}
}

// validateFallbackStrategy validates that every model named in
// fallback_strategy (as key or value) is itself a known model.
func validateFallbackStrategy(cfg *Config, errs *ValidationError) {
	for model, chain := range cfg.FallbackStrategy {
		if _, ok := cfg.Models[model]; !ok {
			errs.Addf("fallback_strategy key %q is not present in models", model)
		}
		for idx, m := range chain {
			if _, ok := cfg.Models[m]; !ok {
				errs.Addf("fallback_strategy[%s][%d] %q is not present in models", model, idx, m)
			}
		}
	}
}

// validateSchedule validates the reset schedule and timezone.
func validateSchedule(cfg *Config, errs *ValidationError) {
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			errs.Addf("timezone %q is invalid: %v", cfg.Timezone, err)
		}
	}
	if cfg.QuotaResetDatetime != "" {
		if _, err := time.Parse("2006-01-02 15:04", cfg.QuotaResetDatetime); err != nil {
			errs.Addf("quota_reset_datetime %q must be in YYYY-MM-DD HH:MM format: %v", cfg.QuotaResetDatetime, err)
		}
	}
}

// validateLimits validates the remaining non-negative numeric fields.
func validateLimits(cfg *Config, errs *ValidationError) {
	if cfg.UsageRecordRetentionSeconds < 0 {
		errs.Add("usage_record_retention_seconds must be >= 0")
	}
	if cfg.DailyQuotaLimit < 0 {
		errs.Add("daily_quota_limit must be >= 0")
	}
	if cfg.MaxConsecutive429 < 0 {
		errs.Add("max_consecutive_429 must be >= 0")
	}

	if !validLogLevels[cfg.Logging.Level] {
		errs.Addf("logging.level is invalid (got %q, valid: debug, info, warn, error)", cfg.Logging.Level)
	}
	if !validLogFormats[cfg.Logging.Format] {
		errs.Addf("logging.format is invalid (got %q, valid: json, console)", cfg.Logging.Format)
	}
}

// validateHealth validates the circuit breaker and health check tuning
// knobs, which like the other numeric limits above must be non-negative
// (zero means "use the internal/health default").
func validateHealth(cfg *Config, errs *ValidationError) {
	cb := cfg.Health.CircuitBreaker
	if cb.FailureThreshold < 0 {
		errs.Add("health.circuit_breaker.failure_threshold must be >= 0")
	}
	if cb.OpenDurationMS < 0 {
		errs.Add("health.circuit_breaker.open_duration_ms must be >= 0")
	}
	if cb.HalfOpenProbes < 0 {
		errs.Add("health.circuit_breaker.half_open_probes must be >= 0")
	}
	if cfg.Health.HealthCheck.IntervalMS < 0 {
		errs.Add("health.health_check.interval_ms must be >= 0")
	}
}

var validLogLevels = map[string]bool{
	"":          true,
	LevelDebug:  true,
	LevelInfo:   true,
	LevelWarn:   true,
	LevelError:  true,
}

var validLogFormats = map[string]bool{
	"":        true,
	"json":    true,
	"console": true,
}
