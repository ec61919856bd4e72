// Package config provides configuration loading, validation, and
// hot-reload for quotaproxy.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/arjunv/quotaproxy/internal/health"
)

// RuntimeConfig defines the interface for accessing runtime
// configuration that supports hot-reload. Components that need to
// observe config changes should use this interface instead of holding
// a direct *Config pointer, which would go stale after a reload.
type RuntimeConfig interface {
	Get() *Config
}

// defaultPremiumModel is used when Config.PremiumModel is unset,
// matching the hardcoded "gemini-2.5-pro" literal throughout the
// original implementation this spec was distilled from.
const defaultPremiumModel = "gemini-2.5-pro"

// Log level constants, matching zerolog's own level names.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// ModelConfig is the immutable per-model parameters of spec §3: a
// tokens-per-minute soft cap, the usage level below which the model is
// considered "cool" after a 429, and the default cooldown duration.
type ModelConfig struct {
	TPMLimit          int `json:"tpm_limit" yaml:"tpm_limit" toml:"tpm_limit"`
	RecoveryThreshold int `json:"recovery_threshold" yaml:"recovery_threshold" toml:"recovery_threshold"`
	DisableDuration   int `json:"disable_duration" yaml:"disable_duration" toml:"disable_duration"`
}

// GetDisableDuration returns DisableDuration as a time.Duration,
// defaulting to 5 minutes when unset or non-positive, matching
// key_manager.py's disable_duration default of 300 seconds.
func (m ModelConfig) GetDisableDuration() time.Duration {
	if m.DisableDuration <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(m.DisableDuration) * time.Second
}

// Config is the schema consumed by the core engine, as specified in
// spec §6. It round-trips through JSON (the primary format, matching
// the original implementation's config.json), and also accepts YAML
// and TOML via Load.
type Config struct {
	PriorityKeys  []string `json:"priority_keys"  yaml:"priority_keys"  toml:"priority_keys"`
	SecondaryKeys []string `json:"secondary_keys" yaml:"secondary_keys" toml:"secondary_keys"`

	Models          map[string]ModelConfig   `json:"models"            yaml:"models"            toml:"models"`
	FallbackStrategy map[string][]string     `json:"fallback_strategy" yaml:"fallback_strategy" toml:"fallback_strategy"`
	DefaultModel    string                   `json:"default_model"     yaml:"default_model"     toml:"default_model"`
	PremiumModel    string                   `json:"premium_model,omitempty" yaml:"premium_model,omitempty" toml:"premium_model,omitempty"`

	QuotaResetDatetime string `json:"quota_reset_datetime" yaml:"quota_reset_datetime" toml:"quota_reset_datetime"`
	Timezone           string `json:"timezone"             yaml:"timezone"             toml:"timezone"`

	UsageRecordRetentionSeconds int `json:"usage_record_retention_seconds" yaml:"usage_record_retention_seconds" toml:"usage_record_retention_seconds"`
	DailyQuotaLimit             int `json:"daily_quota_limit"               yaml:"daily_quota_limit"               toml:"daily_quota_limit"`

	// MaxConsecutive429 is read and exposed for operator tuning but is
	// not consulted by the engine's On429 branch, which hard-codes the
	// gate at 2 to match the shipped behavior of the original
	// implementation (spec §9 open question).
	MaxConsecutive429 int `json:"max_consecutive_429,omitempty" yaml:"max_consecutive_429,omitempty" toml:"max_consecutive_429,omitempty"`

	Server  ServerConfig  `json:"server,omitempty"  yaml:"server,omitempty"  toml:"server,omitempty"`
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty" toml:"logging,omitempty"`
	Cache   CacheConfig   `json:"cache,omitempty"   yaml:"cache,omitempty"   toml:"cache,omitempty"`
	Health  health.Config `json:"health,omitempty"  yaml:"health,omitempty"  toml:"health,omitempty"`
}

// ServerConfig configures the transport layer's HTTP listener.
type ServerConfig struct {
	ListenAddr      string `json:"listen_addr,omitempty"      yaml:"listen_addr,omitempty"      toml:"listen_addr,omitempty"`
	UpstreamBaseURL string `json:"upstream_base_url,omitempty" yaml:"upstream_base_url,omitempty" toml:"upstream_base_url,omitempty"`
	MaxRetries      int    `json:"max_retries,omitempty"      yaml:"max_retries,omitempty"      toml:"max_retries,omitempty"`
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty" toml:"request_timeout_seconds,omitempty"`

	// IngressRPM/IngressTPM cap the rate of inbound client requests and
	// tokens, independent of per-key upstream quota. Zero or negative
	// disables the corresponding cap (see ratelimit.NewTokenBucketLimiter).
	IngressRPM int `json:"ingress_rpm,omitempty" yaml:"ingress_rpm,omitempty" toml:"ingress_rpm,omitempty"`
	IngressTPM int `json:"ingress_tpm,omitempty" yaml:"ingress_tpm,omitempty" toml:"ingress_tpm,omitempty"`
}

// GetListenAddr returns the configured listen address, defaulting to
// ":48888" to match the original Flask app's port.
func (s ServerConfig) GetListenAddr() string {
	if s.ListenAddr == "" {
		return ":48888"
	}
	return s.ListenAddr
}

// GetUpstreamBaseURL returns the configured upstream base URL,
// defaulting to the Generative Language API.
func (s ServerConfig) GetUpstreamBaseURL() string {
	if s.UpstreamBaseURL == "" {
		return "https://generativelanguage.googleapis.com"
	}
	return s.UpstreamBaseURL
}

// GetMaxRetries returns MaxRetries, defaulting to 5 (spec §7).
func (s ServerConfig) GetMaxRetries() int {
	if s.MaxRetries <= 0 {
		return 5
	}
	return s.MaxRetries
}

// GetRequestTimeout returns the upstream request timeout, defaulting
// to 120s to match the original implementation.
func (s ServerConfig) GetRequestTimeout() time.Duration {
	if s.RequestTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"  yaml:"level,omitempty"  toml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
	// Output is "stdout", "stderr", or a file path; empty means stdout.
	Output string `json:"output,omitempty" yaml:"output,omitempty" toml:"output,omitempty"`
	// Pretty forces colored console formatting regardless of Format.
	Pretty bool `json:"pretty,omitempty" yaml:"pretty,omitempty" toml:"pretty,omitempty"`
}

// GetLevelOption returns the configured level, or None if unset.
func (l LoggingConfig) GetLevelOption() mo.Option[string] {
	if l.Level == "" {
		return mo.None[string]()
	}
	return mo.Some(l.Level)
}

// ParseLevel converts the configured level string to a zerolog.Level,
// defaulting to InfoLevel when unset or unrecognized.
func (l LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// CacheConfig configures the response-fingerprint lookaside cache.
type CacheConfig struct {
	Enabled     bool  `json:"enabled,omitempty"       yaml:"enabled,omitempty"       toml:"enabled,omitempty"`
	MaxEntries  int64 `json:"max_entries,omitempty"   yaml:"max_entries,omitempty"   toml:"max_entries,omitempty"`
	MaxCostBytes int64 `json:"max_cost_bytes,omitempty" yaml:"max_cost_bytes,omitempty" toml:"max_cost_bytes,omitempty"`
}

// GetPremiumModel returns PremiumModel, defaulting to
// defaultPremiumModel when unset.
func (c *Config) GetPremiumModel() string {
	if c.PremiumModel == "" {
		return defaultPremiumModel
	}
	return c.PremiumModel
}

// GetDefaultModel returns DefaultModel, falling back to the premium
// model when unset (spec §4.3: "Else, if requested_model is the
// premium model...").
func (c *Config) GetDefaultModel() string {
	if c.DefaultModel == "" {
		return c.GetPremiumModel()
	}
	return c.DefaultModel
}

// GetRetentionOption returns the configured retention as a
// time.Duration option, or None if unset (the engine then applies its
// own 24h default).
func (c *Config) GetRetentionOption() mo.Option[time.Duration] {
	if c.UsageRecordRetentionSeconds <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(c.UsageRecordRetentionSeconds) * time.Second)
}

// ParseQuotaResetBaseDate parses QuotaResetDatetime ("YYYY-MM-DD
// HH:MM"); only the calendar date is used by the reset scheduler — the
// time-of-day is intentionally ignored (spec §4.5).
func (c *Config) ParseQuotaResetBaseDate() (time.Time, error) {
	if c.QuotaResetDatetime == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02 15:04", c.QuotaResetDatetime)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: parse quota_reset_datetime: %w", err)
	}
	return t, nil
}

// ResolveTimezone loads the IANA location named by Timezone, defaulting
// to UTC when unset.
func (c *Config) ResolveTimezone() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
