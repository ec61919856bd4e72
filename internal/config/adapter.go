package config

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/arjunv/quotaproxy/internal/keyengine"
)

// EngineOptions carries the bits of EngineConfig that don't come from
// the document itself: where the engine's state files live and which
// logger to use.
type EngineOptions struct {
	UsageFilePath       string
	UnavailableFilePath string
	Logger              *zerolog.Logger
	ConfigPath          string
}

// ToEngineConfig builds a keyengine.EngineConfig from a loaded, already
// validated Config. opts.ConfigPath, when set, wires a Rewriter so
// permanent bans rewrite the on-disk document (spec §4.4/§9).
func (c *Config) ToEngineConfig(opts EngineOptions) (keyengine.EngineConfig, error) {
	loc, err := c.ResolveTimezone()
	if err != nil {
		return keyengine.EngineConfig{}, err
	}
	base, err := c.ParseQuotaResetBaseDate()
	if err != nil {
		return keyengine.EngineConfig{}, err
	}

	models := make([]keyengine.Model, 0, len(c.Models))
	modelConfigs := make(map[keyengine.Model]keyengine.ModelConfig, len(c.Models))
	for name, mc := range c.Models {
		m := keyengine.Model(name)
		models = append(models, m)
		modelConfigs[m] = keyengine.ModelConfig{
			TPMLimit:          mc.TPMLimit,
			RecoveryThreshold: mc.RecoveryThreshold,
			DisableDuration:   mc.GetDisableDuration(),
		}
	}

	var fallback map[keyengine.Model][]keyengine.Model
	if len(c.FallbackStrategy) > 0 {
		fallback = make(map[keyengine.Model][]keyengine.Model, len(c.FallbackStrategy))
		for model, chain := range c.FallbackStrategy {
			converted := make([]keyengine.Model, len(chain))
			for i, m := range chain {
				converted[i] = keyengine.Model(m)
			}
			fallback[keyengine.Model(model)] = converted
		}
	}

	var rewriter keyengine.ConfigRewriter
	if opts.ConfigPath != "" {
		rw, err := NewRewriter(opts.ConfigPath)
		if err != nil {
			return keyengine.EngineConfig{}, fmt.Errorf("config: build rewriter: %w", err)
		}
		rewriter = rw
	}

	return keyengine.EngineConfig{
		PriorityKeys:        toKeys(c.PriorityKeys),
		SecondaryKeys:       toKeys(c.SecondaryKeys),
		Models:              models,
		ModelConfigs:        modelConfigs,
		PremiumModel:        keyengine.Model(c.GetPremiumModel()),
		DefaultModel:        keyengine.Model(c.GetDefaultModel()),
		FallbackStrategy:    fallback,
		MaxConsecutive429:   c.MaxConsecutive429,
		RetentionSeconds:    c.UsageRecordRetentionSeconds,
		DailyQuotaLimit:     int64(c.DailyQuotaLimit),
		Timezone:            loc,
		QuotaResetBaseDate:  base,
		UsageFilePath:       opts.UsageFilePath,
		UnavailableFilePath: opts.UnavailableFilePath,
		ConfigRewriter:      rewriter,
		Logger:              opts.Logger,
	}, nil
}

// KeyPools returns the priority/secondary key pools as keyengine.Key
// slices, the form Engine.ReloadKeyPools expects after a config
// hot-reload.
func (c *Config) KeyPools() (priority, secondary []keyengine.Key) {
	return toKeys(c.PriorityKeys), toKeys(c.SecondaryKeys)
}

func toKeys(ss []string) []keyengine.Key {
	if len(ss) == 0 {
		return nil
	}
	out := make([]keyengine.Key, len(ss))
	for i, s := range ss {
		out[i] = keyengine.Key(s)
	}
	return out
}

// DefaultStatePaths derives the usage/unavailable state file paths from
// the directory containing the config file, matching the original
// implementation's convention of keeping key_usage.json and
// unavailable.json alongside config.json.
func DefaultStatePaths(configPath string) (usagePath, unavailablePath string) {
	dir := filepath.Dir(configPath)
	return filepath.Join(dir, "key_usage.json"), filepath.Join(dir, "unavailable.json")
}
