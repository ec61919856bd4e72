package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arjunv/quotaproxy/internal/config"
	"github.com/arjunv/quotaproxy/internal/keyengine"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show per-key, per-model usage and availability",
	Long: `Load the engine's persisted usage state and print a table of
current token usage, availability, and cooldowns for every configured
key and model.`,
	RunE: runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, _ []string) error {
	configPath := resolveConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	usagePath, unavailablePath := config.DefaultStatePaths(configPath)
	engineCfg, err := cfg.ToEngineConfig(config.EngineOptions{
		UsageFilePath:       usagePath,
		UnavailableFilePath: unavailablePath,
	})
	if err != nil {
		return err
	}

	engine, err := keyengine.NewEngine(engineCfg)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	printKeyStatus(cmd, engine.Status())
	return nil
}

func printKeyStatus(cmd *cobra.Command, status keyengine.Status) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "current key: %s\n", status.CurrentKey)
	fmt.Fprintf(out, "models: %v\n\n", status.ModelOrder)

	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tMODEL\tTOTAL\tLAST MINUTE\tAVAILABLE\tDISABLED UNTIL")
	for _, key := range sortedKeysByQuota(status) {
		models := status.KeyUsage[key]
		modelNames := make([]keyengine.Model, 0, len(models))
		for model := range models {
			modelNames = append(modelNames, model)
		}
		sort.Slice(modelNames, func(i, j int) bool { return modelNames[i] < modelNames[j] })

		for _, model := range modelNames {
			st := models[model]
			disabledUntil := "-"
			if st.IsTemporarilyDisabled {
				disabledUntil = st.DisabledUntil.Format("15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\t%s\n",
				key, model, st.TotalTokens, st.TokensLastMinute, st.IsAvailable, disabledUntil)
		}
	}
	_ = w.Flush()

	if len(status.UnavailableKeys) > 0 {
		fmt.Fprintf(out, "\nunavailable keys: %v\n", status.UnavailableKeys)
	}
	if len(status.RateLimitedKeys) > 0 {
		fmt.Fprintf(out, "rate-limited keys: %v\n", status.RateLimitedKeys)
	}
}

// sortedKeysByQuota orders keys with quota remaining before keys whose
// daily quota is exceeded, ties broken lexically, mirroring the
// original implementation's status-page sort key of (is_exceeded, key).
func sortedKeysByQuota(status keyengine.Status) []keyengine.Key {
	keys := make([]keyengine.Key, 0, len(status.KeyUsage))
	for k := range status.KeyUsage {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ei, ej := status.DailyQuotaExceeded[keys[i]], status.DailyQuotaExceeded[keys[j]]
		if ei != ej {
			return !ei
		}
		return keys[i] < keys[j]
	})
	return keys
}
