package keyengine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// usageStore persists the engine's usage_data/next_reset/rate_limited_keys
// document (spec §4.6) to a JSON file, writing through a temp file and
// an atomic rename so a crash mid-write never leaves a half-written
// file on disk.
type usageStore struct {
	path string
}

func newUsageStore(path string) *usageStore {
	return &usageStore{path: path}
}

// usageDocument is the on-disk shape of key_usage.json.
type usageDocument struct {
	UsageData             map[string]map[string]json.RawMessage `json:"usage_data"`
	NextReset             string                                 `json:"next_reset"`
	RateLimitedKeys       []string                               `json:"rate_limited_keys"`
	ModelSpecificDisabled map[string][]string                    `json:"model_specific_disabled"`
}

// persistedState is the structured per-(key,model) form. Older
// deployments stored a bare array of [timestamp, tokens] records in
// this slot instead; loadKeyModelState below detects and migrates that
// shape.
type persistedState struct {
	UsageRecords        []persistedRecord `json:"usage_records"`
	TotalTokens         int64             `json:"total_tokens"`
	DailyTokens         int64             `json:"daily_tokens"`
	IsTemporarilyDisabled bool            `json:"is_temporarily_disabled"`
	DisabledUntil       string            `json:"disabled_until,omitempty"`
	Consecutive429Count int               `json:"consecutive_429_count"`
	Last429Error        string            `json:"last_429_error,omitempty"`
}

type persistedRecord struct {
	Timestamp string `json:"timestamp"`
	Tokens    int    `json:"tokens"`
}

// loadedState is what load() hands back to the engine to populate its
// in-memory maps.
type loadedState struct {
	usage     map[Key]map[Model]*keyModelState
	nextReset time.Time
	rateLimited []Key
}

// load reads the usage file. A missing file yields an empty, zero-value
// loadedState (spec §4.6 "if file missing, initialize empty"). A file
// that fails to parse is quarantined by rename to
// __illegal_<unixts>_<name> and an empty state is returned, never an
// error — corrupt state must not abort startup (spec §7 CorruptState).
func (s *usageStore) load(logger *zerolog.Logger) loadedState {
	empty := loadedState{usage: make(map[Key]map[Model]*keyModelState)}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.Warn().Err(err).Str("path", s.path).Msg("failed to read usage file, starting empty")
		}
		return empty
	}

	var doc usageDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.quarantine(raw, logger, err)
		return empty
	}

	out := loadedState{usage: make(map[Key]map[Model]*keyModelState)}
	for keyStr, models := range doc.UsageData {
		k := Key(keyStr)
		out.usage[k] = make(map[Model]*keyModelState)
		for modelStr, raw := range models {
			out.usage[k][Model(modelStr)] = decodeKeyModelState(raw, logger)
		}
	}
	if doc.NextReset != "" {
		if t, err := time.Parse(time.RFC3339, doc.NextReset); err == nil {
			out.nextReset = t
		}
	}
	for _, k := range doc.RateLimitedKeys {
		out.rateLimited = append(out.rateLimited, Key(k))
	}
	return out
}

// decodeKeyModelState migrates the legacy flat-record-list format (a
// bare JSON array under usage_data[key][model]) into the structured
// form, summing its token entries into total_tokens and defaulting
// everything else, exactly as original_source/key_manager.py's
// migration path does.
func decodeKeyModelState(raw json.RawMessage, logger *zerolog.Logger) *keyModelState {
	trimmed := trimLeadingSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var legacy []persistedRecord
		if err := json.Unmarshal(raw, &legacy); err != nil {
			if logger != nil {
				logger.Warn().Err(err).Msg("failed to migrate legacy usage record list, discarding")
			}
			return &keyModelState{}
		}
		st := &keyModelState{}
		for _, r := range legacy {
			st.totalTokens += int64(r.Tokens)
		}
		if logger != nil {
			logger.Info().Int("records", len(legacy)).Msg("migrated legacy flat-list usage record format")
		}
		return st
	}

	var ps persistedState
	if err := json.Unmarshal(raw, &ps); err != nil {
		if logger != nil {
			logger.Warn().Err(err).Msg("failed to decode usage state, discarding pair")
		}
		return &keyModelState{}
	}
	st := &keyModelState{
		totalTokens:         ps.TotalTokens,
		dailyTokens:         ps.DailyTokens,
		isTemporarilyDisabled: ps.IsTemporarilyDisabled,
		consecutive429Count: ps.Consecutive429Count,
	}
	for _, r := range ps.UsageRecords {
		if t, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			st.records = append(st.records, usageRecord{At: t, Tokens: r.Tokens})
		}
	}
	if ps.DisabledUntil != "" {
		if t, err := time.Parse(time.RFC3339, ps.DisabledUntil); err == nil {
			st.disabledUntil = t
		}
	}
	if ps.Last429Error != "" {
		if t, err := time.Parse(time.RFC3339, ps.Last429Error); err == nil {
			st.last429Error = t
		}
	}
	return st
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

// quarantine renames the corrupt file aside so the next load starts
// clean, matching key_manager.py's __illegal_<unixts>_<name> scheme.
func (s *usageStore) quarantine(raw []byte, logger *zerolog.Logger, cause error) {
	dir := filepath.Dir(s.path)
	name := filepath.Base(s.path)
	dest := filepath.Join(dir, fmt.Sprintf("__illegal_%d_%s", time.Now().Unix(), name))
	if err := os.WriteFile(dest, raw, 0o600); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("failed to quarantine corrupt usage file")
		}
		return
	}
	_ = os.Remove(s.path)
	if logger != nil {
		logger.Warn().Err(cause).Str("quarantined_as", dest).Msg("usage file was corrupt, quarantined and starting empty")
	}
}

// save writes the full document through a temp file and atomic rename.
func (s *usageStore) save(usage map[Key]map[Model]*keyModelState, nextReset time.Time, rateLimited []Key) error {
	doc := struct {
		UsageData             map[string]map[string]persistedState `json:"usage_data"`
		NextReset             string                                `json:"next_reset"`
		RateLimitedKeys       []string                              `json:"rate_limited_keys"`
		ModelSpecificDisabled map[string][]string                   `json:"model_specific_disabled"`
	}{
		UsageData:             make(map[string]map[string]persistedState, len(usage)),
		ModelSpecificDisabled: make(map[string][]string),
	}
	if !nextReset.IsZero() {
		doc.NextReset = nextReset.UTC().Format(time.RFC3339)
	}
	for _, k := range rateLimited {
		doc.RateLimitedKeys = append(doc.RateLimitedKeys, string(k))
	}

	for k, models := range usage {
		ks := string(k)
		doc.UsageData[ks] = make(map[string]persistedState, len(models))
		var disabledModels []string
		for m, st := range models {
			ps := persistedState{
				TotalTokens:           st.totalTokens,
				DailyTokens:           st.dailyTokens,
				IsTemporarilyDisabled: st.isTemporarilyDisabled,
				Consecutive429Count:   st.consecutive429Count,
			}
			for _, r := range st.records {
				ps.UsageRecords = append(ps.UsageRecords, persistedRecord{
					Timestamp: r.At.UTC().Format(time.RFC3339),
					Tokens:    r.Tokens,
				})
			}
			if !st.disabledUntil.IsZero() {
				ps.DisabledUntil = st.disabledUntil.UTC().Format(time.RFC3339)
			}
			if !st.last429Error.IsZero() {
				ps.Last429Error = st.last429Error.UTC().Format(time.RFC3339)
			}
			doc.UsageData[ks][string(m)] = ps
			if st.isTemporarilyDisabled {
				disabledModels = append(disabledModels, string(m))
			}
		}
		if len(disabledModels) > 0 {
			doc.ModelSpecificDisabled[ks] = disabledModels
		}
	}

	return atomicWriteJSON(s.path, doc)
}

// atomicWriteJSON serializes v to <path>.tmp and renames it over path.
// Shared by usageStore and unavailableStore (spec §4.6, §9).
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("keyengine: marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("keyengine: write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("keyengine: rename temp file into %s: %w", path, err)
	}
	return nil
}
