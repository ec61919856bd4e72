package keyengine

import (
	"time"

	"github.com/samber/lo"
)

// statusLocked assembles the get_status() payload of spec §6.
func (e *Engine) statusLocked(now time.Time) Status {
	s := Status{
		KeyUsage:           make(map[Key]map[Model]KeyModelStatus),
		DailyQuotaExceeded: make(map[Key]bool),
		ModelOrder:         append([]Model(nil), e.models...),
		RateLimitedKeys:    e.rateLimited.list(),
	}

	if len(e.allKeys) > 0 {
		s.CurrentKey = e.allKeys[e.cursor%len(e.allKeys)]
	}

	s.PriorityKeys = lo.Filter(e.allKeys, func(k Key, _ int) bool {
		return e.tierOf[k] == TierPriority
	})
	s.SecondaryKeys = lo.Filter(e.allKeys, func(k Key, _ int) bool {
		return e.tierOf[k] == TierSecondary
	})

	for _, k := range e.unavailableKeysList() {
		s.UnavailableKeys = append(s.UnavailableKeys, k)
	}

	// Report the full allKeys x models matrix, not just pairs a request
	// has already touched, so a freshly-added key or a model nobody has
	// picked yet still shows up with its zeroed defaults.
	for _, key := range e.allKeys {
		perModel := make(map[Model]KeyModelStatus, len(e.models))
		var keyDailyTotal int64
		for _, model := range e.models {
			st := e.stateFor(key, model)
			perModel[model] = KeyModelStatus{
				TokensLastMinute:      tokensLastMinute(st, now),
				TotalTokens:           st.totalTokens,
				DailyTokens:           st.dailyTokens,
				IsAvailable:           e.isAvailableLocked(key, model, now),
				RecoveryThreshold:     e.modelConfig(model).RecoveryThreshold,
				IsTemporarilyDisabled: st.isTemporarilyDisabled,
				DisabledUntil:         st.disabledUntil,
				Consecutive429Count:   st.consecutive429Count,
			}
			keyDailyTotal += st.dailyTokens
			s.GrandTotalTokens += st.totalTokens
		}
		s.KeyUsage[key] = perModel
		if e.dailyQuotaLimit > 0 {
			s.DailyQuotaExceeded[key] = keyDailyTotal > e.dailyQuotaLimit
		}
	}

	return s
}

func (e *Engine) unavailableKeysList() []Key {
	out := make([]Key, 0, len(e.unavailableKeys))
	for k := range e.unavailableKeys {
		out = append(out, k)
	}
	return out
}
