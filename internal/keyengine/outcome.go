package keyengine

import "time"

// onSuccessLocked implements spec §4.4 on_success: record the token
// usage, reset consecutive429Count (the only place it is reset other
// than cooldown expiry, per I2), and clear 403 suspicion.
func (e *Engine) onSuccessLocked(key Key, model Model, tokens int, now time.Time) error {
	st := e.stateFor(key, model)
	recordUsage(st, now, tokens, e.retention)
	if st.consecutive429Count > 0 {
		st.consecutive429Count = 0
	}
	if _, suspected := e.potentialUnavailable[key]; suspected {
		delete(e.potentialUnavailable, key)
	}

	e.log().Debug().
		Str("model", string(model)).
		Int("tokens", tokens).
		Msg("recorded successful request")

	return e.persistUsage()
}

// on429Locked implements spec §4.4 on_429: the current-usage-vs-
// recovery-threshold branch, gated by the hardcoded max-consecutive
// value of 2 (spec §9 open question).
func (e *Engine) on429Locked(key Key, model Model, now time.Time) error {
	st := e.stateFor(key, model)
	st.consecutive429Count++
	st.last429Error = now

	currentUsage := tokensLastMinute(st, now)
	threshold := e.modelConfig(model).RecoveryThreshold

	const maxConsecutive429 = 2

	switch {
	case currentUsage < threshold:
		if st.consecutive429Count >= maxConsecutive429 {
			if model == e.premium {
				e.rateLimited.add(key)
			} else {
				disableModel(st, now, e.disableDuration(model))
			}
		}
		// else: below threshold and under the gate — no structural
		// change, the next pick naturally rotates away from this pair.
	default:
		disableModel(st, now, e.disableDuration(model))
	}

	e.log().Warn().
		Str("model", string(model)).
		Int("current_usage", currentUsage).
		Int("consecutive_429", st.consecutive429Count).
		Msg("handling 429 from upstream")

	return e.persistUsage()
}

func (e *Engine) disableDuration(model Model) time.Duration {
	if d := e.modelConfig(model).DisableDuration; d > 0 {
		return d
	}
	return 5 * time.Minute
}

// persistUsage writes the usage document if a path was configured.
// Every mutating public method persists before returning (spec §4.6).
func (e *Engine) persistUsage() error {
	if e.usageStore.path == "" {
		return nil
	}
	return e.usageStore.save(e.usage, e.nextResetAt, e.rateLimited.list())
}

func (e *Engine) persistUnavailable() error {
	if e.unavailableStore.path == "" {
		return nil
	}
	return e.unavailableStore.save(unavailableState{
		potentialUnavailable: e.potentialUnavailable,
		unavailable:          e.unavailableKeys,
	})
}
