package keyengine

import "time"

// fallbackChain builds F per spec §4.3 step 1. requestedModel is
// always forced to position 0. An unknown requestedModel is swapped
// for the premium model, and a warning carrying ErrUnknownModel is logged.
func (e *Engine) fallbackChain(requestedModel Model) []Model {
	if requestedModel == "" {
		requestedModel = e.defaultModel
	}
	if !e.knownModel(requestedModel) {
		e.log().Warn().Err(ErrUnknownModel).Str("model", string(requestedModel)).
			Msg("unknown model requested; substituting premium model")
		requestedModel = e.premium
	}

	if chain, ok := e.fallbackStrategy[requestedModel]; ok && len(chain) > 0 {
		return prependUnique(requestedModel, chain)
	}

	var rest []Model
	if requestedModel == e.premium {
		for _, m := range e.models {
			if m != e.premium {
				rest = append(rest, m)
			}
		}
	} else {
		for _, m := range e.models {
			if m != requestedModel && m != e.premium {
				rest = append(rest, m)
			}
		}
		rest = append(rest, e.premium)
	}
	return prependUnique(requestedModel, rest)
}

func prependUnique(first Model, rest []Model) []Model {
	out := make([]Model, 0, len(rest)+1)
	out = append(out, first)
	for _, m := range rest {
		if m != first {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) knownModel(m Model) bool {
	for _, known := range e.models {
		if known == m {
			return true
		}
	}
	return false
}

// isAvailableLocked implements the availability predicate of spec
// §4.3: premium models exhausted via RateLimitedSet, active cooldown,
// or TPM ceiling reached all make a pair unavailable.
func (e *Engine) isAvailableLocked(key Key, model Model, now time.Time) bool {
	if model == e.premium && e.rateLimited.has(key) {
		return false
	}
	st := e.stateFor(key, model)
	if isDisabled(st, now) {
		return false
	}
	limit := e.modelConfig(model).TPMLimit
	if limit > 0 && tokensLastMinute(st, now) >= limit {
		return false
	}
	return true
}

// recoverySweepLocked clears any cooldown whose timer has expired
// across every (key, model) pair (spec §4.3 step 2). isDisabled
// already performs this check lazily per-pair; the sweep exists so a
// pick's borrow-path check in step 4 sees up-to-date cooldown flags
// for pairs it has not directly queried yet.
func (e *Engine) recoverySweepLocked(now time.Time) {
	for _, models := range e.usage {
		for _, st := range models {
			isDisabled(st, now)
		}
	}
}

// pickLocked implements spec §4.3 in full: fallback chain, recovery
// sweep, sticky selection, borrow path.
func (e *Engine) pickLocked(requestedModel Model, now time.Time) (Model, Key, error) {
	if len(e.allKeys) == 0 {
		return "", "", ErrNoCapacity
	}

	chain := e.fallbackChain(requestedModel)
	e.recoverySweepLocked(now)

	for _, m := range chain {
		if model, key, ok := e.stickySelectLocked(m, now); ok {
			return model, key, nil
		}
	}

	if model, key, ok := e.borrowLocked(now); ok {
		return model, key, nil
	}

	return "", "", ErrNoCapacity
}

// stickySelectLocked implements step 3: prefer the key at the cursor,
// else scan forward from cursor+1 wrapping modulo len(allKeys). Tier
// is not re-consulted here; allKeys' stable order is the only tiebreak
// (spec §9 open question).
func (e *Engine) stickySelectLocked(model Model, now time.Time) (Model, Key, bool) {
	n := len(e.allKeys)
	cursorKey := e.allKeys[e.cursor]
	if e.isAvailableLocked(cursorKey, model, now) {
		if model == e.premium {
			e.touchPremiumUsage(now)
		}
		return model, cursorKey, true
	}

	for i := 1; i < n; i++ {
		idx := (e.cursor + i) % n
		k := e.allKeys[idx]
		if e.isAvailableLocked(k, model, now) {
			e.cursor = idx
			if model == e.premium {
				e.touchPremiumUsage(now)
			}
			return model, k, true
		}
	}
	return "", "", false
}

// borrowLocked implements step 4: only triggers when the cursor's key
// has zero currently-available models and exactly one model in
// cooldown (its "last-model cooldown" state). It then serves any
// non-premium model from any key in RateLimitedSet, without moving the
// cursor, preserving stickiness for when the main key recovers.
func (e *Engine) borrowLocked(now time.Time) (Model, Key, bool) {
	if !e.isLastModelCoolingDownLocked(now) {
		return "", "", false
	}
	for _, k := range e.rateLimited.list() {
		if !e.keyKnownLocked(k) {
			continue
		}
		for _, m := range e.models {
			if m == e.premium {
				continue
			}
			if e.isAvailableLocked(k, m, now) {
				return m, k, true
			}
		}
	}
	return "", "", false
}

// isLastModelCoolingDownLocked checks the cursor key: zero available
// models across the whole model list, and exactly one model currently
// in temporary cooldown for that key (spec §4.3 step 4).
func (e *Engine) isLastModelCoolingDownLocked(now time.Time) bool {
	cursorKey := e.allKeys[e.cursor]
	available := 0
	cooling := 0
	for _, m := range e.models {
		if e.isAvailableLocked(cursorKey, m, now) {
			available++
		}
		st := e.stateFor(cursorKey, m)
		if st.isTemporarilyDisabled && now.Before(st.disabledUntil) {
			cooling++
		}
	}
	return available == 0 && cooling == 1
}

func (e *Engine) keyKnownLocked(k Key) bool {
	_, ok := e.tierOf[k]
	return ok
}

// touchPremiumUsage would update last_pro_usage_time in the original
// source; this engine does not surface that field on Status (spec §6's
// get_status payload omits it), so it is a no-op retained as the
// single call site spec §4.3 names, should a future status field need
// it.
func (e *Engine) touchPremiumUsage(now time.Time) {}
