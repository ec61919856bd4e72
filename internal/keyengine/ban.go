package keyengine

import "time"

// banThreshold is the number of 403 responses that promote a key to
// permanently_unavailable (spec §3 PermanentState, I1).
const banThreshold = 3

// on403Locked implements spec §4.4 on_403: three strikes bans the key,
// removing it from every pool, repairing the selection cursor, and
// rewriting the on-disk config atomically to drop it. A fourth call on
// an already-banned key is a no-op (P4).
func (e *Engine) on403Locked(key Key, now time.Time) error {
	if _, banned := e.unavailableKeys[key]; banned {
		return nil
	}

	e.potentialUnavailable[key]++
	if e.potentialUnavailable[key] < banThreshold {
		e.log().Warn().
			Int("strikes", e.potentialUnavailable[key]).
			Msg("received 403 from upstream for key")
		return e.persistUnavailable()
	}

	delete(e.potentialUnavailable, key)
	e.unavailableKeys[key] = struct{}{}

	e.removeKeysLocked(map[Key]struct{}{key: {}})

	e.log().Error().Msg("key permanently banned after 3 forbidden responses")

	if err := e.configRewriter.RemoveKey(string(key)); err != nil {
		e.log().Error().Err(err).Msg("failed to rewrite config file after permanent ban")
		return err
	}
	return e.persistUnavailable()
}

// removeKeysLocked drops the given keys from allKeys/tierOf/usage and
// repairs the selection cursor so it still refers to a key in allKeys
// (spec I5). Called from on403Locked, from ReloadKeyPools, and from
// NewEngine when restoring a previously-banned key list.
func (e *Engine) removeKeysLocked(doomed map[Key]struct{}) {
	if len(doomed) == 0 {
		return
	}

	var survivingKey Key
	if e.cursor >= 0 && e.cursor < len(e.allKeys) {
		survivingKey = e.allKeys[e.cursor]
	}

	kept := e.allKeys[:0:0]
	for _, k := range e.allKeys {
		if _, dead := doomed[k]; dead {
			delete(e.tierOf, k)
			delete(e.usage, k)
			e.rateLimited.remove(k)
			continue
		}
		kept = append(kept, k)
	}
	e.allKeys = kept

	if len(e.allKeys) == 0 {
		e.cursor = 0
		return
	}
	for i, k := range e.allKeys {
		if k == survivingKey {
			e.cursor = i
			return
		}
	}
	if e.cursor >= len(e.allKeys) {
		e.cursor = 0
	}
}
