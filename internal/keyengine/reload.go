package keyengine

import "fmt"

// ReloadKeyPools replaces the engine's key pools with newly-loaded
// priority/secondary lists, e.g. after the on-disk config file changes
// and the watcher picks it up. Keys dropped from the new lists are
// removed exactly as on403Locked removes a banned key (cursor repair,
// usage state cleared); keys present in both old and new lists keep
// their accumulated usage even if their tier changed; brand-new keys
// start with a clean usage slate.
func (e *Engine) ReloadKeyPools(priority, secondary []Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newTier := make(map[Key]Tier, len(priority)+len(secondary))
	for _, k := range priority {
		newTier[k] = TierPriority
	}
	for _, k := range secondary {
		newTier[k] = TierSecondary
	}
	if len(newTier) == 0 {
		return fmt.Errorf("keyengine: at least one key is required")
	}

	doomed := make(map[Key]struct{})
	for _, k := range e.allKeys {
		if _, ok := newTier[k]; !ok {
			doomed[k] = struct{}{}
		}
	}
	e.removeKeysLocked(doomed)

	for k, tier := range newTier {
		if _, known := e.tierOf[k]; known {
			e.tierOf[k] = tier
			continue
		}
		e.allKeys = append(e.allKeys, k)
		e.tierOf[k] = tier
	}

	e.log().Info().
		Int("keys", len(e.allKeys)).
		Int("removed", len(doomed)).
		Msg("key pools reloaded from config")

	return e.persistUsage()
}
