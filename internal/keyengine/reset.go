package keyengine

import "time"

// checkAndResetIfMissedLocked implements spec §4.5: if now has reached
// or passed nextResetAt, clear the rate-limited set, zero every
// dailyTokens counter, and recompute the next reset instant. This is
// tied to wall-clock comparison rather than an interval timer, so a
// reset missed while the process was down still fires on the next call
// (invoked at startup and on every Pick).
func (e *Engine) checkAndResetIfMissedLocked(now time.Time) bool {
	if e.nextResetAt.IsZero() || now.Before(e.nextResetAt) {
		return false
	}

	e.rateLimited.clear()
	for _, models := range e.usage {
		for _, st := range models {
			st.dailyTokens = 0
		}
	}
	e.nextResetAt = nextDailyReset(e.timezone, now)

	e.log().Info().Time("next_reset_at", e.nextResetAt).Msg("performed scheduled quota reset")

	if err := e.persistUsage(); err != nil {
		e.log().Error().Err(err).Msg("failed to persist state after quota reset")
	}
	return true
}

// nextDailyReset returns the next 01:00-local instant in loc strictly
// after 'after'. The hour is fixed by design (spec §4.5); only the
// calendar date of 'after' anchors the calculation — any time-of-day
// supplied by configuration is ignored.
func nextDailyReset(loc *time.Location, after time.Time) time.Time {
	local := after.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), 1, 0, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
