// Package keyengine implements the Key & Model Selection Engine: it
// picks a (model, key) pair for each proxied request, reacts to
// success/429/403 outcomes, persists its state across restarts, and
// runs the scheduled daily quota reset.
package keyengine

import "time"

// Key is an opaque API credential. It never appears in log output in
// full; callers should mask it (first/last few characters) before
// rendering to an operator-facing surface.
type Key string

// Model is an identifier from the configured, ordered model list.
type Model string

// Tier is the pool a key belongs to. Tier affects only the initial
// ordering of allKeys; it is never consulted again during selection.
type Tier int

const (
	TierPriority Tier = iota
	TierSecondary
)

func (t Tier) String() string {
	if t == TierPriority {
		return "priority"
	}
	return "secondary"
}

// ModelConfig carries the immutable per-model parameters from config.
type ModelConfig struct {
	TPMLimit          int
	RecoveryThreshold int
	DisableDuration   time.Duration
}

// usageRecord is one (timestamp, tokens) entry in a sliding window.
type usageRecord struct {
	At     time.Time
	Tokens int
}

// keyModelState is the per-(key,model) counters and cooldown state
// described in spec §3. Access is always mediated by Engine's mutex;
// this struct has no lock of its own.
type keyModelState struct {
	records             []usageRecord
	totalTokens         int64
	dailyTokens         int64
	isTemporarilyDisabled bool
	disabledUntil       time.Time
	consecutive429Count int
	last429Error        time.Time
}

// KeyModelStatus is the read-only snapshot returned by Engine.Status
// for one (key, model) pair.
type KeyModelStatus struct {
	TokensLastMinute      int
	TotalTokens           int64
	DailyTokens           int64
	IsAvailable           bool
	RecoveryThreshold     int
	IsTemporarilyDisabled bool
	DisabledUntil         time.Time
	Consecutive429Count   int
}

// Status is the full get_status() payload from spec §6.
type Status struct {
	CurrentKey        Key
	KeyUsage          map[Key]map[Model]KeyModelStatus
	DailyQuotaExceeded map[Key]bool
	RateLimitedKeys   []Key
	ModelOrder        []Model
	PriorityKeys      []Key
	SecondaryKeys     []Key
	GrandTotalTokens  int64
	UnavailableKeys   []Key
}
