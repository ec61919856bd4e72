package keyengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConfigRewriter rewrites the on-disk configuration to remove a
// permanently banned key. Implemented by internal/config; kept as an
// interface here so keyengine has no import-time dependency on the
// config package's document format (spec §9: "rewrite must be atomic
// ... preserve unrelated config fields verbatim").
type ConfigRewriter interface {
	RemoveKey(key string) error
}

// noopConfigRewriter is used when the engine is constructed without a
// config path (e.g. in unit tests exercising only in-memory behavior).
type noopConfigRewriter struct{}

func (noopConfigRewriter) RemoveKey(string) error { return nil }

// EngineConfig is everything NewEngine needs to construct an Engine. It
// is a plain value type so keyengine has no dependency on
// internal/config's Config struct; internal/config provides an
// adapter that builds one of these from a loaded Config.
type EngineConfig struct {
	PriorityKeys  []Key
	SecondaryKeys []Key

	Models       []Model
	ModelConfigs map[Model]ModelConfig
	PremiumModel Model
	DefaultModel Model

	// FallbackStrategy is the optional explicit per-model fallback
	// chain from config. When a model has no entry, the default
	// ordering rule in selector.go applies.
	FallbackStrategy map[Model][]Model

	// MaxConsecutive429 is read from config and stored on the Engine;
	// Status does not report it, and On429 uses the hardcoded value of
	// 2 regardless of this field (spec §9 open question).
	MaxConsecutive429 int

	RetentionSeconds int
	DailyQuotaLimit  int64

	Timezone           *time.Location
	QuotaResetBaseDate time.Time

	UsageFilePath       string
	UnavailableFilePath string

	ConfigRewriter ConfigRewriter
	Logger         *zerolog.Logger

	// now is overridable by tests; defaults to time.Now.
	now func() time.Time
}

// Engine is the constructed object spec §9 calls for: a single
// mutex-guarded state machine, never a language-level global, so tests
// can construct as many isolated instances as they like.
type Engine struct {
	mu sync.Mutex

	logger *zerolog.Logger
	now    func() time.Time

	models           []Model
	modelConfigs     map[Model]ModelConfig
	premium          Model
	defaultModel     Model
	fallbackStrategy map[Model][]Model
	maxConsecutive429 int
	retention        time.Duration
	dailyQuotaLimit  int64
	timezone         *time.Location

	allKeys []Key
	tierOf  map[Key]Tier
	cursor  int

	usage       map[Key]map[Model]*keyModelState
	rateLimited *rateLimitedSet
	nextResetAt time.Time

	potentialUnavailable map[Key]int
	unavailableKeys      map[Key]struct{}

	usageStore       *usageStore
	unavailableStore *unavailableStore
	configRewriter   ConfigRewriter
}

// NewEngine constructs an Engine, loading persisted state from disk (if
// present) and running an initial catch-up reset check (spec §4.5:
// "invoked at startup").
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if len(cfg.PriorityKeys) == 0 && len(cfg.SecondaryKeys) == 0 {
		return nil, fmt.Errorf("keyengine: at least one key is required")
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	rewriter := cfg.ConfigRewriter
	if rewriter == nil {
		rewriter = noopConfigRewriter{}
	}
	now := cfg.now
	if now == nil {
		now = time.Now
	}
	retention := time.Duration(cfg.RetentionSeconds) * time.Second
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	e := &Engine{
		logger:            cfg.Logger,
		now:               now,
		models:            append([]Model(nil), cfg.Models...),
		modelConfigs:      cfg.ModelConfigs,
		premium:           cfg.PremiumModel,
		defaultModel:      cfg.DefaultModel,
		fallbackStrategy:  cfg.FallbackStrategy,
		maxConsecutive429: cfg.MaxConsecutive429,
		retention:         retention,
		dailyQuotaLimit:   cfg.DailyQuotaLimit,
		timezone:          cfg.Timezone,
		tierOf:            make(map[Key]Tier),
		usage:             make(map[Key]map[Model]*keyModelState),
		rateLimited:       newRateLimitedSet(),
		usageStore:        newUsageStore(cfg.UsageFilePath),
		unavailableStore:  newUnavailableStore(cfg.UnavailableFilePath),
		configRewriter:    rewriter,
	}

	for _, k := range cfg.PriorityKeys {
		e.allKeys = append(e.allKeys, k)
		e.tierOf[k] = TierPriority
	}
	for _, k := range cfg.SecondaryKeys {
		e.allKeys = append(e.allKeys, k)
		e.tierOf[k] = TierSecondary
	}

	if cfg.UsageFilePath != "" {
		loaded := e.usageStore.load(e.logger)
		e.usage = loaded.usage
		e.nextResetAt = loaded.nextReset
		for _, k := range loaded.rateLimited {
			e.rateLimited.add(k)
		}
	}
	if cfg.UnavailableFilePath != "" {
		loaded := e.unavailableStore.load(e.logger)
		e.potentialUnavailable = loaded.potentialUnavailable
		e.unavailableKeys = loaded.unavailable
	}
	if e.potentialUnavailable == nil {
		e.potentialUnavailable = make(map[Key]int)
	}
	if e.unavailableKeys == nil {
		e.unavailableKeys = make(map[Key]struct{})
	}

	// Drop any previously-banned keys from allKeys/tierOf, in case the
	// config file still listed them (e.g. an operator restored an old
	// config.json out of band).
	if len(e.unavailableKeys) > 0 {
		e.removeKeysLocked(e.unavailableKeys)
	}

	if e.nextResetAt.IsZero() {
		anchor := cfg.QuotaResetBaseDate
		if anchor.IsZero() {
			anchor = now()
		}
		e.nextResetAt = nextDailyReset(e.timezone, anchor.In(e.timezone))
	}

	e.mu.Lock()
	e.checkAndResetIfMissedLocked(now())
	e.mu.Unlock()

	return e, nil
}

// Pick selects a (model, key) pair for requestedModel. An empty
// requestedModel means "use the configured default."
func (e *Engine) Pick(requestedModel Model) (Model, Key, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.checkAndResetIfMissedLocked(now)
	return e.pickLocked(requestedModel, now)
}

// OnSuccess records a successful request's token usage and clears
// transient 429/403 suspicion for the pair (spec §4.4).
func (e *Engine) OnSuccess(key Key, model Model, tokens int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onSuccessLocked(key, model, tokens, e.now())
}

// On429 applies the rate-limit outcome branching described in spec
// §4.4. The caller is expected to retry (up to 5 times by convention)
// after this returns, calling Pick again.
func (e *Engine) On429(key Key, model Model) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.on429Locked(key, model, e.now())
}

// On403 records a forbidden-response strike against key. On the third
// strike the key is permanently banned: removed from every pool and
// from the persisted config file.
func (e *Engine) On403(key Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.on403Locked(key, e.now())
}

// Status returns the full get_status() snapshot (spec §6).
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked(e.now())
}

// Tick runs the scheduled reset check outside of a Pick call, for a
// background caller that wants the reset to happen promptly even
// during quiet periods (spec §2: "a background task periodically
// invokes ResetScheduler.tick()").
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkAndResetIfMissedLocked(e.now())
}

// log returns a usable logger even when the Engine was constructed
// without one, so call sites never need a nil check.
func (e *Engine) log() zerolog.Logger {
	if e.logger != nil {
		return *e.logger
	}
	return zerolog.Nop()
}
