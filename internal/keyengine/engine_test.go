package keyengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T, mutate func(*EngineConfig)) *Engine {
	t.Helper()
	dir := t.TempDir()
	cfg := EngineConfig{
		PriorityKeys: []Key{"K1", "K2"},
		Models:       []Model{"flash", "pro"},
		ModelConfigs: map[Model]ModelConfig{
			"flash": {TPMLimit: 1000, RecoveryThreshold: 100, DisableDuration: time.Minute},
			"pro":   {TPMLimit: 1000, RecoveryThreshold: 100, DisableDuration: time.Minute},
		},
		PremiumModel:        "pro",
		DefaultModel:        "pro",
		RetentionSeconds:    86400,
		DailyQuotaLimit:     2_000_000,
		Timezone:            time.UTC,
		UsageFilePath:       filepath.Join(dir, "key_usage.json"),
		UnavailableFilePath: filepath.Join(dir, "unavailable.json"),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

// Scenario 1: sticky return.
func TestScenarioStickyReturn(t *testing.T) {
	e := testEngine(t, nil)

	m, k, err := e.Pick("flash")
	require.NoError(t, err)
	require.Equal(t, Model("flash"), m)
	require.Equal(t, Key("K1"), k)

	require.NoError(t, e.OnSuccess(k, m, 50))

	m2, k2, err := e.Pick("flash")
	require.NoError(t, err)
	require.Equal(t, Model("flash"), m2)
	require.Equal(t, Key("K1"), k2)
	require.Equal(t, 0, e.cursor)
}

// Scenario 2: rate-limit rotation.
func TestScenarioRateLimitRotation(t *testing.T) {
	e := testEngine(t, nil)

	m, k, err := e.Pick("flash")
	require.NoError(t, err)
	require.NoError(t, e.OnSuccess(k, m, 50))

	require.NoError(t, e.On429(k, m))
	st := e.stateFor(k, m)
	require.Equal(t, 1, st.consecutive429Count)
	require.False(t, st.isTemporarilyDisabled)

	m2, k2, err := e.Pick("flash")
	require.NoError(t, err)
	require.Equal(t, k, k2)
	require.Equal(t, m, m2)

	require.NoError(t, e.On429(k, m))
	require.Equal(t, 2, e.stateFor(k, m).consecutive429Count)
	require.True(t, e.stateFor(k, m).isTemporarilyDisabled)

	m3, k3, err := e.Pick("flash")
	require.NoError(t, err)
	require.Equal(t, Key("K2"), k3)
	require.Equal(t, Model("flash"), m3)
	require.Equal(t, 1, e.cursor)
}

// Scenario 3: premium exhaustion becomes borrowable.
func TestScenarioPremiumBorrow(t *testing.T) {
	e := testEngine(t, func(cfg *EngineConfig) {
		cfg.PriorityKeys = []Key{"K"}
		cfg.FallbackStrategy = map[Model][]Model{"pro": {"pro", "flash"}}
	})

	require.NoError(t, e.On429("K", "pro"))
	require.NoError(t, e.On429("K", "pro"))
	require.True(t, e.rateLimited.has("K"))

	m, k, err := e.Pick("pro")
	require.NoError(t, err)
	require.Equal(t, Model("flash"), m)
	require.Equal(t, Key("K"), k)
	require.Equal(t, 0, e.cursor)
}

// Scenario 4: permanent ban after three 403s.
func TestScenarioPermanentBan(t *testing.T) {
	e := testEngine(t, nil)

	require.NoError(t, e.On403("K1"))
	require.NoError(t, e.On403("K1"))
	require.NoError(t, e.On403("K1"))

	status := e.Status()
	require.NotContains(t, status.PriorityKeys, Key("K1"))
	require.NotContains(t, status.SecondaryKeys, Key("K1"))
	require.Contains(t, status.UnavailableKeys, Key("K1"))

	// Fourth call is a no-op.
	require.NoError(t, e.On403("K1"))
	status2 := e.Status()
	require.Len(t, status2.UnavailableKeys, 1)
}

// Scenario 5: scheduled reset catch-up.
func TestScenarioScheduledResetCatchUp(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	var clock time.Time
	e := testEngine(t, func(cfg *EngineConfig) {
		cfg.Timezone = loc
		clock = time.Date(2026, 1, 1, 12, 0, 0, 0, loc)
		cfg.now = func() time.Time { return clock }
	})

	require.NoError(t, e.OnSuccess("K1", "flash", 500))
	require.Equal(t, int64(500), e.stateFor("K1", "flash").dailyTokens)
	require.NoError(t, e.On429("K1", "pro"))
	require.NoError(t, e.On429("K1", "pro"))
	require.True(t, e.rateLimited.has("K1"))

	expectedNext := time.Date(2026, 1, 2, 1, 0, 0, 0, loc)
	require.True(t, e.nextResetAt.Equal(expectedNext))

	clock = expectedNext.Add(time.Hour)
	e.Tick()

	require.Equal(t, int64(0), e.stateFor("K1", "flash").dailyTokens)
	require.False(t, e.rateLimited.has("K1"))
	require.True(t, e.nextResetAt.Equal(time.Date(2026, 1, 3, 1, 0, 0, 0, loc)))
}

// Scenario 6: corrupt usage file recovery.
func TestScenarioCorruptFileRecovery(t *testing.T) {
	dir := t.TempDir()
	usagePath := filepath.Join(dir, "key_usage.json")
	require.NoError(t, os.WriteFile(usagePath, []byte("not json"), 0o600))

	e := testEngine(t, func(cfg *EngineConfig) {
		cfg.UsageFilePath = usagePath
	})

	matches, err := filepath.Glob(filepath.Join(dir, "__illegal_*_key_usage.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m, k, err := e.Pick("pro")
	require.NoError(t, err)
	require.Equal(t, Model("pro"), m)
	require.Equal(t, Key("K1"), k)
}
