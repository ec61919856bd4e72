package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arjunv/quotaproxy/internal/keyengine"
	"github.com/arjunv/quotaproxy/internal/respcache"
)

func testHandlerEngine(t *testing.T) *keyengine.Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := keyengine.NewEngine(keyengine.EngineConfig{
		PriorityKeys: []keyengine.Key{"K1"},
		Models:       []keyengine.Model{"flash", "pro"},
		ModelConfigs: map[keyengine.Model]keyengine.ModelConfig{
			"flash": {TPMLimit: 10000, RecoveryThreshold: 100, DisableDuration: time.Minute},
			"pro":   {TPMLimit: 10000, RecoveryThreshold: 100, DisableDuration: time.Minute},
		},
		PremiumModel:        "pro",
		DefaultModel:        "flash",
		RetentionSeconds:    86400,
		Timezone:            time.UTC,
		UsageFilePath:       filepath.Join(dir, "key_usage.json"),
		UnavailableFilePath: filepath.Join(dir, "unavailable.json"),
	})
	require.NoError(t, err)
	return e
}

func testCache(t *testing.T) respcache.Cache {
	t.Helper()
	c, err := respcache.New(context.Background(), &respcache.Config{
		Mode:      respcache.ModeSingle,
		Ristretto: respcache.DefaultRistrettoConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHandlerRelaysSuccessfulResponseAndRecordsUsage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "models/flash/flash:generateContent")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"usageMetadata":{"totalTokenCount":7}}`))
	}))
	defer upstream.Close()

	engine := testHandlerEngine(t)
	h := NewHandler(engine, testCache(t), NewUpstreamClient(upstream.URL, upstream.Client()), 5)

	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/flash:generateContent", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"usageMetadata":{"totalTokenCount":7}}`, rec.Body.String())

	status := engine.Status()
	require.Equal(t, int64(7), status.GrandTotalTokens)
}

func TestHandlerCachesAndReplaysIdenticalRequest(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"usageMetadata":{"totalTokenCount":3}}`))
	}))
	defer upstream.Close()

	engine := testHandlerEngine(t)
	h := NewHandler(engine, testCache(t), NewUpstreamClient(upstream.URL, upstream.Client()), 5)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1beta/models/flash:generateContent", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Equal(t, 1, calls, "second identical request should be served from cache")
}

func TestHandlerPassesThroughNonSuccessStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer upstream.Close()

	engine := testHandlerEngine(t)
	h := NewHandler(engine, testCache(t), NewUpstreamClient(upstream.URL, upstream.Client()), 5)

	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/flash:generateContent", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerReturns503AfterExhaustingRetriesOn429(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	engine := testHandlerEngine(t)
	h := NewHandler(engine, testCache(t), NewUpstreamClient(upstream.URL, upstream.Client()), 1)

	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/flash:generateContent", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerReturnsForbiddenOn403WithoutRetry(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	engine := testHandlerEngine(t)
	h := NewHandler(engine, testCache(t), NewUpstreamClient(upstream.URL, upstream.Client()), 5)

	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/flash:generateContent", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, 1, calls)
}
