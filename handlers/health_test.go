package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paywalls-net/filter/app"
	"github.com/paywalls-net/filter/cache"
	"github.com/paywalls-net/filter/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Service: config.ServiceConfig{
			APIBaseURL:    "https://api.paywalls.net",
			APIKey:        "test-key",
			AccountID:     "acct_123",
			VAIPathPrefix: "/pw",
			HTTPTimeout:   5 * time.Second,
			RulesetTTL:    time.Hour,
		},
		Classifier: config.ClassifierConfig{CacheBackend: "memory"},
		Server: config.ServerConfig{
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

func testDeps(t *testing.T, cfg *config.Config) *app.Dependencies {
	t.Helper()
	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	return deps
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, assert.AnError
}
func (failingStore) Set(context.Context, string, []byte) error { return assert.AnError }
func (failingStore) Delete(context.Context, string) error      { return assert.AnError }
func (failingStore) Clear(context.Context) error               { return assert.AnError }
func (failingStore) Len(context.Context) (int, error)          { return 0, assert.AnError }

var _ cache.Store = failingStore{}

func TestHealthCheck(t *testing.T) {
	deps := testDeps(t, testConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	HealthCheck(deps)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReadinessCheck(t *testing.T) {
	t.Run("ready before the ruleset is warm", func(t *testing.T) {
		deps := testDeps(t, testConfig(t))
		require.NoError(t, deps.AccessLog.Start())
		defer deps.AccessLog.Stop(time.Second)

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		w := httptest.NewRecorder()

		ReadinessCheck(deps)(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "ready", response["status"])

		checks := response["checks"].(map[string]interface{})
		assert.Equal(t, "healthy", checks["cache"])
		assert.Equal(t, "not_loaded", checks["ruleset"])
		assert.Equal(t, "running", checks["access_logger"])
	})

	t.Run("reports a loaded ruleset", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"rules":[{"operator":"OpenAI","agent":"GPTBot","usage":["ai_training"],"user_initiated":"no","patterns":["/GPTBot/i"]}]}`))
		}))
		t.Cleanup(backend.Close)

		cfg := testConfig(t)
		cfg.Service.APIBaseURL = backend.URL
		deps := testDeps(t, cfg)
		require.NoError(t, deps.AccessLog.Start())
		defer deps.AccessLog.Stop(time.Second)

		_, err := deps.Rules.RuleSet(context.Background())
		require.NoError(t, err)

		w := httptest.NewRecorder()
		ReadinessCheck(deps)(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		checks := response["checks"].(map[string]interface{})
		assert.Equal(t, "loaded", checks["ruleset"])
	})

	t.Run("not ready when the access logger is stopped", func(t *testing.T) {
		deps := testDeps(t, testConfig(t))

		w := httptest.NewRecorder()
		ReadinessCheck(deps)(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "not_ready", response["status"])
		checks := response["checks"].(map[string]interface{})
		assert.Equal(t, "stopped", checks["access_logger"])
	})

	t.Run("not ready when the cache errors", func(t *testing.T) {
		deps := testDeps(t, testConfig(t))
		deps.Store = failingStore{}
		require.NoError(t, deps.AccessLog.Start())
		defer deps.AccessLog.Stop(time.Second)

		w := httptest.NewRecorder()
		ReadinessCheck(deps)(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		checks := response["checks"].(map[string]interface{})
		assert.Equal(t, "unhealthy", checks["cache"])
	})
}

func TestStatusHandler(t *testing.T) {
	deps := testDeps(t, testConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/statusz", nil)
	w := httptest.NewRecorder()

	StatusHandler(deps)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	assert.NotEmpty(t, response["version"])
	assert.Equal(t, "test", response["environment"])

	ruleset := response["ruleset"].(map[string]interface{})
	assert.Equal(t, false, ruleset["loaded"])

	// The memory cache reports hit/miss counters.
	assert.Contains(t, response, "classifier_cache")
}
