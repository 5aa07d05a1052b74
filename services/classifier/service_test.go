package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paywalls-net/filter/cache"
	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/models"
	"github.com/paywalls-net/filter/services"
	"github.com/paywalls-net/filter/services/rules"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type stubRules struct {
	rs    *models.RuleSet
	err   error
	calls int32
}

func (s *stubRules) RuleSet(context.Context) (*models.RuleSet, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.rs, nil
}

func testRuleSet() *models.RuleSet {
	return &models.RuleSet{
		Rules: []models.ClassificationRule{
			{
				Operator:      "OpenAI",
				Agent:         "GPTBot",
				Usage:         []string{"ai_training"},
				UserInitiated: models.UserInitiatedNo,
				Patterns:      []models.Pattern{models.MustParsePattern("/GPTBot/i")},
			},
			{
				Operator:      "Anthropic",
				Agent:         "ClaudeBot",
				Usage:         []string{"ai_training"},
				UserInitiated: models.UserInitiatedNo,
				Patterns:      []models.Pattern{models.MustParsePattern("/claude(bot)?/i")},
			},
		},
		FetchedAt: time.Now(),
	}
}

func newTestService(src RuleSource) *Service {
	return New(src, cache.NewMemory(0, 0), zap.NewNop())
}

func TestClassify_KnownBot(t *testing.T) {
	src := &stubRules{rs: testRuleSet()}
	svc := newTestService(src)

	c, err := svc.Classify(context.Background(), "GPTBot/1.0")
	require.NoError(t, err)

	assert.Equal(t, models.AgentClassification{
		Browser:       "Unknown",
		OS:            "Unknown",
		Operator:      "OpenAI",
		Agent:         "GPTBot",
		Usage:         []string{"ai_training"},
		UserInitiated: models.UserInitiatedNo,
	}, c)
	assert.True(t, c.IsBot())
}

func TestClassify_OrdinaryBrowserSkipsRules(t *testing.T) {
	src := &stubRules{rs: testRuleSet()}
	svc := newTestService(src)

	c, err := svc.Classify(context.Background(), chromeUA)
	require.NoError(t, err)

	assert.Equal(t, "Chrome", c.Browser)
	assert.Equal(t, "Windows", c.OS)
	assert.False(t, c.IsBot())
	assert.Empty(t, c.Operator)

	// Recognized browsers never consult the ruleset.
	assert.Equal(t, int32(0), atomic.LoadInt32(&src.calls))
}

func TestClassify_UnknownAgentConsultsRules(t *testing.T) {
	src := &stubRules{rs: testRuleSet()}
	svc := newTestService(src)

	c, err := svc.Classify(context.Background(), "curl/7.68.0")
	require.NoError(t, err)

	assert.Equal(t, "Unknown", c.Browser)
	assert.False(t, c.IsBot())
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestClassify_FirstMatchingRuleWins(t *testing.T) {
	src := &stubRules{rs: &models.RuleSet{
		Rules: []models.ClassificationRule{
			{
				Operator: "First",
				Agent:    "DualBot",
				Patterns: []models.Pattern{models.MustParsePattern("/dualbot/i")},
			},
			{
				Operator: "Second",
				Agent:    "DualBot",
				Patterns: []models.Pattern{models.MustParsePattern("/DualBot/")},
			},
		},
		FetchedAt: time.Now(),
	}}
	svc := newTestService(src)

	c, err := svc.Classify(context.Background(), "DualBot/2.0")
	require.NoError(t, err)

	assert.Equal(t, "First", c.Operator)
}

func TestClassify_Memoized(t *testing.T) {
	src := &stubRules{rs: testRuleSet()}
	svc := newTestService(src)

	first, err := svc.Classify(context.Background(), "GPTBot/1.0")
	require.NoError(t, err)

	second, err := svc.Classify(context.Background(), "GPTBot/1.0")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestClassify_RuleSourceErrorPropagates(t *testing.T) {
	src := &stubRules{err: services.ErrRulesetFetchFailed}
	svc := newTestService(src)

	_, err := svc.Classify(context.Background(), "GPTBot/1.0")
	require.Error(t, err)
	assert.True(t, services.IsRemoteFetchError(err))
}

func TestClassify_CacheClearedOnRulesetRefresh(t *testing.T) {
	payload := `{"rules": [{"operator": "OpenAI", "agent": "GPTBot", "patterns": ["/GPTBot/i"]}]}`
	var serveSecond atomic.Bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if serveSecond.Load() {
			w.Write([]byte(`{"rules": [{"operator": "Renamed", "agent": "GPTBot", "patterns": ["/GPTBot/i"]}]}`))
			return
		}
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Service: config.ServiceConfig{
			APIBaseURL:  srv.URL,
			APIKey:      "test-key",
			AccountID:   "acct_123",
			HTTPTimeout: 5 * time.Second,
			RulesetTTL:  time.Hour,
		},
	}
	ruleSvc := rules.New(cfg, zap.NewNop())
	store := cache.NewMemory(0, 0)
	svc := New(ruleSvc, store, zap.NewNop())

	c, err := svc.Classify(context.Background(), "GPTBot/1.0")
	require.NoError(t, err)
	assert.Equal(t, "OpenAI", c.Operator)

	serveSecond.Store(true)
	ruleSvc.Invalidate()

	// The refresh triggered by the next classification clears the memo
	// cache, so the stale entry cannot be served under the new rules.
	c, err = svc.Classify(context.Background(), "GPTBot/1.0")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", c.Operator)
}

func TestClassify_Deterministic(t *testing.T) {
	src := &stubRules{rs: testRuleSet()}
	svc := newTestService(src)

	uas := []string{"GPTBot/1.0", chromeUA, "curl/7.68.0", ""}
	for _, raw := range uas {
		first, err := svc.Classify(context.Background(), raw)
		require.NoError(t, err)
		second, err := svc.Classify(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, first, second, "ua %q", raw)
	}
}

func TestCacheStats(t *testing.T) {
	src := &stubRules{rs: testRuleSet()}
	svc := newTestService(src)

	_, err := svc.Classify(context.Background(), "GPTBot/1.0")
	require.NoError(t, err)
	_, err = svc.Classify(context.Background(), "GPTBot/1.0")
	require.NoError(t, err)

	stats, ok := svc.CacheStats()
	require.True(t, ok)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
}
