package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/models"
)

type stubEvaluator struct {
	result *models.EdgeResult
	rc     *models.RequestContext
}

func (e *stubEvaluator) Evaluate(_ context.Context, rc *models.RequestContext) *models.EdgeResult {
	e.rc = rc
	return e.result
}

func defaultSignals() config.SignalsConfig {
	return config.SignalsConfig{
		ScoreHeader:    "x-bot-score",
		VerifiedHeader: "x-verified-bot",
	}
}

func TestFilter_PassThroughContinuesToNext(t *testing.T) {
	evaluator := &stubEvaluator{result: &models.EdgeResult{Outcome: models.OutcomePassThrough}}
	m := NewFilterMiddleware(evaluator, defaultSignals(), zap.NewNop())

	var nextCalled bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true

		requestID := GetRequestIDFromContext(r.Context())
		_, err := uuid.Parse(requestID)
		assert.NoError(t, err)

		result := GetResultFromContext(r.Context())
		require.NotNil(t, result)
		assert.Equal(t, models.OutcomePassThrough, result.Outcome)

		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/articles/42", nil)
	rec := httptest.NewRecorder()
	m.Filter(next).ServeHTTP(rec, req)

	assert.True(t, nextCalled)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFilter_InterceptedWritesDecision(t *testing.T) {
	evaluator := &stubEvaluator{result: &models.EdgeResult{
		Outcome: models.OutcomeDenied,
		Response: &models.DecisionResponse{
			Code:    402,
			Headers: map[string]string{"Content-Type": "text/html"},
			Body:    "<html>Payment Required</html>",
		},
	}}
	m := NewFilterMiddleware(evaluator, defaultSignals(), zap.NewNop())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run for intercepted requests")
	})

	req := httptest.NewRequest(http.MethodGet, "/articles/42", nil)
	req.Header.Set("User-Agent", "GPTBot/1.0")
	rec := httptest.NewRecorder()
	m.Filter(next).ServeHTTP(rec, req)

	assert.Equal(t, 402, rec.Code)
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<html>Payment Required</html>", rec.Body.String())
}

func TestFilter_BuildsCanonicalRequest(t *testing.T) {
	evaluator := &stubEvaluator{result: &models.EdgeResult{Outcome: models.OutcomePassThrough}}
	signals := defaultSignals()
	signals.SecondaryScoreHeader = "x-alt-score"
	m := NewFilterMiddleware(evaluator, signals, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "http://news.example.com/articles/42?user-agent=somebot&page=2", nil)
	req.Header.Set("User-Agent", "curl/8.4.0")
	req.Header.Set("X-Bot-Score", "12.5")
	req.Header.Set("X-Verified-Bot", "true")
	req.Header.Set("X-Alt-Score", "88")
	req.Header.Add("Accept", "text/html")
	req.Header.Add("Accept", "application/json")
	req.RemoteAddr = "203.0.113.9:54321"

	m.Filter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), req)

	rc := evaluator.rc
	require.NotNil(t, rc)

	_, err := uuid.Parse(rc.ID)
	assert.NoError(t, err)
	assert.Equal(t, http.MethodPost, rc.Method)
	assert.Equal(t, "news.example.com", rc.Host)
	assert.Equal(t, "/articles/42", rc.Path)
	assert.Equal(t, "user-agent=somebot&page=2", rc.RawQuery)
	assert.Equal(t, "203.0.113.9:54321", rc.RemoteAddr)

	assert.Equal(t, "curl/8.4.0", rc.UserAgent())
	assert.Equal(t, "text/html", rc.Headers["accept"])

	require.Len(t, rc.Signals, 2)
	require.NotNil(t, rc.Signals[0].BotScore)
	assert.Equal(t, 12.5, *rc.Signals[0].BotScore)
	require.NotNil(t, rc.Signals[0].VerifiedBot)
	assert.True(t, *rc.Signals[0].VerifiedBot)
	require.NotNil(t, rc.Signals[1].BotScore)
	assert.Equal(t, 88.0, *rc.Signals[1].BotScore)
	assert.Nil(t, rc.Signals[1].VerifiedBot)
}

func TestWriteDecision(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDecision(rec, &models.DecisionResponse{
		Code:    401,
		Headers: map[string]string{"WWW-Authenticate": "Bearer"},
		Body:    "Unauthorized access.",
	})

	assert.Equal(t, 401, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Unauthorized access.", rec.Body.String())
}
