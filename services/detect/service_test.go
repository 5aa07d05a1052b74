package detect

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paywalls-net/filter/models"
	"github.com/paywalls-net/filter/services"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type stubClassifier struct {
	result models.AgentClassification
	err    error
	calls  int32
}

func (s *stubClassifier) Classify(context.Context, string) (models.AgentClassification, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return models.AgentClassification{}, s.err
	}
	return s.result, nil
}

func browserClassification() models.AgentClassification {
	return models.AgentClassification{Browser: "Chrome", OS: "Windows"}
}

func botClassification() models.AgentClassification {
	return models.AgentClassification{
		Browser:  "Unknown",
		OS:       "Unknown",
		Operator: "OpenAI",
		Agent:    "GPTBot",
	}
}

func requestWithUA(rawUA string) *models.RequestContext {
	headers := map[string]string{}
	if rawUA != "" {
		headers[models.HeaderUserAgent] = rawUA
	}
	return &models.RequestContext{
		Method:  "GET",
		Host:    "news.example.com",
		Path:    "/articles/1",
		Headers: headers,
	}
}

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestIsBotLike_EdgeSignals(t *testing.T) {
	tests := []struct {
		name    string
		signals []models.EdgeSignal
		want    bool
	}{
		{
			name:    "low bot score",
			signals: []models.EdgeSignal{{BotScore: floatPtr(12)}},
			want:    true,
		},
		{
			name:    "score at threshold does not fire",
			signals: []models.EdgeSignal{{BotScore: floatPtr(30)}},
			want:    false,
		},
		{
			name:    "high score",
			signals: []models.EdgeSignal{{BotScore: floatPtr(99)}},
			want:    false,
		},
		{
			name:    "verified bot",
			signals: []models.EdgeSignal{{VerifiedBot: boolPtr(true)}},
			want:    true,
		},
		{
			name:    "verified false",
			signals: []models.EdgeSignal{{VerifiedBot: boolPtr(false)}},
			want:    false,
		},
		{
			name: "second slot fires",
			signals: []models.EdgeSignal{
				{BotScore: floatPtr(80)},
				{VerifiedBot: boolPtr(true)},
			},
			want: true,
		},
		{
			name:    "no signals",
			signals: nil,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &stubClassifier{result: browserClassification()}
			svc := New(classifier, zap.NewNop())

			rc := requestWithUA(chromeUA)
			rc.Signals = tt.signals

			got, err := svc.IsBotLike(context.Background(), rc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsBotLike_EdgeSignalShortCircuitsClassifier(t *testing.T) {
	classifier := &stubClassifier{err: services.ErrRulesetFetchFailed}
	svc := New(classifier, zap.NewNop())

	rc := requestWithUA(chromeUA)
	rc.Signals = []models.EdgeSignal{{BotScore: floatPtr(5)}}

	got, err := svc.IsBotLike(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, int32(0), atomic.LoadInt32(&classifier.calls))
}

func TestIsBotLike_QueryOverride(t *testing.T) {
	classifier := &stubClassifier{result: browserClassification()}
	svc := New(classifier, zap.NewNop())

	rc := requestWithUA(chromeUA)
	rc.RawQuery = "user-agent=somebot"

	got, err := svc.IsBotLike(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, got)

	// The override fires before classification.
	assert.Equal(t, int32(0), atomic.LoadInt32(&classifier.calls))
}

func TestIsBotLike_QueryOverrideRequiresBotSubstring(t *testing.T) {
	classifier := &stubClassifier{result: browserClassification()}
	svc := New(classifier, zap.NewNop())

	rc := requestWithUA(chromeUA)
	rc.RawQuery = "user-agent=firefox&page=2"

	got, err := svc.IsBotLike(context.Background(), rc)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsBotLike_UnparseableQueryFailsClosed(t *testing.T) {
	classifier := &stubClassifier{result: browserClassification()}
	svc := New(classifier, zap.NewNop())

	rc := requestWithUA(chromeUA)
	rc.RawQuery = "user-agent=%zz"

	got, err := svc.IsBotLike(context.Background(), rc)
	assert.True(t, got)
	assert.Error(t, err)
}

func TestIsBotLike_ClassifierVerdict(t *testing.T) {
	t.Run("known bot", func(t *testing.T) {
		classifier := &stubClassifier{result: botClassification()}
		svc := New(classifier, zap.NewNop())

		got, err := svc.IsBotLike(context.Background(), requestWithUA("GPTBot/1.0"))
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("ordinary browser", func(t *testing.T) {
		classifier := &stubClassifier{result: browserClassification()}
		svc := New(classifier, zap.NewNop())

		got, err := svc.IsBotLike(context.Background(), requestWithUA(chromeUA))
		require.NoError(t, err)
		assert.False(t, got)
		assert.Equal(t, int32(1), atomic.LoadInt32(&classifier.calls))
	})

	t.Run("classifier failure fails closed", func(t *testing.T) {
		classifier := &stubClassifier{err: services.ErrRulesetFetchFailed}
		svc := New(classifier, zap.NewNop())

		got, err := svc.IsBotLike(context.Background(), requestWithUA("GPTBot/1.0"))
		assert.True(t, got)
		assert.Error(t, err)
	})
}

func TestIsBotLike_MissingUserAgent(t *testing.T) {
	classifier := &stubClassifier{result: browserClassification()}
	svc := New(classifier, zap.NewNop())

	got, err := svc.IsBotLike(context.Background(), requestWithUA(""))
	require.NoError(t, err)
	assert.True(t, got)

	// No classification happens without a declared agent.
	assert.Equal(t, int32(0), atomic.LoadInt32(&classifier.calls))
}
