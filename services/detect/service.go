// Package detect aggregates the per-request bot-likeness signals.
package detect

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/paywalls-net/filter/metrics"
	"github.com/paywalls-net/filter/models"
)

// BotScoreThreshold is the edge score below which a request counts as
// bot-like. Scores exactly at the threshold do not fire.
const BotScoreThreshold float64 = 30

// overrideParam is the query parameter that forces bot-like handling when
// its value contains "bot". Used to exercise the paywall path from a
// browser.
const overrideParam = "user-agent"

// Classifier resolves a raw user-agent string to a classification.
type Classifier interface {
	Classify(ctx context.Context, rawUA string) (models.AgentClassification, error)
}

// Service evaluates the ordered bot-likeness signals for a request.
type Service struct {
	classifier Classifier
	logger     *zap.Logger
}

// New creates a new detect Service.
func New(classifier Classifier, logger *zap.Logger) *Service {
	return &Service{
		classifier: classifier,
		logger:     logger,
	}
}

// IsBotLike reports whether any signal marks the request as automated.
// Signals run cheapest first and short-circuit: the host signal slots,
// the query override, then the classifier verdict, which is the only
// signal that can touch the network. When a signal cannot be evaluated
// the request is reported bot-like anyway (fail closed) and the cause is
// returned alongside for logging.
func (s *Service) IsBotLike(ctx context.Context, rc *models.RequestContext) (bool, error) {
	for _, sig := range rc.Signals {
		if !sig.BotLike(BotScoreThreshold) {
			continue
		}
		if sig.VerifiedBot != nil && *sig.VerifiedBot {
			metrics.RecordSignal(metrics.SignalEdgeVerified)
		} else {
			metrics.RecordSignal(metrics.SignalEdgeScore)
		}
		return true, nil
	}

	if rc.RawQuery != "" {
		values, err := url.ParseQuery(rc.RawQuery)
		if err != nil {
			s.logger.Warn("query string unparseable, treating request as bot-like",
				zap.String("request_id", rc.ID),
				zap.Error(err))
			metrics.RecordSignal(metrics.SignalQueryOverride)
			return true, err
		}
		if strings.Contains(values.Get(overrideParam), "bot") {
			metrics.RecordSignal(metrics.SignalQueryOverride)
			return true, nil
		}
	}

	rawUA := rc.UserAgent()
	if rawUA == "" {
		// No declared agent never passes; authorization turns this into
		// the immediate 401 deny.
		metrics.RecordSignal(metrics.SignalClassifier)
		return true, nil
	}

	c, err := s.classifier.Classify(ctx, rawUA)
	if err != nil {
		s.logger.Warn("classification unavailable, treating request as bot-like",
			zap.String("request_id", rc.ID),
			zap.Error(err))
		return true, err
	}
	if c.IsBot() {
		metrics.RecordSignal(metrics.SignalClassifier)
		return true, nil
	}

	return false, nil
}
