// Package classifier resolves raw user-agent strings into agent
// classifications by combining generic browser/OS parsing with the
// remote-sourced classification rules. Results are memoized per exact raw
// string in an injected cache store.
package classifier

import (
	"context"
	"encoding/json"

	"github.com/mileusna/useragent"
	"go.uber.org/zap"

	"github.com/paywalls-net/filter/cache"
	"github.com/paywalls-net/filter/metrics"
	"github.com/paywalls-net/filter/models"
)

// RuleSource provides the classification ruleset currently in force.
type RuleSource interface {
	RuleSet(ctx context.Context) (*models.RuleSet, error)
}

// refreshNotifier is implemented by rule sources that can announce a
// successful refresh (services/rules does).
type refreshNotifier interface {
	OnRefresh(func())
}

// Service classifies user-agent strings. Classification is deterministic
// for a given (string, ruleset) pair; the memo cache is dropped whenever
// the ruleset refreshes so a stale entry never contradicts current rules.
type Service struct {
	rules  RuleSource
	store  cache.Store
	logger *zap.Logger
}

// New creates a classifier backed by the given rule source and cache
// store. When the rule source announces refreshes, the memo cache is
// cleared automatically on each one.
func New(rules RuleSource, store cache.Store, logger *zap.Logger) *Service {
	s := &Service{
		rules:  rules,
		store:  store,
		logger: logger,
	}

	if notifier, ok := rules.(refreshNotifier); ok {
		notifier.OnRefresh(func() {
			s.InvalidateCache(context.Background())
		})
	}

	return s
}

// Classify resolves the raw user-agent string. Browser and OS always come
// from the generic parser (falling back to "Unknown"); operator, agent,
// usage and user-initiated come from the first matching classification
// rule, when one matches.
func (s *Service) Classify(ctx context.Context, rawUA string) (models.AgentClassification, error) {
	if c, ok := s.cached(ctx, rawUA); ok {
		metrics.RecordClassifierCache(metrics.CacheHit)
		return c, nil
	}
	metrics.RecordClassifierCache(metrics.CacheMiss)

	c := parseGeneric(rawUA)

	// A string the parser recognizes as a real browser cannot carry a
	// declared agent token, so the rule scan (and any ruleset load) is
	// skipped. This keeps ordinary browser traffic off the network.
	if c.Browser != models.UnknownField {
		s.remember(ctx, rawUA, c)
		return c, nil
	}

	rs, err := s.rules.RuleSet(ctx)
	if err != nil {
		return models.AgentClassification{}, err
	}

	if rule, ok := rs.Match(rawUA); ok {
		c.Operator = rule.Operator
		c.Agent = rule.Agent
		c.Usage = rule.Usage
		c.UserInitiated = rule.UserInitiated
	}

	s.remember(ctx, rawUA, c)
	return c, nil
}

// InvalidateCache drops every memoized classification.
func (s *Service) InvalidateCache(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("classification cache clear failed", zap.Error(err))
		return
	}
	s.logger.Debug("classification cache cleared")
}

// CacheStats returns hit/miss statistics when the underlying store tracks
// them.
func (s *Service) CacheStats() (cache.Stats, bool) {
	if provider, ok := s.store.(cache.StatsProvider); ok {
		return provider.Stats(), true
	}
	return cache.Stats{}, false
}

func (s *Service) cached(ctx context.Context, rawUA string) (models.AgentClassification, bool) {
	data, ok, err := s.store.Get(ctx, rawUA)
	if err != nil {
		s.logger.Warn("classification cache read failed", zap.Error(err))
		return models.AgentClassification{}, false
	}
	if !ok {
		return models.AgentClassification{}, false
	}

	var c models.AgentClassification
	if err := json.Unmarshal(data, &c); err != nil {
		// Undecodable entries are dropped rather than served.
		_ = s.store.Delete(ctx, rawUA)
		return models.AgentClassification{}, false
	}
	return c, true
}

func (s *Service) remember(ctx context.Context, rawUA string, c models.AgentClassification) {
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, rawUA, data); err != nil {
		s.logger.Warn("classification cache write failed", zap.Error(err))
	}
}

// parseGeneric extracts browser and OS with the general-purpose parser.
// The browser name is trusted only when the parser also resolved a device
// class; bare product tokens like "SomeBot/1.0" never do.
func parseGeneric(rawUA string) models.AgentClassification {
	parsed := useragent.Parse(rawUA)

	c := models.AgentClassification{
		Browser: models.UnknownField,
		OS:      models.UnknownField,
	}

	if parsed.Name != "" && !parsed.Bot && (parsed.Desktop || parsed.Mobile || parsed.Tablet) {
		c.Browser = parsed.Name
	}
	if parsed.OS != "" {
		c.OS = parsed.OS
	}

	return c
}
