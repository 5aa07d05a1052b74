// Package rules owns the classification ruleset: it fetches rule metadata
// from the filter service and caches the decoded RuleSet for a fixed TTL.
package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/metrics"
	"github.com/paywalls-net/filter/models"
	"github.com/paywalls-net/filter/services"
)

const metadataPath = "/api/filter/agents/metadata"

// wireRule is a rule as it arrives from the metadata endpoint: patterns
// are string envelopes and are compiled during decoding.
type wireRule struct {
	Operator       string   `json:"operator"`
	Agent          string   `json:"agent"`
	Usage          []string `json:"usage"`
	UserInitiated  string   `json:"user_initiated"`
	Patterns       []string `json:"patterns"`
	UsagePrefsOnly bool     `json:"usage_prefs_only"`
}

type metadataRequest struct {
	AccountID string `json:"account_id"`
}

type metadataResponse struct {
	Rules []wireRule `json:"rules"`
}

// Stats describes the state of the cached ruleset for health reporting.
type Stats struct {
	Loaded     bool      `json:"loaded"`
	Rules      int       `json:"rules"`
	FetchedAt  time.Time `json:"fetched_at,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	Generation uint64    `json:"generation"`
}

// Service fetches classification rule metadata and holds the decoded
// RuleSet as a TTL-bound singleton. Concurrent refreshes are serialized
// per process; the RuleSet itself is replaced wholesale and never mutated.
type Service struct {
	baseURL    string
	apiKey     string
	accountID  string
	ttl        time.Duration
	strict     bool
	httpClient *http.Client
	logger     *zap.Logger

	mu         sync.RWMutex
	current    *models.RuleSet
	generation uint64

	// refreshMu serializes fetches so at most one flies per process.
	refreshMu sync.Mutex

	hookMu    sync.Mutex
	onRefresh []func()
}

// New creates a new rules Service from the filter configuration.
func New(cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		baseURL:   cfg.Service.APIBaseURL,
		apiKey:    cfg.Service.APIKey,
		accountID: cfg.Service.AccountID,
		ttl:       cfg.Service.RulesetTTL,
		strict:    cfg.Classifier.StrictPatterns,
		httpClient: &http.Client{
			Timeout: cfg.Service.HTTPTimeout,
		},
		logger: logger,
	}
}

// OnRefresh registers a hook that runs after every successful refresh.
// The classifier registers its cache invalidation here so stale
// classifications never outlive the ruleset they were derived from.
func (s *Service) OnRefresh(fn func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onRefresh = append(s.onRefresh, fn)
}

// RuleSet returns the current ruleset, refreshing it from the filter
// service when the cached copy is missing or older than the TTL.
func (s *Service) RuleSet(ctx context.Context) (*models.RuleSet, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	if current != nil && !current.Expired(s.ttl) {
		return current, nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	s.mu.RLock()
	current = s.current
	s.mu.RUnlock()

	if current != nil && !current.Expired(s.ttl) {
		return current, nil
	}

	fresh, err := s.fetch(ctx)
	if err != nil {
		metrics.RecordRulesetRefresh("error")
		s.logger.Error("ruleset refresh failed", zap.Error(err))
		return nil, err
	}
	metrics.RecordRulesetRefresh("ok")

	s.mu.Lock()
	s.current = fresh
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	s.runRefreshHooks()

	s.logger.Info("ruleset refreshed",
		zap.Int("rules", len(fresh.Rules)),
		zap.Uint64("generation", generation))

	return fresh, nil
}

// Invalidate drops the cached ruleset so the next caller refetches.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	s.logger.Debug("ruleset invalidated")
}

// Generation returns the number of successful refreshes so far.
func (s *Service) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Stats returns the state of the cached ruleset.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Generation: s.generation}
	if s.current != nil {
		stats.Loaded = true
		stats.Rules = len(s.current.Rules)
		stats.FetchedAt = s.current.FetchedAt
		stats.ExpiresAt = s.current.FetchedAt.Add(s.ttl)
	}
	return stats
}

func (s *Service) runRefreshHooks() {
	s.hookMu.Lock()
	hooks := make([]func(), len(s.onRefresh))
	copy(hooks, s.onRefresh)
	s.hookMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// fetch retrieves and decodes the rule metadata payload.
func (s *Service) fetch(ctx context.Context) (*models.RuleSet, error) {
	payload, err := json.Marshal(metadataRequest{AccountID: s.accountID})
	if err != nil {
		return nil, services.WrapDeserialization("failed to marshal metadata request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+metadataPath, bytes.NewReader(payload))
	if err != nil {
		return nil, services.WrapRemoteFetch("failed to create metadata request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemoteRequest("metadata", "error", time.Since(start))
		return nil, services.WrapRemoteFetch("metadata request failed", err)
	}
	defer resp.Body.Close()
	metrics.ObserveRemoteRequest("metadata", strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, services.NewFilterError(services.ErrorTypeRemoteFetch,
			fmt.Sprintf("metadata request returned status %d", resp.StatusCode), nil).
			WithDetail("body", strings.TrimSpace(string(body)))
	}

	var decoded metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, services.WrapDeserialization("failed to decode metadata response", err)
	}

	ruleList, err := s.decodeRules(decoded.Rules)
	if err != nil {
		return nil, err
	}

	return &models.RuleSet{
		Rules:     ruleList,
		FetchedAt: time.Now(),
	}, nil
}

// decodeRules compiles the wire rules. A rule with an undecodable pattern
// is skipped with a warning in lenient mode and fails the whole load in
// strict mode.
func (s *Service) decodeRules(wire []wireRule) ([]models.ClassificationRule, error) {
	ruleList := make([]models.ClassificationRule, 0, len(wire))

	for _, wr := range wire {
		patterns := make([]models.Pattern, 0, len(wr.Patterns))
		var badPattern error

		for _, raw := range wr.Patterns {
			p, err := models.ParsePattern(raw)
			if err != nil {
				badPattern = services.WrapDeserialization(
					fmt.Sprintf("pattern %q cannot be decoded", raw), err)
				break
			}
			patterns = append(patterns, p)
		}

		if badPattern != nil {
			if s.strict {
				return nil, badPattern
			}
			s.logger.Warn("skipping rule with undecodable pattern",
				zap.String("operator", wr.Operator),
				zap.String("agent", wr.Agent),
				zap.Error(badPattern))
			continue
		}

		ruleList = append(ruleList, models.ClassificationRule{
			Operator:       wr.Operator,
			Agent:          wr.Agent,
			Usage:          wr.Usage,
			UserInitiated:  models.UserInitiated(wr.UserInitiated),
			Patterns:       patterns,
			UsagePrefsOnly: wr.UsagePrefsOnly,
		})
	}

	return ruleList, nil
}
