package models

import "time"

// UserInitiated captures whether an agent's traffic is driven by a direct
// user action.
type UserInitiated string

const (
	UserInitiatedYes   UserInitiated = "yes"
	UserInitiatedNo    UserInitiated = "no"
	UserInitiatedMaybe UserInitiated = "maybe"
)

// Valid reports whether the value is one of the recognized enum members.
func (u UserInitiated) Valid() bool {
	switch u {
	case UserInitiatedYes, UserInitiatedNo, UserInitiatedMaybe:
		return true
	}
	return false
}

// Common usage tags declared by agent operators.
const (
	UsageAITraining     = "ai_training"
	UsageAIInference    = "ai_inference"
	UsageSearchIndexing = "search_indexing"
)

// ClassificationRule describes one known agent signature. Rules are
// immutable once loaded and are evaluated in declared order; within a rule,
// patterns are evaluated in declared order and the first match wins.
type ClassificationRule struct {
	Operator       string        `json:"operator"`
	Agent          string        `json:"agent"`
	Usage          []string      `json:"usage,omitempty"`
	UserInitiated  UserInitiated `json:"user_initiated,omitempty"`
	Patterns       []Pattern     `json:"patterns"`
	UsagePrefsOnly bool          `json:"usage_prefs_only,omitempty"`
}

// Match reports whether any of the rule's patterns matches the raw
// user-agent string.
func (r *ClassificationRule) Match(rawUA string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(rawUA) {
			return true
		}
	}
	return false
}

// RuleSet is the ordered collection of classification rules currently in
// force, plus the time it was fetched. A RuleSet is replaced wholesale on
// refresh, never mutated in place.
type RuleSet struct {
	Rules     []ClassificationRule `json:"rules"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// Match returns the first rule whose patterns match the raw user-agent
// string, honoring declaration order.
func (rs *RuleSet) Match(rawUA string) (*ClassificationRule, bool) {
	for i := range rs.Rules {
		if rs.Rules[i].Match(rawUA) {
			return &rs.Rules[i], true
		}
	}
	return nil, false
}

// Expired reports whether the RuleSet is older than the given TTL.
func (rs *RuleSet) Expired(ttl time.Duration) bool {
	return time.Since(rs.FetchedAt) > ttl
}
