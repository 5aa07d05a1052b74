package models

import "strings"

// Canonical header names used throughout the pipeline. Lookup keys are
// lower-cased, so these are the exact map keys adapters produce.
const (
	HeaderUserAgent     = "user-agent"
	HeaderAuthorization = "authorization"
	HeaderForwardedFor  = "x-forwarded-for"
	HeaderOriginalHost  = "x-original-host"
)

// EdgeSignal is one host-native bot telemetry slot: a numeric bot score, an
// explicit verified-bot flag, or both. Absent fields contribute nothing to
// the verdict.
type EdgeSignal struct {
	BotScore    *float64 `json:"bot_score,omitempty"`
	VerifiedBot *bool    `json:"verified_bot,omitempty"`
}

// BotLike reports whether the signal flags the request as automated: a
// score strictly below the threshold, or the verified-bot flag set.
func (s EdgeSignal) BotLike(threshold float64) bool {
	if s.BotScore != nil && *s.BotScore < threshold {
		return true
	}
	return s.VerifiedBot != nil && *s.VerifiedBot
}

// RequestContext is the canonical view of one incoming request, produced by
// a host adapter and consumed by the pipeline. It is built fresh per request
// and never persisted.
type RequestContext struct {
	ID         string
	Method     string
	Host       string
	Path       string
	RawQuery   string
	Headers    map[string]string
	Signals    []EdgeSignal
	RemoteAddr string
}

// Header returns the first value of the named header, case-insensitively.
func (rc *RequestContext) Header(name string) string {
	return rc.Headers[strings.ToLower(name)]
}

// UserAgent returns the declared User-Agent header value, if any.
func (rc *RequestContext) UserAgent() string {
	return rc.Header(HeaderUserAgent)
}

// Resource returns the request path including the query string, as recorded
// in access telemetry.
func (rc *RequestContext) Resource() string {
	if rc.RawQuery == "" {
		return rc.Path
	}
	return rc.Path + "?" + rc.RawQuery
}

// URL reconstructs the full request URL from the canonical fields.
func (rc *RequestContext) URL() string {
	if rc.Host == "" {
		return rc.Resource()
	}
	return "https://" + rc.Host + rc.Resource()
}
