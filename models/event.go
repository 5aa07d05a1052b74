package models

import "github.com/google/uuid"

// AccessEvent is one access-telemetry record. The JSON shape is the wire
// contract of the access-log endpoint; the ID is local-only correlation for
// fault logging.
type AccessEvent struct {
	ID        string            `json:"-"`
	AccountID string            `json:"account_id"`
	Status    DecisionStatus    `json:"status"`
	Method    string            `json:"method"`
	Hostname  string            `json:"hostname"`
	Resource  string            `json:"resource"`
	UserAgent string            `json:"user_agent"`
	Headers   map[string]string `json:"headers"`
}

// NewAccessEvent builds the telemetry record for one decided request.
func NewAccessEvent(accountID string, rc *RequestContext, decision *AuthorizationDecision) *AccessEvent {
	return &AccessEvent{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Status:    decision.Status(),
		Method:    rc.Method,
		Hostname:  rc.Host,
		Resource:  rc.Resource(),
		UserAgent: rc.UserAgent(),
		Headers:   rc.Headers,
	}
}
