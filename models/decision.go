package models

// Access is the two-valued outcome of an authorization decision.
type Access string

const (
	AccessAllow Access = "allow"
	AccessDeny  Access = "deny"
)

// Decision reasons produced locally. Reasons originating from the remote
// service are relayed as-is.
const (
	ReasonMissingUserAgent = "missing_user_agent"
	ReasonUnknownError     = "unknown_error"
)

// DecisionResponse is the client-visible response attached to a deny
// decision (or produced by the VAI proxy): status code, headers, and a body
// relayed verbatim.
type DecisionResponse struct {
	Code    int               `json:"code"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body"`
}

// AuthorizationDecision is the structured outcome for one bot-like request.
// Decisions returned by the remote service are trusted verbatim; the local
// constructors below cover the two failure modes decided without (or despite)
// a remote call.
type AuthorizationDecision struct {
	Access   Access            `json:"access"`
	Reason   string            `json:"reason,omitempty"`
	Response *DecisionResponse `json:"response,omitempty"`
}

// Denied reports whether the decision blocks the request.
func (d *AuthorizationDecision) Denied() bool {
	return d != nil && d.Access == AccessDeny
}

// Status returns the decision without its response payload, the shape
// emitted in access telemetry.
func (d *AuthorizationDecision) Status() DecisionStatus {
	if d == nil {
		return DecisionStatus{}
	}
	return DecisionStatus{Access: d.Access, Reason: d.Reason}
}

// DecisionStatus is an AuthorizationDecision minus its response field.
type DecisionStatus struct {
	Access Access `json:"access"`
	Reason string `json:"reason,omitempty"`
}

// DenyMissingUserAgent is the immediate deny for requests that carry no
// User-Agent header. No remote call is made for these.
func DenyMissingUserAgent() *AuthorizationDecision {
	return &AuthorizationDecision{
		Access: AccessDeny,
		Reason: ReasonMissingUserAgent,
		Response: &DecisionResponse{
			Code: 401,
			Body: "Unauthorized access.",
		},
	}
}

// DenyUnknownError is the fail-closed deny used when the remote
// authorization service is unreachable, times out, or answers non-2xx.
func DenyUnknownError() *AuthorizationDecision {
	return &AuthorizationDecision{
		Access: AccessDeny,
		Reason: ReasonUnknownError,
		Response: &DecisionResponse{
			Code: 502,
			Body: "Bad Gateway.",
		},
	}
}
