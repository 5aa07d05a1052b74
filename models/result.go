package models

// Outcome identifies how the filter pipeline disposed of a request.
type Outcome string

const (
	// OutcomeProxied means a verification artifact was fetched and relayed.
	OutcomeProxied Outcome = "proxied"
	// OutcomePassThrough means no bot signal fired and the host continues.
	OutcomePassThrough Outcome = "pass_through"
	// OutcomeAllowed means a bot-like request was authorized to continue.
	OutcomeAllowed Outcome = "allowed"
	// OutcomeDenied means the request was intercepted with a deny response.
	OutcomeDenied Outcome = "denied"
)

// EdgeResult is the host-neutral result of running the pipeline over a
// request. Response is non-nil exactly when the request is intercepted
// (proxied or denied); adapters translate it into their native shape.
type EdgeResult struct {
	Outcome  Outcome           `json:"outcome"`
	Response *DecisionResponse `json:"response,omitempty"`
	// Decision is set when the authorization step ran.
	Decision *AuthorizationDecision `json:"decision,omitempty"`
}

// Intercepted reports whether the host should write Response instead of
// continuing its own request flow.
func (r *EdgeResult) Intercepted() bool {
	return r != nil && r.Response != nil
}
