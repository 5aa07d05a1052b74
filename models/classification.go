package models

// UnknownField is the placeholder for browser/OS values the generic parser
// cannot resolve.
const UnknownField = "Unknown"

// AgentClassification is the result of classifying one raw user-agent
// string. Browser and OS are always set (falling back to UnknownField); the
// remaining fields are populated only when a classification rule matched.
type AgentClassification struct {
	Browser       string        `json:"browser"`
	OS            string        `json:"os"`
	Operator      string        `json:"operator,omitempty"`
	Agent         string        `json:"agent,omitempty"`
	Usage         []string      `json:"usage,omitempty"`
	UserInitiated UserInitiated `json:"user_initiated,omitempty"`
}

// IsBot reports whether the classification identifies a known automated
// agent: both the operator and the agent name must be present.
func (c AgentClassification) IsBot() bool {
	return c.Operator != "" && c.Agent != ""
}
