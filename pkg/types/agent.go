package types

import "regexp"

// DefaultAgentID is the id of the built-in agent that can never be deleted.
const DefaultAgentID = "default"

// AgentIDPattern is the validation pattern for agent identifiers.
var AgentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidAgentID reports whether id matches the allowed agent-id grammar.
func ValidAgentID(id string) bool {
	return AgentIDPattern.MatchString(id)
}

// AgentInfo is the enumerable, serializable view of an agent.
type AgentInfo struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
	Root      string `json:"root"`
}
