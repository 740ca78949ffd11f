// Package config loads and layers the per-agent RuntimeConfig: a global
// defaults file overridden by an agent-local delta, with mtime-triggered
// reload and a digest used to detect effective-config change.
package config

import (
	"os"
	"path/filepath"
)

// WorkspacesRoot is the directory under which every agent's workspace tree
// (workspaces/<agent_id>/...) lives.
type WorkspacesRoot string

// DefaultWorkspacesRoot resolves the workspaces root from $AGENTD_DATA_DIR,
// falling back to ./workspaces.
func DefaultWorkspacesRoot() WorkspacesRoot {
	if v := os.Getenv("AGENTD_DATA_DIR"); v != "" {
		return WorkspacesRoot(v)
	}
	return "workspaces"
}

// GlobalConfigPath is the shared defaults file all agents inherit from.
func (r WorkspacesRoot) GlobalConfigPath() string {
	return filepath.Join(string(r), "config.json")
}

// AgentRoot is the workspace directory for a single agent.
func (r WorkspacesRoot) AgentRoot(agentID string) string {
	return filepath.Join(string(r), agentID)
}

// AgentConfigPath is the per-agent override file.
func (r WorkspacesRoot) AgentConfigPath(agentID string) string {
	return filepath.Join(r.AgentRoot(agentID), "config.json")
}

// WorkspaceSubdirs returns the fixed set of subdirectories every agent
// workspace must contain, per the filesystem layout.
func WorkspaceSubdirs(agentRoot string) []string {
	return []string{
		filepath.Join(agentRoot, "workspace"),
		filepath.Join(agentRoot, "memory"),
		filepath.Join(agentRoot, "knowledge"),
		filepath.Join(agentRoot, "sessions"),
		filepath.Join(agentRoot, "sessions", "archive"),
		filepath.Join(agentRoot, "sessions", "archived_sessions"),
		filepath.Join(agentRoot, "storage"),
		filepath.Join(agentRoot, "storage", "memory_index"),
		filepath.Join(agentRoot, "storage", "knowledge_index"),
		filepath.Join(agentRoot, "storage", "usage"),
		filepath.Join(agentRoot, "storage", "audit"),
		filepath.Join(agentRoot, "skills"),
	}
}
