// Package agent implements the Agent Registry & Runtime Cache: per-agent
// isolated workspaces, idempotent workspace seeding, layered config
// resolution via internal/config, and mtime-triggered reload of the
// cached Runtime collaborators (storage, audit store, and the memory and
// knowledge retrieval indexes).
package agent
