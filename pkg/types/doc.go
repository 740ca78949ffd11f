// Package types provides the core data model shared across the agent
// runtime: agents, sessions, runs, usage accounting, retrieval indices,
// cron jobs and tool results.
package types
