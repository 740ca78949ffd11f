// Package sandbox implements the Tool Sandbox: permission tiers and
// per-trigger ceilings, the run_tool protocol (audit, policy, identical-
// failure retry guard, redaction), the workspace path guard, and the
// built-in tool set (file read, terminal, Python REPL, URL fetch, web
// search, knowledge-base search, patch application).
package sandbox
