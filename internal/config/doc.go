// Package config loads the layered RuntimeConfig: a global defaults file
// overridden by an agent-local delta file (JSON or JSONC), with a sha256
// digest over the canonical effective payload used to detect change.
package config
