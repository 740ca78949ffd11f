package agent

import (
	"os"
	"path/filepath"

	"github.com/agentmesh/runtime/internal/config"
	"github.com/agentmesh/runtime/internal/logging"
)

// placeholderMemory is the canonical memory/MEMORY.md content a freshly
// seeded workspace carries; legacy migration only overwrites a canonical
// file that is absent or still equal to this placeholder, never real notes.
const placeholderMemory = "# Memory\n\n(no long-term memory recorded yet)\n"

var templateFiles = map[string]string{
	"workspace/AGENTS.md":    "# Agents\n\nNo collaborating agents configured.\n",
	"workspace/SOUL.md":      "# Soul\n\nDefault operating persona.\n",
	"workspace/IDENTITY.md":  "# Identity\n\nUnnamed agent.\n",
	"workspace/USER.md":      "# User Profile\n\nNo profile recorded yet.\n",
	"workspace/HEARTBEAT.md": "# Heartbeat\n\n# Blank or comment-only content disables heartbeat turns.\n",
	"workspace/BOOTSTRAP.md": "# Bootstrap\n\nNo additional bootstrap instructions.\n",
	"memory/MEMORY.md":       placeholderMemory,
}

// seedWorkspace ensures every fixed subdirectory and template file exists
// under root, writing only files that are missing. It never overwrites an
// existing file, including partially-customized template files.
func seedWorkspace(root string) error {
	for _, dir := range config.WorkspaceSubdirs(root) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	for rel, content := range templateFiles {
		path := filepath.Join(root, rel)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// migrateLegacyMemory moves a root-level MEMORY.md (an older single-
// workspace layout) into memory/MEMORY.md, but only when the canonical
// file is absent or still the unmodified placeholder — a workspace with
// real memory content is never clobbered. Failures are logged and
// swallowed: migration is best-effort per spec.
func migrateLegacyMemory(root string) {
	legacyPath := filepath.Join(root, "MEMORY.md")
	legacy, err := os.ReadFile(legacyPath)
	if err != nil {
		return // no legacy file, nothing to migrate
	}

	canonicalPath := filepath.Join(root, "memory", "MEMORY.md")
	canonical, err := os.ReadFile(canonicalPath)
	canonicalIsPlaceholder := err != nil || string(canonical) == placeholderMemory
	if !canonicalIsPlaceholder {
		return
	}

	if err := os.MkdirAll(filepath.Dir(canonicalPath), 0o755); err != nil {
		logging.Warn().Err(err).Str("root", root).Msg("legacy memory migration: mkdir failed, skipping")
		return
	}
	if err := os.WriteFile(canonicalPath, legacy, 0o644); err != nil {
		logging.Warn().Err(err).Str("root", root).Msg("legacy memory migration: write failed, skipping")
		return
	}
	if err := os.Remove(legacyPath); err != nil {
		logging.Warn().Err(err).Str("root", root).Msg("legacy memory migration: cleanup of old file failed")
	}
}
