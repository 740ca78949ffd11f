package sandbox

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned by ResolveWorkspacePath when relPath escapes
// the workspace root.
var ErrInvalidPath = errors.New("sandbox: invalid path")

// ResolveWorkspacePath joins relPath onto root, rejecting absolute paths
// and any ".." component so a tool call can never read or write outside
// the agent's workspace.
func ResolveWorkspacePath(root, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", ErrInvalidPath
	}
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if part == ".." {
			return "", ErrInvalidPath
		}
	}

	resolved := filepath.Join(root, relPath)
	rootClean := filepath.Clean(root)
	if resolved != rootClean && !strings.HasPrefix(resolved, rootClean+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return resolved, nil
}
