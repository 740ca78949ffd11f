package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/pkg/types"
)

func writeSection(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPromptBuilderAssemblesOrderedSections(t *testing.T) {
	root := t.TempDir()
	writeSection(t, root, "workspace/SOUL.md", "be curious")
	writeSection(t, root, "workspace/IDENTITY.md", "you are Ada")
	writeSection(t, root, "memory/MEMORY.md", "the user prefers terse replies")

	b := NewPromptBuilder(root, types.RuntimeConfig{InjectionMode: types.InjectionEveryTurn})
	out := b.Build(true)

	assert.True(t, strings.Contains(out, "# Soul"))
	assert.True(t, strings.Contains(out, "be curious"))
	assert.True(t, strings.Index(out, "# Soul") < strings.Index(out, "# Identity"))
	assert.True(t, strings.Index(out, "# Identity") < strings.Index(out, "# Long-Term Memory"))
}

func TestPromptBuilderSkipsMissingSections(t *testing.T) {
	root := t.TempDir()
	writeSection(t, root, "workspace/SOUL.md", "be curious")

	b := NewPromptBuilder(root, types.RuntimeConfig{InjectionMode: types.InjectionEveryTurn})
	out := b.Build(true)

	assert.False(t, strings.Contains(out, "# Identity"))
}

func TestPromptBuilderFirstTurnOnlyReturnsEmptyAfterFirstTurn(t *testing.T) {
	root := t.TempDir()
	writeSection(t, root, "workspace/SOUL.md", "be curious")

	b := NewPromptBuilder(root, types.RuntimeConfig{InjectionMode: types.InjectionFirstTurnOnly})
	assert.NotEmpty(t, b.Build(true))
	assert.Empty(t, b.Build(false))
}

func TestPromptBuilderRagModeReplacesMemorySection(t *testing.T) {
	root := t.TempDir()
	writeSection(t, root, "memory/MEMORY.md", "static dump that should not appear")

	b := NewPromptBuilder(root, types.RuntimeConfig{RagMode: true, InjectionMode: types.InjectionEveryTurn})
	out := b.Build(true)

	assert.False(t, strings.Contains(out, "static dump that should not appear"))
	assert.True(t, strings.Contains(out, ragMemoryPlaceholder))
}

func TestPromptBuilderTruncatesPerSectionAndTotal(t *testing.T) {
	root := t.TempDir()
	writeSection(t, root, "workspace/SOUL.md", strings.Repeat("x", 100))

	b := NewPromptBuilder(root, types.RuntimeConfig{
		InjectionMode: types.InjectionEveryTurn,
		Bootstrap:     types.BootstrapConfig{MaxCharsPerSection: 10, TotalMaxChars: 10000},
	})
	out := b.Build(true)
	assert.True(t, strings.Contains(out, truncationMarker))
}

func TestPromptBuilderCacheKeyChangesWithFileMtime(t *testing.T) {
	root := t.TempDir()
	writeSection(t, root, "workspace/SOUL.md", "v1")

	b := NewPromptBuilder(root, types.RuntimeConfig{InjectionMode: types.InjectionEveryTurn})
	k1 := b.CacheKey()

	writeSection(t, root, "workspace/SOUL.md", "v2-much-longer-content-than-before")
	// Force a distinct mtime in case the filesystem's timestamp resolution
	// is coarser than the time between the two writes.
	future := filepath.Join(root, "workspace/SOUL.md")
	bumped := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(future, bumped, bumped))

	k2 := b.CacheKey()
	assert.NotEqual(t, k1, k2)
}
