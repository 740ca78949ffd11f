package sandbox

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/pkg/types"
)

func buildUnifiedPatch(t *testing.T, path, before, after string) string {
	t.Helper()
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	patches := dmp.PatchMake(before, diffs)
	hunkText := dmp.PatchToText(patches)
	require.NotEmpty(t, hunkText)
	return "--- a/" + path + "\n+++ b/" + path + "\n" + hunkText
}

func TestApplyPatchToolAppliesSingleFileHunk(t *testing.T) {
	root := t.TempDir()
	writeTempFile(t, root, "notes.md", "line1\nline2\nline3\n")

	patch := buildUnifiedPatch(t, "notes.md", "line1\nline2\nline3\n", "line1\nCHANGED\nline3\n")
	args, _ := json.Marshal(applyPatchArgs{Patch: patch})
	result := ApplyPatchTool{}.Run(context.Background(), args, CallContext{WorkspaceRoot: root})
	require.True(t, result.IsOk())

	data := result.Data().(map[string]any)
	changes := data["changes"].([]patchFileChange)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Applied)
	assert.Equal(t, "notes.md", changes[0].Path)

	content, err := os.ReadFile(filepath.Join(root, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "line1\nCHANGED\nline3\n", string(content))
}

func TestApplyPatchToolRejectsEmptyPatch(t *testing.T) {
	root := t.TempDir()
	args, _ := json.Marshal(applyPatchArgs{Patch: "  "})
	result := ApplyPatchTool{}.Run(context.Background(), args, CallContext{WorkspaceRoot: root})
	assert.False(t, result.IsOk())
	assert.Equal(t, types.ErrInvalidArgs, result.Code())
}

func TestApplyPatchToolRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	patch := buildUnifiedPatch(t, "../escape.txt", "a\n", "b\n")
	args, _ := json.Marshal(applyPatchArgs{Patch: patch})
	result := ApplyPatchTool{}.Run(context.Background(), args, CallContext{WorkspaceRoot: root})
	assert.False(t, result.IsOk())
	assert.Equal(t, types.ErrInvalidPath, result.Code())
}

func TestApplyPatchToolFailsCleanlyWhenHunkDoesNotMatch(t *testing.T) {
	root := t.TempDir()
	writeTempFile(t, root, "notes.md", "totally different content\n")

	patch := buildUnifiedPatch(t, "notes.md", "line1\nline2\nline3\n", "line1\nCHANGED\nline3\n")
	args, _ := json.Marshal(applyPatchArgs{Patch: patch})
	result := ApplyPatchTool{}.Run(context.Background(), args, CallContext{WorkspaceRoot: root})
	assert.False(t, result.IsOk())
	assert.Equal(t, types.ErrInvalidArgs, result.Code())

	content, err := os.ReadFile(filepath.Join(root, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "totally different content\n", string(content), "a failed dry run must leave the file untouched")
}

func TestSplitUnifiedDiffExtractsTargetPath(t *testing.T) {
	patch := buildUnifiedPatch(t, "a/b/file.txt", "x\n", "y\n")
	sections, err := splitUnifiedDiff(patch)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "a/b/file.txt", sections[0].path)
}
