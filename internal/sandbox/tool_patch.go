package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/agentmesh/runtime/pkg/types"
)

// ApplyPatchTool implements apply_patch: L1, applying one or more unified
// diff hunks against workspace-relative files. Every target path is
// resolved through the same guard as every other file tool before any
// write happens; a dry run validates every hunk before anything is
// persisted to disk.
type ApplyPatchTool struct{}

func (ApplyPatchTool) Name() string { return "apply_patch" }
func (ApplyPatchTool) Tier() Tier   { return TierWrite }

type applyPatchArgs struct {
	Patch string `json:"patch"`
}

type patchFileChange struct {
	Path    string `json:"path"`
	Hunks   int    `json:"hunks"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

func (ApplyPatchTool) Run(_ context.Context, rawArgs json.RawMessage, call CallContext) types.ToolResult {
	meta := types.ResultMeta{ToolName: "apply_patch"}
	var args applyPatchArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return types.NewFail(types.ErrInvalidArgs, "invalid arguments: "+err.Error(), false, nil, meta)
	}
	if strings.TrimSpace(args.Patch) == "" {
		return types.NewFail(types.ErrInvalidArgs, "patch is required", false, nil, meta)
	}

	sections, err := splitUnifiedDiff(args.Patch)
	if err != nil {
		return types.NewFail(types.ErrInvalidArgs, err.Error(), false, nil, meta)
	}
	if len(sections) == 0 {
		return types.NewFail(types.ErrInvalidArgs, "no file sections found in patch", false, nil, meta)
	}

	dmp := diffmatchpatch.New()

	// Dry run: resolve every path and verify every hunk applies cleanly
	// against the file's current content before touching disk.
	type planned struct {
		absPath string
		result  string
		patches []diffmatchpatch.Patch
	}
	plans := make([]planned, 0, len(sections))
	for _, sec := range sections {
		absPath, perr := ResolveWorkspacePath(call.WorkspaceRoot, sec.path)
		if perr != nil {
			return types.NewFail(types.ErrInvalidPath, fmt.Sprintf("%s: %s", sec.path, perr.Error()), false, nil, meta)
		}
		patches, perr := dmp.PatchFromText(sec.hunkText)
		if perr != nil {
			return types.NewFail(types.ErrInvalidArgs, fmt.Sprintf("%s: invalid hunk: %s", sec.path, perr.Error()), false, nil, meta)
		}
		original := ""
		if data, rerr := os.ReadFile(absPath); rerr == nil {
			original = string(data)
		} else if !os.IsNotExist(rerr) {
			return types.NewFail(types.ErrIO, fmt.Sprintf("%s: %s", sec.path, rerr.Error()), true, nil, meta)
		}
		result, applied := dmp.PatchApply(patches, original)
		for _, ok := range applied {
			if !ok {
				return types.NewFail(types.ErrInvalidArgs, fmt.Sprintf("%s: hunk failed to apply cleanly", sec.path), false, nil, meta)
			}
		}
		plans = append(plans, planned{absPath: absPath, result: result, patches: patches})
	}

	changes := make([]patchFileChange, 0, len(plans))
	for i, p := range plans {
		if err := os.WriteFile(p.absPath, []byte(p.result), 0o644); err != nil {
			changes = append(changes, patchFileChange{Path: sections[i].path, Hunks: len(p.patches), Applied: false, Error: err.Error()})
			return types.NewFail(types.ErrIO, err.Error(), true, map[string]any{"changes": changes}, meta)
		}
		changes = append(changes, patchFileChange{Path: sections[i].path, Hunks: len(p.patches), Applied: true})
	}

	return types.NewOk(map[string]any{"changes": changes}, meta)
}

type diffSection struct {
	path     string
	hunkText string
}

// splitUnifiedDiff splits a multi-file unified diff into per-file sections,
// each keyed by its "+++ " target path, with the hunk body (everything from
// the first "@@" line onward) handed to diffmatchpatch's patch parser.
func splitUnifiedDiff(patch string) ([]diffSection, error) {
	lines := strings.Split(patch, "\n")
	var sections []diffSection
	var curPath string
	var curBody []string
	flush := func() {
		if curPath != "" && len(curBody) > 0 {
			sections = append(sections, diffSection{path: curPath, hunkText: strings.Join(curBody, "\n") + "\n"})
		}
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "--- "):
			continue
		case strings.HasPrefix(line, "+++ "):
			flush()
			curPath = parseDiffPath(line[4:])
			curBody = nil
		default:
			if curPath != "" {
				curBody = append(curBody, line)
			}
		}
	}
	flush()
	return sections, nil
}

func parseDiffPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if tab := strings.IndexByte(raw, '\t'); tab >= 0 {
		raw = raw[:tab]
	}
	raw = strings.TrimPrefix(raw, "a/")
	raw = strings.TrimPrefix(raw, "b/")
	return raw
}
