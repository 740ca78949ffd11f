package sandbox

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/agentmesh/runtime/pkg/types"
)

const defaultMaxReadChars = 50000

// ReadFileTool implements read_file: L0, sliced-text reads with a
// truncation flag.
type ReadFileTool struct{}

func (ReadFileTool) Name() string { return "read_file" }
func (ReadFileTool) Tier() Tier   { return TierRead }

type readFileArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
	MaxChars  int    `json:"max_chars,omitempty"`
}

func (ReadFileTool) Run(_ context.Context, rawArgs json.RawMessage, call CallContext) types.ToolResult {
	meta := types.ResultMeta{ToolName: "read_file"}
	var args readFileArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return types.NewFail(types.ErrInvalidArgs, "invalid arguments: "+err.Error(), false, nil, meta)
	}

	text, truncated, err := readSliced(call.WorkspaceRoot, args.Path, args.StartLine, args.EndLine, args.MaxChars)
	if err != nil {
		return readErrToResult(err, meta)
	}
	meta.Truncated = truncated
	return types.NewOk(map[string]any{"path": args.Path, "text": text}, meta)
}

// ReadFilesTool implements read_files: multiple paths, per-path outcomes,
// a `partial` flag when any row failed.
type ReadFilesTool struct{}

func (ReadFilesTool) Name() string { return "read_files" }
func (ReadFilesTool) Tier() Tier   { return TierRead }

type readFilesArgs struct {
	Paths    []string `json:"paths"`
	MaxChars int      `json:"max_chars,omitempty"`
}

type readFilesRow struct {
	Path      string `json:"path"`
	Text      string `json:"text,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

func (ReadFilesTool) Run(_ context.Context, rawArgs json.RawMessage, call CallContext) types.ToolResult {
	meta := types.ResultMeta{ToolName: "read_files"}
	var args readFilesArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return types.NewFail(types.ErrInvalidArgs, "invalid arguments: "+err.Error(), false, nil, meta)
	}

	rows := make([]readFilesRow, 0, len(args.Paths))
	partial := false
	for _, p := range args.Paths {
		text, truncated, err := readSliced(call.WorkspaceRoot, p, 0, 0, args.MaxChars)
		if err != nil {
			partial = true
			rows = append(rows, readFilesRow{Path: p, Error: err.Error(), Code: string(readErrCode(err))})
			continue
		}
		rows = append(rows, readFilesRow{Path: p, Text: text, Truncated: truncated})
	}

	return types.NewOk(map[string]any{"rows": rows, "partial": partial}, meta)
}

func readSliced(root, relPath string, startLine, endLine, maxChars int) (string, bool, error) {
	path, err := ResolveWorkspacePath(root, relPath)
	if err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}

	text := string(data)
	if startLine > 0 || endLine > 0 {
		lines := strings.Split(text, "\n")
		start := startLine - 1
		if start < 0 {
			start = 0
		}
		end := endLine
		if end <= 0 || end > len(lines) {
			end = len(lines)
		}
		if start > end {
			start = end
		}
		text = strings.Join(lines[start:end], "\n")
	}

	limit := maxChars
	if limit <= 0 {
		limit = defaultMaxReadChars
	}
	truncated := false
	if len(text) > limit {
		text = text[:limit]
		truncated = true
	}
	return text, truncated, nil
}

func readErrCode(err error) types.ErrorCode {
	if err == ErrInvalidPath {
		return types.ErrInvalidPath
	}
	if os.IsNotExist(err) {
		return types.ErrNotFound
	}
	return types.ErrIO
}

func readErrToResult(err error, meta types.ResultMeta) types.ToolResult {
	return types.NewFail(readErrCode(err), err.Error(), false, nil, meta)
}
