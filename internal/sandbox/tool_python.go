package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/agentmesh/runtime/pkg/types"
)

const defaultPythonTimeout = 30 * time.Second

// pythonBuiltinsPreamble strips the most dangerous builtins before the
// submitted code runs; the process itself still has normal OS privileges,
// so this is a courtesy guard, not a real sandbox boundary.
const pythonBuiltinsPreamble = `
import builtins as _b
for _name in ("eval", "exec", "compile", "__import__", "open", "input"):
    if hasattr(_b, _name):
        delattr(_b, _name)
`

// PythonReplTool implements python_repl: L1, a short-lived child
// interpreter with a wall-clock timeout.
type PythonReplTool struct {
	TimeoutSecs int
}

func (PythonReplTool) Name() string { return "python_repl" }
func (PythonReplTool) Tier() Tier   { return TierWrite }

type pythonArgs struct {
	Code string `json:"code"`
}

func (t PythonReplTool) Run(ctx context.Context, rawArgs json.RawMessage, call CallContext) types.ToolResult {
	meta := types.ResultMeta{ToolName: "python_repl"}
	var args pythonArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return types.NewFail(types.ErrInvalidArgs, "invalid arguments: "+err.Error(), false, nil, meta)
	}
	if strings.TrimSpace(args.Code) == "" {
		return types.NewFail(types.ErrInvalidArgs, "code is required", false, nil, meta)
	}

	timeout := defaultPythonTimeout
	if t.TimeoutSecs > 0 {
		timeout = time.Duration(t.TimeoutSecs) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "python3", "-c", pythonBuiltinsPreamble+args.Code)
	cmd.Dir = call.WorkspaceRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := stdout.String() + stderr.String()

	if runCtx.Err() != nil {
		return types.NewFail(types.ErrTimeout, "python_repl timed out", true, map[string]any{"output": output}, meta)
	}
	if err != nil {
		return types.NewFail(types.ErrExec, err.Error(), true, map[string]any{"output": output}, meta)
	}
	return types.NewOk(map[string]any{"output": output}, meta)
}
