package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/agentmesh/runtime/pkg/types"
)

const (
	defaultTerminalTimeout = 120 * time.Second
	maxTerminalTimeout     = 10 * time.Minute
)

// denySubstrings blocks a small set of obviously destructive commands; it
// is not a sandbox on its own, just a speed bump before the timeout and
// workspace-rooted execution take over.
var denySubstrings = []string{
	"rm -rf /", "mkfs", "shutdown", "reboot", ":(){ :|:& };:",
}

// hardKeepEnv is never scrubbed even though its name matches a sensitive
// marker.
var hardKeepEnv = map[string]bool{"PATH": true, "HOME": true, "LANG": true, "TERM": true}

var scrubbedEnvMarkers = []string{"KEY", "TOKEN", "SECRET", "PASSWORD", "AUTH", "CREDENTIAL", "COOKIE"}

// TerminalTool implements terminal/exec: L3, shell-execute via mvdan.cc/sh's
// POSIX/Bash interpreter rooted at the workspace, with a scrubbed
// environment and output cap.
type TerminalTool struct {
	TimeoutSecs int
	OutputChars int
}

func (TerminalTool) Name() string { return "terminal" }
func (TerminalTool) Tier() Tier   { return TierSystem }

type terminalArgs struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"` // seconds
}

func (t TerminalTool) Run(ctx context.Context, rawArgs json.RawMessage, call CallContext) types.ToolResult {
	meta := types.ResultMeta{ToolName: "terminal"}
	var args terminalArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return types.NewFail(types.ErrInvalidArgs, "invalid arguments: "+err.Error(), false, nil, meta)
	}
	if strings.TrimSpace(args.Command) == "" {
		return types.NewFail(types.ErrInvalidArgs, "command is required", false, nil, meta)
	}

	for _, bad := range denySubstrings {
		if strings.Contains(args.Command, bad) {
			return types.NewFail(types.ErrPolicyDenied, "command denied by policy", false, nil, meta)
		}
	}

	timeout := defaultTerminalTimeout
	if t.TimeoutSecs > 0 {
		timeout = time.Duration(t.TimeoutSecs) * time.Second
	}
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout) * time.Second
	}
	if timeout > maxTerminalTimeout {
		timeout = maxTerminalTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	prog, err := parser.Parse(strings.NewReader(args.Command), "")
	if err != nil {
		return types.NewFail(types.ErrInvalidArgs, "parse error: "+err.Error(), false, nil, meta)
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.StdIO(strings.NewReader(""), &stdout, &stderr),
		interp.Env(scrubbedEnviron()),
		interp.Dir(call.WorkspaceRoot),
	)
	if err != nil {
		return types.NewFail(types.ErrInternal, "runner init failed: "+err.Error(), false, nil, meta)
	}

	runErr := runner.Run(runCtx, prog)

	outputLimit := t.OutputChars
	if outputLimit <= 0 {
		outputLimit = 30000
	}
	output := stdout.String() + stderr.String()
	truncated := false
	if len(output) > outputLimit {
		output = output[:outputLimit]
		truncated = true
	}
	meta.Truncated = truncated

	if runCtx.Err() != nil {
		return types.NewFail(types.ErrTimeout, "command timed out", true, map[string]any{"output": output}, meta)
	}
	if runErr != nil {
		return types.NewFail(types.ErrExec, runErr.Error(), true, map[string]any{"output": output}, meta)
	}

	return types.NewOk(map[string]any{"output": output}, meta)
}

// scrubbedEnviron builds the interpreter's environment, dropping any
// variable whose name (uppercased) contains a sensitive marker unless it's
// in the hard-keep set.
func scrubbedEnviron() expand.Environ {
	var pairs []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if hardKeepEnv[name] {
			pairs = append(pairs, kv)
			continue
		}
		upper := strings.ToUpper(name)
		scrub := false
		for _, marker := range scrubbedEnvMarkers {
			if strings.Contains(upper, marker) {
				scrub = true
				break
			}
		}
		if !scrub {
			pairs = append(pairs, kv)
		}
	}
	return expand.ListEnviron(pairs...)
}
