package types

import "encoding/json"

// ErrorCode is the closed set of machine-readable tool failure reasons.
type ErrorCode string

const (
	ErrPolicyDenied ErrorCode = "E_POLICY_DENIED"
	ErrInvalidArgs  ErrorCode = "E_INVALID_ARGS"
	ErrNotFound     ErrorCode = "E_NOT_FOUND"
	ErrInvalidPath  ErrorCode = "E_INVALID_PATH"
	ErrIO           ErrorCode = "E_IO"
	ErrTimeout      ErrorCode = "E_TIMEOUT"
	ErrHTTP         ErrorCode = "E_HTTP"
	ErrExec         ErrorCode = "E_EXEC"
	ErrInternal     ErrorCode = "E_INTERNAL"
)

// ResultMeta carries uniform bookkeeping attached to every tool result.
type ResultMeta struct {
	ToolName   string   `json:"toolName"`
	DurationMs int64    `json:"durationMs"`
	Truncated  bool     `json:"truncated,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ToolResult is a closed sum type: exactly one of Ok/Fail is populated.
// Construct via NewOk/NewFail rather than the struct literal so callers
// cannot accidentally populate both branches.
type ToolResult struct {
	ok   bool
	data any
	meta ResultMeta

	code      ErrorCode
	message   string
	retryable bool
	details   any
}

// NewOk builds a successful ToolResult.
func NewOk(data any, meta ResultMeta) ToolResult {
	return ToolResult{ok: true, data: data, meta: meta}
}

// NewFail builds a failed ToolResult.
func NewFail(code ErrorCode, message string, retryable bool, details any, meta ResultMeta) ToolResult {
	return ToolResult{code: code, message: message, retryable: retryable, details: details, meta: meta}
}

// IsOk reports whether the result is the Ok branch.
func (r ToolResult) IsOk() bool { return r.ok }

// Data returns the Ok payload; zero-value/nil if this is a Fail result.
func (r ToolResult) Data() any { return r.data }

// Meta returns the shared bookkeeping envelope.
func (r ToolResult) Meta() ResultMeta { return r.meta }

// Code returns the failure code; empty string if this is an Ok result.
func (r ToolResult) Code() ErrorCode { return r.code }

// Message returns the human-readable failure message.
func (r ToolResult) Message() string { return r.message }

// Retryable reports whether the runner may retry the same call.
func (r ToolResult) Retryable() bool { return r.retryable }

// Details returns any structured failure detail payload.
func (r ToolResult) Details() any { return r.details }

// toolResultJSON is the wire shape: {"ok":true,"data":...,"meta":...} or
// {"ok":false,"code":...,"message":...,"retryable":...,"details":...,"meta":...}.
type toolResultJSON struct {
	OK        bool       `json:"ok"`
	Data      any        `json:"data,omitempty"`
	Code      ErrorCode  `json:"code,omitempty"`
	Message   string     `json:"message,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`
	Details   any        `json:"details,omitempty"`
	Meta      ResultMeta `json:"meta"`
}

// MarshalJSON implements json.Marshaler.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(toolResultJSON{
		OK: r.ok, Data: r.data, Code: r.code, Message: r.message,
		Retryable: r.retryable, Details: r.details, Meta: r.meta,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ToolResult) UnmarshalJSON(b []byte) error {
	var w toolResultJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	r.ok = w.OK
	r.data = w.Data
	r.code = w.Code
	r.message = w.Message
	r.retryable = w.Retryable
	r.details = w.Details
	r.meta = w.Meta
	return nil
}
