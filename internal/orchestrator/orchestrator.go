package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/agentmesh/runtime/internal/agent"
	"github.com/agentmesh/runtime/internal/audit"
	"github.com/agentmesh/runtime/internal/event"
	"github.com/agentmesh/runtime/internal/provider"
	"github.com/agentmesh/runtime/internal/sandbox"
	"github.com/agentmesh/runtime/internal/scheduler"
	"github.com/agentmesh/runtime/internal/storage"
	"github.com/agentmesh/runtime/pkg/types"
)

// livePersistInterval is the minimum gap between SetLiveResponse writes
// while streaming; tool-call transitions bypass it and flush immediately.
const livePersistInterval = 350 * time.Millisecond

// Orchestrator implements scheduler.RunInvoker and the HTTP chat surface:
// it is the single place a turn is actually executed, covering both the
// user-driven (chat) and scheduler-driven (cron, heartbeat) entry points.
type Orchestrator struct {
	Registry  *agent.Registry
	Providers *provider.Registry
	Runs      *RunManager
}

// NewOrchestrator builds an Orchestrator over a Registry and Providers.
func NewOrchestrator(registry *agent.Registry, providers *provider.Registry) *Orchestrator {
	return &Orchestrator{Registry: registry, Providers: providers, Runs: NewRunManager()}
}

// Chat begins (or attaches to) the run for (agentID, sessionID) with
// message, returning the RunState a caller subscribes to for SSE, or
// blocks on via RunState.Done() for a non-streaming JSON response.
// attached reports whether an identical in-flight run was reused rather
// than a new one started; err is ErrSessionBusy when a different message
// targets a session that already has an active run.
func (o *Orchestrator) Chat(ctx context.Context, agentID, sessionID, message string) (rs *RunState, attached bool, err error) {
	runID := uuid.NewString()
	rs, attached, err = o.Runs.Begin(agentID, sessionID, runID, message)
	if err != nil {
		return nil, false, err
	}
	if attached {
		return rs, true, nil
	}

	// The run outlives the HTTP request that started it (SSE decoupling):
	// a client disconnecting mid-stream must not cancel the turn, so the
	// background execution uses its own context.
	go o.execute(context.Background(), rs, agentID, sessionID, types.TriggerChat, message, "")
	return rs, false, nil
}

// RunTurn implements scheduler.RunInvoker for the cron and heartbeat
// schedulers: it runs synchronously to completion and returns the reply.
func (o *Orchestrator) RunTurn(ctx context.Context, req scheduler.RunRequest) (scheduler.RunResult, error) {
	rs := NewEphemeralRunState(req.AgentID, req.SessionID, req.RunID, req.Prompt)
	o.execute(ctx, rs, req.AgentID, req.SessionID, req.Trigger, req.Prompt, req.SuppressPersistenceIfReply)
	<-rs.Done()
	if rs.FinalErr != nil {
		return scheduler.RunResult{}, rs.FinalErr
	}
	return scheduler.RunResult{Reply: rs.FinalReply}, nil
}

// execute runs the full turn algorithm (spec.md §4.4): resolve runtime,
// retrieve memory under rag-mode, build the prompt and tool set, retry the
// model/tool loop up to max_retries, then persist, title, and audit the
// result. It always calls rs.Finish() exactly once, via defer.
func (o *Orchestrator) execute(ctx context.Context, rs *RunState, agentID, sessionID string, trigger types.TriggerType, userText, suppressIfReply string) {
	defer rs.Finish()

	rt, err := o.Registry.GetRuntime(ctx, agentID)
	if err != nil {
		o.fail(rs, "", err)
		return
	}

	sessStore := NewSessionStore(rt.Root)
	sess, err := sessStore.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.fail(rs, "", err)
			return
		}
		now := time.Now().UnixMilli()
		sess = &types.Session{ID: sessionID, AgentID: agentID, CreatedAt: now, UpdatedAt: now}
	}
	isFirstTurn := len(sess.Messages) == 0

	model, err := o.Providers.DefaultModel()
	if err != nil {
		o.fail(rs, "", err)
		return
	}
	prov, err := o.Providers.Get(model.ProviderID)
	if err != nil {
		o.fail(rs, "", err)
		return
	}

	if rt.Config.RagMode {
		o.emitRetrieval(ctx, rt, rs, sessionID, userText)
	}

	builder := NewPromptBuilder(rt.Root, rt.Config)
	systemPrompt := builder.Build(isFirstTurn)

	transcript := append(append([]types.Message{}, sess.Messages...),
		types.Message{Role: types.RoleUser, Content: userText, CreatedAt: time.Now().UnixMilli()})

	policy := sandbox.Policy{AutonomousEnable: rt.Config.Tools.AutonomousEnable, ChatAllowlist: rt.Config.Tools.ChatEnable}
	runner := buildRunner(rt, rt.Audit)
	einoTools := provider.ConvertToEinoTools(allowedToolSpecs(policy, trigger))

	maxRetries := rt.Config.Execution.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var (
		finalReply    string
		finalSegments []types.Segment
		lastRun       *types.Run
		lastErr       error
	)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptRunID := uuid.NewString()
		rs.Emit(event.Event{Type: event.EventRunStart, Data: event.RunStartData{
			RunID: attemptRunID, AgentID: agentID, SessionID: sessionID, TriggerType: trigger, Attempt: attempt,
		}})

		run := &types.Run{
			RunID: attemptRunID, AgentID: agentID, SessionID: sessionID, TriggerType: trigger,
			Attempt: attempt, UsageSources: types.UsageSources{}, StartedAt: time.Now().UnixMilli(),
		}
		call := sandbox.CallContext{
			AgentID: agentID, SessionID: sessionID, RunID: attemptRunID, Trigger: trigger,
			WorkspaceRoot: filepath.Join(rt.Root, "workspace"),
		}

		reply, err := o.runAttempt(ctx, rt, prov, model.ID, rs, run, systemPrompt, transcript, runner, einoTools, call, sessStore, sess)
		lastRun = run

		if err != nil {
			lastErr = err
			_ = rt.Audit.AppendRun(audit.RunRecord{
				TimestampMs: time.Now().UnixMilli(), RunID: attemptRunID, SessionID: sessionID, AgentID: agentID,
				TriggerType: trigger, Attempt: attempt, Done: false, Error: err.Error(),
			})
			if attempt == maxRetries {
				break
			}
			time.Sleep(retryDelay(attempt))
			continue
		}

		lastErr = nil
		finalReply = reply
		finalSegments = run.AssistantSegments
		_ = rt.Audit.AppendRun(audit.RunRecord{
			TimestampMs: time.Now().UnixMilli(), RunID: attemptRunID, SessionID: sessionID, AgentID: agentID,
			TriggerType: trigger, Attempt: attempt, Done: true,
		})
		break
	}

	if lastErr != nil {
		o.fail(rs, lastRun.RunID, lastErr)
		return
	}

	ComputePricing(&lastRun.UsageState)
	_ = rt.Audit.AppendUsage(types.UsageRecord{
		TimestampMs: time.Now().UnixMilli(), RunID: lastRun.RunID, AgentID: agentID, SessionID: sessionID,
		TriggerType: trigger, Usage: lastRun.UsageState,
	})

	if suppressIfReply == "" || finalReply != suppressIfReply {
		o.persist(ctx, rt, sessStore, sess, lastRun.RunID, trigger, userText, finalReply, finalSegments, isFirstTurn, prov, model.ID, rs)
	}

	rs.FinalReply = finalReply
	rs.FinalUsage = lastRun.UsageState
	rs.Emit(event.Event{Type: event.EventDone, Data: event.DoneData{RunID: lastRun.RunID, Content: finalReply, Usage: lastRun.UsageState}})
}

func (o *Orchestrator) fail(rs *RunState, runID string, err error) {
	rs.FinalErr = err
	rs.Emit(event.Event{Type: event.EventError, Data: event.ErrorData{RunID: runID, Code: "internal_error", Message: err.Error()}})
}

func (o *Orchestrator) emitRetrieval(ctx context.Context, rt *agent.Runtime, rs *RunState, sessionID, query string) {
	cfg := rt.Config.Retrieval.Memory
	results, err := rt.MemoryIndex.Query(ctx, types.DomainMemory, query, cfg.TopK,
		rt.Config.RetrievalStore.FTSPrefilterK, cfg.SemanticWeight, cfg.LexicalWeight)
	if err != nil {
		return
	}
	rs.Emit(event.Event{Type: event.EventRetrieval, Data: event.RetrievalData{
		RunID: rs.RunID, SessionID: sessionID,
		Retrieval: types.RetrievalEvent{Domain: types.DomainMemory, Query: query, Results: results},
	}})
}

// persist appends the turn's user/assistant pair to the session transcript,
// writes a message_link audit row, and generates a title on the session's
// first turn.
func (o *Orchestrator) persist(ctx context.Context, rt *agent.Runtime, sessStore *SessionStore, sess *types.Session,
	runID string, trigger types.TriggerType, userText, reply string, segments []types.Segment, isFirstTurn bool,
	prov provider.Provider, modelID string, rs *RunState) {

	now := time.Now().UnixMilli()
	userMsg := types.Message{Role: types.RoleUser, Content: userText, CreatedAt: now}
	assistantMsg := types.Message{Role: types.RoleAssistant, Content: reply, ToolCalls: flattenSegmentToolCalls(segments), CreatedAt: now}

	if err := sessStore.AppendMessages(ctx, sess, userMsg, assistantMsg); err != nil {
		return
	}
	_ = rt.Audit.AppendMessageLink(audit.MessageLinkRecord{
		TimestampMs: now, RunID: runID, SessionID: sess.ID, TriggerType: trigger, MessageIdx: len(sess.Messages) - 1,
	})

	if sess.Title == "" && isFirstTurn {
		title, err := GenerateTitle(ctx, prov, modelID, userText)
		if err == nil && title != "" {
			if err := sessStore.SetTitle(ctx, sess, title); err == nil {
				rs.Emit(event.Event{Type: event.EventTitle, Data: event.TitleData{RunID: runID, SessionID: sess.ID, Title: title}})
			}
		}
	}
}

func flattenSegmentToolCalls(segments []types.Segment) []types.ToolCall {
	var calls []types.ToolCall
	for _, seg := range segments {
		calls = append(calls, seg.ToolCalls...)
	}
	return calls
}

// runAttempt drives one attempt's model/tool loop: each sub-step streams a
// completion, executes any tool calls it requests, folds the result back
// into the transcript, and starts a fresh completion — until the model
// replies with no further tool calls or max_steps is exhausted.
func (o *Orchestrator) runAttempt(ctx context.Context, rt *agent.Runtime, prov provider.Provider, modelID string,
	rs *RunState, run *types.Run, systemPrompt string, transcript []types.Message, runner *sandbox.Runner,
	einoTools []*schema.ToolInfo, call sandbox.CallContext, sessStore *SessionStore, sess *types.Session) (string, error) {

	maxSteps := rt.Config.Execution.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 8
	}

	seq := 0
	lastPersist := time.Time{}
	persistLive := func(force bool) {
		if !force && time.Since(lastPersist) < livePersistInterval {
			return
		}
		lastPersist = time.Now()
		_ = sessStore.SetLiveResponse(ctx, sess.ID, &types.LiveResponse{
			RunID: run.RunID, Content: run.CurrentContent, ToolCalls: run.CurrentToolCalls, UpdatedAt: time.Now().UnixMilli(),
		})
	}

	for step := 0; step < maxSteps; step++ {
		einoMsgs := provider.ToEinoMessages(systemPrompt, transcript)

		stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
			Model: modelID, Messages: einoMsgs, Tools: einoTools,
			Temperature: rt.Config.LLM.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("orchestrator: create completion: %w", err)
		}

		finishReason, calls, err := o.consumeStream(stream, run, rs, prov.ID(), modelID, &seq, persistLive)
		stream.Close()
		if err != nil {
			return "", fmt.Errorf("orchestrator: stream: %w", err)
		}

		_ = rt.Audit.AppendStep(audit.StepRecord{
			TimestampMs: time.Now().UnixMilli(), RunID: run.RunID, SessionID: run.SessionID,
			TriggerType: run.TriggerType, Step: step, FinishReason: finishReason,
		})

		if len(calls) == 0 {
			content := run.CurrentContent
			run.AssistantSegments = append(run.AssistantSegments, types.Segment{Content: content})
			run.Done = true
			return content, nil
		}

		for i := range calls {
			tc := &calls[i]
			argsRaw, _ := json.Marshal(tc.Args)
			tc.StartedAt = time.Now().UnixMilli()
			persistLive(true)
			result := runner.RunTool(ctx, tc.Name, json.RawMessage(argsRaw), call)
			tc.EndedAt = time.Now().UnixMilli()
			tc.Result = &result
			rs.Emit(event.Event{Type: event.EventToolEnd, Data: event.ToolEndData{RunID: run.RunID, CallID: tc.ID, Name: tc.Name, Result: result}})
		}

		segment := types.Segment{Content: run.CurrentContent, ToolCalls: calls}
		run.AssistantSegments = append(run.AssistantSegments, segment)
		rs.Emit(event.Event{Type: event.EventNewResponse, Data: event.NewResponseData{RunID: run.RunID, Segment: segment}})

		transcript = append(transcript, types.Message{Role: types.RoleAssistant, Content: segment.Content, ToolCalls: calls, CreatedAt: time.Now().UnixMilli()})

		run.CurrentContent = ""
		run.CurrentToolCalls = nil
		run.TokenSource = types.TokenSourceUnset
		persistLive(true)
	}

	return "", fmt.Errorf("orchestrator: exceeded max_steps (%d) without a final reply", maxSteps)
}

// pendingToolCall accumulates one tool call's streamed deltas across
// chunks, keyed by its stream index (preferred) or raw id.
type pendingToolCall struct {
	id      string
	name    string
	args    strings.Builder
	started bool
}

// consumeStream drains stream to completion, folding content deltas into
// run.CurrentContent (emitting "token" events), reasoning deltas (emitting
// "reasoning" events), and usage observations (emitting "usage" events),
// while accumulating any tool calls the model requests. internal/provider
// exposes a single merged eino message stream, so the first content chunk
// of a step sets run.TokenSource to messages.
func (o *Orchestrator) consumeStream(stream *provider.CompletionStream, run *types.Run, rs *RunState, providerID, modelID string,
	seq *int, onProgress func(force bool)) (finishReason string, calls []types.ToolCall, err error) {

	byIndex := map[int]*pendingToolCall{}
	byID := map[string]*pendingToolCall{}
	var order []*pendingToolCall

	for {
		msg, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", nil, recvErr
		}

		if msg.Content != "" {
			if run.TokenSource == types.TokenSourceUnset {
				run.TokenSource = types.TokenSourceMessages
			}
			delta, updated := contentDelta(run.CurrentContent, msg.Content)
			run.CurrentContent = updated
			if delta != "" {
				rs.Emit(event.Event{Type: event.EventToken, Data: event.TokenData{RunID: run.RunID, Delta: delta}})
				onProgress(false)
			}
		}

		if msg.ReasoningContent != "" {
			rs.Emit(event.Event{Type: event.EventReasoning, Data: event.ReasoningData{RunID: run.RunID, Delta: msg.ReasoningContent}})
		}

		for _, tc := range msg.ToolCalls {
			idx := -1
			if tc.Index != nil {
				idx = *tc.Index
			}

			var pc *pendingToolCall
			if idx >= 0 {
				pc = byIndex[idx]
			} else if tc.ID != "" {
				pc = byID[tc.ID]
			}
			if pc == nil {
				pc = &pendingToolCall{}
				if idx >= 0 {
					byIndex[idx] = pc
				}
				order = append(order, pc)
			}
			if tc.ID != "" {
				pc.id = tc.ID
				byID[tc.ID] = pc
			}
			if tc.Function.Name != "" && pc.name == "" {
				pc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pc.args.WriteString(tc.Function.Arguments)
			}
			if pc.name != "" && !pc.started {
				pc.started = true
				run.CurrentToolCalls = append(run.CurrentToolCalls, types.ToolCall{ID: pc.id, Name: pc.name, StartedAt: time.Now().UnixMilli()})
				rs.Emit(event.Event{Type: event.EventToolStart, Data: event.ToolStartData{RunID: run.RunID, CallID: pc.id, Name: pc.name}})
				onProgress(true)
			}
		}

		if msg.ResponseMeta != nil {
			if msg.ResponseMeta.FinishReason != "" {
				finishReason = normalizeFinishReason(msg.ResponseMeta.FinishReason)
			}
			if msg.ResponseMeta.Usage != nil {
				*seq++
				obs := UsageObservation{
					SourceID:    fmt.Sprintf("llm_end:%s:%d", run.RunID, *seq),
					Provider:    providerID,
					Model:       modelID,
					ModelSource: "config",
					UsageSource: "llm_end",
					InputTokens:  int64(msg.ResponseMeta.Usage.PromptTokens),
					OutputTokens: int64(msg.ResponseMeta.Usage.CompletionTokens),
					TotalTokens:  int64(msg.ResponseMeta.Usage.PromptTokens + msg.ResponseMeta.Usage.CompletionTokens),
				}
				if ApplyUsage(&run.UsageState, run.UsageSources, obs) {
					Normalize(&run.UsageState)
					rs.Emit(event.Event{Type: event.EventUsage, Data: event.UsageData{RunID: run.RunID, Usage: run.UsageState}})
				}
			}
		}
	}

	for _, pc := range order {
		if pc.name == "" {
			continue
		}
		var args map[string]any
		_ = json.Unmarshal([]byte(pc.args.String()), &args)
		calls = append(calls, types.ToolCall{ID: pc.id, Name: pc.name, Args: args})
	}
	return finishReason, calls, nil
}

// contentDelta replays the teacher's accumulated-vs-delta detection: most
// providers stream raw deltas, but some resend the full accumulated
// content on every chunk: when the new chunk already starts with what's
// been accumulated so far, only the suffix is new.
func contentDelta(accumulated, newContent string) (delta, updated string) {
	if accumulated == "" {
		return newContent, newContent
	}
	if strings.HasPrefix(newContent, accumulated) {
		return newContent[len(accumulated):], newContent
	}
	return newContent, accumulated + newContent
}

// normalizeFinishReason maps a provider-specific finish reason onto the
// vocabulary clients expect, mirroring the teacher's "tool_use"->
// "tool-calls" convention.
func normalizeFinishReason(reason string) string {
	if reason == "tool_use" {
		return "tool-calls"
	}
	return reason
}

// retryDelay returns 0.5*2^attempt, computed via backoff.ExponentialBackOff
// rather than hand-rolled exponentiation so the rate matches whatever the
// rest of the codebase configures for retry/backoff behavior.
func retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
