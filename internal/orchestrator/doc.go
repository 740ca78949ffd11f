// Package orchestrator implements the Run Orchestrator: the turn
// algorithm that composes a prompt, streams model output interleaved with
// tool execution, aggregates token usage without double-counting, persists
// assistant segments, and survives client disconnect via a process-wide
// run-state map.
//
// It is grounded on the teacher's internal/session package (loop.go,
// stream.go, processor.go): the retry-wrapped streaming loop, the
// delta-vs-accumulated content detection, and the tc.Index-keyed tool-call
// accumulation are all adapted from there, generalized to this package's
// two-source (messages vs updates) token model and its chat/heartbeat/cron
// trigger taxonomy instead of the teacher's single chat-only flow.
//
// Orchestrator implements internal/scheduler.RunInvoker, so the already
// built Scheduler Pair drives turns through RunTurn without either package
// depending on the other's concrete type.
package orchestrator
