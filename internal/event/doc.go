/*
Package event provides a type-safe, pub/sub event system for the runtime's
HTTP server and schedulers.

The event system decouples producers (the orchestrator's run state, the
HTTP agent handlers) from consumers subscribed to the bus without direct
dependencies between them. SSE handlers do not read this bus; they subscribe
to a single run through the orchestrator's RunState.

# Architecture

The package is built on top of watermill's gochannel for infrastructure while
maintaining direct-call semantics to preserve Go type information. It
supports both synchronous and asynchronous publishing.

# Event Types

Run lifecycle (the orchestrator's event taxonomy, spec.md §4.4):

	retrieval, run_start, agent_update, tool_start, tool_end, new_response,
	reasoning, token, usage, done, error, title

Scheduler and registry lifecycle:

	scheduler.cron_run, scheduler.heartbeat_run, agent.created, agent.deleted

# Basic Usage

	event.Publish(event.Event{
		Type: event.EventToken,
		Data: event.TokenData{RunID: runID, Delta: delta},
	})

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		log.Debug("event", "type", e.Type)
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

Subscribers registered via Subscribe/SubscribeAll are invoked in their own
goroutine under Publish, and in the publisher's goroutine under PublishSync.
Either way they MUST complete quickly, use non-blocking channel sends, and
never call Publish/PublishSync re-entrantly.

# Custom Event Bus

event.NewBus() builds a Bus independent of the package-global one. The
orchestrator's run state does not use one: it fans events out to its own
per-run subscriber queues and also publishes each event on the global bus.

	bus := event.NewBus()
	defer bus.Close()
	unsubscribe := bus.SubscribeAll(handler)

# Thread Safety

The event bus is safe for concurrent publish and subscribe.
*/
package event
