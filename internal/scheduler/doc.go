// Package scheduler implements the Scheduler Pair: a fixed-interval,
// timezone-windowed HeartbeatScheduler and an at/every/cron CronScheduler
// backed by a durable JSON job store, both driving the Run Orchestrator
// under an autonomous trigger type rather than a connected client.
package scheduler
