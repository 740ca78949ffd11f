package types

// ScheduleType selects the interpretation of CronJob.Schedule.
type ScheduleType string

const (
	ScheduleAt    ScheduleType = "at"
	ScheduleEvery ScheduleType = "every"
	ScheduleCron  ScheduleType = "cron"
)

// CronJob is a durable, user-defined scheduled invocation of the Run
// Orchestrator under trigger_type="cron".
//
// Invariant: Enabled == false iff NextRunTs == 0.
type CronJob struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	ScheduleType  ScheduleType `json:"scheduleType"`
	Schedule      string       `json:"schedule"`
	Prompt        string       `json:"prompt"`
	Enabled       bool         `json:"enabled"`
	NextRunTs     int64        `json:"nextRunTs"`
	CreatedAt     int64        `json:"createdAt"`
	UpdatedAt     int64        `json:"updatedAt"`
	LastRunTs     int64        `json:"lastRunTs,omitempty"`
	LastSuccessTs int64        `json:"lastSuccessTs,omitempty"`
	FailureCount  int          `json:"failureCount"`
	LastError     string       `json:"lastError,omitempty"`
}

// CronRunRecord is one JSONL row in cron_runs.jsonl.
type CronRunRecord struct {
	TimestampMs int64  `json:"timestampMs"`
	JobID       string `json:"jobId"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	DurationMs  int64  `json:"durationMs,omitempty"`
}

// CronFailureRecord is one JSONL row in cron_failures.jsonl.
type CronFailureRecord struct {
	TimestampMs  int64  `json:"timestampMs"`
	JobID        string `json:"jobId"`
	Name         string `json:"name"`
	Error        string `json:"error"`
	FailureCount int    `json:"failureCount"`
}

// HeartbeatRunRecord is one JSONL row in heartbeat_runs.jsonl.
type HeartbeatRunRecord struct {
	TimestampMs int64  `json:"timestampMs"`
	Status      string `json:"status"`
	Timezone    string `json:"timezone"`
	Details     string `json:"details,omitempty"`
}

const (
	HeartbeatStatusSkippedOutsideWindow = "skipped_outside_window"
	HeartbeatStatusSkippedNoPrompt      = "skipped_no_prompt"
	HeartbeatStatusOK                   = "ok"
	HeartbeatStatusError                = "error"

	HeartbeatOKReply = "HEARTBEAT_OK"
)
