package models

import "time"

// WorkerState is a step of the one-shot worker lifecycle.
type WorkerState string

const (
	WorkerCreated      WorkerState = "created"
	WorkerLoading      WorkerState = "loading"
	WorkerLoadFailed   WorkerState = "load_failed"
	WorkerReady        WorkerState = "ready"
	WorkerInvoking     WorkerState = "invoking"
	WorkerCompleted    WorkerState = "completed"
	WorkerInvokeFailed WorkerState = "invoke_failed"
	WorkerStopped      WorkerState = "stopped"
)

// WorkerReport is emitted once by every worker when it stops
type WorkerReport struct {
	WorkerID   string        `json:"worker_id"`
	Sequence   uint64        `json:"sequence"`
	Request    Request       `json:"request"`
	Outcome    Outcome       `json:"outcome"`
	States     []WorkerState `json:"states"`
	StartedAt  time.Time     `json:"started_at"`
	DurationMs int64         `json:"duration_ms"`
}

// DispatcherStats is a snapshot of dispatcher counters
type DispatcherStats struct {
	Received  uint64            `json:"received"`
	Live      int64             `json:"live"`
	Completed uint64            `json:"completed"`
	Failed    map[string]uint64 `json:"failed"`
	Accepting bool              `json:"accepting"`
}

// InterpreterStats is a snapshot of interpreter lock usage
type InterpreterStats struct {
	Starts       int64         `json:"starts"`
	Acquisitions uint64        `json:"acquisitions"`
	TotalWait    time.Duration `json:"total_wait_ns"`
	LoopsCreated uint64        `json:"loops_created"`
	ShutDown     bool          `json:"shut_down"`
}
