package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// RunStatus is the lifecycle state of one execution.
// Running is the only non-terminal state.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

func (s RunStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (s RunStatus) Valid() bool {
	return s == StatusRunning || s.IsTerminal()
}

// Job is a persisted definition of recurring research work.
type Job struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Info    string `json:"info,omitempty"`
	Spec    string `json:"spec"`
	Prompt  string `json:"prompt,omitempty"`
	Enabled bool   `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Execution is one concrete run of a job.
//
// JobName and JobPrompt are snapshots taken at run start, so later edits to
// the job definition do not retroactively alter history. EndTime and
// DurationSeconds stay nil while the run is in flight.
type Execution struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"job_id"`
	JobName   string    `json:"job_name"`
	JobPrompt string    `json:"job_prompt,omitempty"`
	Status    RunStatus `json:"status"`

	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`

	ResultSummary string `json:"result_summary,omitempty"`
	ResultDetail  string `json:"result_detail,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	ErrorDetail   string `json:"error_detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TerminalState carries the exactly-once terminal update for an execution.
// Status must be Succeeded or Failed.
type TerminalState struct {
	Status          RunStatus
	EndTime         time.Time
	DurationSeconds int64

	ResultSummary string
	ResultDetail  string
	ErrorMessage  string
	ErrorDetail   string
}

// ExecutionFilter narrows List queries. Nil fields are ignored.
type ExecutionFilter struct {
	JobID  *int64
	Status *RunStatus
	Offset int
	Size   int
}

// JobStats aggregates a job's execution history.
// AvgDurationSeconds covers terminal rows carrying a duration, rounded to
// two decimal places in SQL; it is zero when no such row exists.
type JobStats struct {
	JobID     int64 `json:"job_id"`
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Running   int64 `json:"running"`

	AvgDurationSeconds float64 `json:"avg_duration_seconds"`

	Latest *Execution `json:"latest,omitempty"`
}
