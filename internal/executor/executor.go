// Package executor turns a dispatched job into a durable run record plus
// one research engine call, and closes the record exactly once.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"researchd/internal/eventbus"
	"researchd/internal/metrics"
	"researchd/internal/research"
	"researchd/internal/store"
	logx "researchd/pkg/logx"
)

const summaryLimit = 500

// Releaser is the scheduler-side reservation the runner must give back when
// the run reaches a terminal state.
type Releaser interface {
	Release(jobID int64)
}

// ExecutionWriter is the slice of the store the runner needs.
type ExecutionWriter interface {
	Create(ctx context.Context, e *store.Execution) (int64, error)
	Finish(ctx context.Context, id int64, t store.TerminalState) error
}

// Runner executes one job run end to end: record creation, engine call,
// terminal update, tracker release. It is safe for concurrent use; each
// Run call is independent.
type Runner struct {
	engine  research.Engine
	execs   ExecutionWriter
	tracker Releaser
	bus     eventbus.Bus
	log     logx.Logger
}

func NewRunner(engine research.Engine, execs ExecutionWriter, tracker Releaser, bus eventbus.Bus, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{engine: engine, execs: execs, tracker: tracker, bus: bus, log: log}
}

type runEvent struct {
	ExecutionID     int64  `json:"execution_id,omitempty"`
	JobID           int64  `json:"job_id"`
	JobName         string `json:"job_name"`
	TraceID         string `json:"trace_id"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Run performs one job run. It never returns an error: every outcome,
// including a failed engine call, a panic, or a broken store, ends in logs
// and (when the record exists) a terminal status row. The tracker
// reservation is released no matter what.
func (r *Runner) Run(ctx context.Context, job store.Job) {
	traceID := uuid.NewString()
	log := r.log.With(
		logx.Int64("job_id", job.ID),
		logx.String("job", job.Name),
		logx.String("trace_id", traceID),
	)
	start := time.Now()
	var execID int64
	defer func() {
		if r.tracker != nil {
			r.tracker.Release(job.ID)
		}
		if rec := recover(); rec != nil {
			stack := logx.StackTrace(3, 32)
			log.Error("run panicked", logx.Any("panic", rec), logx.String("stack", stack))
			// A record stuck in running with the process still alive would
			// block the job forever; fail it like any other engine error.
			if execID != 0 {
				r.failPanicked(ctx, log, job, execID, traceID, start, rec, stack)
			}
		}
	}()

	exec := &store.Execution{
		JobID:     job.ID,
		JobName:   job.Name,
		JobPrompt: job.Prompt,
		Status:    store.StatusRunning,
		StartTime: start,
	}
	var err error
	execID, err = r.execs.Create(ctx, exec)
	if err != nil {
		// Without a record there is nothing to finish; the run is abandoned.
		log.Error("run: creating execution record failed", logx.Err(err))
		return
	}
	log.Info("run started", logx.Int64("execution_id", execID))
	metrics.RunsInProgress.Inc()
	defer metrics.RunsInProgress.Dec()
	r.publish(eventbus.TypeRunStarted, runEvent{
		ExecutionID: execID, JobID: job.ID, JobName: job.Name, TraceID: traceID,
	})

	report, runErr := r.engine.Research(research.WithTraceID(ctx, traceID), job.Prompt)
	elapsed := time.Since(start)

	terminal := store.TerminalState{
		EndTime:         time.Now(),
		DurationSeconds: int64(elapsed / time.Second),
	}
	if runErr != nil {
		terminal.Status = store.StatusFailed
		terminal.ErrorMessage = truncate(runErr.Error(), summaryLimit)
		terminal.ErrorDetail = runErr.Error()
	} else {
		terminal.Status = store.StatusSucceeded
		terminal.ResultSummary = truncate(report, summaryLimit)
		terminal.ResultDetail = report
	}

	if err := r.execs.Finish(ctx, execID, terminal); err != nil {
		log.Error("run: closing execution record failed",
			logx.Int64("execution_id", execID), logx.Err(err))
	}

	metrics.RunDurationSeconds.Observe(elapsed.Seconds())
	ev := runEvent{
		ExecutionID:     execID,
		JobID:           job.ID,
		JobName:         job.Name,
		TraceID:         traceID,
		DurationSeconds: terminal.DurationSeconds,
	}
	if runErr != nil {
		metrics.RunsFailedTotal.Inc()
		ev.Error = runErr.Error()
		r.publish(eventbus.TypeRunFailed, ev)
		log.Error("run failed",
			logx.Int64("execution_id", execID),
			logx.Duration("took", elapsed),
			logx.Err(runErr),
		)
		return
	}
	metrics.RunsCompletedTotal.Inc()
	r.publish(eventbus.TypeRunSucceeded, ev)
	log.Info("run succeeded",
		logx.Int64("execution_id", execID),
		logx.Duration("took", elapsed),
		logx.Int("report_len", len(report)),
	)
}

// failPanicked closes the execution record after a recovered panic. The
// store's finish-once guard makes this a no-op when the run already reached
// a terminal state before the panic.
func (r *Runner) failPanicked(ctx context.Context, log logx.Logger, job store.Job, execID int64, traceID string, start time.Time, rec any, stack string) {
	elapsed := time.Since(start)
	msg := fmt.Sprintf("panic: %v", rec)
	terminal := store.TerminalState{
		Status:          store.StatusFailed,
		EndTime:         time.Now(),
		DurationSeconds: int64(elapsed / time.Second),
		ErrorMessage:    truncate(msg, summaryLimit),
		ErrorDetail:     msg + "\n" + stack,
	}
	if err := r.execs.Finish(ctx, execID, terminal); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("run: closing execution record after panic failed",
				logx.Int64("execution_id", execID), logx.Err(err))
		}
		return
	}
	metrics.RunsFailedTotal.Inc()
	metrics.RunDurationSeconds.Observe(elapsed.Seconds())
	r.publish(eventbus.TypeRunFailed, runEvent{
		ExecutionID:     execID,
		JobID:           job.ID,
		JobName:         job.Name,
		TraceID:         traceID,
		DurationSeconds: terminal.DurationSeconds,
		Error:           msg,
	})
}

func (r *Runner) publish(typ string, data runEvent) {
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// truncate caps s for the summary column, marking the cut with an ellipsis.
// The full text still lands in the detail column.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
