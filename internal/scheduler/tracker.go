package scheduler

import "sync"

// Tracker gates job launches. A job may not run while a previous run of the
// same job is still in flight, and may fire at most once per hour window.
// Both checks and the reservation happen under one lock so two concurrent
// scans can never both launch the same job.
type Tracker struct {
	mu        sync.Mutex
	executing map[int64]struct{}
	lastFired map[int64]string // job id -> hour window key of the last launch
}

func NewTracker() *Tracker {
	return &Tracker{
		executing: make(map[int64]struct{}),
		lastFired: make(map[int64]string),
	}
}

// TryReserve marks the job as executing and records the window key, or
// reports false when the job is already running or already fired in this
// window. On success the caller owns the reservation and must Release it
// when the run reaches a terminal state.
func (t *Tracker) TryReserve(jobID int64, windowKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, running := t.executing[jobID]; running {
		return false
	}
	if t.lastFired[jobID] == windowKey {
		return false
	}
	t.executing[jobID] = struct{}{}
	t.lastFired[jobID] = windowKey
	return true
}

// Release clears the in-flight mark. The window key stays recorded, so a
// released job still cannot fire again within the same hour.
func (t *Tracker) Release(jobID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.executing, jobID)
}

// Executing reports how many runs are currently in flight.
func (t *Tracker) Executing() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.executing)
}

// Forget drops all state for a job. Used when a job is deleted so its id
// does not pin map entries forever.
func (t *Tracker) Forget(jobID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.executing, jobID)
	delete(t.lastFired, jobID)
}
