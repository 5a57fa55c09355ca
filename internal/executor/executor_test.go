package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"researchd/internal/eventbus"
	"researchd/internal/store"
	logx "researchd/pkg/logx"
)

type fakeEngine struct {
	report string
	err    error
	panics bool

	mu      sync.Mutex
	prompts []string
}

func (f *fakeEngine) Research(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.panics {
		panic("engine blew up")
	}
	return f.report, f.err
}

type fakeWriter struct {
	mu       sync.Mutex
	nextID   int64
	created  []store.Execution
	finished map[int64]store.TerminalState

	createErr error
	finishErr error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{nextID: 100, finished: map[int64]store.TerminalState{}}
}

func (f *fakeWriter) Create(ctx context.Context, e *store.Execution) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	e.ID = f.nextID
	f.created = append(f.created, *e)
	return f.nextID, nil
}

func (f *fakeWriter) Finish(ctx context.Context, id int64, t store.TerminalState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return f.finishErr
	}
	if _, done := f.finished[id]; done {
		return store.ErrNotFound
	}
	f.finished[id] = t
	return nil
}

type fakeReleaser struct {
	mu       sync.Mutex
	released []int64
}

func (f *fakeReleaser) Release(jobID int64) {
	f.mu.Lock()
	f.released = append(f.released, jobID)
	f.mu.Unlock()
}

var testJob = store.Job{ID: 5, Name: "weekly digest", Prompt: "summarize the week", Enabled: true}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{report: "all quiet"}
	w := newFakeWriter()
	rel := &fakeReleaser{}
	r := NewRunner(eng, w, rel, eventbus.New(), logx.Nop())

	r.Run(context.Background(), testJob)

	if len(w.created) != 1 {
		t.Fatalf("created %d records", len(w.created))
	}
	rec := w.created[0]
	if rec.Status != store.StatusRunning || rec.JobName != "weekly digest" || rec.JobPrompt != "summarize the week" {
		t.Fatalf("created record = %+v", rec)
	}
	term, ok := w.finished[rec.ID]
	if !ok {
		t.Fatal("record never finished")
	}
	if term.Status != store.StatusSucceeded || term.ResultSummary != "all quiet" || term.ResultDetail != "all quiet" {
		t.Fatalf("terminal state = %+v", term)
	}
	if len(rel.released) != 1 || rel.released[0] != 5 {
		t.Fatalf("released = %v", rel.released)
	}
}

func TestRunFailure(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{err: errors.New("engine quota exhausted")}
	w := newFakeWriter()
	rel := &fakeReleaser{}
	r := NewRunner(eng, w, rel, eventbus.New(), logx.Nop())

	r.Run(context.Background(), testJob)

	term := w.finished[w.created[0].ID]
	if term.Status != store.StatusFailed {
		t.Fatalf("status = %q", term.Status)
	}
	if !strings.Contains(term.ErrorMessage, "quota exhausted") {
		t.Fatalf("error message = %q", term.ErrorMessage)
	}
	if len(rel.released) != 1 {
		t.Fatal("tracker not released after failure")
	}
}

func TestRunSummaryTruncation(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 1200)
	eng := &fakeEngine{report: long}
	w := newFakeWriter()
	r := NewRunner(eng, w, &fakeReleaser{}, eventbus.New(), logx.Nop())

	r.Run(context.Background(), testJob)

	term := w.finished[w.created[0].ID]
	if want := strings.Repeat("x", 500) + "..."; term.ResultSummary != want {
		t.Fatalf("summary len = %d, want 503 with ellipsis", len(term.ResultSummary))
	}
	if term.ResultDetail != long {
		t.Fatal("detail must keep the full report")
	}
}

func TestRunCreateErrorAbandons(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{report: "ok"}
	w := newFakeWriter()
	w.createErr = errors.New("disk full")
	rel := &fakeReleaser{}
	r := NewRunner(eng, w, rel, eventbus.New(), logx.Nop())

	r.Run(context.Background(), testJob)

	if len(eng.prompts) != 0 {
		t.Fatal("engine must not be called when the record cannot be created")
	}
	if len(rel.released) != 1 {
		t.Fatal("tracker must be released even when the run is abandoned")
	}
}

func TestRunPanicFailsRecord(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	eng := &fakeEngine{panics: true}
	w := newFakeWriter()
	rel := &fakeReleaser{}
	r := NewRunner(eng, w, rel, bus, logx.Nop())

	r.Run(context.Background(), testJob)

	if len(rel.released) != 1 {
		t.Fatal("tracker must be released when the engine panics")
	}
	if len(w.created) != 1 {
		t.Fatalf("created %d records", len(w.created))
	}
	// The record must not stay in running while the process is healthy.
	term, ok := w.finished[w.created[0].ID]
	if !ok {
		t.Fatal("panicked run left its record without a terminal update")
	}
	if term.Status != store.StatusFailed {
		t.Fatalf("status = %q, want failed", term.Status)
	}
	if !strings.Contains(term.ErrorMessage, "engine blew up") {
		t.Fatalf("error message = %q, want the panic value", term.ErrorMessage)
	}
	if term.ErrorDetail == term.ErrorMessage {
		t.Fatal("error detail should carry the stack trace")
	}

	var types []string
	for len(types) < 2 {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("events after panic = %v, want started then failed", types)
		}
	}
	if types[0] != eventbus.TypeRunStarted || types[1] != eventbus.TypeRunFailed {
		t.Fatalf("event types = %v", types)
	}
}

func TestRunPanicReleasesWithoutRecord(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{panics: true}
	w := newFakeWriter()
	w.createErr = errors.New("disk full")
	rel := &fakeReleaser{}
	r := NewRunner(eng, w, rel, eventbus.New(), logx.Nop())

	r.Run(context.Background(), testJob)

	if len(rel.released) != 1 {
		t.Fatal("tracker must be released even when no record exists")
	}
	if len(w.finished) != 0 {
		t.Fatal("nothing to finish when the record was never created")
	}
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	eng := &fakeEngine{report: "done"}
	r := NewRunner(eng, newFakeWriter(), &fakeReleaser{}, bus, logx.Nop())
	r.Run(context.Background(), testJob)

	var types []string
	for len(types) < 2 {
		ev := <-ch
		types = append(types, ev.Type)
	}
	if types[0] != eventbus.TypeRunStarted || types[1] != eventbus.TypeRunSucceeded {
		t.Fatalf("event types = %v", types)
	}
}
