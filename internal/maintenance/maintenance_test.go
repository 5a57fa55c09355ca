package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "researchd/pkg/logx"
)

type fakeSweeper struct {
	mu         sync.Mutex
	reapCut    time.Time
	reapReason string
	reapN      int64
	reapErr    error

	pruneKeep int
	pruneN    int64
}

func (f *fakeSweeper) ReapStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reapCut, f.reapReason = cutoff, reason
	return f.reapN, f.reapErr
}

func (f *fakeSweeper) PruneTerminal(ctx context.Context, keep int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneKeep = keep
	return f.pruneN, nil
}

func TestReapNowUsesConfiguredWindow(t *testing.T) {
	t.Parallel()

	sw := &fakeSweeper{reapN: 2}
	svc := New(Config{ReapEnabled: true, ReapAfter: 2 * time.Hour}, sw, logx.Nop())

	before := time.Now().Add(-2 * time.Hour)
	svc.ReapNow(context.Background())
	after := time.Now().Add(-2 * time.Hour)

	if sw.reapCut.Before(before) || sw.reapCut.After(after) {
		t.Fatalf("cutoff %v not ~2h in the past", sw.reapCut)
	}
	if sw.reapReason == "" {
		t.Fatal("reap must record a reason")
	}
}

func TestReapNowAbsorbsErrors(t *testing.T) {
	t.Parallel()

	sw := &fakeSweeper{reapErr: errors.New("locked")}
	svc := New(Config{}, sw, logx.Nop())
	svc.ReapNow(context.Background()) // must not panic
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	if cfg.ReapAfter != 6*time.Hour || cfg.ReapSpec != "*/30 * * * *" {
		t.Fatalf("reap defaults = %+v", cfg)
	}
	if cfg.PruneKeep != 500 || cfg.PruneSpec != "0 3 * * *" {
		t.Fatalf("prune defaults = %+v", cfg)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	svc := New(Config{ReapEnabled: true, ReapSpec: "not cron"}, &fakeSweeper{}, logx.Nop())
	if err := svc.Start(); err == nil {
		t.Fatal("expected error for malformed cron spec")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	svc := New(Config{ReapEnabled: true, PruneEnabled: true}, &fakeSweeper{}, logx.Nop())
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Stop()
	svc.Stop() // idempotent on a stopped runner
}
