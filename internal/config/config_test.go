package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const minimalYAML = `
server:
  addr: ":8000"
database:
  path: "./data/researchd.db"
engine:
  url: "http://127.0.0.1:8090/research"
`

func TestLoadMinimalYAML(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", minimalYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if !cfg.SchedulerEnabled() {
		t.Fatal("scheduler should default to enabled")
	}
	if !cfg.Log.ConsoleEnabled() {
		t.Fatal("console logging should default to enabled")
	}
	if !cfg.ReapEnabled() {
		t.Fatal("reaper should default to enabled")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.json", `{
	  "server": {"addr": ":8000"},
	  "database": {"path": "./r.db"},
	  "engine": {"url": "http://e/research", "timeout": "5m"},
	  "scheduler": {"enabled": false, "scan_interval": "30s"}
	}`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SchedulerEnabled() {
		t.Fatal("explicit false must win over the default")
	}
	d, err := ParseDurationOrDefault("scheduler.scan_interval", cfg.Scheduler.ScanInterval, time.Minute)
	if err != nil || d != 30*time.Second {
		t.Fatalf("scan_interval = %v, %v", d, err)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", minimalYAML+`
sheduler:
  scan_interval: "30s"
`)
	if _, err := m.Load(); err == nil {
		t.Fatal("misspelled section must be rejected, not ignored")
	}
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			"missing addr",
			`{"database": {"path": "./r.db"}, "engine": {"url": "http://e"}}`,
			"server.addr",
		},
		{
			"missing db path",
			`{"server": {"addr": ":1"}, "engine": {"url": "http://e"}}`,
			"database.path",
		},
		{
			"missing engine url",
			`{"server": {"addr": ":1"}, "database": {"path": "./r.db"}}`,
			"engine.url",
		},
		{
			"bad duration",
			`{"server": {"addr": ":1"}, "database": {"path": "./r.db"},
			  "engine": {"url": "http://e"}, "scheduler": {"scan_interval": "whenever"}}`,
			"scan_interval",
		},
		{
			"bad retriever",
			`{"server": {"addr": ":1"}, "database": {"path": "./r.db"},
			  "engine": {"url": "http://e", "retriever": "altavista"}}`,
			"retriever",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := writeConfig(t, "config.json", tc.yaml)
			_, err := m.Load()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestGetReturnsCommitted(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", minimalYAML)
	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(2)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx)
	time.Sleep(100 * time.Millisecond) // let the watcher attach

	// Invalid edit first: must not publish.
	if err := os.WriteFile(path, []byte(`{"server": {}}`), 0o644); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	select {
	case cfg := <-ch:
		t.Fatalf("invalid config published: %+v", cfg)
	case <-time.After(600 * time.Millisecond):
	}

	// Valid edit: published after the debounce window.
	updated := strings.Replace(minimalYAML, `":8000"`, `":9000"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("write valid: %v", err)
	}
	select {
	case cfg := <-ch:
		if cfg.Server.Addr != ":9000" {
			t.Fatalf("published addr = %q", cfg.Server.Addr)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("valid config change never published")
	}
}
