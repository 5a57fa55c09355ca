package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Log       LogConfig       `json:"log"`
	Database  DatabaseConfig  `json:"database"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Engine    EngineConfig    `json:"engine"`

	// Maintenance controls background sweeps over execution history.
	// If omitted, the stale-run reaper defaults to enabled and pruning to disabled.
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

type ServerConfig struct {
	// Addr is the HTTP listen address, e.g. ":8000".
	Addr string `json:"addr"`

	// Per-client token-bucket limits, in requests per minute.
	// Zero means the built-in defaults (reads 60/min, writes 30/min).
	ReadRatePerMin  int `json:"read_rate_per_min,omitempty"`
	WriteRatePerMin int `json:"write_rate_per_min,omitempty"`
}

type LogConfig struct {
	Level string `json:"level,omitempty"`

	// Console is a pointer so we can distinguish "omitted" (default true)
	// from an explicit false.
	Console *bool          `json:"console,omitempty"`
	File    FileSinkConfig `json:"file,omitempty"`
}

type FileSinkConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type DatabaseConfig struct {
	Path string `json:"path"`

	// BusyTimeout is a Go duration string (e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the scan loop.
//
// All durations are Go duration strings (e.g. "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - enabled: true
//   - warmup_delay: "10s"
//   - scan_interval: "1m"
//   - drain_timeout: "30s" (grace given to in-flight runs on shutdown)
type SchedulerConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	WarmupDelay  string `json:"warmup_delay,omitempty"`
	ScanInterval string `json:"scan_interval,omitempty"`
	DrainTimeout string `json:"drain_timeout,omitempty"`
}

// EngineConfig configures the external research engine call.
//
// The engine is opaque: researchd posts a prompt plus these knobs and gets
// back a text report (or an error). Retries, search and model invocation all
// happen inside the engine.
type EngineConfig struct {
	// URL of the research engine endpoint.
	URL    string `json:"url"`
	APIKey string `json:"api_key,omitempty"`

	Model   string `json:"model,omitempty"`
	APIBase string `json:"api_base,omitempty"`

	// Retriever selects the engine's search provider: tavily, google, bing, serper.
	Retriever    string `json:"retriever,omitempty"`
	TavilyAPIKey string `json:"tavily_api_key,omitempty"`
	GoogleAPIKey string `json:"google_api_key,omitempty"`
	GoogleCX     string `json:"google_cx,omitempty"`
	BingAPIKey   string `json:"bing_api_key,omitempty"`
	SerperAPIKey string `json:"serper_api_key,omitempty"`

	Language     string `json:"language,omitempty"`
	ReportFormat string `json:"report_format,omitempty"`
	MaxResults   int    `json:"max_results,omitempty"`

	// Timeout bounds a single engine call. Go duration string; "0s" disables.
	Timeout string `json:"timeout,omitempty"`
}

type MaintenanceConfig struct {
	Reap  ReapConfig  `json:"reap,omitempty"`
	Prune PruneConfig `json:"prune,omitempty"`
}

// ReapConfig marks executions stuck in the running state (e.g. after an
// ungraceful shutdown) as failed once they are older than After.
type ReapConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	After   string `json:"after,omitempty"` // default "6h"
	Spec    string `json:"spec,omitempty"`  // standard cron spec, default "*/30 * * * *"
}

// PruneConfig deletes terminal executions beyond the newest Keep rows per job.
type PruneConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Keep    int    `json:"keep,omitempty"` // default 500
	Spec    string `json:"spec,omitempty"` // default "0 3 * * *"
}

// ConsoleEnabled resolves the omitted-means-true console flag.
func (l LogConfig) ConsoleEnabled() bool {
	if l.Console == nil {
		return true
	}
	return *l.Console
}

// SchedulerEnabled resolves the omitted-means-true scheduler flag.
func (c *Config) SchedulerEnabled() bool {
	if c.Scheduler.Enabled == nil {
		return true
	}
	return *c.Scheduler.Enabled
}

// ReapEnabled resolves the omitted-means-true reaper flag.
func (c *Config) ReapEnabled() bool {
	if c.Maintenance == nil || c.Maintenance.Reap.Enabled == nil {
		return true
	}
	return *c.Maintenance.Reap.Enabled
}

// Validate checks static invariants. Durations are parsed here so a bad
// config is rejected before commit (both at startup and on hot reload).
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	if strings.TrimSpace(c.Engine.URL) == "" {
		return errors.New("engine.url is required")
	}
	if c.Server.ReadRatePerMin < 0 || c.Server.WriteRatePerMin < 0 {
		return errors.New("server rate limits must be >= 0")
	}

	durations := []struct {
		path string
		raw  string
	}{
		{"database.busy_timeout", c.Database.BusyTimeout},
		{"scheduler.warmup_delay", c.Scheduler.WarmupDelay},
		{"scheduler.scan_interval", c.Scheduler.ScanInterval},
		{"scheduler.drain_timeout", c.Scheduler.DrainTimeout},
		{"engine.timeout", c.Engine.Timeout},
	}
	if c.Maintenance != nil {
		durations = append(durations, struct {
			path string
			raw  string
		}{"maintenance.reap.after", c.Maintenance.Reap.After})
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	switch r := strings.TrimSpace(c.Engine.Retriever); r {
	case "", "tavily", "google", "bing", "serper":
	default:
		return fmt.Errorf("engine.retriever: unknown provider %q", r)
	}
	if c.Maintenance != nil && c.Maintenance.Prune.Keep < 0 {
		return errors.New("maintenance.prune.keep must be >= 0")
	}
	return nil
}
