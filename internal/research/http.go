package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "researchd/pkg/logx"
)

// HTTPEngine talks to a research engine service over plain HTTP.
type HTTPEngine struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
}

func NewHTTPEngine(cfg Config, log logx.Logger) *HTTPEngine {
	if log.IsZero() {
		log = logx.Nop()
	}
	// The per-call context carries the timeout; the client timeout is a
	// backstop for callers that pass an unbounded context.
	backstop := cfg.Timeout
	if backstop <= 0 {
		backstop = 0 // no bound; research runs can legitimately take many minutes
	}
	return &HTTPEngine{
		cfg:    cfg,
		client: &http.Client{Timeout: backstop},
		log:    log,
	}
}

type researchRequest struct {
	Query      string `json:"query"`
	ReportType string `json:"report_type"`

	Model   string `json:"model,omitempty"`
	APIBase string `json:"api_base,omitempty"`

	Retriever    string `json:"retriever,omitempty"`
	RetrieverKey string `json:"retriever_key,omitempty"`
	GoogleCX     string `json:"google_cx,omitempty"`

	Language     string `json:"language,omitempty"`
	ReportFormat string `json:"report_format,omitempty"`
	MaxResults   int    `json:"max_results,omitempty"`
}

type researchResponse struct {
	Report string `json:"report"`
	Error  string `json:"error,omitempty"`
}

func (e *HTTPEngine) Research(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("research: empty prompt")
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	reqBody := researchRequest{
		Query:        prompt,
		ReportType:   "research_report",
		Model:        e.cfg.Model,
		APIBase:      e.cfg.APIBase,
		Retriever:    e.cfg.Retriever,
		RetrieverKey: e.retrieverKey(),
		Language:     e.cfg.Language,
		ReportFormat: e.cfg.ReportFormat,
		MaxResults:   e.cfg.MaxResults,
	}
	if e.cfg.Retriever == "google" {
		reqBody.GoogleCX = e.cfg.GoogleCX
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("research: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("research: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}
	trace := traceIDFrom(ctx)
	if trace == "" {
		trace = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", trace)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("research: engine call: %w", err)
	}
	defer resp.Body.Close()

	// Reports can be large; errors are not. Cap reads either way.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("research: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("research: engine returned status %d: %s", resp.StatusCode, snippet(body, 300))
	}

	var out researchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("research: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("research: engine error: %s", out.Error)
	}
	if strings.TrimSpace(out.Report) == "" {
		return "", errors.New("research: engine returned an empty report")
	}

	e.log.Debug("engine call finished",
		logx.String("trace_id", trace),
		logx.Duration("took", time.Since(start)),
		logx.Int("report_len", len(out.Report)),
	)
	return out.Report, nil
}

// retrieverKey picks the API key matching the configured search provider.
func (e *HTTPEngine) retrieverKey() string {
	switch e.cfg.Retriever {
	case "tavily":
		return e.cfg.TavilyAPIKey
	case "google":
		return e.cfg.GoogleAPIKey
	case "bing":
		return e.cfg.BingAPIKey
	case "serper":
		return e.cfg.SerperAPIKey
	default:
		return ""
	}
}

func snippet(b []byte, maxN int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= maxN {
		return s
	}
	return s[:maxN] + "..."
}
