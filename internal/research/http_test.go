package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "researchd/pkg/logx"
)

func TestHTTPEngineSuccess(t *testing.T) {
	t.Parallel()

	var got researchRequest
	var gotAuth, gotTrace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTrace = r.Header.Get("X-Request-ID")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(researchResponse{Report: "the report"})
	}))
	defer srv.Close()

	eng := NewHTTPEngine(Config{
		URL:          srv.URL,
		APIKey:       "secret",
		Model:        "gpt-4o",
		Retriever:    "tavily",
		TavilyAPIKey: "tv-key",
		GoogleAPIKey: "unused",
		MaxResults:   5,
		Timeout:      5 * time.Second,
	}, logx.Nop())

	ctx := WithTraceID(context.Background(), "trace-123")
	report, err := eng.Research(ctx, "what changed in go 1.24")
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	if report != "the report" {
		t.Fatalf("report = %q", report)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotTrace != "trace-123" {
		t.Errorf("trace header = %q", gotTrace)
	}
	if got.Query != "what changed in go 1.24" {
		t.Errorf("query = %q", got.Query)
	}
	if got.RetrieverKey != "tv-key" {
		t.Errorf("retriever key = %q, want the tavily one", got.RetrieverKey)
	}
	if got.GoogleCX != "" {
		t.Errorf("google_cx should be omitted for tavily, got %q", got.GoogleCX)
	}
}

func TestHTTPEngineTraceIDDefaulted(t *testing.T) {
	t.Parallel()

	var gotTrace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = r.Header.Get("X-Request-ID")
		json.NewEncoder(w).Encode(researchResponse{Report: "ok"})
	}))
	defer srv.Close()

	eng := NewHTTPEngine(Config{URL: srv.URL}, logx.Nop())
	if _, err := eng.Research(context.Background(), "p"); err != nil {
		t.Fatalf("Research: %v", err)
	}
	if gotTrace == "" {
		t.Error("expected a generated request id when the context carries none")
	}
}

func TestHTTPEngineErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	eng := NewHTTPEngine(Config{URL: srv.URL}, logx.Nop())
	_, err := eng.Research(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "engine exploded") {
		t.Errorf("error should carry status and body snippet: %v", err)
	}
}

func TestHTTPEngineErrorField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(researchResponse{Error: "quota exhausted"})
	}))
	defer srv.Close()

	eng := NewHTTPEngine(Config{URL: srv.URL}, logx.Nop())
	_, err := eng.Research(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("expected engine error to surface, got %v", err)
	}
}

func TestHTTPEngineTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	eng := NewHTTPEngine(Config{URL: srv.URL, Timeout: 50 * time.Millisecond}, logx.Nop())
	_, err := eng.Research(context.Background(), "p")
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestHTTPEngineEmptyPrompt(t *testing.T) {
	t.Parallel()

	eng := NewHTTPEngine(Config{URL: "http://127.0.0.1:0"}, logx.Nop())
	if _, err := eng.Research(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank prompt")
	}
}
