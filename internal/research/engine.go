// Package research defines the external research engine boundary.
//
// The engine is an opaque collaborator: it receives a natural-language
// prompt plus engine configuration and eventually returns a text report or
// an error. Its internal retries, search calls and model invocations are
// none of our business.
package research

import (
	"context"
	"time"
)

// Engine turns a prompt into a report. One fallible call; no partial results.
type Engine interface {
	Research(ctx context.Context, prompt string) (report string, err error)
}

// Config carries the engine knobs forwarded with every request.
type Config struct {
	URL    string
	APIKey string

	Model   string
	APIBase string

	// Retriever selects the engine's search provider. Only the key matching
	// the selected provider is forwarded.
	Retriever    string
	TavilyAPIKey string
	GoogleAPIKey string
	GoogleCX     string
	BingAPIKey   string
	SerperAPIKey string

	Language     string
	ReportFormat string
	MaxResults   int

	// Timeout bounds a single engine call; 0 disables the bound.
	Timeout time.Duration
}

type traceIDKey struct{}

// WithTraceID attaches a caller-chosen trace id to the context. The HTTP
// engine forwards it as the request id header so one run can be correlated
// across researchd and the engine.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

func traceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}
