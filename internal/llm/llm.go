// Package llm talks to the hosted completion service that generates the
// catalog, classifies questions and synthesizes answers.
package llm

import (
	"context"

	"github.com/efiadm/api-categorizer-aggr/internal/errors"
)

// Default model identifiers per stage.
const (
	DefaultCatalogModel = "gpt-4o"
	DefaultRouterModel  = "gpt-4o-mini"
	DefaultAnswerModel  = "gpt-4o"
)

// Request is one completion call.
type Request struct {
	// Stage names the pipeline stage issuing the call, for logs and metrics.
	Stage  string
	Model  string
	Prompt string
	// JSON asks the service for a JSON object response.
	JSON bool
}

// Completer returns the raw completion text for a request. The text is
// opaque: callers validate it before trusting its structure.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Unavailable is a Completer that always fails. It stands in when no
// credentials are configured, so every stage takes its fallback.
type Unavailable struct {
	Reason string
}

// Complete implements Completer.
func (u Unavailable) Complete(ctx context.Context, req Request) (string, error) {
	reason := u.Reason
	if reason == "" {
		reason = "completion service not configured"
	}
	return "", errors.NewUnavailableError(req.Stage, reason)
}
