// Package llm provides an abstraction for upstream LLM provider clients.
package llm

import (
	"context"
	"io"
	"net/http"
)

// LLMClient defines the interface for upstream provider operations.
type LLMClient interface {
	// OpenStream sends a streaming chat completion request and returns the raw
	// SSE body. The caller must close it.
	OpenStream(ctx context.Context, ep Endpoint, req *ChatCompletionRequest) (io.ReadCloser, error)

	// ListModels retrieves the list of available models.
	ListModels(ctx context.Context, ep Endpoint) ([]Model, error)

	// Forward relays a raw request body to path on the endpoint and returns the
	// upstream response unread.
	Forward(ctx context.Context, ep Endpoint, path string, header http.Header, body io.Reader) (*http.Response, error)
}

// Ensure Client implements LLMClient interface.
var _ LLMClient = (*Client)(nil)
