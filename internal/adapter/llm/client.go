package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the HTTP client for OpenAI-compatible upstreams.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new upstream client.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// OpenStream sends a streaming chat completion request.
func (c *Client) OpenStream(ctx context.Context, ep Endpoint, req *ChatCompletionRequest) (io.ReadCloser, error) {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(ep, "/v1/chat/completions"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	setHeaders(httpReq, ep)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	return resp.Body, nil
}

// ListModels retrieves the list of available models.
func (c *Client) ListModels(ctx context.Context, ep Endpoint) ([]Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL(ep, "/v1/models"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	setHeaders(httpReq, ep)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return result.Data, nil
}

// Forward relays a raw request. Anthropic-style headers are passed through and
// the endpoint credential replaces any inbound one.
func (c *Client) Forward(ctx context.Context, ep Endpoint, path string, header http.Header, body io.Reader) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(ep, path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for _, h := range []string{"anthropic-version", "anthropic-beta", "Accept"} {
		if v := header.Get(h); v != "" {
			httpReq.Header.Set(h, v)
		}
	}
	setHeaders(httpReq, ep)
	if ep.APIKey != "" {
		httpReq.Header.Set("x-api-key", ep.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// UpstreamError is returned when the provider answers with a non-200 status.
type UpstreamError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *UpstreamError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("LLM API error [%d]: %s (type: %s)", e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("LLM API error [%d]: %s", e.StatusCode, e.Message)
}

func decodeError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	var errResp ErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
		return &UpstreamError{StatusCode: resp.StatusCode, Message: errResp.Error.Message, Type: errResp.Error.Type}
	}
	return &UpstreamError{StatusCode: resp.StatusCode, Message: string(respBody)}
}

func endpointURL(ep Endpoint, path string) string {
	return strings.TrimSuffix(ep.BaseURL, "/") + path
}

// setHeaders sets common request headers.
func setHeaders(req *http.Request, ep Endpoint) {
	req.Header.Set("Content-Type", "application/json")
	if ep.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}
}
