// Package llmproxy exposes OpenAI and Anthropic compatible endpoints that are
// routed to an upstream chosen by the dispatcher.
package llmproxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/adapter/llm"
	"github.com/xiaot623/gogo/gateway/internal/dispatch"
	"github.com/xiaot623/gogo/gateway/internal/stream"
	"github.com/xiaot623/gogo/gateway/internal/telemetry"
)

const maxForwardBody = 32 << 20

// Handler handles LLM proxy HTTP requests.
type Handler struct {
	client     llm.LLMClient
	dispatcher *dispatch.Dispatcher
	metrics    *telemetry.Metrics
}

// NewHandler creates a new LLM proxy handler.
func NewHandler(client llm.LLMClient, dispatcher *dispatch.Dispatcher, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		client:     client,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

// RegisterRoutes registers LLM proxy routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// OpenAI-compatible endpoints
	e.POST("/v1/chat/completions", h.ChatCompletions)
	e.GET("/v1/models", h.ListModels)
	// Anthropic-compatible passthrough
	e.POST("/v1/messages", h.Messages)
}

// ChatCompletions handles chat completion requests.
// POST /v1/chat/completions
func (h *Handler) ChatCompletions(c echo.Context) error {
	var req llm.ChatCompletionRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c, "invalid request body", "")
	}

	// Validate required fields
	if req.Model == "" {
		return invalidRequest(c, "model is required", "model")
	}
	if len(req.Messages) == 0 {
		return invalidRequest(c, "messages is required", "messages")
	}

	target, err := h.dispatcher.Pick(c.Request().Context(), dispatch.Request{
		Protocol:  dispatch.ProtocolOpenAI,
		Model:     req.Model,
		SessionID: c.Request().Header.Get("x-session-id"),
	})
	if err != nil {
		return noTarget(c, err)
	}
	req.Model = target.Model

	if req.Stream {
		return h.handleStreamingRequest(c, target, &req)
	}
	return h.handleNonStreamingRequest(c, target, &req)
}

// handleNonStreamingRequest asks the upstream for a stream and aggregates it
// into one chat.completion response.
func (h *Handler) handleNonStreamingRequest(c echo.Context, target dispatch.Target, req *llm.ChatCompletionRequest) error {
	ctx := c.Request().Context()
	req.StreamOptions = &llm.StreamOptions{IncludeUsage: true}

	body, err := h.client.OpenStream(ctx, endpoint(target), req)
	if err != nil {
		h.metrics.IncProxyRequest(target.Name, "collect", "error")
		return upstreamError(c, err)
	}
	defer body.Close()

	resp, err := stream.Collect(ctx, body)
	if err != nil {
		h.metrics.IncProxyRequest(target.Name, "collect", "error")
		return upstreamError(c, err)
	}

	h.metrics.IncCollected()
	h.metrics.IncProxyRequest(target.Name, "collect", "ok")
	return c.JSON(http.StatusOK, resp)
}

// handleStreamingRequest relays the upstream SSE stream unchanged.
func (h *Handler) handleStreamingRequest(c echo.Context, target dispatch.Target, req *llm.ChatCompletionRequest) error {
	ctx := c.Request().Context()

	body, err := h.client.OpenStream(ctx, endpoint(target), req)
	if err != nil {
		h.metrics.IncProxyRequest(target.Name, "stream", "error")
		return upstreamError(c, err)
	}
	defer body.Close()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	if _, err := io.Copy(flushWriter{c.Response()}, body); err != nil {
		// Can't change status code after writing response
		h.metrics.IncProxyRequest(target.Name, "stream", "error")
		log.Warn().Err(err).Str("target", target.Name).Msg("LLM streaming relay failed")
		return nil
	}

	h.metrics.IncProxyRequest(target.Name, "stream", "ok")
	return nil
}

// ListModels handles the models list request.
// GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	ctx := c.Request().Context()

	target, err := h.dispatcher.Pick(ctx, dispatch.Request{Protocol: dispatch.ProtocolOpenAI})
	if err != nil {
		return noTarget(c, err)
	}

	models, err := h.client.ListModels(ctx, endpoint(target))
	if err != nil {
		return upstreamError(c, err)
	}

	return c.JSON(http.StatusOK, llm.ModelsResponse{
		Object: "list",
		Data:   models,
	})
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeAnthropicError(c echo.Context, status int, errType, message string) error {
	var body anthropicError
	body.Type = "error"
	body.Error.Type = errType
	body.Error.Message = message
	return c.JSON(status, body)
}

// Messages forwards an Anthropic messages request to the dispatched target,
// rewriting the model id.
// POST /v1/messages
func (h *Handler) Messages(c echo.Context) error {
	ctx := c.Request().Context()

	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxForwardBody))
	if err != nil {
		return writeAnthropicError(c, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return writeAnthropicError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body")
	}
	var model string
	if err := json.Unmarshal(fields["model"], &model); err != nil || model == "" {
		return writeAnthropicError(c, http.StatusBadRequest, "invalid_request_error", "model is required")
	}

	target, err := h.dispatcher.Pick(ctx, dispatch.Request{
		Protocol:  dispatch.ProtocolAnthropic,
		Model:     model,
		SessionID: c.Request().Header.Get("x-session-id"),
	})
	if err != nil {
		return writeAnthropicError(c, http.StatusServiceUnavailable, "overloaded_error", err.Error())
	}

	if target.Model != model {
		fields["model"], _ = json.Marshal(target.Model)
		if raw, err = json.Marshal(fields); err != nil {
			return writeAnthropicError(c, http.StatusInternalServerError, "api_error", "failed to rewrite request")
		}
	}

	resp, err := h.client.Forward(ctx, endpoint(target), "/v1/messages", c.Request().Header, bytes.NewReader(raw))
	if err != nil {
		h.metrics.IncProxyRequest(target.Name, "forward", "error")
		return writeAnthropicError(c, http.StatusBadGateway, "api_error", err.Error())
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Response().Header().Set("Content-Type", ct)
	}
	c.Response().WriteHeader(resp.StatusCode)
	if _, err := io.Copy(flushWriter{c.Response()}, resp.Body); err != nil {
		log.Warn().Err(err).Str("target", target.Name).Msg("messages relay failed")
	}

	status := "ok"
	if resp.StatusCode >= http.StatusBadRequest {
		status = "error"
	}
	h.metrics.IncProxyRequest(target.Name, "forward", status)
	return nil
}

func endpoint(t dispatch.Target) llm.Endpoint {
	return llm.Endpoint{Name: t.Name, BaseURL: t.BaseURL, APIKey: t.APIKey}
}

func invalidRequest(c echo.Context, message, param string) error {
	return c.JSON(http.StatusBadRequest, llm.ErrorResponse{
		Error: &llm.APIError{
			Message: message,
			Type:    "invalid_request_error",
			Param:   param,
		},
	})
}

func upstreamError(c echo.Context, err error) error {
	status := http.StatusBadGateway
	var ue *llm.UpstreamError
	if errors.As(err, &ue) && ue.StatusCode >= 400 && ue.StatusCode < 500 {
		status = ue.StatusCode
	}
	return c.JSON(status, llm.ErrorResponse{
		Error: &llm.APIError{
			Message: err.Error(),
			Type:    "upstream_error",
		},
	})
}

func noTarget(c echo.Context, err error) error {
	return c.JSON(http.StatusServiceUnavailable, llm.ErrorResponse{
		Error: &llm.APIError{
			Message: fmt.Sprintf("no upstream available: %v", err),
			Type:    "upstream_error",
		},
	})
}

// flushWriter flushes after every write so SSE frames reach the client promptly.
type flushWriter struct {
	w *echo.Response
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err == nil {
		f.w.Flush()
	}
	return n, err
}
