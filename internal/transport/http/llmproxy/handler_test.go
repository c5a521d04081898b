package llmproxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xiaot623/gogo/gateway/internal/adapter/llm"
	"github.com/xiaot623/gogo/gateway/internal/dispatch"
	"github.com/xiaot623/gogo/gateway/internal/telemetry"
)

const sseBody = "data: {\"id\":\"c1\",\"model\":\"gpt\",\"created\":7,\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"hel\"}}]}\n\n" +
	"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n" +
	"data: [DONE]\n\n"

func newTestHandler(t *testing.T, upstreamURL string, provider dispatch.ProviderConfig) *Handler {
	t.Helper()
	pool := dispatch.NewStaticPool(dispatch.Target{Name: "primary", BaseURL: upstreamURL, Protocol: dispatch.ProtocolOpenAI})
	return NewHandler(
		llm.NewClient(time.Second),
		dispatch.NewDispatcher(pool, nil, provider),
		telemetry.MustNewMetrics(prometheus.NewRegistry()),
	)
}

func TestChatCompletionsValidation(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, "http://example.com", dispatch.DefaultProviderConfig())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(`{"messages":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ChatCompletions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatCompletionsNonStreamingCollects(t *testing.T) {
	var upstreamReq llm.ChatCompletionRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&upstreamReq); err != nil {
			t.Errorf("decode upstream request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sseBody))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, dispatch.DefaultProviderConfig())
	e := echo.New()

	body := `{"model":"gpt","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ChatCompletions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !upstreamReq.Stream {
		t.Fatalf("expected upstream request to stream")
	}

	var resp llm.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "c1" || resp.Object != "chat.completion" {
		t.Fatalf("unexpected metadata: %+v", resp)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message == nil {
		t.Fatalf("expected one message choice, got %+v", resp.Choices)
	}
	if resp.Choices[0].Message.Content != "hello" {
		t.Fatalf("expected content hello, got %q", resp.Choices[0].Message.Content)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("expected finish_reason stop, got %q", resp.Choices[0].FinishReason)
	}
}

func TestChatCompletionsStreamingRelays(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sseBody))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, dispatch.DefaultProviderConfig())
	e := echo.New()

	body := `{"model":"gpt","stream":true,"messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ChatCompletions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", got)
	}
	if rec.Body.String() != sseBody {
		t.Fatalf("stream was not relayed verbatim: %q", rec.Body.String())
	}
}

func TestChatCompletionsUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, dispatch.DefaultProviderConfig())
	e := echo.New()

	body := `{"model":"gpt","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ChatCompletions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "upstream_error") {
		t.Fatalf("expected upstream_error envelope, got %s", rec.Body.String())
	}
}

func TestMessagesForwardsToExclusiveProvider(t *testing.T) {
	var gotModel, gotKey, gotVersion string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)
		gotModel, _ = body["model"].(string)
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"msg_1","type":"message"}`))
	}))
	defer provider.Close()

	cfg := dispatch.DefaultProviderConfig()
	cfg.Enabled = true
	cfg.BaseURL = provider.URL
	cfg.APIKey = "zai-key"
	cfg.DispatchMode = dispatch.ModeExclusive

	h := newTestHandler(t, "http://unused.invalid", cfg)
	e := echo.New()

	body := `{"model":"claude-3-haiku-20240307","max_tokens":16,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", "2023-06-01")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Messages(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotModel != dispatch.DefaultHaikuModel {
		t.Fatalf("expected model %s, got %s", dispatch.DefaultHaikuModel, gotModel)
	}
	if gotKey != "zai-key" {
		t.Fatalf("expected provider key, got %q", gotKey)
	}
	if gotVersion != "2023-06-01" {
		t.Fatalf("expected anthropic-version passthrough, got %q", gotVersion)
	}
}

func TestMessagesWithoutTarget(t *testing.T) {
	h := newTestHandler(t, "http://unused.invalid", dispatch.DefaultProviderConfig())
	e := echo.New()

	body := `{"model":"claude-3-opus","messages":[]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Messages(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestListModels(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"gpt","object":"model","created":1,"owned_by":"me"}]}`))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, dispatch.DefaultProviderConfig())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListModels(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"gpt"`) {
		t.Fatalf("expected model list, got %s", rec.Body.String())
	}
}
