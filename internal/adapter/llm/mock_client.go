package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MockClient is a mock implementation of LLMClient for testing and offline runs.
// It emits OpenAI-style SSE chunks.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

// OpenStream returns a canned SSE stream answering the last user message.
func (m *MockClient) OpenStream(ctx context.Context, ep Endpoint, req *ChatCompletionRequest) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	responseContent := m.generateMockResponse(req)
	id := fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()

	var b strings.Builder
	chunks := m.splitIntoChunks(responseContent, 10)
	for i, chunk := range chunks {
		delta := &ChatMessage{Content: chunk}
		if i == 0 {
			delta.Role = "assistant"
		}
		choice := Choice{Index: 0, Delta: delta}
		if i == len(chunks)-1 {
			choice.FinishReason = "stop"
		}
		streamChunk := StreamChunk{
			ID:                id,
			Object:            "chat.completion.chunk",
			Created:           created,
			Model:             req.Model,
			Choices:           []Choice{choice},
			SystemFingerprint: "mock-fp",
		}
		if i == len(chunks)-1 {
			streamChunk.Usage = &Usage{
				PromptTokens:     m.estimateTokens(req),
				CompletionTokens: len(responseContent) / 4,
				TotalTokens:      m.estimateTokens(req) + len(responseContent)/4,
			}
		}
		data, err := json.Marshal(streamChunk)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "data: %s\n\n", data)
	}
	b.WriteString("data: [DONE]\n\n")

	return io.NopCloser(strings.NewReader(b.String())), nil
}

// ListModels returns a list of mock models.
func (m *MockClient) ListModels(ctx context.Context, ep Endpoint) ([]Model, error) {
	return []Model{
		{
			ID:      "mock-gpt-4",
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "mock",
		},
		{
			ID:      "mock-claude-sonnet",
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "mock",
		},
	}, nil
}

// Forward answers with a fixed Anthropic-style message.
func (m *MockClient) Forward(ctx context.Context, ep Endpoint, path string, header http.Header, body io.Reader) (*http.Response, error) {
	payload := `{"id":"mock-msg","type":"message","role":"assistant","content":[{"type":"text","text":"[MOCK] forwarded"}]}`
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(payload)),
	}, nil
}

// generateMockResponse generates a mock response based on the request.
func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) string {
	if len(req.Tools) > 0 {
		return fmt.Sprintf("[MOCK] I would call tool '%s' to help with this request.", req.Tools[0].Function.Name)
	}

	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}

	if lastUserMessage == "" {
		return "[MOCK] This is a mock response from the LLM client."
	}

	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))
}

func (m *MockClient) estimateTokens(req *ChatCompletionRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}

func (m *MockClient) splitIntoChunks(s string, chunkSize int) []string {
	if len(s) == 0 {
		return []string{""}
	}

	var chunks []string
	for i := 0; i < len(s); i += chunkSize {
		end := min(i+chunkSize, len(s))
		chunks = append(chunks, s[i:end])
	}
	return chunks
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
