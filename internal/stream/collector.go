// Package stream aggregates OpenAI-style SSE chat completion streams into a
// single chat completion response.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xiaot623/gogo/gateway/internal/adapter/llm"
)

const (
	dataPrefix = "data:"
	doneMarker = "[DONE]"

	defaultID           = "chatcmpl-unknown"
	defaultModel        = "unknown"
	defaultObject       = "chat.completion"
	defaultRole         = "assistant"
	defaultFinishReason = "stop"
	defaultToolType     = "function"
)

// Delta payloads use pointer fields so that "absent" and "empty" stay distinct.
type chunk struct {
	ID      *string       `json:"id"`
	Model   *string       `json:"model"`
	Created *int64        `json:"created"`
	Usage   *llm.Usage    `json:"usage"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Delta        *chunkDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type chunkDelta struct {
	Role             *string         `json:"role"`
	Content          *string         `json:"content"`
	ReasoningContent *string         `json:"reasoning_content"`
	ToolCalls        []toolCallDelta `json:"tool_calls"`
}

type toolCallDelta struct {
	Index    *int           `json:"index"`
	ID       *string        `json:"id"`
	Type     *string        `json:"type"`
	Function *functionDelta `json:"function"`
}

type functionDelta struct {
	Name      *string `json:"name"`
	Arguments *string `json:"arguments"`
}

type toolCallBuilder struct {
	id        *string
	callType  *string
	name      strings.Builder
	arguments strings.Builder
}

// Accumulator holds the state of one stream consumption.
type Accumulator struct {
	id      string
	model   string
	created int64
	usage   *llm.Usage

	role         *string
	content      []string
	reasoning    []string
	finishReason *string
	toolCalls    map[int]*toolCallBuilder
}

// NewAccumulator creates an accumulator whose created timestamp defaults to now.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		id:        defaultID,
		model:     defaultModel,
		created:   time.Now().Unix(),
		toolCalls: make(map[int]*toolCallBuilder),
	}
}

// FeedLine consumes one line of the event stream. It reports whether the line
// carried a delta that was applied; blank, non-data, [DONE] and malformed lines
// are ignored.
func (a *Accumulator) FeedLine(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if data == "" || data == doneMarker {
		return false
	}

	var c chunk
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return false
	}
	a.apply(&c)
	return true
}

func (a *Accumulator) apply(c *chunk) {
	if c.ID != nil {
		a.id = *c.ID
	}
	if c.Model != nil {
		a.model = *c.Model
	}
	if c.Created != nil {
		a.created = *c.Created
	}
	if c.Usage != nil {
		a.usage = c.Usage
	}

	if len(c.Choices) == 0 {
		return
	}
	choice := c.Choices[0]

	if d := choice.Delta; d != nil {
		if d.Role != nil {
			a.role = d.Role
		}
		if d.Content != nil {
			a.content = append(a.content, *d.Content)
		}
		if d.ReasoningContent != nil {
			a.reasoning = append(a.reasoning, *d.ReasoningContent)
		}
		for _, tc := range d.ToolCalls {
			a.applyToolCall(tc)
		}
	}

	if choice.FinishReason != nil {
		a.finishReason = choice.FinishReason
	}
}

func (a *Accumulator) applyToolCall(tc toolCallDelta) {
	if tc.Index == nil {
		return
	}
	b, ok := a.toolCalls[*tc.Index]
	if !ok {
		b = &toolCallBuilder{}
		a.toolCalls[*tc.Index] = b
	}
	if b.id == nil && tc.ID != nil {
		b.id = tc.ID
	}
	if b.callType == nil && tc.Type != nil {
		b.callType = tc.Type
	}
	if tc.Function != nil {
		if tc.Function.Name != nil {
			b.name.WriteString(*tc.Function.Name)
		}
		if tc.Function.Arguments != nil {
			b.arguments.WriteString(*tc.Function.Arguments)
		}
	}
}

// Result builds the structured response from everything fed so far.
func (a *Accumulator) Result() *llm.ChatCompletionResponse {
	msg := &llm.ChatMessage{
		Role:    defaultRole,
		Content: strings.Join(a.content, ""),
	}
	if a.role != nil {
		msg.Role = *a.role
	}
	if len(a.reasoning) > 0 {
		reasoning := strings.Join(a.reasoning, "")
		msg.ReasoningContent = &reasoning
	}

	if len(a.toolCalls) > 0 {
		indices := make([]int, 0, len(a.toolCalls))
		for idx := range a.toolCalls {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		msg.ToolCalls = make([]llm.ToolCall, 0, len(indices))
		for _, idx := range indices {
			b := a.toolCalls[idx]
			call := llm.ToolCall{
				Type: defaultToolType,
				Function: llm.ToolCallFunction{
					Name:      b.name.String(),
					Arguments: b.arguments.String(),
				},
			}
			if b.id != nil {
				call.ID = *b.id
			}
			if b.callType != nil {
				call.Type = *b.callType
			}
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
	}

	finishReason := defaultFinishReason
	if a.finishReason != nil {
		finishReason = *a.finishReason
	}

	return &llm.ChatCompletionResponse{
		ID:      a.id,
		Object:  defaultObject,
		Created: a.created,
		Model:   a.model,
		Choices: []llm.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finishReason,
		}},
		Usage: a.usage,
	}
}

// Collect reads r until EOF and returns the aggregated response. [DONE] does not
// stop consumption; a read error other than EOF aborts it.
func Collect(ctx context.Context, r io.Reader) (*llm.ChatCompletionResponse, error) {
	acc := NewAccumulator()
	reader := bufio.NewReader(r)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := reader.ReadString('\n')
		if line != "" {
			acc.FeedLine(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read stream: %w", err)
		}
	}

	return acc.Result(), nil
}
