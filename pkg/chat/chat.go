package chat

import (
	"time"

	"github.com/tandem-run/tandem/pkg/tools"
)

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// Message is a single entry in a conversation, normalized across providers.
type Message struct {
	Role             MessageRole      `json:"role"`
	Content          string           `json:"content,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCallID       string           `json:"tool_call_id,omitempty"`
	ToolCalls        []tools.ToolCall `json:"tool_calls,omitempty"`
	CreatedAt        string           `json:"created_at,omitempty"`
}

func SystemMessage(content string) Message {
	return Message{
		Role:      MessageRoleSystem,
		Content:   content,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
}

func UserMessage(content string) Message {
	return Message{
		Role:      MessageRoleUser,
		Content:   content,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
}

func AssistantMessage(content string) Message {
	return Message{
		Role:      MessageRoleAssistant,
		Content:   content,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
}

func ToolMessage(toolCallID, content string) Message {
	return Message{
		Role:       MessageRoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		CreatedAt:  time.Now().Format(time.RFC3339),
	}
}

// MessageDelta is one streamed fragment of an assistant message.
// Tool call fragments arrive incrementally and are keyed by index.
type MessageDelta struct {
	Content          string           `json:"content,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCalls        []tools.ToolCall `json:"tool_calls,omitempty"`
}

const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

type MessageStreamChoice struct {
	Index        int          `json:"index"`
	Delta        MessageDelta `json:"delta"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// Usage reports token consumption for one model response.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type MessageStreamResponse struct {
	Choices []MessageStreamChoice `json:"choices"`
	Usage   *Usage                `json:"usage,omitempty"`
}

// MessageStream is a pull-based stream of completion chunks.
// Recv blocks until the next chunk is available and returns io.EOF when the
// stream is exhausted.
type MessageStream interface {
	Recv() (MessageStreamResponse, error)
	Close()
}
