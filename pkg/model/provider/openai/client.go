package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/tandem-run/tandem/pkg/chat"
	"github.com/tandem-run/tandem/pkg/config"
	"github.com/tandem-run/tandem/pkg/model/provider/base"
	"github.com/tandem-run/tandem/pkg/tools"
)

const defaultAPIKeyEnv = "OPENAI_API_KEY"

// Client talks to the OpenAI chat completions API (or any compatible
// endpoint via base_url).
type Client struct {
	client *goopenai.Client
	model  string
}

func NewClient(cfg *config.ModelConfig) (*Client, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s is not set", keyEnv)
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

func (c *Client) Model() string { return c.model }
func (c *Client) Name() string  { return "openai" }

func (c *Client) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, toolDefs []tools.Tool) (chat.MessageStream, error) {
	req := goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(toolDefs),
		StreamOptions: &goopenai.StreamOptions{
			IncludeUsage: true,
		},
	}

	slog.Debug("Creating chat completion stream", "model", c.model, "messages", len(messages), "tools", len(toolDefs))

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classifyError(err)
	}
	return &messageStream{stream: stream}, nil
}

func (c *Client) CreateChatCompletion(ctx context.Context, messages []chat.Message) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

type messageStream struct {
	stream *goopenai.ChatCompletionStream
}

func (s *messageStream) Recv() (chat.MessageStreamResponse, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return chat.MessageStreamResponse{}, io.EOF
		}
		return chat.MessageStreamResponse{}, classifyError(err)
	}

	return fromStreamResponse(resp), nil
}

func fromStreamResponse(resp goopenai.ChatCompletionStreamResponse) chat.MessageStreamResponse {
	out := chat.MessageStreamResponse{}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, chat.MessageStreamChoice{
			Index: choice.Index,
			Delta: chat.MessageDelta{
				Content:          choice.Delta.Content,
				ReasoningContent: choice.Delta.ReasoningContent,
				ToolCalls:        fromOpenAIToolCalls(choice.Delta.ToolCalls),
			},
			FinishReason: string(choice.FinishReason),
		})
	}
	if resp.Usage != nil {
		out.Usage = &chat.Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		}
	}
	return out
}

func (s *messageStream) Close() {
	s.stream.Close()
}

func toOpenAIMessages(messages []chat.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted := goopenai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, goopenai.ToolCall{
				ID:   call.ID,
				Type: goopenai.ToolType(call.Type),
				Function: goopenai.FunctionCall{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		out = append(out, converted)
	}
	return out
}

func toOpenAITools(toolDefs []tools.Tool) []goopenai.Tool {
	out := make([]goopenai.Tool, 0, len(toolDefs))
	for _, tool := range toolDefs {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIToolCalls(calls []goopenai.ToolCall) []tools.ToolCall {
	out := make([]tools.ToolCall, 0, len(calls))
	for _, call := range calls {
		out = append(out, tools.ToolCall{
			Index: call.Index,
			ID:    call.ID,
			Type:  tools.ToolType(call.Type),
			Function: tools.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return out
}

// classifyError marks rate limits, server errors and network failures as
// transient so the runtime's retry policy applies.
func classifyError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return base.Transient(err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return base.Transient(err)
	}
	return err
}
