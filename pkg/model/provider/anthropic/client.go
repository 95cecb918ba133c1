package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tandem-run/tandem/pkg/chat"
	"github.com/tandem-run/tandem/pkg/config"
	"github.com/tandem-run/tandem/pkg/model/provider/base"
	"github.com/tandem-run/tandem/pkg/tools"
)

const (
	defaultAPIKeyEnv = "ANTHROPIC_API_KEY"
	defaultMaxTokens = 8192
)

// Client talks to the Anthropic messages API.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
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

	requestOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.BaseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		client:    anthropic.NewClient(requestOptions...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

func (c *Client) Model() string { return c.model }
func (c *Client) Name() string  { return "anthropic" }

func (c *Client) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, toolDefs []tools.Tool) (chat.MessageStream, error) {
	slog.Debug("Creating chat completion stream", "model", c.model, "messages", len(messages), "tools", len(toolDefs))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    extractSystemBlocks(messages),
		Messages:  convertMessages(messages),
		Tools:     convertTools(toolDefs),
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	return &streamAdapter{stream: stream}, nil
}

func (c *Client) CreateChatCompletion(ctx context.Context, messages []chat.Message) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    extractSystemBlocks(messages),
		Messages:  convertMessages(messages),
	})
	if err != nil {
		return "", classifyError(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), nil
}

// extractSystemBlocks lifts system-role messages into the top-level System
// field, which is where Anthropic expects them.
func extractSystemBlocks(messages []chat.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for i := range messages {
		if messages[i].Role != chat.MessageRoleSystem {
			continue
		}
		if txt := strings.TrimSpace(messages[i].Content); txt != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: txt})
		}
	}
	return blocks
}

// convertMessages maps our transcript to Anthropic message params. Consecutive
// tool results are grouped into a single user message so that every assistant
// tool_use block is immediately followed by its tool_result blocks.
func convertMessages(messages []chat.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam

	for i := 0; i < len(messages); i++ {
		msg := &messages[i]
		switch msg.Role {
		case chat.MessageRoleSystem:
			continue

		case chat.MessageRoleUser:
			if txt := strings.TrimSpace(msg.Content); txt != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(txt)))
			}

		case chat.MessageRoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if txt := strings.TrimSpace(msg.Content); txt != "" {
				blocks = append(blocks, anthropic.NewTextBlock(txt))
			}
			for _, call := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Function.Name,
						Input: input,
					},
				})
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		case chat.MessageRoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			j := i
			for j < len(messages) && messages[j].Role == chat.MessageRoleTool {
				blocks = append(blocks, anthropic.NewToolResultBlock(messages[j].ToolCallID, strings.TrimSpace(messages[j].Content), false))
				j++
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
			i = j - 1
		}
	}

	return out
}

func convertTools(toolDefs []tools.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(toolDefs))
	for _, tool := range toolDefs {
		var schema anthropic.ToolInputSchemaParam
		if properties, ok := tool.Parameters["properties"]; ok {
			schema.Properties = properties
		}
		if required, ok := tool.Parameters["required"].([]string); ok {
			schema.Required = required
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

// classifyError marks overload, rate limit, server and network errors as
// transient so the runtime's retry policy applies.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
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
