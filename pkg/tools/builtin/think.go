// Package builtin provides the tool sets agents can enable by name in their
// configuration.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tandem-run/tandem/pkg/concurrent"
	"github.com/tandem-run/tandem/pkg/tools"
)

const ToolNameThink = "think"

// ThinkTool gives the model a scratchpad. Thoughts are appended to an
// in-run log and echoed back; nothing else changes.
type ThinkTool struct {
	thoughts *concurrent.Slice[string]
}

var _ tools.ToolSet = (*ThinkTool)(nil)

func NewThinkTool() *ThinkTool {
	return &ThinkTool{thoughts: concurrent.NewSlice[string]()}
}

func (t *ThinkTool) Start(context.Context) error { return nil }
func (t *ThinkTool) Stop(context.Context) error  { return nil }

func (t *ThinkTool) Instructions() string {
	return `## Using the think tool

Before taking any action after receiving tool results, use the think tool as a scratchpad to:
- Check if all required information is collected
- Verify that the planned action matches the request
- Iterate over tool results for correctness`
}

func (t *ThinkTool) Tools(context.Context) ([]tools.Tool, error) {
	return []tools.Tool{
		{
			Name:        ToolNameThink,
			Description: "Use the tool to think about something. It will not obtain new information or change anything, just append the thought to the log.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"thought": map[string]any{
						"type":        "string",
						"description": "The thought to think about.",
					},
				},
				"required": []string{"thought"},
			},
			Annotations: tools.Annotations{ReadOnlyHint: true},
			Handler:     t.think,
		},
	}, nil
}

func (t *ThinkTool) think(_ context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var params struct {
		Thought string `json:"thought"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	t.thoughts.Append(params.Thought)
	return tools.ResultSuccess("Thoughts:\n" + strings.Join(t.thoughts.All(), "\n")), nil
}
