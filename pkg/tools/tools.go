package tools

import "context"

type ToolType string

const ToolTypeFunction ToolType = "function"

// ToolCall is a request from the model to invoke a tool.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type ToolCallResult struct {
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

func ResultSuccess(output string) *ToolCallResult {
	return &ToolCallResult{Output: output}
}

func ResultError(output string) *ToolCallResult {
	return &ToolCallResult{Output: output, IsError: true}
}

// Handler executes a tool call and returns its result. Handlers must honor
// ctx cancellation for long-running work.
type Handler func(ctx context.Context, call ToolCall) (*ToolCallResult, error)

type Annotations struct {
	// ReadOnlyHint marks tools that never mutate their environment.
	ReadOnlyHint bool `json:"read_only_hint,omitempty"`
}

// Tool is a named, schema-described callable exposed to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Annotations Annotations    `json:"annotations,omitempty"`

	// RequiresConfirmation gates execution on an external approval. A call to
	// such a tool pauses the run until the caller confirms or rejects it.
	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`

	Handler Handler `json:"-"`
}

// ToolSet is a group of related tools with a shared lifecycle.
type ToolSet interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Tools(ctx context.Context) ([]Tool, error)
	Instructions() string
}
