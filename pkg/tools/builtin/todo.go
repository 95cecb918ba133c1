package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tandem-run/tandem/pkg/concurrent"
	"github.com/tandem-run/tandem/pkg/tools"
)

// TodoTool tracks a shared task list the model maintains while working.
type TodoTool struct {
	todos *concurrent.Map[string, Todo]
}

var _ tools.ToolSet = (*TodoTool)(nil)

type Todo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func NewTodoTool() *TodoTool {
	return &TodoTool{
		todos: concurrent.NewMap[string, Todo](),
	}
}

func (t *TodoTool) Start(context.Context) error { return nil }
func (t *TodoTool) Stop(context.Context) error  { return nil }

func (t *TodoTool) Instructions() string {
	return `## Using the todo tools

Track the progress of multi-step work:
1. Create a todo for each major step before starting.
2. Use list_todos to keep track of remaining work.
3. Mark todos as "completed" when finished.`
}

func (t *TodoTool) Tools(context.Context) ([]tools.Tool, error) {
	return []tools.Tool{
		{
			Name:        "create_todo",
			Description: "Create a new todo item in pending state.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{
						"type":        "string",
						"description": "Description of the todo item.",
					},
				},
				"required": []string{"description"},
			},
			Handler: t.createTodo,
		},
		{
			Name:        "update_todo",
			Description: "Update the status of a todo item.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "ID of the todo item.",
					},
					"status": map[string]any{
						"type":        "string",
						"description": "New status.",
						"enum":        []string{"pending", "in-progress", "completed"},
					},
				},
				"required": []string{"id", "status"},
			},
			Handler: t.updateTodo,
		},
		{
			Name:        "list_todos",
			Description: "List all todo items with their status.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			Annotations: tools.Annotations{ReadOnlyHint: true},
			Handler:     t.listTodos,
		},
	}, nil
}

func (t *TodoTool) createTodo(_ context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var params struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	todo := Todo{
		ID:          uuid.New().String(),
		Description: params.Description,
		Status:      "pending",
	}
	t.todos.Store(todo.ID, todo)
	return tools.ResultSuccess(fmt.Sprintf("Created todo %s: %s", todo.ID, todo.Description)), nil
}

func (t *TodoTool) updateTodo(_ context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var params struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	todo, ok := t.todos.Load(params.ID)
	if !ok {
		return tools.ResultError(fmt.Sprintf("todo %s not found", params.ID)), nil
	}
	todo.Status = params.Status
	t.todos.Store(todo.ID, todo)
	return tools.ResultSuccess(fmt.Sprintf("Updated todo %s to %s", todo.ID, todo.Status)), nil
}

func (t *TodoTool) listTodos(_ context.Context, _ tools.ToolCall) (*tools.ToolCallResult, error) {
	var sb strings.Builder
	t.todos.Range(func(_ string, todo Todo) bool {
		fmt.Fprintf(&sb, "- [%s] %s (%s)\n", todo.Status, todo.Description, todo.ID)
		return true
	})
	if sb.Len() == 0 {
		return tools.ResultSuccess("No todos."), nil
	}
	return tools.ResultSuccess(sb.String()), nil
}
