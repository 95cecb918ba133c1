package runtime

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tandem-run/tandem/pkg/agent"
	"github.com/tandem-run/tandem/pkg/chat"
	"github.com/tandem-run/tandem/pkg/run"
	"github.com/tandem-run/tandem/pkg/telemetry"
	"github.com/tandem-run/tandem/pkg/tools"
)

const skippedToolResult = "Tool execution was skipped: the user declined to run this tool."

// toolDefs resolves the tools available to the component for this run.
func (cr *componentRun) toolDefs(ctx context.Context) ([]tools.Tool, error) {
	if cr.teamRef != nil {
		return cr.delegationTools(), nil
	}
	return cr.component.(*agent.Agent).Tools(ctx)
}

func (cr *componentRun) findTool(ctx context.Context, name string) (tools.Tool, bool, error) {
	defs, err := cr.toolDefs(ctx)
	if err != nil {
		return tools.Tool{}, false, err
	}
	for _, def := range defs {
		if def.Name == name {
			return def, true, nil
		}
	}
	return tools.Tool{}, false, nil
}

// processToolCalls resolves one batch of tool calls in order. When a call
// requires confirmation the run pauses: the unresolved remainder of the batch
// is recorded as pending and a paused terminal event is emitted.
func (cr *componentRun) processToolCalls(ctx context.Context, calls []tools.ToolCall) ([]chat.Message, bool) {
	var toolMessages []chat.Message

	for i, call := range calls {
		def, found, err := cr.findTool(ctx, call.Function.Name)
		if err != nil {
			cr.fail(ctx, err)
			return nil, true
		}
		if !found {
			exec := cr.newToolExecution(call, tools.Tool{})
			result := tools.ResultError(fmt.Sprintf("Tool %q is not available.", call.Function.Name))
			toolMessages = append(toolMessages, cr.recordToolResult(ctx, exec, result))
			continue
		}

		if def.RequiresConfirmation {
			// Results already produced in this batch must survive into the
			// persisted transcript before the run pauses.
			for _, msg := range toolMessages {
				cr.em.agg.AddMessage(msg)
			}
			cr.pause(ctx, calls[i:])
			return nil, true
		}

		exec := cr.newToolExecution(call, def)
		cr.em.emit(ctx, run.ToolCallStarted(cr.rc, *exec))
		result := cr.executeTool(ctx, def, call)
		toolMessages = append(toolMessages, cr.recordToolResult(ctx, exec, result))
	}

	return toolMessages, false
}

func (cr *componentRun) newToolExecution(call tools.ToolCall, def tools.Tool) *run.ToolExecution {
	id := call.ID
	if id == "" {
		id = newRunID()
	}
	return &run.ToolExecution{
		ID:                   id,
		Name:                 call.Function.Name,
		Arguments:            call.Function.Arguments,
		RequiresConfirmation: def.RequiresConfirmation,
		StartedAt:            time.Now().Unix(),
	}
}

// executeTool invokes a tool handler under a span, recording the call.
func (cr *componentRun) executeTool(ctx context.Context, def tools.Tool, call tools.ToolCall) *tools.ToolCallResult {
	ctx, span := cr.rt.tracer.Start(ctx, "runtime.tool.call", trace.WithAttributes(
		attribute.String("tool.name", call.Function.Name),
		attribute.String("tool.call_id", call.ID),
		attribute.String("component", cr.component.ID()),
		attribute.String("session.id", cr.sess.ID),
	))
	defer span.End()

	started := time.Now()
	result, err := def.Handler(ctx, call)
	telemetry.RecordToolCall(ctx, call.Function.Name, cr.sess.ID, cr.component.ID(), time.Since(started), err)

	if err != nil {
		span.SetStatus(codes.Error, "tool call failed")
		return tools.ResultError(fmt.Sprintf("Error: %v", err))
	}
	span.SetStatus(codes.Ok, "")
	if result == nil {
		return tools.ResultSuccess("")
	}
	return result
}

// recordToolResult finalizes a tool execution: completion event plus the tool
// message fed back to the model.
func (cr *componentRun) recordToolResult(ctx context.Context, exec *run.ToolExecution, result *tools.ToolCallResult) chat.Message {
	exec.Result = result.Output
	exec.IsError = result.IsError
	exec.CompletedAt = time.Now().Unix()
	cr.em.emit(ctx, run.ToolCallCompleted(cr.rc, *exec))
	return chat.ToolMessage(exec.ID, result.Output)
}

// pause records the unresolved tool calls and emits the paused terminal
// event. The caller persists the output.
func (cr *componentRun) pause(ctx context.Context, remaining []tools.ToolCall) {
	pending := make([]run.ToolExecution, 0, len(remaining))
	for _, call := range remaining {
		def, found, err := cr.findTool(ctx, call.Function.Name)
		if err != nil || !found {
			def = tools.Tool{}
		}
		pending = append(pending, *cr.newToolExecution(call, def))
	}
	cr.em.emit(ctx, run.RunPaused(cr.rc, pending))
}
