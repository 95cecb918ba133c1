package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/tandem-run/tandem/pkg/concurrent"
)

// Recorder counts tool calls and token usage per run. A nil Recorder is
// valid and records nothing.
type Recorder struct {
	toolCalls *concurrent.Map[string, int]
}

func NewRecorder() *Recorder {
	return &Recorder{
		toolCalls: concurrent.NewMap[string, int](),
	}
}

// RecordToolCall records one tool invocation.
func (r *Recorder) RecordToolCall(toolName, sessionID, component string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	count, _ := r.toolCalls.Load(toolName)
	r.toolCalls.Store(toolName, count+1)

	slog.Debug("Tool call recorded",
		"tool", toolName,
		"session_id", sessionID,
		"component", component,
		"duration", duration,
		"error", err)
}

// ToolCallCount returns how many times a tool was invoked.
func (r *Recorder) ToolCallCount(toolName string) int {
	if r == nil {
		return 0
	}
	count, _ := r.toolCalls.Load(toolName)
	return count
}

type contextKey string

const recorderContextKey contextKey = "telemetry_recorder"

// WithRecorder attaches a recorder to the context.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderContextKey, r)
}

// FromContext retrieves the recorder from context, or nil.
func FromContext(ctx context.Context) *Recorder {
	if r, ok := ctx.Value(recorderContextKey).(*Recorder); ok {
		return r
	}
	return nil
}

// RecordToolCall records a tool invocation on the context's recorder, if any.
func RecordToolCall(ctx context.Context, toolName, sessionID, component string, duration time.Duration, err error) {
	FromContext(ctx).RecordToolCall(toolName, sessionID, component, duration, err)
}
