package run

import (
	"time"
)

// EventKind discriminates the closed set of run-lifecycle events. Team-level
// runs emit the same shapes under a "team_" kind namespace so consumers can
// tell a team's own events apart from forwarded member events.
type EventKind string

const (
	KindRunStarted                   EventKind = "run_started"
	KindRunContent                   EventKind = "run_content"
	KindToolCallStarted              EventKind = "tool_call_started"
	KindToolCallCompleted            EventKind = "tool_call_completed"
	KindReasoningStarted             EventKind = "reasoning_started"
	KindReasoningStep                EventKind = "reasoning_step"
	KindReasoningCompleted           EventKind = "reasoning_completed"
	KindMemoryUpdateStarted          EventKind = "memory_update_started"
	KindMemoryUpdateCompleted        EventKind = "memory_update_completed"
	KindParserModelResponseStarted   EventKind = "parser_model_response_started"
	KindParserModelResponseCompleted EventKind = "parser_model_response_completed"
	KindRunPaused                    EventKind = "run_paused"
	KindRunContinued                 EventKind = "run_continued"
	KindRunCompleted                 EventKind = "run_completed"
	KindRunError                     EventKind = "run_error"
)

const teamKindPrefix = "team_"

// TeamKind returns the team-namespace variant of a kind.
func TeamKind(kind EventKind) EventKind {
	return EventKind(teamKindPrefix + string(kind))
}

// BaseKind strips the team namespace, if present.
func BaseKind(kind EventKind) EventKind {
	if after, ok := cutTeamPrefix(string(kind)); ok {
		return EventKind(after)
	}
	return kind
}

// IsTeamKind reports whether the kind belongs to the team namespace.
func IsTeamKind(kind EventKind) bool {
	_, ok := cutTeamPrefix(string(kind))
	return ok
}

func cutTeamPrefix(s string) (string, bool) {
	if len(s) > len(teamKindPrefix) && s[:len(teamKindPrefix)] == teamKindPrefix {
		return s[len(teamKindPrefix):], true
	}
	return s, false
}

// Event is one run-lifecycle notification. The concrete types below form a
// closed set; the aggregator matches on them exhaustively.
type Event interface {
	isEvent()
	EventKind() EventKind
	Meta() EventMeta
}

// EventMeta carries the fields shared by every event.
type EventMeta struct {
	Kind      EventKind `json:"event"`
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	TeamID    string    `json:"team_id,omitempty"`
	CreatedAt int64     `json:"created_at"`
}

func (m EventMeta) isEvent()             {}
func (m EventMeta) EventKind() EventKind { return m.Kind }
func (m EventMeta) Meta() EventMeta      { return m }

// RunContext identifies the run an event belongs to. The runtime builds one
// per run and derives every event's metadata from it.
type RunContext struct {
	RunID     string
	SessionID string
	AgentID   string
	TeamID    string
	// Team switches emitted events to the team kind namespace.
	Team bool
}

func (rc RunContext) meta(kind EventKind) EventMeta {
	if rc.Team {
		kind = TeamKind(kind)
	}
	return EventMeta{
		Kind:      kind,
		RunID:     rc.RunID,
		SessionID: rc.SessionID,
		AgentID:   rc.AgentID,
		TeamID:    rc.TeamID,
		CreatedAt: time.Now().Unix(),
	}
}

// IsTerminal reports whether an event closes its run's stream.
func IsTerminal(e Event) bool {
	switch BaseKind(e.EventKind()) {
	case KindRunCompleted, KindRunPaused, KindRunError:
		return true
	default:
		return false
	}
}

type RunStartedEvent struct {
	EventMeta
	Model         string `json:"model,omitempty"`
	ModelProvider string `json:"model_provider,omitempty"`
}

func RunStarted(rc RunContext, model, modelProvider string) *RunStartedEvent {
	return &RunStartedEvent{
		EventMeta:     rc.meta(KindRunStarted),
		Model:         model,
		ModelProvider: modelProvider,
	}
}

type RunContentEvent struct {
	EventMeta
	Content     any    `json:"content,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Content emits one streamed content delta.
func Content(rc RunContext, delta string) *RunContentEvent {
	return &RunContentEvent{
		EventMeta:   rc.meta(KindRunContent),
		Content:     delta,
		ContentType: ContentTypeText,
	}
}

// StructuredContent emits a fully materialized structured output.
func StructuredContent(rc RunContext, content any, contentType string) *RunContentEvent {
	return &RunContentEvent{
		EventMeta:   rc.meta(KindRunContent),
		Content:     content,
		ContentType: contentType,
	}
}

type ToolCallStartedEvent struct {
	EventMeta
	Tool ToolExecution `json:"tool"`
}

func ToolCallStarted(rc RunContext, tool ToolExecution) *ToolCallStartedEvent {
	return &ToolCallStartedEvent{
		EventMeta: rc.meta(KindToolCallStarted),
		Tool:      tool,
	}
}

type ToolCallCompletedEvent struct {
	EventMeta
	Tool    ToolExecution `json:"tool"`
	Content string        `json:"content,omitempty"`
}

func ToolCallCompleted(rc RunContext, tool ToolExecution) *ToolCallCompletedEvent {
	return &ToolCallCompletedEvent{
		EventMeta: rc.meta(KindToolCallCompleted),
		Tool:      tool,
		Content:   tool.Result,
	}
}

type ReasoningStartedEvent struct {
	EventMeta
}

func ReasoningStarted(rc RunContext) *ReasoningStartedEvent {
	return &ReasoningStartedEvent{EventMeta: rc.meta(KindReasoningStarted)}
}

type ReasoningStepEvent struct {
	EventMeta
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

func ReasoningStep(rc RunContext, content, reasoning string) *ReasoningStepEvent {
	return &ReasoningStepEvent{
		EventMeta:        rc.meta(KindReasoningStep),
		Content:          content,
		ReasoningContent: reasoning,
	}
}

type ReasoningCompletedEvent struct {
	EventMeta
	Content string `json:"content,omitempty"`
}

func ReasoningCompleted(rc RunContext, content string) *ReasoningCompletedEvent {
	return &ReasoningCompletedEvent{
		EventMeta: rc.meta(KindReasoningCompleted),
		Content:   content,
	}
}

type MemoryUpdateStartedEvent struct {
	EventMeta
}

func MemoryUpdateStarted(rc RunContext) *MemoryUpdateStartedEvent {
	return &MemoryUpdateStartedEvent{EventMeta: rc.meta(KindMemoryUpdateStarted)}
}

type MemoryUpdateCompletedEvent struct {
	EventMeta
}

func MemoryUpdateCompleted(rc RunContext) *MemoryUpdateCompletedEvent {
	return &MemoryUpdateCompletedEvent{EventMeta: rc.meta(KindMemoryUpdateCompleted)}
}

type ParserModelResponseStartedEvent struct {
	EventMeta
}

func ParserModelResponseStarted(rc RunContext) *ParserModelResponseStartedEvent {
	return &ParserModelResponseStartedEvent{EventMeta: rc.meta(KindParserModelResponseStarted)}
}

type ParserModelResponseCompletedEvent struct {
	EventMeta
}

func ParserModelResponseCompleted(rc RunContext) *ParserModelResponseCompletedEvent {
	return &ParserModelResponseCompletedEvent{EventMeta: rc.meta(KindParserModelResponseCompleted)}
}

type RunPausedEvent struct {
	EventMeta
	// Tools lists every tool call awaiting confirmation, with the arguments
	// the model supplied.
	Tools []ToolExecution `json:"tools,omitempty"`
}

func RunPaused(rc RunContext, pending []ToolExecution) *RunPausedEvent {
	return &RunPausedEvent{
		EventMeta: rc.meta(KindRunPaused),
		Tools:     pending,
	}
}

type RunContinuedEvent struct {
	EventMeta
}

func RunContinued(rc RunContext) *RunContinuedEvent {
	return &RunContinuedEvent{EventMeta: rc.meta(KindRunContinued)}
}

type RunCompletedEvent struct {
	EventMeta
	Content     any      `json:"content,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
	Metrics     *Metrics `json:"metrics,omitempty"`
}

func RunCompleted(rc RunContext, content any, contentType string, metrics *Metrics) *RunCompletedEvent {
	return &RunCompletedEvent{
		EventMeta:   rc.meta(KindRunCompleted),
		Content:     content,
		ContentType: contentType,
		Metrics:     metrics,
	}
}

type RunErrorEvent struct {
	EventMeta
	Error string `json:"error"`
}

func RunError(rc RunContext, msg string) *RunErrorEvent {
	return &RunErrorEvent{
		EventMeta: rc.meta(KindRunError),
		Error:     msg,
	}
}
