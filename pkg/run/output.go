package run

import (
	"time"

	"github.com/tandem-run/tandem/pkg/chat"
)

// ContentTypeText is the content type of plain streamed text.
const ContentTypeText = "str"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ToolExecution is the durable record of one tool call within a run.
type ToolExecution struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Result    string `json:"result,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	RequiresConfirmation bool  `json:"requires_confirmation,omitempty"`
	Confirmed            *bool `json:"confirmed,omitempty"`

	StartedAt   int64 `json:"started_at,omitempty"`
	CompletedAt int64 `json:"completed_at,omitempty"`
}

// Done reports whether the call has a recorded result.
func (t *ToolExecution) Done() bool {
	return t.CompletedAt != 0
}

// AwaitingConfirmation reports whether the call is blocked on an external
// decision.
func (t *ToolExecution) AwaitingConfirmation() bool {
	return t.RequiresConfirmation && t.Confirmed == nil && !t.Done()
}

// Output is the durable aggregate of one run. It is exclusively owned by the
// Aggregator while the run is in flight and read-only once persisted, except
// for the paused -> running transition on resume.
type Output struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	TeamID    string `json:"team_id,omitempty"`

	Status Status `json:"status"`

	Input       string         `json:"input,omitempty"`
	Content     any            `json:"content,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	Messages    []chat.Message `json:"messages,omitempty"`

	Tools          []*ToolExecution `json:"tools,omitempty"`
	ReasoningSteps []string         `json:"reasoning_steps,omitempty"`

	Metrics Metrics `json:"metrics"`

	// Events retains the filtered event stream when store_events is enabled.
	// Content deltas are never retained to bound growth.
	Events EventList `json:"events,omitempty"`

	// MemberResponses holds the final outputs of member runs a team delegated
	// to during this run.
	MemberResponses []*Output `json:"member_responses,omitempty"`

	Error string `json:"error,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

func (o *Output) IsPaused() bool {
	return o.Status == StatusPaused
}

// PendingConfirmations returns the tool calls blocking a paused run.
func (o *Output) PendingConfirmations() []*ToolExecution {
	var pending []*ToolExecution
	for _, t := range o.Tools {
		if t.AwaitingConfirmation() {
			pending = append(pending, t)
		}
	}
	return pending
}

// FindTool returns the tool execution with the given call id.
func (o *Output) FindTool(id string) *ToolExecution {
	for _, t := range o.Tools {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ContentString returns the materialized content as text. Structured content
// is returned empty; callers needing the object use Content directly.
func (o *Output) ContentString() string {
	if s, ok := o.Content.(string); ok {
		return s
	}
	return ""
}

func (o *Output) touch() {
	o.UpdatedAt = time.Now().Unix()
}
