package run

import (
	"log/slog"
	"strings"
	"time"

	"github.com/tandem-run/tandem/pkg/chat"
)

// Aggregator folds one run's ordered event stream into its durable Output.
// It is single-owner: exactly one goroutine applies events for a given run.
type Aggregator struct {
	output      *Output
	content     strings.Builder
	storeEvents bool
	started     time.Time
	finished    bool
}

type AggregatorOpt func(*Aggregator)

// WithStoreEvents retains the filtered event stream on the Output. Content
// deltas are always excluded.
func WithStoreEvents() AggregatorOpt {
	return func(a *Aggregator) {
		a.storeEvents = true
	}
}

// NewAggregator creates the Output for a new run in pending state.
func NewAggregator(rc RunContext, userID, input string, opts ...AggregatorOpt) *Aggregator {
	a := &Aggregator{
		output: &Output{
			RunID:     rc.RunID,
			SessionID: rc.SessionID,
			UserID:    userID,
			AgentID:   rc.AgentID,
			TeamID:    rc.TeamID,
			Status:    StatusPending,
			Input:     input,
			CreatedAt: time.Now().Unix(),
		},
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ResumeAggregator re-opens a persisted paused Output for its resume stream.
func ResumeAggregator(output *Output, opts ...AggregatorOpt) *Aggregator {
	if !output.IsPaused() {
		panic("run: resuming an aggregator for a non-paused output")
	}
	a := &Aggregator{
		output:  output,
		started: time.Now(),
	}
	// Re-seed the builder with the pre-pause text; the terminal event will
	// materialize the full concatenation.
	a.content.WriteString(output.ContentString())
	output.Content = nil
	output.ContentType = ""
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Output returns the in-flight run record.
func (a *Aggregator) Output() *Output {
	return a.output
}

// Content returns the text streamed so far, across resumes.
func (a *Aggregator) Content() string {
	return a.content.String()
}

// Apply folds one event into the run record. Events arriving after a terminal
// event are a programming error in the emitter.
func (a *Aggregator) Apply(event Event) {
	if a.finished {
		panic("run: event applied after terminal event")
	}
	if a.output.Status == StatusPending {
		a.output.Status = StatusRunning
	}
	a.output.touch()

	switch e := event.(type) {
	case *RunStartedEvent:
		// Stream opener; the transition to running happened above.

	case *RunContinuedEvent:
		a.output.Status = StatusRunning

	case *RunContentEvent:
		if e.ContentType == ContentTypeText || e.ContentType == "" {
			if s, ok := e.Content.(string); ok {
				a.content.WriteString(s)
			}
		} else {
			// Structured output replaces accumulated text wholesale.
			a.output.Content = e.Content
			a.output.ContentType = e.ContentType
		}

	case *ToolCallStartedEvent:
		if existing := a.output.FindTool(e.Tool.ID); existing != nil {
			// Resumed runs re-announce pending tools already on record.
			if existing.StartedAt == 0 {
				existing.StartedAt = e.Tool.StartedAt
			}
		} else {
			tool := e.Tool
			a.output.Tools = append(a.output.Tools, &tool)
		}

	case *ToolCallCompletedEvent:
		a.completeTool(e)

	case *ReasoningStartedEvent:
		// Marker only.

	case *ReasoningStepEvent:
		a.output.ReasoningSteps = append(a.output.ReasoningSteps, e.Content)

	case *ReasoningCompletedEvent:
		// Marker only; steps were accumulated individually.

	case *MemoryUpdateStartedEvent, *MemoryUpdateCompletedEvent:
		// Markers only; memories are persisted by the memory manager.

	case *ParserModelResponseStartedEvent, *ParserModelResponseCompletedEvent:
		// Markers; the structured result arrives as a content event.

	case *RunPausedEvent:
		if a.output.Content == nil {
			a.output.Content = a.content.String()
			a.output.ContentType = ContentTypeText
		}
		a.output.Status = StatusPaused
		a.mergePendingTools(e.Tools)
		a.finished = true

	case *RunCompletedEvent:
		if e.Content != nil {
			a.output.Content = e.Content
			a.output.ContentType = e.ContentType
		}
		if e.Metrics != nil {
			a.output.Metrics.Merge(*e.Metrics)
		}
		a.finish(StatusCompleted)

	case *RunErrorEvent:
		a.output.Error = e.Error
		a.output.Content = e.Error
		a.output.ContentType = ContentTypeText
		a.finish(StatusFailed)

	default:
		panic("run: unknown event variant")
	}

	a.retain(event)
}

// AddMetrics folds a model usage report into the run metrics.
func (a *Aggregator) AddMetrics(m Metrics) {
	a.output.Metrics.Add(m)
}

// AddMessage appends a message to the run's ordered transcript.
func (a *Aggregator) AddMessage(msg chat.Message) {
	a.output.Messages = append(a.output.Messages, msg)
}

// AddMemberResponse records a member run's final output on a team run.
func (a *Aggregator) AddMemberResponse(member *Output) {
	a.output.MemberResponses = append(a.output.MemberResponses, member)
}

func (a *Aggregator) completeTool(e *ToolCallCompletedEvent) {
	tool := a.output.FindTool(e.Tool.ID)
	if tool == nil {
		// Streaming transports can reorder delivery under retry; keep the
		// orphan result as a standalone record instead of failing the run.
		slog.Warn("Tool completion without matching start",
			"run_id", a.output.RunID,
			"tool", e.Tool.Name,
			"tool_call_id", e.Tool.ID)
		orphan := e.Tool
		a.output.Tools = append(a.output.Tools, &orphan)
		return
	}

	tool.Result = e.Tool.Result
	tool.IsError = e.Tool.IsError
	tool.CompletedAt = e.Tool.CompletedAt
	if tool.CompletedAt == 0 {
		tool.CompletedAt = time.Now().Unix()
	}
	if e.Tool.Confirmed != nil {
		tool.Confirmed = e.Tool.Confirmed
	}
}

func (a *Aggregator) mergePendingTools(pending []ToolExecution) {
	for i := range pending {
		if existing := a.output.FindTool(pending[i].ID); existing != nil {
			existing.RequiresConfirmation = pending[i].RequiresConfirmation
			existing.Arguments = pending[i].Arguments
			continue
		}
		tool := pending[i]
		a.output.Tools = append(a.output.Tools, &tool)
	}
}

func (a *Aggregator) finish(status Status) {
	if a.output.Content == nil {
		a.output.Content = a.content.String()
		a.output.ContentType = ContentTypeText
	}
	a.output.Metrics.Duration += time.Since(a.started)
	a.output.Status = status
	a.finished = true
}

func (a *Aggregator) retain(event Event) {
	if !a.storeEvents {
		return
	}
	// Content deltas are unbounded; never persist them individually.
	if BaseKind(event.EventKind()) == KindRunContent {
		return
	}
	a.output.Events = append(a.output.Events, event)
}
