package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tandem-run/tandem/pkg/agent"
	"github.com/tandem-run/tandem/pkg/chat"
	"github.com/tandem-run/tandem/pkg/memory"
	"github.com/tandem-run/tandem/pkg/model/provider"
	"github.com/tandem-run/tandem/pkg/run"
	"github.com/tandem-run/tandem/pkg/session"
	"github.com/tandem-run/tandem/pkg/team"
	"github.com/tandem-run/tandem/pkg/tools"
)

// componentRun is the in-flight execution state of one component (agent or
// team) within one run.
type componentRun struct {
	rt   *Runtime
	sess *session.Session
	cfg  runConfig

	component team.Member
	teamRef   *team.Team // non-nil for team runs
	rc        run.RunContext

	model        provider.Provider
	parserModel  provider.Provider
	memory       *memory.Manager
	systemPrompt string

	em *emitter

	mu sync.Mutex // guards member response recording during fan-out
}

func (rt *Runtime) newComponentRun(component team.Member, sess *session.Session, cfg runConfig, rc *run.RunContext) (*componentRun, error) {
	cr := &componentRun{
		rt:        rt,
		sess:      sess,
		cfg:       cfg,
		component: component,
	}

	switch c := component.(type) {
	case *agent.Agent:
		if c.Model() == nil {
			return nil, fmt.Errorf("agent %s has no model", c.ID())
		}
		cr.model = c.Model()
		cr.parserModel = c.ParserModel()
		cr.memory = c.Memory()
		cr.systemPrompt = c.SystemMessage()
		cr.rc = run.RunContext{
			RunID:     newRunID(),
			SessionID: sess.ID,
			AgentID:   c.ID(),
		}
	case *team.Team:
		if c.Model() == nil {
			return nil, fmt.Errorf("team %s has no model", c.ID())
		}
		cr.teamRef = c
		cr.model = c.Model()
		cr.systemPrompt = c.SystemMessage()
		cr.rc = run.RunContext{
			RunID:     newRunID(),
			SessionID: sess.ID,
			TeamID:    c.ID(),
			Team:      true,
		}
	default:
		return nil, fmt.Errorf("unsupported component type %T", component)
	}

	if rc != nil {
		cr.rc = *rc
	}
	return cr, nil
}

func (cr *componentRun) aggregatorOpts() []run.AggregatorOpt {
	if cr.storeEvents() {
		return []run.AggregatorOpt{run.WithStoreEvents()}
	}
	return nil
}

func (cr *componentRun) storeEvents() bool {
	if cr.cfg.storeEvents != nil {
		return *cr.cfg.storeEvents
	}
	switch c := cr.component.(type) {
	case *agent.Agent:
		return c.StoreEvents()
	case *team.Team:
		return c.StoreEvents()
	}
	return false
}

func (cr *componentRun) streamMemberEvents() bool {
	if cr.cfg.streamMemberEvents != nil {
		return *cr.cfg.streamMemberEvents
	}
	if cr.teamRef != nil {
		return cr.teamRef.StreamMemberEvents()
	}
	return true
}

// start runs a fresh run to its terminal event.
func (cr *componentRun) start(ctx context.Context, input string) {
	cr.em.emit(ctx, run.RunStarted(cr.rc, cr.model.Model(), cr.model.Name()))

	if err := cr.startToolSets(ctx); err != nil {
		cr.fail(ctx, err)
		return
	}
	defer cr.stopToolSets(ctx)

	messages, err := cr.initialMessages(ctx, input)
	if err != nil {
		cr.fail(ctx, err)
		return
	}
	for _, msg := range messages {
		cr.em.agg.AddMessage(msg)
	}

	cr.loop(ctx, messages)
}

// startToolSets brings up the agent's toolsets before the first model turn.
// Teams carry no toolsets of their own; their members start theirs when
// delegated to.
func (cr *componentRun) startToolSets(ctx context.Context) error {
	ag, ok := cr.component.(*agent.Agent)
	if !ok {
		return nil
	}
	for _, ts := range ag.ToolSets() {
		if err := ts.Start(ctx); err != nil {
			return fmt.Errorf("starting toolset: %w", err)
		}
	}
	return nil
}

// stopToolSets shuts the toolsets down once the run reaches a terminal
// event, including a pause. A resumed run starts them again.
func (cr *componentRun) stopToolSets(ctx context.Context) {
	ag, ok := cr.component.(*agent.Agent)
	if !ok {
		return
	}
	for _, ts := range ag.ToolSets() {
		if err := ts.Stop(ctx); err != nil {
			slog.Warn("Failed to stop toolset", "run_id", cr.rc.RunID, "agent_id", ag.ID(), "error", err)
		}
	}
}

func (cr *componentRun) initialMessages(ctx context.Context, input string) ([]chat.Message, error) {
	prompt := cr.systemPrompt

	if cr.memory != nil && cr.cfg.userID != "" {
		memories, err := cr.memory.Memories(ctx, cr.cfg.userID)
		if err != nil {
			return nil, fmt.Errorf("loading memories: %w", err)
		}
		if len(memories) > 0 {
			var sb strings.Builder
			sb.WriteString(prompt)
			sb.WriteString("\n\nWhat you remember about the user:\n")
			for _, m := range memories {
				sb.WriteString(" - ")
				sb.WriteString(m.Memory)
				sb.WriteString("\n")
			}
			prompt = sb.String()
		}
	}

	var messages []chat.Message
	if prompt != "" {
		messages = append(messages, chat.SystemMessage(prompt))
	}
	messages = append(messages, chat.UserMessage(input))
	return messages, nil
}

// loop drives model turns until the model stops requesting tools, the run
// pauses, or an error ends the run. It always emits a terminal event.
func (cr *componentRun) loop(ctx context.Context, messages []chat.Message) {
	for iteration := 1; ; iteration++ {
		if iteration > cr.cfg.maxIterations {
			cr.em.emit(ctx, run.RunError(cr.rc, fmt.Sprintf("maximum of %d model turns exceeded", cr.cfg.maxIterations)))
			return
		}

		turn, err := cr.modelTurn(ctx, messages)
		if err != nil {
			cr.fail(ctx, err)
			return
		}

		assistant := chat.AssistantMessage(turn.content)
		assistant.ReasoningContent = turn.reasoning
		assistant.ToolCalls = turn.toolCalls
		cr.em.agg.AddMessage(assistant)
		messages = append(messages, assistant)

		if len(turn.toolCalls) == 0 {
			cr.complete(ctx)
			return
		}

		toolMessages, paused := cr.processToolCalls(ctx, turn.toolCalls)
		if paused {
			return
		}
		for _, msg := range toolMessages {
			cr.em.agg.AddMessage(msg)
		}
		messages = append(messages, toolMessages...)
	}
}

type modelTurn struct {
	content   string
	reasoning string
	toolCalls []tools.ToolCall
}

// modelTurn performs one streamed model call, emitting content and reasoning
// events as chunks arrive.
func (cr *componentRun) modelTurn(ctx context.Context, messages []chat.Message) (*modelTurn, error) {
	toolDefs, err := cr.toolDefs(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := cr.rt.tracer.Start(ctx, "runtime.model.turn", trace.WithAttributes(
		attribute.String("model", cr.model.Model()),
		attribute.String("model.provider", cr.model.Name()),
		attribute.String("component", cr.component.ID()),
		attribute.String("run.id", cr.rc.RunID),
	))
	defer span.End()

	stream, err := provider.Retry(ctx, cr.rt.retry, func(ctx context.Context) (chat.MessageStream, error) {
		return cr.model.CreateChatCompletionStream(ctx, messages, toolDefs)
	})
	if err != nil {
		span.SetStatus(codes.Error, "model call failed")
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	defer stream.Close()

	turn, err := cr.consume(ctx, stream)
	if err != nil {
		span.SetStatus(codes.Error, "stream failed")
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return turn, nil
}

// consume drains one completion stream, accumulating content, reasoning and
// incremental tool-call fragments.
func (cr *componentRun) consume(ctx context.Context, stream chat.MessageStream) (*modelTurn, error) {
	var content strings.Builder
	var reasoning strings.Builder
	var toolCalls []tools.ToolCall
	reasoningOpen := false

	closeReasoning := func() {
		if reasoningOpen {
			cr.em.emit(ctx, run.ReasoningCompleted(cr.rc, reasoning.String()))
			reasoningOpen = false
		}
	}

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("receiving from stream: %w", err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if response.Usage != nil {
			cr.em.agg.AddMetrics(run.Metrics{
				InputTokens:  response.Usage.InputTokens,
				OutputTokens: response.Usage.OutputTokens,
			})
		}

		for _, choice := range response.Choices {
			if delta := choice.Delta.ReasoningContent; delta != "" {
				if !reasoningOpen {
					cr.em.emit(ctx, run.ReasoningStarted(cr.rc))
					reasoningOpen = true
				}
				reasoning.WriteString(delta)
				cr.em.emit(ctx, run.ReasoningStep(cr.rc, delta, delta))
			}

			if delta := choice.Delta.Content; delta != "" {
				closeReasoning()
				content.WriteString(delta)
				cr.em.emit(ctx, run.Content(cr.rc, delta))
			}

			toolCalls = mergeToolCallDeltas(toolCalls, choice.Delta.ToolCalls)
		}
	}
	closeReasoning()

	return &modelTurn{
		content:   content.String(),
		reasoning: reasoning.String(),
		toolCalls: toolCalls,
	}, nil
}

// mergeToolCallDeltas folds incremental tool-call fragments, keyed by index,
// into complete calls.
func mergeToolCallDeltas(calls []tools.ToolCall, deltas []tools.ToolCall) []tools.ToolCall {
	for _, delta := range deltas {
		if delta.Index == nil {
			continue
		}
		idx := *delta.Index
		for len(calls) <= idx {
			calls = append(calls, tools.ToolCall{})
		}

		if delta.ID != "" {
			calls[idx].ID = delta.ID
		}
		if delta.Type != "" {
			calls[idx].Type = delta.Type
		}
		if delta.Function.Name != "" {
			calls[idx].Function.Name = delta.Function.Name
		}
		if delta.Function.Arguments != "" {
			calls[idx].Function.Arguments += delta.Function.Arguments
		}
	}
	return calls
}

// complete finishes a successful run: structured output parsing, memory
// update, then the terminal completed event. The terminal event restates the
// full text streamed across the run, including any pre-pause portion.
func (cr *componentRun) complete(ctx context.Context) {
	content := cr.em.agg.Content()
	var finalContent any = content
	contentType := run.ContentTypeText

	if cr.parserModel != nil {
		if parsed, ok := cr.parseStructured(ctx, content); ok {
			finalContent = parsed
			contentType = "json"
		}
	}

	cr.updateMemories(ctx)

	metrics := cr.em.agg.Output().Metrics
	cr.em.emit(ctx, run.RunCompleted(cr.rc, finalContent, contentType, &metrics))
}

// parseStructured coerces the final response into a JSON object using the
// parser model. A parse failure leaves the text response in place.
func (cr *componentRun) parseStructured(ctx context.Context, content string) (any, bool) {
	cr.em.emit(ctx, run.ParserModelResponseStarted(cr.rc))
	defer cr.em.emit(ctx, run.ParserModelResponseCompleted(cr.rc))

	response, err := cr.parserModel.CreateChatCompletion(ctx, []chat.Message{
		chat.SystemMessage("Convert the user's message into a single JSON object capturing its information. Respond with JSON only."),
		chat.UserMessage(content),
	})
	if err != nil {
		slog.Warn("Parser model call failed, keeping text content", "run_id", cr.rc.RunID, "error", err)
		return nil, false
	}

	trimmed := strings.TrimSpace(response)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	var parsed any
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &parsed); err != nil {
		slog.Warn("Parser model returned invalid JSON, keeping text content", "run_id", cr.rc.RunID, "error", err)
		return nil, false
	}

	cr.em.emit(ctx, run.StructuredContent(cr.rc, parsed, "json"))
	return parsed, true
}

func (cr *componentRun) updateMemories(ctx context.Context) {
	if cr.memory == nil || cr.cfg.userID == "" {
		return
	}

	cr.em.emit(ctx, run.MemoryUpdateStarted(cr.rc))
	if _, err := cr.memory.Update(ctx, cr.cfg.userID, cr.em.agg.Output().Messages); err != nil {
		slog.Warn("Memory update failed", "run_id", cr.rc.RunID, "error", err)
	}
	cr.em.emit(ctx, run.MemoryUpdateCompleted(cr.rc))
}

// fail ends the run with a readable error message as its content.
func (cr *componentRun) fail(ctx context.Context, err error) {
	slog.Error("Run failed", "run_id", cr.rc.RunID, "component", cr.component.ID(), "error", err)
	cr.em.emit(ctx, run.RunError(cr.rc, err.Error()))
}
