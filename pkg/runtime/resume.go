package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/tandem-run/tandem/pkg/chat"
	"github.com/tandem-run/tandem/pkg/run"
	"github.com/tandem-run/tandem/pkg/session"
	"github.com/tandem-run/tandem/pkg/tools"
)

// ErrRunNotPaused reports a continue request against a run that is not
// waiting for confirmation.
var ErrRunNotPaused = errors.New("run is not paused")

// ValidationError reports a continue request whose tool updates do not match
// the run's pending tool calls.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// ContinueRunStream resumes a paused run and returns its event stream.
// updatedTools must cover every pending confirmation by tool call id, each
// with Confirmed set. Rejected calls are skipped without executing.
func (rt *Runtime) ContinueRunStream(ctx context.Context, sess *session.Session, runID string, updatedTools []*run.ToolExecution, opts ...RunOpt) (<-chan run.Event, error) {
	ch, _, err := rt.continueRun(ctx, sess, runID, updatedTools, opts)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// ContinueRun resumes a paused run to its terminal event and returns the
// aggregated output.
func (rt *Runtime) ContinueRun(ctx context.Context, sess *session.Session, runID string, updatedTools []*run.ToolExecution, opts ...RunOpt) (*run.Output, error) {
	ch, agg, err := rt.continueRun(ctx, sess, runID, updatedTools, opts)
	if err != nil {
		return nil, err
	}
	for range ch {
	}
	return agg.Output(), nil
}

func (rt *Runtime) continueRun(ctx context.Context, sess *session.Session, runID string, updatedTools []*run.ToolExecution, opts []RunOpt) (chan run.Event, *run.Aggregator, error) {
	if sess == nil {
		return nil, nil, errors.New("session is required")
	}

	output := sess.GetRun(runID)
	if output == nil {
		loaded, err := rt.store.GetSession(ctx, sess.ID, sess.Type, sess.UserID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading session: %w", err)
		}
		if loaded != nil {
			output = loaded.GetRun(runID)
		}
	}
	if output == nil {
		return nil, nil, fmt.Errorf("run %s: %w", runID, session.ErrNotFound)
	}
	if !output.IsPaused() {
		return nil, nil, fmt.Errorf("run %s: %w", runID, ErrRunNotPaused)
	}

	if err := applyToolUpdates(output, updatedTools); err != nil {
		return nil, nil, err
	}

	cfg := rt.newRunConfig(opts)
	if cfg.userID == "" {
		cfg.userID = output.UserID
	}

	rc := run.RunContext{
		RunID:     output.RunID,
		SessionID: output.SessionID,
		AgentID:   output.AgentID,
		TeamID:    output.TeamID,
		Team:      output.TeamID != "",
	}
	if rc.AgentID != "" && rt.root.ID() != rc.AgentID || rc.TeamID != "" && rt.root.ID() != rc.TeamID {
		return nil, nil, &ValidationError{Msg: fmt.Sprintf("run %s belongs to component %s%s, not %s", runID, output.AgentID, output.TeamID, rt.root.ID())}
	}

	cr, err := rt.newComponentRun(rt.root, sess, cfg, &rc)
	if err != nil {
		return nil, nil, err
	}

	agg := run.ResumeAggregator(output, cr.aggregatorOpts()...)
	ch := make(chan run.Event)
	cr.em = &emitter{ch: ch, agg: agg}

	go func() {
		defer close(ch)
		cr.resume(ctx)
		rt.persist(ctx, sess, agg.Output())
	}()

	return ch, agg, nil
}

// applyToolUpdates validates that the updates cover every pending
// confirmation and copies the decisions onto the persisted tool records.
func applyToolUpdates(output *run.Output, updatedTools []*run.ToolExecution) error {
	updates := make(map[string]*run.ToolExecution, len(updatedTools))
	for _, update := range updatedTools {
		updates[update.ID] = update
	}

	for _, pending := range output.PendingConfirmations() {
		update, ok := updates[pending.ID]
		if !ok {
			return &ValidationError{Msg: fmt.Sprintf("pending tool call %s (%s) has no update", pending.ID, pending.Name)}
		}
		if update.Confirmed == nil {
			return &ValidationError{Msg: fmt.Sprintf("pending tool call %s (%s) is still unconfirmed", pending.ID, pending.Name)}
		}
		pending.Confirmed = update.Confirmed
		if update.Arguments != "" {
			pending.Arguments = update.Arguments
		}
	}

	return nil
}

// resume picks up exactly after tool resolution: the pending batch is
// resolved, then the model loop continues with the persisted transcript.
func (cr *componentRun) resume(ctx context.Context) {
	cr.em.emit(ctx, run.RunContinued(cr.rc))

	if err := cr.startToolSets(ctx); err != nil {
		cr.fail(ctx, err)
		return
	}
	defer cr.stopToolSets(ctx)

	var toolMessages []chat.Message
	for _, exec := range cr.em.agg.Output().Tools {
		if exec.Done() {
			continue
		}

		call := tools.ToolCall{
			ID:   exec.ID,
			Type: tools.ToolTypeFunction,
			Function: tools.FunctionCall{
				Name:      exec.Name,
				Arguments: exec.Arguments,
			},
		}

		if exec.RequiresConfirmation && exec.Confirmed != nil && !*exec.Confirmed {
			toolMessages = append(toolMessages, cr.recordToolResult(ctx, exec, tools.ResultSuccess(skippedToolResult)))
			continue
		}

		def, found, err := cr.findTool(ctx, exec.Name)
		if err != nil {
			cr.fail(ctx, err)
			return
		}
		if !found {
			toolMessages = append(toolMessages, cr.recordToolResult(ctx, exec, tools.ResultError(fmt.Sprintf("Tool %q is not available.", exec.Name))))
			continue
		}

		cr.em.emit(ctx, run.ToolCallStarted(cr.rc, *exec))
		result := cr.executeTool(ctx, def, call)
		toolMessages = append(toolMessages, cr.recordToolResult(ctx, exec, result))
	}

	messages := append([]chat.Message{}, cr.em.agg.Output().Messages...)
	for _, msg := range toolMessages {
		cr.em.agg.AddMessage(msg)
	}
	messages = append(messages, toolMessages...)

	cr.loop(ctx, messages)
}
