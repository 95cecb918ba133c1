package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandem-run/tandem/pkg/agent"
	"github.com/tandem-run/tandem/pkg/chat"
	"github.com/tandem-run/tandem/pkg/model/provider/scripted"
	"github.com/tandem-run/tandem/pkg/run"
	"github.com/tandem-run/tandem/pkg/session"
	"github.com/tandem-run/tandem/pkg/team"
	"github.com/tandem-run/tandem/pkg/tools"
)

func echoTool(invoked *int) tools.Tool {
	return tools.Tool{
		Name: "echo",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
		Handler: func(_ context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
			if invoked != nil {
				*invoked++
			}
			return tools.ResultSuccess("echo: " + call.Function.Arguments), nil
		},
	}
}

func confirmTool(name string, invoked *int) tools.Tool {
	return tools.Tool{
		Name:                 name,
		RequiresConfirmation: true,
		Handler: func(_ context.Context, _ tools.ToolCall) (*tools.ToolCallResult, error) {
			if invoked != nil {
				*invoked++
			}
			return tools.ResultSuccess(name + " done"), nil
		},
	}
}

func toolCall(id, name, args string) tools.ToolCall {
	return tools.ToolCall{
		ID:       id,
		Type:     tools.ToolTypeFunction,
		Function: tools.FunctionCall{Name: name, Arguments: args},
	}
}

func collectEvents(t *testing.T, ch <-chan run.Event) []run.Event {
	t.Helper()
	var events []run.Event
	for event := range ch {
		events = append(events, event)
	}
	return events
}

func eventKinds(events []run.Event) []run.EventKind {
	kinds := make([]run.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.EventKind())
	}
	return kinds
}

func TestRunStreamsContentAndCompletes(t *testing.T) {
	model := scripted.New("test-model", scripted.Turn{
		Content: []string{"Hello", ", ", "world"},
		Usage:   &chat.Usage{InputTokens: 12, OutputTokens: 3},
	})
	a := agent.New("helper", agent.WithModel(model), agent.WithInstructions("Be brief."))
	rt, err := New(a)
	require.NoError(t, err)

	sess := session.New(session.TypeAgent, "helper")
	ch, err := rt.RunStream(context.Background(), sess, "hi")
	require.NoError(t, err)

	events := collectEvents(t, ch)
	require.NotEmpty(t, events)

	assert.Equal(t, run.KindRunStarted, events[0].EventKind())
	completed, ok := events[len(events)-1].(*run.RunCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "Hello, world", completed.Content)

	// Three content deltas arrived between start and completion.
	var deltas []string
	for _, e := range events {
		if c, ok := e.(*run.RunContentEvent); ok {
			deltas = append(deltas, c.Content.(string))
		}
	}
	assert.Equal(t, []string{"Hello", ", ", "world"}, deltas)

	// The run was persisted into the session.
	persisted := sess.LastRun()
	require.NotNil(t, persisted)
	assert.Equal(t, run.StatusCompleted, persisted.Status)
	assert.Equal(t, "Hello, world", persisted.Content)
	assert.Equal(t, int64(12), persisted.Metrics.InputTokens)
	assert.Equal(t, int64(3), persisted.Metrics.OutputTokens)

	// The system prompt led the request.
	require.Len(t, model.Requests, 1)
	require.NotEmpty(t, model.Requests[0])
	assert.Equal(t, chat.MessageRoleSystem, model.Requests[0][0].Role)
}

func TestRunEmitsReasoningEvents(t *testing.T) {
	model := scripted.New("test-model", scripted.Turn{
		Reasoning: "thinking it through",
		Content:   []string{"answer"},
	})
	a := agent.New("helper", agent.WithModel(model))
	rt, err := New(a)
	require.NoError(t, err)

	output, err := rt.Run(context.Background(), session.New(session.TypeAgent, "helper"), "hi")
	require.NoError(t, err)

	assert.Equal(t, run.StatusCompleted, output.Status)
	assert.Equal(t, []string{"thinking it through"}, output.ReasoningSteps)
}

func TestRunExecutesToolCalls(t *testing.T) {
	invoked := 0
	model := scripted.New("test-model",
		scripted.Turn{ToolCalls: []tools.ToolCall{toolCall("call-1", "echo", `{"text":"hi"}`)}},
		scripted.Turn{Content: []string{"done"}},
	)
	a := agent.New("helper", agent.WithModel(model), agent.WithTools(echoTool(&invoked)))
	rt, err := New(a)
	require.NoError(t, err)

	output, err := rt.Run(context.Background(), session.New(session.TypeAgent, "helper"), "hi")
	require.NoError(t, err)

	assert.Equal(t, 1, invoked)
	assert.Equal(t, run.StatusCompleted, output.Status)
	assert.Equal(t, "done", output.Content)

	require.Len(t, output.Tools, 1)
	assert.Equal(t, "echo", output.Tools[0].Name)
	assert.Equal(t, `echo: {"text":"hi"}`, output.Tools[0].Result)
	assert.True(t, output.Tools[0].Done())

	// The second model call saw the tool result message.
	require.Len(t, model.Requests, 2)
	last := model.Requests[1][len(model.Requests[1])-1]
	assert.Equal(t, chat.MessageRoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
}

func TestRunUnknownToolBecomesErrorResult(t *testing.T) {
	model := scripted.New("test-model",
		scripted.Turn{ToolCalls: []tools.ToolCall{toolCall("call-1", "launch_rockets", `{}`)}},
		scripted.Turn{Content: []string{"recovered"}},
	)
	a := agent.New("helper", agent.WithModel(model))
	rt, err := New(a)
	require.NoError(t, err)

	output, err := rt.Run(context.Background(), session.New(session.TypeAgent, "helper"), "hi")
	require.NoError(t, err)

	assert.Equal(t, run.StatusCompleted, output.Status)
	require.Len(t, output.Tools, 1)
	assert.True(t, output.Tools[0].IsError)
	assert.Contains(t, output.Tools[0].Result, "not available")
}

func TestRunModelFailure(t *testing.T) {
	model := scripted.New("test-model", scripted.Turn{Err: errors.New("bad request")})
	a := agent.New("helper", agent.WithModel(model))
	rt, err := New(a)
	require.NoError(t, err)

	output, err := rt.Run(context.Background(), session.New(session.TypeAgent, "helper"), "hi")
	require.NoError(t, err)

	assert.Equal(t, run.StatusFailed, output.Status)
	assert.Contains(t, output.Error, "bad request")
}

func TestRunMaxIterations(t *testing.T) {
	model := scripted.New("test-model",
		scripted.Turn{ToolCalls: []tools.ToolCall{toolCall("call-1", "echo", `{}`)}},
		scripted.Turn{ToolCalls: []tools.ToolCall{toolCall("call-2", "echo", `{}`)}},
	)
	a := agent.New("helper", agent.WithModel(model), agent.WithTools(echoTool(nil)))
	rt, err := New(a)
	require.NoError(t, err)

	output, err := rt.Run(context.Background(), session.New(session.TypeAgent, "helper"), "hi", WithRunMaxIterations(2))
	require.NoError(t, err)

	assert.Equal(t, run.StatusFailed, output.Status)
	assert.Contains(t, output.Error, "maximum of 2 model turns exceeded")
}

func TestRunPausesOnConfirmation(t *testing.T) {
	echoInvoked, deployInvoked := 0, 0
	model := scripted.New("test-model", scripted.Turn{
		ToolCalls: []tools.ToolCall{
			toolCall("call-1", "echo", `{"text":"hi"}`),
			toolCall("call-2", "deploy", `{"env":"prod"}`),
		},
	})
	a := agent.New("helper",
		agent.WithModel(model),
		agent.WithTools(echoTool(&echoInvoked), confirmTool("deploy", &deployInvoked)),
	)
	rt, err := New(a)
	require.NoError(t, err)

	sess := session.New(session.TypeAgent, "helper")
	ch, err := rt.RunStream(context.Background(), sess, "ship it")
	require.NoError(t, err)

	events := collectEvents(t, ch)
	paused, ok := events[len(events)-1].(*run.RunPausedEvent)
	require.True(t, ok)
	require.Len(t, paused.Tools, 1)
	assert.Equal(t, "deploy", paused.Tools[0].Name)

	// The batch stopped at the confirmation gate: echo ran, deploy did not.
	assert.Equal(t, 1, echoInvoked)
	assert.Equal(t, 0, deployInvoked)

	output := sess.LastRun()
	require.NotNil(t, output)
	assert.True(t, output.IsPaused())
	pending := output.PendingConfirmations()
	require.Len(t, pending, 1)
	assert.Equal(t, "call-2", pending[0].ID)
	assert.Equal(t, `{"env":"prod"}`, pending[0].Arguments)
}

func pausedDeployRun(t *testing.T, deployInvoked *int, turnsAfterResume ...scripted.Turn) (*Runtime, *session.Session, string, *scripted.Provider) {
	t.Helper()

	turns := append([]scripted.Turn{
		{ToolCalls: []tools.ToolCall{toolCall("call-1", "deploy", `{"env":"prod"}`)}},
	}, turnsAfterResume...)
	model := scripted.New("test-model", turns...)
	a := agent.New("helper", agent.WithModel(model), agent.WithTools(confirmTool("deploy", deployInvoked)))
	rt, err := New(a)
	require.NoError(t, err)

	sess := session.New(session.TypeAgent, "helper")
	output, err := rt.Run(context.Background(), sess, "ship it")
	require.NoError(t, err)
	require.True(t, output.IsPaused())

	return rt, sess, output.RunID, model
}

func TestContinueRunConfirmed(t *testing.T) {
	deployInvoked := 0
	rt, sess, runID, model := pausedDeployRun(t, &deployInvoked, scripted.Turn{Content: []string{"deployed"}})

	confirmed := true
	ch, err := rt.ContinueRunStream(context.Background(), sess, runID, []*run.ToolExecution{
		{ID: "call-1", Confirmed: &confirmed},
	})
	require.NoError(t, err)

	events := collectEvents(t, ch)
	assert.Equal(t, run.KindRunContinued, events[0].EventKind())
	completed, ok := events[len(events)-1].(*run.RunCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "deployed", completed.Content)

	assert.Equal(t, 1, deployInvoked)

	output := sess.GetRun(runID)
	require.NotNil(t, output)
	assert.Equal(t, run.StatusCompleted, output.Status)
	require.Len(t, output.Tools, 1)
	assert.Equal(t, "deploy done", output.Tools[0].Result)
	assert.Empty(t, output.PendingConfirmations())

	// The resumed model call carried the full transcript plus the tool
	// result; nothing was replayed through the model twice.
	require.Len(t, model.Requests, 2)
	last := model.Requests[1][len(model.Requests[1])-1]
	assert.Equal(t, chat.MessageRoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
}

func TestContinueRunRejectedToolIsSkipped(t *testing.T) {
	deployInvoked := 0
	rt, sess, runID, _ := pausedDeployRun(t, &deployInvoked, scripted.Turn{Content: []string{"understood"}})

	rejected := false
	output, err := rt.ContinueRun(context.Background(), sess, runID, []*run.ToolExecution{
		{ID: "call-1", Confirmed: &rejected},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, deployInvoked)
	assert.Equal(t, run.StatusCompleted, output.Status)
	require.Len(t, output.Tools, 1)
	assert.Contains(t, output.Tools[0].Result, "declined")
	assert.True(t, output.Tools[0].Done())
}

func TestContinueRunValidation(t *testing.T) {
	rt, sess, runID, _ := pausedDeployRun(t, nil, scripted.Turn{Content: []string{"unused"}})

	// No update for the pending call.
	_, err := rt.ContinueRun(context.Background(), sess, runID, nil)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	// An update without a decision is just as invalid.
	_, err = rt.ContinueRun(context.Background(), sess, runID, []*run.ToolExecution{{ID: "call-1"}})
	require.ErrorAs(t, err, &validationErr)

	// Validation failures leave the run paused.
	assert.True(t, sess.GetRun(runID).IsPaused())
}

func TestContinueRunStateErrors(t *testing.T) {
	model := scripted.New("test-model", scripted.Turn{Content: []string{"hi"}})
	a := agent.New("helper", agent.WithModel(model))
	rt, err := New(a)
	require.NoError(t, err)

	sess := session.New(session.TypeAgent, "helper")
	output, err := rt.Run(context.Background(), sess, "hi")
	require.NoError(t, err)

	_, err = rt.ContinueRun(context.Background(), sess, output.RunID, nil)
	assert.ErrorIs(t, err, ErrRunNotPaused)

	_, err = rt.ContinueRun(context.Background(), sess, "no-such-run", nil)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestContinueRunReloadsFromStore(t *testing.T) {
	deployInvoked := 0
	rt, sess, runID, _ := pausedDeployRun(t, &deployInvoked, scripted.Turn{Content: []string{"deployed"}})

	// A fresh session object with the same id forces a store round trip.
	fresh := session.New(session.TypeAgent, "helper", session.WithID(sess.ID))

	confirmed := true
	output, err := rt.ContinueRun(context.Background(), fresh, runID, []*run.ToolExecution{
		{ID: "call-1", Confirmed: &confirmed},
	})
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, output.Status)
	assert.Equal(t, 1, deployInvoked)
}

func newTestTeam(t *testing.T, coordinator *scripted.Provider, memberModels map[string]*scripted.Provider, opts ...team.Opt) *Runtime {
	t.Helper()

	var members []team.Member
	for id, model := range memberModels {
		members = append(members, agent.New(id, agent.WithModel(model)))
	}
	opts = append([]team.Opt{team.WithModel(coordinator), team.WithMembers(members...)}, opts...)
	rt, err := New(team.New("crew", opts...))
	require.NoError(t, err)
	return rt
}

func TestTeamDelegation(t *testing.T) {
	coordinator := scripted.New("coordinator",
		scripted.Turn{ToolCalls: []tools.ToolCall{
			toolCall("call-1", tools.DelegateToMemberToolName, `{"member_id":"writer","task":"write a haiku"}`),
		}},
		scripted.Turn{Content: []string{"Here it is: frost on the window"}},
	)
	writer := scripted.New("writer-model", scripted.Turn{Content: []string{"frost on the window"}})

	rt := newTestTeam(t, coordinator, map[string]*scripted.Provider{"writer": writer})
	sess := session.New(session.TypeTeam, "crew")

	ch, err := rt.RunStream(context.Background(), sess, "haiku please")
	require.NoError(t, err)
	events := collectEvents(t, ch)

	kinds := eventKinds(events)
	assert.Contains(t, kinds, run.TeamKind(run.KindRunStarted))
	// Member events are forwarded into the team stream with agent kinds.
	assert.Contains(t, kinds, run.KindRunStarted)
	assert.Contains(t, kinds, run.KindRunCompleted)

	completed, ok := events[len(events)-1].(*run.RunCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, run.TeamKind(run.KindRunCompleted), completed.EventKind())
	assert.Equal(t, "Here it is: frost on the window", completed.Content)

	output := sess.LastRun()
	require.NotNil(t, output)
	assert.Equal(t, "crew", output.TeamID)
	require.Len(t, output.MemberResponses, 1)
	member := output.MemberResponses[0]
	assert.Equal(t, "writer", member.AgentID)
	assert.Equal(t, "frost on the window", member.Content)
	assert.Equal(t, "write a haiku", member.Input)
}

func TestTeamSequentialDelegationsBracketMemberEvents(t *testing.T) {
	coordinator := scripted.New("coordinator",
		scripted.Turn{ToolCalls: []tools.ToolCall{
			toolCall("call-1", tools.DelegateToMemberToolName, `{"member_id":"writer","task":"draft"}`),
		}},
		scripted.Turn{ToolCalls: []tools.ToolCall{
			toolCall("call-2", tools.DelegateToMemberToolName, `{"member_id":"editor","task":"polish"}`),
		}},
		scripted.Turn{Content: []string{"shipped"}},
	)
	writer := scripted.New("writer-model", scripted.Turn{Content: []string{"draft text"}})
	editor := scripted.New("editor-model", scripted.Turn{Content: []string{"polished text"}})

	rt := newTestTeam(t, coordinator, map[string]*scripted.Provider{"writer": writer, "editor": editor})
	sess := session.New(session.TypeTeam, "crew")

	ch, err := rt.RunStream(context.Background(), sess, "write then edit")
	require.NoError(t, err)
	events := collectEvents(t, ch)

	// One delegation tool call per member, never nested.
	type bracket struct{ start, end int }
	var brackets []bracket
	open := -1
	for i, e := range events {
		switch e.EventKind() {
		case run.TeamKind(run.KindToolCallStarted):
			require.Equal(t, -1, open, "delegation opened inside another at event %d", i)
			open = i
		case run.TeamKind(run.KindToolCallCompleted):
			require.NotEqual(t, -1, open, "delegation closed without opening at event %d", i)
			brackets = append(brackets, bracket{start: open, end: i})
			open = -1
		}
	}
	require.Len(t, brackets, 2)

	// No member event leaks outside a delegation bracket.
	inBracket := func(i int) bool {
		for _, b := range brackets {
			if i > b.start && i < b.end {
				return true
			}
		}
		return false
	}
	for i, e := range events {
		if !run.IsTeamKind(e.EventKind()) {
			assert.True(t, inBracket(i), "member event %s at index %d outside a delegation bracket", e.EventKind(), i)
		}
	}

	// Each bracket encloses its member's full sub-run, in delegation order.
	for i, memberID := range []string{"writer", "editor"} {
		b := brackets[i]
		var kinds []run.EventKind
		for _, e := range events[b.start+1 : b.end] {
			if run.IsTeamKind(e.EventKind()) {
				continue
			}
			assert.Equal(t, memberID, e.Meta().AgentID)
			kinds = append(kinds, e.EventKind())
		}
		require.NotEmpty(t, kinds, "no member events inside delegation %d", i)
		assert.Equal(t, run.KindRunStarted, kinds[0])
		assert.Equal(t, run.KindRunCompleted, kinds[len(kinds)-1])
	}
}

func TestTeamMemberEventsNotForwardedWhenDisabled(t *testing.T) {
	coordinator := scripted.New("coordinator",
		scripted.Turn{ToolCalls: []tools.ToolCall{
			toolCall("call-1", tools.DelegateToMemberToolName, `{"member_id":"writer","task":"write"}`),
		}},
		scripted.Turn{Content: []string{"done"}},
	)
	writer := scripted.New("writer-model", scripted.Turn{Content: []string{"text"}})

	rt := newTestTeam(t, coordinator, map[string]*scripted.Provider{"writer": writer})
	sess := session.New(session.TypeTeam, "crew")

	ch, err := rt.RunStream(context.Background(), sess, "go", WithStreamMemberEvents(false))
	require.NoError(t, err)

	for _, kind := range eventKinds(collectEvents(t, ch)) {
		assert.True(t, run.IsTeamKind(kind), "unexpected member event %s in team stream", kind)
	}

	// The member run still happened and was recorded.
	output := sess.LastRun()
	require.NotNil(t, output)
	require.Len(t, output.MemberResponses, 1)
	assert.Equal(t, "text", output.MemberResponses[0].Content)
}

func TestTeamDelegateToAll(t *testing.T) {
	coordinator := scripted.New("coordinator",
		scripted.Turn{ToolCalls: []tools.ToolCall{
			toolCall("call-1", tools.DelegateToMembersToolName, `{"task":"report status"}`),
		}},
		scripted.Turn{Content: []string{"all reported"}},
	)
	alpha := scripted.New("alpha-model", scripted.Turn{Content: []string{"alpha ok"}})
	beta := scripted.New("beta-model", scripted.Turn{Content: []string{"beta ok"}})

	rt := newTestTeam(t, coordinator,
		map[string]*scripted.Provider{"alpha": alpha, "beta": beta},
		team.WithDelegateToAll(),
	)
	sess := session.New(session.TypeTeam, "crew")

	output, err := rt.Run(context.Background(), sess, "status check")
	require.NoError(t, err)

	assert.Equal(t, run.StatusCompleted, output.Status)
	assert.Equal(t, "all reported", output.Content)
	require.Len(t, output.MemberResponses, 2)

	// Each member saw the fanned-out task; the coordinator tool result names
	// every member.
	require.Len(t, output.Tools, 1)
	assert.Contains(t, output.Tools[0].Result, "alpha: alpha ok")
	assert.Contains(t, output.Tools[0].Result, "beta: beta ok")
}

func TestTeamMemberFailureBecomesToolResult(t *testing.T) {
	coordinator := scripted.New("coordinator",
		scripted.Turn{ToolCalls: []tools.ToolCall{
			toolCall("call-1", tools.DelegateToMemberToolName, `{"member_id":"flaky","task":"try"}`),
		}},
		scripted.Turn{Content: []string{"flaky was unavailable"}},
	)
	flaky := scripted.New("flaky-model", scripted.Turn{Err: errors.New("model exploded")})

	rt := newTestTeam(t, coordinator, map[string]*scripted.Provider{"flaky": flaky})
	sess := session.New(session.TypeTeam, "crew")

	output, err := rt.Run(context.Background(), sess, "go")
	require.NoError(t, err)

	// The member failure did not fail the team run.
	assert.Equal(t, run.StatusCompleted, output.Status)
	require.Len(t, output.Tools, 1)
	assert.True(t, output.Tools[0].IsError)
	assert.Contains(t, output.Tools[0].Result, "member flaky failed")

	require.Len(t, output.MemberResponses, 1)
	assert.Equal(t, run.StatusFailed, output.MemberResponses[0].Status)
}

func TestTeamUnknownMember(t *testing.T) {
	coordinator := scripted.New("coordinator",
		scripted.Turn{ToolCalls: []tools.ToolCall{
			toolCall("call-1", tools.DelegateToMemberToolName, `{"member_id":"ghost","task":"boo"}`),
		}},
		scripted.Turn{Content: []string{"no such member"}},
	)
	writer := scripted.New("writer-model")

	rt := newTestTeam(t, coordinator, map[string]*scripted.Provider{"writer": writer})
	output, err := rt.Run(context.Background(), session.New(session.TypeTeam, "crew"), "go")
	require.NoError(t, err)

	assert.Equal(t, run.StatusCompleted, output.Status)
	require.Len(t, output.Tools, 1)
	assert.True(t, output.Tools[0].IsError)
	assert.Contains(t, output.Tools[0].Result, "member not found: ghost")
	assert.Empty(t, output.MemberResponses)
}

func TestNewRuntimeValidation(t *testing.T) {
	_, err := New(agent.New("helper"))
	assert.ErrorContains(t, err, "has no model")

	model := scripted.New("m")
	_, err = New(team.New("crew", team.WithModel(model)))
	assert.ErrorContains(t, err, "has no members")

	_, err = New(nil)
	assert.Error(t, err)
}

func TestRunRequiresSession(t *testing.T) {
	model := scripted.New("m", scripted.Turn{Content: []string{"hi"}})
	rt, err := New(agent.New("helper", agent.WithModel(model)))
	require.NoError(t, err)

	_, err = rt.Run(context.Background(), nil, "hi")
	assert.Error(t, err)
}

func TestMergeToolCallDeltas(t *testing.T) {
	idx0, idx1 := 0, 1
	var calls []tools.ToolCall

	calls = mergeToolCallDeltas(calls, []tools.ToolCall{
		{Index: &idx0, ID: "call-1", Type: tools.ToolTypeFunction, Function: tools.FunctionCall{Name: "echo", Arguments: `{"te`}},
	})
	calls = mergeToolCallDeltas(calls, []tools.ToolCall{
		{Index: &idx0, Function: tools.FunctionCall{Arguments: `xt":"hi"}`}},
		{Index: &idx1, ID: "call-2", Function: tools.FunctionCall{Name: "deploy"}},
	})

	require.Len(t, calls, 2)
	assert.Equal(t, "call-1", calls[0].ID)
	assert.Equal(t, `{"text":"hi"}`, calls[0].Function.Arguments)
	assert.Equal(t, "call-2", calls[1].ID)
	assert.Equal(t, "deploy", calls[1].Function.Name)

	// Fragments without an index are ignored rather than misattributed.
	calls = mergeToolCallDeltas(calls, []tools.ToolCall{{ID: "call-3"}})
	assert.Len(t, calls, 2)
}

func TestStoreEventsRetainedOnRun(t *testing.T) {
	model := scripted.New("m", scripted.Turn{Content: []string{"hi"}})
	a := agent.New("helper", agent.WithModel(model), agent.WithStoreEvents())
	rt, err := New(a)
	require.NoError(t, err)

	sess := session.New(session.TypeAgent, "helper")
	output, err := rt.Run(context.Background(), sess, "hi")
	require.NoError(t, err)

	require.NotEmpty(t, output.Events)
	for _, e := range output.Events {
		assert.NotEqual(t, run.KindRunContent, run.BaseKind(e.EventKind()))
	}

	// Opt-out per run wins over the agent setting.
	output, err = rt.Run(context.Background(), sess, "again", WithStoreEvents(false))
	require.NoError(t, err)
	assert.Empty(t, output.Events)
}

func TestPausedBatchKeepsEarlierResultsInTranscript(t *testing.T) {
	model := scripted.New("test-model",
		scripted.Turn{ToolCalls: []tools.ToolCall{
			toolCall("call-1", "echo", `{"text":"hi"}`),
			toolCall("call-2", "deploy", `{}`),
		}},
		scripted.Turn{Content: []string{"done"}},
	)
	a := agent.New("helper", agent.WithModel(model), agent.WithTools(echoTool(nil), confirmTool("deploy", nil)))
	rt, err := New(a)
	require.NoError(t, err)

	sess := session.New(session.TypeAgent, "helper")
	output, err := rt.Run(context.Background(), sess, "go")
	require.NoError(t, err)
	require.True(t, output.IsPaused())

	confirmed := true
	_, err = rt.ContinueRun(context.Background(), sess, output.RunID, []*run.ToolExecution{
		{ID: "call-2", Confirmed: &confirmed},
	})
	require.NoError(t, err)

	// The resumed model call must carry tool results for both calls of the
	// interrupted batch.
	require.Len(t, model.Requests, 2)
	resumed := model.Requests[1]
	seen := map[string]bool{}
	for _, msg := range resumed {
		if msg.Role == chat.MessageRoleTool {
			seen[msg.ToolCallID] = true
		}
	}
	assert.True(t, seen["call-1"], "echo result missing from resumed transcript: %v", seen)
	assert.True(t, seen["call-2"], "deploy result missing from resumed transcript: %v", seen)
}

type lifecycleToolSet struct {
	starts   int
	stops    int
	startErr error
}

func (ts *lifecycleToolSet) Start(context.Context) error {
	ts.starts++
	return ts.startErr
}

func (ts *lifecycleToolSet) Stop(context.Context) error {
	ts.stops++
	return nil
}

func (ts *lifecycleToolSet) Tools(context.Context) ([]tools.Tool, error) {
	return []tools.Tool{echoTool(nil)}, nil
}

func (ts *lifecycleToolSet) Instructions() string { return "" }

func TestToolSetLifecycleAroundRun(t *testing.T) {
	ts := &lifecycleToolSet{}
	model := scripted.New("m", scripted.Turn{Content: []string{"hi"}})
	a := agent.New("helper", agent.WithModel(model), agent.WithToolSets(ts))
	rt, err := New(a)
	require.NoError(t, err)

	output, err := rt.Run(context.Background(), session.New(session.TypeAgent, "helper"), "hi")
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, output.Status)

	assert.Equal(t, 1, ts.starts)
	assert.Equal(t, 1, ts.stops)
}

func TestToolSetLifecycleAcrossPauseAndResume(t *testing.T) {
	ts := &lifecycleToolSet{}
	model := scripted.New("m",
		scripted.Turn{ToolCalls: []tools.ToolCall{toolCall("call-1", "deploy", `{}`)}},
		scripted.Turn{Content: []string{"deployed"}},
	)
	a := agent.New("helper",
		agent.WithModel(model),
		agent.WithTools(confirmTool("deploy", nil)),
		agent.WithToolSets(ts),
	)
	rt, err := New(a)
	require.NoError(t, err)

	sess := session.New(session.TypeAgent, "helper")
	output, err := rt.Run(context.Background(), sess, "ship it")
	require.NoError(t, err)
	require.True(t, output.IsPaused())

	// The pause released the toolset; the resumed leg starts it again.
	assert.Equal(t, 1, ts.starts)
	assert.Equal(t, 1, ts.stops)

	confirmed := true
	output, err = rt.ContinueRun(context.Background(), sess, output.RunID, []*run.ToolExecution{
		{ID: "call-1", Confirmed: &confirmed},
	})
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, output.Status)

	assert.Equal(t, 2, ts.starts)
	assert.Equal(t, 2, ts.stops)
}

func TestToolSetStartFailureFailsRun(t *testing.T) {
	ts := &lifecycleToolSet{startErr: errors.New("browser did not launch")}
	model := scripted.New("m", scripted.Turn{Content: []string{"unused"}})
	a := agent.New("helper", agent.WithModel(model), agent.WithToolSets(ts))
	rt, err := New(a)
	require.NoError(t, err)

	output, err := rt.Run(context.Background(), session.New(session.TypeAgent, "helper"), "hi")
	require.NoError(t, err)

	assert.Equal(t, run.StatusFailed, output.Status)
	assert.Contains(t, output.Error, "browser did not launch")
	assert.Empty(t, model.Requests)
	assert.Equal(t, 0, ts.stops)
}

func TestRunIDsAreUnique(t *testing.T) {
	model := scripted.New("m",
		scripted.Turn{Content: []string{"one"}},
		scripted.Turn{Content: []string{"two"}},
	)
	rt, err := New(agent.New("helper", agent.WithModel(model)))
	require.NoError(t, err)

	sess := session.New(session.TypeAgent, "helper")
	first, err := rt.Run(context.Background(), sess, "a")
	require.NoError(t, err)
	second, err := rt.Run(context.Background(), sess, "b")
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, sess.Runs, 2)
	assert.Equal(t, "two", second.ContentString())
}
