package run

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamKindNamespace(t *testing.T) {
	assert.Equal(t, EventKind("team_run_started"), TeamKind(KindRunStarted))
	assert.Equal(t, KindRunStarted, BaseKind(TeamKind(KindRunStarted)))
	assert.Equal(t, KindRunStarted, BaseKind(KindRunStarted))
	assert.True(t, IsTeamKind(TeamKind(KindToolCallStarted)))
	assert.False(t, IsTeamKind(KindToolCallStarted))
}

func TestTeamRunContextEmitsTeamKinds(t *testing.T) {
	rc := RunContext{RunID: "run-1", TeamID: "crew", Team: true}

	e := RunStarted(rc, "gpt-4o", "openai")
	assert.Equal(t, TeamKind(KindRunStarted), e.EventKind())
	assert.Equal(t, "crew", e.Meta().TeamID)
	assert.True(t, IsTerminal(RunCompleted(rc, nil, "", nil)))
}

func TestIsTerminal(t *testing.T) {
	rc := RunContext{RunID: "run-1"}

	assert.True(t, IsTerminal(RunCompleted(rc, nil, "", nil)))
	assert.True(t, IsTerminal(RunPaused(rc, nil)))
	assert.True(t, IsTerminal(RunError(rc, "boom")))
	assert.False(t, IsTerminal(RunStarted(rc, "m", "p")))
	assert.False(t, IsTerminal(Content(rc, "x")))
	assert.False(t, IsTerminal(RunContinued(rc)))
}

func TestEventListRoundTrip(t *testing.T) {
	rc := RunContext{RunID: "run-1", SessionID: "sess-1", AgentID: "helper"}
	events := EventList{
		RunStarted(rc, "gpt-4o", "openai"),
		ToolCallStarted(rc, ToolExecution{ID: "call-1", Name: "search", Arguments: `{"q":"go"}`}),
		ToolCallCompleted(rc, ToolExecution{ID: "call-1", Name: "search", Result: "ok", CompletedAt: 2}),
		RunPaused(rc, []ToolExecution{{ID: "call-2", Name: "shell", RequiresConfirmation: true}}),
	}

	data, err := json.Marshal(events)
	require.NoError(t, err)

	var decoded EventList
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, len(events))

	started, ok := decoded[0].(*RunStartedEvent)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", started.Model)
	assert.Equal(t, "run-1", started.Meta().RunID)

	paused, ok := decoded[3].(*RunPausedEvent)
	require.True(t, ok)
	require.Len(t, paused.Tools, 1)
	assert.True(t, paused.Tools[0].RequiresConfirmation)
}

func TestUnmarshalEventTeamKind(t *testing.T) {
	rc := RunContext{RunID: "run-1", TeamID: "crew", Team: true}
	data, err := json.Marshal(RunError(rc, "boom"))
	require.NoError(t, err)

	event, err := UnmarshalEvent(data)
	require.NoError(t, err)

	errEvent, ok := event.(*RunErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "boom", errEvent.Error)
	assert.True(t, IsTeamKind(event.EventKind()))
}

func TestUnmarshalEventUnknownKind(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"event":"nope"}`))
	assert.Error(t, err)
}
