package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandem-run/tandem/pkg/model/provider/scripted"
	"github.com/tandem-run/tandem/pkg/tools"
	"github.com/tandem-run/tandem/pkg/tools/builtin"
)

func TestNewDefaults(t *testing.T) {
	a := New("helper")
	assert.Equal(t, "helper", a.ID())
	assert.Equal(t, "helper", a.Name())
	assert.Nil(t, a.Model())
	assert.Nil(t, a.Memory())
	assert.False(t, a.StoreEvents())
	assert.Empty(t, a.SystemMessage())
}

func TestOptions(t *testing.T) {
	model := scripted.New("m")
	parser := scripted.New("p")
	a := New("helper",
		WithName("Helper"),
		WithDescription("a general helper"),
		WithInstructions("Be brief."),
		WithModel(model),
		WithParserModel(parser),
		WithStoreEvents(),
	)

	assert.Equal(t, "Helper", a.Name())
	assert.Equal(t, "a general helper", a.Description())
	assert.Equal(t, "Be brief.", a.Instructions())
	assert.Same(t, model, a.Model())
	assert.Same(t, parser, a.ParserModel())
	assert.True(t, a.StoreEvents())
}

func TestSystemMessage(t *testing.T) {
	a := New("helper",
		WithInstructions("Be brief."),
		WithToolSets(builtin.NewThinkTool()),
		WithAddDate(),
	)

	prompt := a.SystemMessage()
	assert.Contains(t, prompt, "Be brief.")
	assert.Contains(t, prompt, "think tool")
	assert.Contains(t, prompt, time.Now().Format("2006-01-02"))
}

func TestToolsMergesToolsetTools(t *testing.T) {
	direct := tools.Tool{Name: "echo"}
	a := New("helper",
		WithTools(direct),
		WithToolSets(builtin.NewTodoTool()),
	)

	all, err := a.Tools(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(all))
	for _, tool := range all {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, "echo")
	assert.Contains(t, names, "create_todo")
	assert.Contains(t, names, "list_todos")
}
