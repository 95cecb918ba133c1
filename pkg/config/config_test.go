package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
models:
  main:
    provider: openai
    model: gpt-4o
  cheap:
    provider: anthropic
    model: claude-3-5-haiku-latest
    max_tokens: 2048

agents:
  helper:
    model: main
    description: General purpose helper
    instructions: Be concise.
    parser_model: cheap
    memory: true
  writer:
    model: anthropic/claude-sonnet-4-0
    instructions: Write well.

teams:
  crew:
    model: main
    members: [helper, writer]
    delegate_to_all: true
    stream_member_events: false

session:
  database: crew.db
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	require.Contains(t, cfg.Agents, "helper")
	helper := cfg.Agents["helper"]
	assert.Equal(t, "helper", helper.Name)
	assert.Equal(t, "main", helper.Model)
	assert.Equal(t, "cheap", helper.ParserModel)
	assert.True(t, helper.Memory)

	require.Contains(t, cfg.Teams, "crew")
	crew := cfg.Teams["crew"]
	assert.Equal(t, []string{"helper", "writer"}, crew.Members)
	assert.True(t, crew.DelegateToAll)
	require.NotNil(t, crew.StreamMemberEvents)
	assert.False(t, *crew.StreamMemberEvents)

	assert.Equal(t, "crew.db", cfg.Session.Database)
}

func TestParseStreamMemberEventsDefaultsUnset(t *testing.T) {
	cfg, err := Parse([]byte(`
models:
  main: {provider: openai, model: gpt-4o}
agents:
  helper: {model: main}
teams:
  crew:
    model: main
    members: [helper]
`))
	require.NoError(t, err)
	assert.Nil(t, cfg.Teams["crew"].StreamMemberEvents)
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_MODEL_NAME", "gpt-4o-mini")

	cfg, err := Parse([]byte(`
models:
  main:
    provider: openai
    model: ${TEST_MODEL_NAME}
agents:
  helper: {model: main}
`))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Models["main"].Model)
}

func TestParseValidation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "model missing provider",
			yaml:    "models:\n  main: {model: gpt-4o}\n",
			wantErr: "provider is required",
		},
		{
			name:    "agent missing model",
			yaml:    "agents:\n  helper: {}\n",
			wantErr: "model is required",
		},
		{
			name:    "agent unknown model",
			yaml:    "agents:\n  helper: {model: nope}\n",
			wantErr: `unknown model "nope"`,
		},
		{
			name: "team without members",
			yaml: `
models:
  main: {provider: openai, model: gpt-4o}
teams:
  crew: {model: main, members: []}
`,
			wantErr: "at least one member",
		},
		{
			name: "team unknown member",
			yaml: `
models:
  main: {provider: openai, model: gpt-4o}
teams:
  crew: {model: main, members: [ghost]}
`,
			wantErr: `unknown member "ghost"`,
		},
		{
			name: "team as its own member",
			yaml: `
models:
  main: {provider: openai, model: gpt-4o}
teams:
  crew: {model: main, members: [crew]}
`,
			wantErr: "cannot be its own member",
		},
		{
			name:    "invalid yaml",
			yaml:    "agents: [not a map",
			wantErr: "parsing config file",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestResolveModel(t *testing.T) {
	cfg, err := Parse([]byte(`
models:
  main:
    provider: openai
    model: gpt-4o
agents:
  helper: {model: main}
`))
	require.NoError(t, err)

	model, err := cfg.ResolveModel("main")
	require.NoError(t, err)
	assert.Equal(t, "openai", model.Provider)
	assert.Equal(t, "gpt-4o", model.Model)

	// Shorthand references work without a models entry.
	model, err = cfg.ResolveModel("anthropic/claude-sonnet-4-0")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", model.Provider)
	assert.Equal(t, "claude-sonnet-4-0", model.Model)

	_, err = cfg.ResolveModel("nope")
	assert.ErrorContains(t, err, `unknown model "nope"`)
	_, err = cfg.ResolveModel("openai/")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Agents, "helper")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config")
}
