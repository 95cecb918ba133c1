package agent

import (
	"github.com/tandem-run/tandem/pkg/memory"
	"github.com/tandem-run/tandem/pkg/model/provider"
	"github.com/tandem-run/tandem/pkg/tools"
)

type Opt func(a *Agent)

func WithName(name string) Opt {
	return func(a *Agent) {
		a.name = name
	}
}

func WithDescription(description string) Opt {
	return func(a *Agent) {
		a.description = description
	}
}

func WithInstructions(instructions string) Opt {
	return func(a *Agent) {
		a.instructions = instructions
	}
}

func WithModel(model provider.Provider) Opt {
	return func(a *Agent) {
		a.model = model
	}
}

// WithParserModel sets a secondary model used to parse the final response
// into structured output.
func WithParserModel(model provider.Provider) Opt {
	return func(a *Agent) {
		a.parserModel = model
	}
}

func WithToolSets(toolsets ...tools.ToolSet) Opt {
	return func(a *Agent) {
		a.toolsets = toolsets
	}
}

func WithTools(allTools ...tools.Tool) Opt {
	return func(a *Agent) {
		a.tools = allTools
	}
}

// WithMemory enables user memories: after each completed run the manager
// extracts and stores new facts about the user.
func WithMemory(manager *memory.Manager) Opt {
	return func(a *Agent) {
		a.memory = manager
	}
}

// WithAddDate appends today's date to the system prompt.
func WithAddDate() Opt {
	return func(a *Agent) {
		a.addDate = true
	}
}

// WithStoreEvents persists intermediate run events on the run output.
// Content deltas are always excluded.
func WithStoreEvents() Opt {
	return func(a *Agent) {
		a.storeEvents = true
	}
}
