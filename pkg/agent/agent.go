// Package agent defines the static description of a single agent: its model,
// instructions and tools. The runtime package executes runs against it.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/tandem-run/tandem/pkg/memory"
	"github.com/tandem-run/tandem/pkg/model/provider"
	"github.com/tandem-run/tandem/pkg/tools"
)

// Agent represents an AI agent.
type Agent struct {
	id           string
	name         string
	description  string
	instructions string
	model        provider.Provider
	parserModel  provider.Provider
	toolsets     []tools.ToolSet
	tools        []tools.Tool
	memory       *memory.Manager
	addDate      bool
	storeEvents  bool
}

// New creates a new agent.
func New(id string, opts ...Opt) *Agent {
	agent := &Agent{
		id:   id,
		name: id,
	}

	for _, opt := range opts {
		opt(agent)
	}

	return agent
}

func (a *Agent) ID() string {
	return a.id
}

func (a *Agent) Name() string {
	return a.name
}

// Description returns the agent's description.
func (a *Agent) Description() string {
	return a.description
}

// Instructions returns the agent's instructions.
func (a *Agent) Instructions() string {
	return a.instructions
}

func (a *Agent) Model() provider.Provider {
	return a.model
}

// ParserModel returns the secondary model used to coerce the final response
// into structured output, or nil when none is configured.
func (a *Agent) ParserModel() provider.Provider {
	return a.parserModel
}

// Memory returns the agent's memory manager, or nil when the agent does not
// maintain user memories.
func (a *Agent) Memory() *memory.Manager {
	return a.memory
}

// StoreEvents reports whether intermediate run events should be persisted on
// the run output.
func (a *Agent) StoreEvents() bool {
	return a.storeEvents
}

// SystemMessage builds the system prompt from the agent's instructions.
func (a *Agent) SystemMessage() string {
	prompt := a.instructions
	for _, ts := range a.toolsets {
		if instructions := ts.Instructions(); instructions != "" {
			if prompt != "" {
				prompt += "\n\n"
			}
			prompt += instructions
		}
	}
	if a.addDate {
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += fmt.Sprintf("Today's date is %s.", time.Now().Format("2006-01-02"))
	}
	return prompt
}

// Tools returns the tools available to this agent, combining directly attached
// tools with every toolset's tools.
func (a *Agent) Tools(ctx context.Context) ([]tools.Tool, error) {
	all := make([]tools.Tool, 0, len(a.tools))
	all = append(all, a.tools...)
	for _, ts := range a.toolsets {
		toolsetTools, err := ts.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tools for agent %s: %w", a.id, err)
		}
		all = append(all, toolsetTools...)
	}
	return all, nil
}

// ToolSets returns the toolsets attached to this agent.
func (a *Agent) ToolSets() []tools.ToolSet {
	return a.toolsets
}
