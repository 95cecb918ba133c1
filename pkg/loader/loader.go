// Package loader builds the runnable component graph declared in a
// configuration file.
package loader

import (
	"fmt"

	"github.com/tandem-run/tandem/pkg/agent"
	"github.com/tandem-run/tandem/pkg/config"
	"github.com/tandem-run/tandem/pkg/memory"
	"github.com/tandem-run/tandem/pkg/memory/database"
	"github.com/tandem-run/tandem/pkg/memory/database/inmemory"
	"github.com/tandem-run/tandem/pkg/memory/database/sqlite"
	"github.com/tandem-run/tandem/pkg/model/provider"
	"github.com/tandem-run/tandem/pkg/team"
	"github.com/tandem-run/tandem/pkg/tools"
	"github.com/tandem-run/tandem/pkg/tools/builtin"
)

// Load instantiates every agent and team in the configuration and returns
// them by name. Providers are shared between components declaring the same
// model.
func Load(cfg *config.Config) (map[string]team.Member, error) {
	l := &loader{
		cfg:       cfg,
		providers: make(map[string]provider.Provider),
		members:   make(map[string]team.Member),
		building:  make(map[string]bool),
	}

	for name := range cfg.Agents {
		if _, err := l.buildAgent(name); err != nil {
			return nil, err
		}
	}
	for name := range cfg.Teams {
		if _, err := l.buildTeam(name); err != nil {
			return nil, err
		}
	}

	return l.members, nil
}

type loader struct {
	cfg       *config.Config
	providers map[string]provider.Provider
	members   map[string]team.Member
	building  map[string]bool
	memoryDB  database.Database
}

// memoryDatabase returns the shared user-memory backend: the configured
// SQLite database when one is declared, an in-process map otherwise.
func (l *loader) memoryDatabase() (database.Database, error) {
	if l.memoryDB != nil {
		return l.memoryDB, nil
	}

	if l.cfg.Session.Database != "" {
		db, err := sqlite.NewMemoryDatabase(l.cfg.Session.Database)
		if err != nil {
			return nil, err
		}
		l.memoryDB = db
	} else {
		l.memoryDB = inmemory.NewMemoryDatabase()
	}
	return l.memoryDB, nil
}

func (l *loader) provider(ref string) (provider.Provider, error) {
	if p, ok := l.providers[ref]; ok {
		return p, nil
	}

	modelCfg, err := l.cfg.ResolveModel(ref)
	if err != nil {
		return nil, err
	}
	p, err := provider.New(&modelCfg)
	if err != nil {
		return nil, fmt.Errorf("creating provider for model %q: %w", ref, err)
	}

	l.providers[ref] = p
	return p, nil
}

func buildToolSets(names []string) ([]tools.ToolSet, error) {
	toolsets := make([]tools.ToolSet, 0, len(names))
	for _, name := range names {
		switch name {
		case "think":
			toolsets = append(toolsets, builtin.NewThinkTool())
		case "todo":
			toolsets = append(toolsets, builtin.NewTodoTool())
		default:
			return nil, fmt.Errorf("unknown toolset %q", name)
		}
	}
	return toolsets, nil
}

func (l *loader) buildAgent(name string) (*agent.Agent, error) {
	if m, ok := l.members[name]; ok {
		return m.(*agent.Agent), nil
	}

	agentCfg, ok := l.cfg.Agents[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", name)
	}

	model, err := l.provider(agentCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", name, err)
	}

	opts := []agent.Opt{
		agent.WithName(agentCfg.Name),
		agent.WithDescription(agentCfg.Description),
		agent.WithInstructions(agentCfg.Instructions),
		agent.WithModel(model),
	}
	if agentCfg.AddDate {
		opts = append(opts, agent.WithAddDate())
	}
	if agentCfg.StoreEvents {
		opts = append(opts, agent.WithStoreEvents())
	}
	if agentCfg.ParserModel != "" {
		parserModel, err := l.provider(agentCfg.ParserModel)
		if err != nil {
			return nil, fmt.Errorf("agent %q parser model: %w", name, err)
		}
		opts = append(opts, agent.WithParserModel(parserModel))
	}
	if agentCfg.Memory {
		db, err := l.memoryDatabase()
		if err != nil {
			return nil, fmt.Errorf("agent %q memory: %w", name, err)
		}
		opts = append(opts, agent.WithMemory(memory.NewManager(db, model)))
	}
	if len(agentCfg.Toolsets) > 0 {
		toolsets, err := buildToolSets(agentCfg.Toolsets)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", name, err)
		}
		opts = append(opts, agent.WithToolSets(toolsets...))
	}

	a := agent.New(name, opts...)
	l.members[name] = a
	return a, nil
}

func (l *loader) buildTeam(name string) (*team.Team, error) {
	if m, ok := l.members[name]; ok {
		return m.(*team.Team), nil
	}
	if l.building[name] {
		return nil, fmt.Errorf("team %q: membership cycle", name)
	}
	l.building[name] = true
	defer delete(l.building, name)

	teamCfg, ok := l.cfg.Teams[name]
	if !ok {
		return nil, fmt.Errorf("unknown team %q", name)
	}

	model, err := l.provider(teamCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("team %q: %w", name, err)
	}

	var members []team.Member
	for _, memberName := range teamCfg.Members {
		if _, isAgent := l.cfg.Agents[memberName]; isAgent {
			member, err := l.buildAgent(memberName)
			if err != nil {
				return nil, err
			}
			members = append(members, member)
			continue
		}
		member, err := l.buildTeam(memberName)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	opts := []team.Opt{
		team.WithName(teamCfg.Name),
		team.WithDescription(teamCfg.Description),
		team.WithInstructions(teamCfg.Instructions),
		team.WithModel(model),
		team.WithMembers(members...),
	}
	if teamCfg.DelegateToAll {
		opts = append(opts, team.WithDelegateToAll())
	}
	if teamCfg.StreamMemberEvents != nil {
		opts = append(opts, team.WithStreamMemberEvents(*teamCfg.StreamMemberEvents))
	}
	if teamCfg.StoreEvents {
		opts = append(opts, team.WithStoreEvents())
	}

	t := team.New(name, opts...)
	l.members[name] = t
	return t, nil
}
