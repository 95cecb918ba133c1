// Package config loads agent and team declarations from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// ModelConfig declares how to reach a model provider.
type ModelConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	APIKeyEnv   string   `yaml:"api_key_env,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// AgentConfig declares a single agent.
type AgentConfig struct {
	Name         string   `yaml:"name"`
	Model        string   `yaml:"model"`
	Description  string   `yaml:"description,omitempty"`
	Instructions string   `yaml:"instructions,omitempty"`
	AddDate      bool     `yaml:"add_date,omitempty"`
	StoreEvents  bool     `yaml:"store_events,omitempty"`
	Reasoning    bool     `yaml:"reasoning,omitempty"`
	ParserModel  string   `yaml:"parser_model,omitempty"`
	Memory       bool     `yaml:"memory,omitempty"`
	Toolsets     []string `yaml:"toolsets,omitempty"`
}

// TeamConfig declares a team and its members. Members reference agents or
// other teams by name.
type TeamConfig struct {
	Name               string   `yaml:"name"`
	Model              string   `yaml:"model"`
	Description        string   `yaml:"description,omitempty"`
	Instructions       string   `yaml:"instructions,omitempty"`
	Members            []string `yaml:"members"`
	DelegateToAll      bool     `yaml:"delegate_to_all,omitempty"`
	// StreamMemberEvents defaults to true when omitted.
	StreamMemberEvents *bool    `yaml:"stream_member_events,omitempty"`
	StoreEvents        bool     `yaml:"store_events,omitempty"`
}

// SessionConfig declares where session state is persisted.
type SessionConfig struct {
	Database string `yaml:"database,omitempty"`
}

// Config is the entire configuration file.
type Config struct {
	Agents  map[string]AgentConfig `yaml:"agents"`
	Teams   map[string]TeamConfig  `yaml:"teams,omitempty"`
	Models  map[string]ModelConfig `yaml:"models"`
	Session SessionConfig          `yaml:"session,omitempty"`
}

// Load reads and parses the configuration file at path. Environment variable
// references of the form ${VAR} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file\n%s", yaml.FormatError(err, true, true))
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Models == nil {
		cfg.Models = map[string]ModelConfig{}
	}

	for name, model := range cfg.Models {
		if model.Provider == "" {
			return fmt.Errorf("model %q: provider is required", name)
		}
		if model.Model == "" {
			return fmt.Errorf("model %q: model is required", name)
		}
	}

	for name, agent := range cfg.Agents {
		if agent.Name == "" {
			agent.Name = name
			cfg.Agents[name] = agent
		}
		if err := resolveModelRef(cfg, agent.Model); err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
		if agent.ParserModel != "" {
			if err := resolveModelRef(cfg, agent.ParserModel); err != nil {
				return fmt.Errorf("agent %q parser model: %w", name, err)
			}
		}
	}

	for name, team := range cfg.Teams {
		if team.Name == "" {
			team.Name = name
			cfg.Teams[name] = team
		}
		if len(team.Members) == 0 {
			return fmt.Errorf("team %q: at least one member is required", name)
		}
		if err := resolveModelRef(cfg, team.Model); err != nil {
			return fmt.Errorf("team %q: %w", name, err)
		}
		for _, member := range team.Members {
			if _, isAgent := cfg.Agents[member]; isAgent {
				continue
			}
			if _, isTeam := cfg.Teams[member]; isTeam {
				if member == name {
					return fmt.Errorf("team %q: cannot be its own member", name)
				}
				continue
			}
			return fmt.Errorf("team %q: unknown member %q", name, member)
		}
	}

	return nil
}

func resolveModelRef(cfg *Config, ref string) error {
	if ref == "" {
		return fmt.Errorf("model is required")
	}
	if _, ok := cfg.Models[ref]; ok {
		return nil
	}
	if _, _, ok := splitModelRef(ref); ok {
		return nil
	}
	return fmt.Errorf("unknown model %q", ref)
}

// ResolveModel returns the model config for a reference, which is either the
// name of an entry in the models section or a provider/model shorthand like
// "openai/gpt-4o".
func (c *Config) ResolveModel(ref string) (ModelConfig, error) {
	if model, ok := c.Models[ref]; ok {
		return model, nil
	}
	if provider, model, ok := splitModelRef(ref); ok {
		return ModelConfig{Provider: provider, Model: model}, nil
	}
	return ModelConfig{}, fmt.Errorf("unknown model %q", ref)
}

func splitModelRef(ref string) (provider, model string, ok bool) {
	provider, model, found := strings.Cut(ref, "/")
	if !found || provider == "" || model == "" {
		return "", "", false
	}
	return provider, model, true
}
