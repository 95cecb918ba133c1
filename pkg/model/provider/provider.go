package provider

import (
	"context"
	"fmt"

	"github.com/tandem-run/tandem/pkg/chat"
	"github.com/tandem-run/tandem/pkg/config"
	"github.com/tandem-run/tandem/pkg/model/provider/anthropic"
	"github.com/tandem-run/tandem/pkg/model/provider/openai"
	"github.com/tandem-run/tandem/pkg/tools"
)

// Provider is the model boundary consumed by the runtime. Implementations
// normalize their wire format to chat messages and tool-call requests.
type Provider interface {
	// Model returns the model identifier requests are issued against.
	Model() string

	// Name returns the provider family ("openai", "anthropic", ...).
	Name() string

	// CreateChatCompletionStream creates a streaming completion request. The
	// returned stream is pull-based; no work happens between Recv calls.
	CreateChatCompletionStream(ctx context.Context, messages []chat.Message, toolDefs []tools.Tool) (chat.MessageStream, error)

	// CreateChatCompletion requests a single non-streamed completion.
	CreateChatCompletion(ctx context.Context, messages []chat.Message) (string, error)
}

// New creates a provider from a model configuration.
func New(cfg *config.ModelConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(cfg)
	case "anthropic":
		return anthropic.NewClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}
