// Package scripted provides a deterministic model provider for tests.
// Each call to CreateChatCompletionStream plays back the next scripted turn,
// chunk by chunk, without any network access.
package scripted

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tandem-run/tandem/pkg/chat"
	"github.com/tandem-run/tandem/pkg/tools"
)

// Turn is one scripted model response. Content is streamed one chunk per Recv
// call; tool calls are emitted as a single delta followed by a tool_calls
// finish reason.
type Turn struct {
	Content   []string
	Reasoning string
	ToolCalls []tools.ToolCall
	Usage     *chat.Usage
	Err       error
}

// Provider implements provider.Provider by replaying turns in order.
type Provider struct {
	mu    sync.Mutex
	model string
	turns []Turn
	next  int

	// Requests records the messages passed to each stream call, for
	// assertions on what the runtime sent.
	Requests [][]chat.Message
}

func New(model string, turns ...Turn) *Provider {
	return &Provider{model: model, turns: turns}
}

func (p *Provider) Model() string { return p.model }
func (p *Provider) Name() string  { return "scripted" }

func (p *Provider) CreateChatCompletionStream(_ context.Context, messages []chat.Message, _ []tools.Tool) (chat.MessageStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, messages)

	if p.next >= len(p.turns) {
		return nil, fmt.Errorf("no scripted turn for call %d", p.next+1)
	}
	turn := p.turns[p.next]
	p.next++

	if turn.Err != nil {
		return nil, turn.Err
	}
	return &stream{turn: turn}, nil
}

func (p *Provider) CreateChatCompletion(_ context.Context, messages []chat.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next >= len(p.turns) {
		return "", fmt.Errorf("no scripted turn for call %d", p.next+1)
	}
	turn := p.turns[p.next]
	p.next++

	if turn.Err != nil {
		return "", turn.Err
	}
	var content string
	for _, chunk := range turn.Content {
		content += chunk
	}
	return content, nil
}

// Calls reports how many turns have been consumed.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

type stream struct {
	turn Turn
	pos  int
	done bool
}

func (s *stream) Recv() (chat.MessageStreamResponse, error) {
	if s.done {
		return chat.MessageStreamResponse{}, io.EOF
	}

	choice := chat.MessageStreamChoice{}

	switch {
	case s.pos == 0 && s.turn.Reasoning != "":
		choice.Delta.ReasoningContent = s.turn.Reasoning
		s.pos++
	case s.contentPos() < len(s.turn.Content):
		choice.Delta.Content = s.turn.Content[s.contentPos()]
		s.pos++
	case len(s.turn.ToolCalls) > 0:
		for i := range s.turn.ToolCalls {
			call := s.turn.ToolCalls[i]
			index := i
			call.Index = &index
			if call.Type == "" {
				call.Type = tools.ToolTypeFunction
			}
			choice.Delta.ToolCalls = append(choice.Delta.ToolCalls, call)
		}
		choice.FinishReason = chat.FinishReasonToolCalls
		s.done = true
	default:
		choice.FinishReason = chat.FinishReasonStop
		s.done = true
	}

	resp := chat.MessageStreamResponse{Choices: []chat.MessageStreamChoice{choice}}
	if s.done {
		resp.Usage = s.turn.Usage
	}
	return resp, nil
}

// contentPos maps the stream position onto the content chunk index, skipping
// the reasoning slot when present.
func (s *stream) contentPos() int {
	if s.turn.Reasoning != "" {
		return s.pos - 1
	}
	return s.pos
}

func (s *stream) Close() {}
