package anthropic

import (
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/tandem-run/tandem/pkg/chat"
	"github.com/tandem-run/tandem/pkg/tools"
)

// streamAdapter translates Anthropic stream events into completion chunks.
type streamAdapter struct {
	stream    *ssestream.Stream[anthropic.MessageStreamEventUnion]
	toolCall  bool
	toolID    string
	toolIndex int
}

func (a *streamAdapter) Recv() (chat.MessageStreamResponse, error) {
	if !a.stream.Next() {
		if err := a.stream.Err(); err != nil {
			return chat.MessageStreamResponse{}, classifyError(err)
		}
		return chat.MessageStreamResponse{}, io.EOF
	}

	event := a.stream.Current()

	response := chat.MessageStreamResponse{
		Choices: []chat.MessageStreamChoice{{Index: 0}},
	}

	switch eventVariant := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		if block, ok := eventVariant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
			a.toolCall = true
			a.toolID = block.ID
			index := a.toolIndex
			a.toolIndex++
			response.Choices[0].Delta.ToolCalls = []tools.ToolCall{{
				Index: &index,
				ID:    block.ID,
				Type:  tools.ToolTypeFunction,
				Function: tools.FunctionCall{
					Name: block.Name,
				},
			}}
		}
	case anthropic.ContentBlockDeltaEvent:
		switch deltaVariant := eventVariant.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			response.Choices[0].Delta.Content = deltaVariant.Text
		case anthropic.ThinkingDelta:
			response.Choices[0].Delta.ReasoningContent = deltaVariant.Thinking
		case anthropic.SignatureDelta:
			// Not surfaced in our message model.
		case anthropic.InputJSONDelta:
			index := a.toolIndex - 1
			response.Choices[0].Delta.ToolCalls = []tools.ToolCall{{
				Index: &index,
				ID:    a.toolID,
				Type:  tools.ToolTypeFunction,
				Function: tools.FunctionCall{
					Arguments: deltaVariant.PartialJSON,
				},
			}}
		default:
			return response, fmt.Errorf("unknown delta type: %T", deltaVariant)
		}
	case anthropic.MessageDeltaEvent:
		response.Usage = &chat.Usage{
			InputTokens:  eventVariant.Usage.InputTokens,
			OutputTokens: eventVariant.Usage.OutputTokens,
		}
	case anthropic.MessageStopEvent:
		if a.toolCall {
			response.Choices[0].FinishReason = chat.FinishReasonToolCalls
		} else {
			response.Choices[0].FinishReason = chat.FinishReasonStop
		}
	}

	return response, nil
}

func (a *streamAdapter) Close() {
	if a.stream != nil {
		a.stream.Close()
	}
}
