package run

import (
	"encoding/json"
	"fmt"
)

// EventList is a persistable event sequence. Marshaling is plain; unmarshaling
// rebuilds the concrete variant of each element from its kind tag.
type EventList []Event

func (l *EventList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}

	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		event, err := UnmarshalEvent(raw)
		if err != nil {
			return err
		}
		events = append(events, event)
	}

	*l = events
	return nil
}

// UnmarshalEvent decodes a single event from its JSON form, dispatching on
// the kind tag. Team-namespace kinds decode into the same variants.
func UnmarshalEvent(data []byte) (Event, error) {
	var probe struct {
		Kind EventKind `json:"event"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding event kind: %w", err)
	}

	var event Event
	switch BaseKind(probe.Kind) {
	case KindRunStarted:
		event = &RunStartedEvent{}
	case KindRunContent:
		event = &RunContentEvent{}
	case KindToolCallStarted:
		event = &ToolCallStartedEvent{}
	case KindToolCallCompleted:
		event = &ToolCallCompletedEvent{}
	case KindReasoningStarted:
		event = &ReasoningStartedEvent{}
	case KindReasoningStep:
		event = &ReasoningStepEvent{}
	case KindReasoningCompleted:
		event = &ReasoningCompletedEvent{}
	case KindMemoryUpdateStarted:
		event = &MemoryUpdateStartedEvent{}
	case KindMemoryUpdateCompleted:
		event = &MemoryUpdateCompletedEvent{}
	case KindParserModelResponseStarted:
		event = &ParserModelResponseStartedEvent{}
	case KindParserModelResponseCompleted:
		event = &ParserModelResponseCompletedEvent{}
	case KindRunPaused:
		event = &RunPausedEvent{}
	case KindRunContinued:
		event = &RunContinuedEvent{}
	case KindRunCompleted:
		event = &RunCompletedEvent{}
	case KindRunError:
		event = &RunErrorEvent{}
	default:
		return nil, fmt.Errorf("unknown event kind: %q", probe.Kind)
	}

	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decoding %s event: %w", probe.Kind, err)
	}
	return event, nil
}
