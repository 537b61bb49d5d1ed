package acp

import "encoding/json"

// Event type discriminators on the push channel.
const (
	EventTypeMessage           = "message"
	EventTypeToolCallStarted   = "tool_call_started"
	EventTypeToolCallCompleted = "tool_call_completed"
	EventTypePlanUpdated       = "plan_updated"
	EventTypeModeChanged       = "mode_changed"
)

// SessionEvent is one decoded event from a session update frame.
// The variant set is closed; anything the client does not recognize
// decodes into UnknownEvent.
type SessionEvent interface {
	EventType() string
}

// MessageChunk is an incremental piece of an agent message. Done marks
// the final chunk of the message.
type MessageChunk struct {
	Role string `json:"role"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// ToolCallStarted signals that the agent began executing a tool.
type ToolCallStarted struct {
	CallID    string         `json:"callId"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCallCompleted signals that a tool call finished.
type ToolCallCompleted struct {
	CallID string         `json:"callId"`
	Result map[string]any `json:"result"`
}

// PlanStep is one step of an agent plan.
type PlanStep struct {
	Title  string `json:"title"`
	Status string `json:"status,omitempty"`
}

// PlanUpdated carries the agent's current plan.
type PlanUpdated struct {
	Summary string     `json:"summary"`
	Steps   []PlanStep `json:"steps"`
}

// ModeChanged signals an agent-side mode switch.
type ModeChanged struct {
	Previous string `json:"previousMode"`
	Next     string `json:"nextMode"`
}

// UnknownEvent preserves an event the client does not understand.
// Fields holds the raw JSON members of the event object, including its
// type discriminator, so the frame round-trips without loss.
type UnknownEvent struct {
	Type   string
	Fields map[string]json.RawMessage
}

func (MessageChunk) EventType() string      { return EventTypeMessage }
func (ToolCallStarted) EventType() string   { return EventTypeToolCallStarted }
func (ToolCallCompleted) EventType() string { return EventTypeToolCallCompleted }
func (PlanUpdated) EventType() string       { return EventTypePlanUpdated }
func (ModeChanged) EventType() string       { return EventTypeModeChanged }
func (e UnknownEvent) EventType() string    { return e.Type }

// SessionUpdate is one push frame from the update channel.
type SessionUpdate struct {
	SessionID string
	PromptID  string
	Events    []SessionEvent
}

// sessionUpdateEnvelope is the raw JSON shape of a SessionUpdate.
type sessionUpdateEnvelope struct {
	SessionID string            `json:"sessionId"`
	PromptID  string            `json:"promptId,omitempty"`
	Events    []json.RawMessage `json:"events"`
}

// UnmarshalJSON decodes a push frame. Events that fail to decode into
// a known variant become UnknownEvent; the frame as a whole never
// fails on an unrecognized event shape.
func (u *SessionUpdate) UnmarshalJSON(data []byte) error {
	var env sessionUpdateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	u.SessionID = env.SessionID
	u.PromptID = env.PromptID
	u.Events = make([]SessionEvent, 0, len(env.Events))
	for _, raw := range env.Events {
		u.Events = append(u.Events, decodeEvent(raw))
	}
	return nil
}

// MarshalJSON re-encodes the frame, preserving unknown events verbatim.
func (u SessionUpdate) MarshalJSON() ([]byte, error) {
	env := sessionUpdateEnvelope{
		SessionID: u.SessionID,
		PromptID:  u.PromptID,
		Events:    make([]json.RawMessage, 0, len(u.Events)),
	}
	for _, ev := range u.Events {
		raw, err := encodeEvent(ev)
		if err != nil {
			return nil, err
		}
		env.Events = append(env.Events, raw)
	}
	return json.Marshal(env)
}

// decodeEvent turns one raw event object into a SessionEvent. Any
// shape mismatch degrades to UnknownEvent rather than an error.
func decodeEvent(raw json.RawMessage) SessionEvent {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return UnknownEvent{}
	}

	var typ string
	if rawType, ok := fields["type"]; ok {
		// A non-string type still lands in UnknownEvent below.
		_ = json.Unmarshal(rawType, &typ)
	}

	switch typ {
	case EventTypeMessage:
		var ev MessageChunk
		if err := json.Unmarshal(raw, &ev); err == nil {
			return ev
		}
	case EventTypeToolCallStarted:
		var ev ToolCallStarted
		if err := json.Unmarshal(raw, &ev); err == nil {
			if ev.Arguments == nil {
				ev.Arguments = map[string]any{}
			}
			return ev
		}
	case EventTypeToolCallCompleted:
		var ev ToolCallCompleted
		if err := json.Unmarshal(raw, &ev); err == nil {
			if ev.Result == nil {
				ev.Result = map[string]any{}
			}
			return ev
		}
	case EventTypePlanUpdated:
		var ev PlanUpdated
		if err := json.Unmarshal(raw, &ev); err == nil {
			return ev
		}
	case EventTypeModeChanged:
		var ev ModeChanged
		if err := json.Unmarshal(raw, &ev); err == nil {
			return ev
		}
	}

	return UnknownEvent{Type: typ, Fields: fields}
}

// encodeEvent renders a SessionEvent back to its JSON object form.
func encodeEvent(ev SessionEvent) (json.RawMessage, error) {
	if unk, ok := ev.(UnknownEvent); ok {
		if unk.Fields == nil {
			return json.Marshal(map[string]string{"type": unk.Type})
		}
		return json.Marshal(unk.Fields)
	}

	// Known variants marshal their struct fields plus the type tag.
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typeTag, err := json.Marshal(ev.EventType())
	if err != nil {
		return nil, err
	}
	fields["type"] = typeTag
	return json.Marshal(fields)
}
