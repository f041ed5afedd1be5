// Package codec parses the Worker CLI's NDJSON stream into typed events
// and classifies/extracts fields from them.
//
// Grounded on alex/internal/external/claudecode/messages.go's
// ParseStreamMessage + Extract* helpers, generalized from a single loosely
// typed StreamMessage into a closed four-variant tagged union (step_start,
// text, tool_use, step_finish) so callers get exhaustive switch handling
// instead of ad-hoc map lookups.
package codec

// EventType is the closed set of event variants the Worker CLI may emit.
type EventType string

const (
	EventStepStart  EventType = "step_start"
	EventText       EventType = "text"
	EventToolUse    EventType = "tool_use"
	EventStepFinish EventType = "step_finish"
)

// StepFinishReason is the closed set of reasons a step_finish event carries.
type StepFinishReason string

const (
	ReasonStop      StepFinishReason = "stop"
	ReasonToolCalls StepFinishReason = "tool-calls"
)

// ToolStatus is the closed set of tool_use execution states.
type ToolStatus string

const (
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusError     ToolStatus = "error"
)

// TimeRange is a text event's {start, end} timestamp pair.
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// TokenUsage is a step_finish event's token accounting.
type TokenUsage struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Reasoning int `json:"reasoning"`
}

// ToolUseState is a tool_use event's execution state.
type ToolUseState struct {
	Status   ToolStatus     `json:"status"`
	Input    map[string]any `json:"input,omitempty"`
	Output   string         `json:"output,omitempty"`
	Metadata ToolMetadata   `json:"metadata"`
}

// ToolMetadata carries the optional exit code and truncation flag for a
// tool_use event.
type ToolMetadata struct {
	Exit      *int `json:"exit,omitempty"`
	Truncated bool `json:"truncated"`
}

// Part is the per-variant payload. Exactly one of the typed fields is
// populated, selected by the owning Event's Type.
type Part struct {
	ID string `json:"id"`

	// step_start
	Snapshot string `json:"snapshot,omitempty"`

	// text
	Text string    `json:"text,omitempty"`
	Time TimeRange `json:"time,omitempty"`

	// tool_use
	Tool   string       `json:"tool,omitempty"`
	CallID string       `json:"callID,omitempty"`
	State  ToolUseState `json:"state,omitempty"`

	// step_finish
	Reason StepFinishReason `json:"reason,omitempty"`
	Tokens TokenUsage       `json:"tokens,omitempty"`
	Cost   float64          `json:"cost,omitempty"`
}

// Event is one line of the Worker CLI's NDJSON stream.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	SessionID string    `json:"sessionID"`
	Part      Part      `json:"part"`
}

// IsCompletion reports whether e is a step_finish event signalling that the
// worker has reached a natural stop (as opposed to an intermediate
// tool-calls step).
func IsCompletion(e Event) bool {
	return e.Type == EventStepFinish && e.Part.Reason == ReasonStop
}

// TextPayload extracts the text payload from a text event, or "" otherwise.
func TextPayload(e Event) string {
	if e.Type != EventText {
		return ""
	}
	return e.Part.Text
}

// TokenUsageOf extracts token usage and cost from a step_finish event.
func TokenUsageOf(e Event) (TokenUsage, float64) {
	if e.Type != EventStepFinish {
		return TokenUsage{}, 0
	}
	return e.Part.Tokens, e.Part.Cost
}

// SessionIDOf returns the event's session correlation id.
func SessionIDOf(e Event) string {
	return e.SessionID
}
