package codec

import (
	"encoding/json"

	"github.com/ocmcp/supervisor/internal/supervisorlog"
)

var knownTypes = map[EventType]bool{
	EventStepStart:  true,
	EventText:       true,
	EventToolUse:    true,
	EventStepFinish: true,
}

// rawEnvelope validates the structural fields required before committing
// to the typed Event shape. Fields beyond type/timestamp/sessionID/part
// are tolerated and simply ignored — the supervisor never interprets
// Worker CLI content beyond this envelope.
type rawEnvelope struct {
	Type      *string         `json:"type"`
	Timestamp *float64        `json:"timestamp"`
	SessionID *string         `json:"sessionID"`
	Part      json.RawMessage `json:"part"`
}

// Parse decodes one line of NDJSON into an Event. It never panics or
// returns an error to the caller: malformed or unrecognized lines yield
// (Event{}, false) so the Worker Runner can log and keep streaming.
func Parse(line []byte, logger supervisorlog.Logger) (Event, bool) {
	var raw rawEnvelope
	if err := json.Unmarshal(line, &raw); err != nil {
		if logger != nil {
			logger.Warn("event codec: malformed line: %v", err)
		}
		return Event{}, false
	}
	if raw.Type == nil || raw.Timestamp == nil || raw.SessionID == nil || raw.Part == nil {
		if logger != nil {
			logger.Warn("event codec: line missing required fields")
		}
		return Event{}, false
	}

	eventType := EventType(*raw.Type)
	if !knownTypes[eventType] {
		if logger != nil {
			logger.Warn("event codec: unknown event type %q, dropping", *raw.Type)
		}
		return Event{}, false
	}

	var part Part
	if err := json.Unmarshal(raw.Part, &part); err != nil {
		if logger != nil {
			logger.Warn("event codec: malformed part for type %q: %v", *raw.Type, err)
		}
		return Event{}, false
	}

	return Event{
		Type:      eventType,
		Timestamp: int64(*raw.Timestamp),
		SessionID: *raw.SessionID,
		Part:      part,
	}, true
}
