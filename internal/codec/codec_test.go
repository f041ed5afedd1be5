package codec

import "testing"

func TestParseStepStart(t *testing.T) {
	line := []byte(`{"type":"step_start","timestamp":1700000000,"sessionID":"sess-1","part":{"id":"p1","snapshot":"snap"}}`)
	ev, ok := Parse(line, nil)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if ev.Type != EventStepStart {
		t.Fatalf("expected step_start, got %s", ev.Type)
	}
	if ev.SessionID != "sess-1" {
		t.Fatalf("unexpected session id %q", ev.SessionID)
	}
	if ev.Part.Snapshot != "snap" {
		t.Fatalf("unexpected snapshot %q", ev.Part.Snapshot)
	}
}

func TestParseText(t *testing.T) {
	line := []byte(`{"type":"text","timestamp":1,"sessionID":"s","part":{"id":"p","text":"Hello?","time":{"start":1,"end":2}}}`)
	ev, ok := Parse(line, nil)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if TextPayload(ev) != "Hello?" {
		t.Fatalf("unexpected text payload %q", TextPayload(ev))
	}
}

func TestParseStepFinishCompletion(t *testing.T) {
	line := []byte(`{"type":"step_finish","timestamp":1,"sessionID":"s","part":{"id":"p","reason":"stop","tokens":{"input":10,"output":20,"reasoning":0},"cost":0.01}}`)
	ev, ok := Parse(line, nil)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if !IsCompletion(ev) {
		t.Fatalf("expected completion event")
	}
	usage, cost := TokenUsageOf(ev)
	if usage.Input != 10 || usage.Output != 20 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if cost != 0.01 {
		t.Fatalf("unexpected cost %v", cost)
	}
}

func TestParseStepFinishToolCallsIsNotCompletion(t *testing.T) {
	line := []byte(`{"type":"step_finish","timestamp":1,"sessionID":"s","part":{"id":"p","reason":"tool-calls"}}`)
	ev, ok := Parse(line, nil)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if IsCompletion(ev) {
		t.Fatalf("tool-calls should not be a completion")
	}
}

func TestParseMalformedJSON(t *testing.T) {
	if _, ok := Parse([]byte(`not json`), nil); ok {
		t.Fatalf("expected parse failure for malformed json")
	}
}

func TestParseMissingRequiredFields(t *testing.T) {
	if _, ok := Parse([]byte(`{"type":"text"}`), nil); ok {
		t.Fatalf("expected parse failure for missing fields")
	}
}

func TestParseUnknownType(t *testing.T) {
	line := []byte(`{"type":"bogus","timestamp":1,"sessionID":"s","part":{}}`)
	if _, ok := Parse(line, nil); ok {
		t.Fatalf("expected parse failure for unknown type")
	}
}

func TestParseToolUse(t *testing.T) {
	line := []byte(`{"type":"tool_use","timestamp":1,"sessionID":"s","part":{"id":"p","tool":"grep","callID":"c1","state":{"status":"completed","input":{"pattern":"foo"},"output":"ok","metadata":{"exit":0,"truncated":false}}}}`)
	ev, ok := Parse(line, nil)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if ev.Part.Tool != "grep" || ev.Part.State.Status != ToolStatusCompleted {
		t.Fatalf("unexpected tool_use part %+v", ev.Part)
	}
}
