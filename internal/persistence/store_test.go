package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestInitIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	if err := s.Init(); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("second init: %v", err)
	}

	if _, _, err := New(dir, nil).GetTaskIdBySession("missing"); err != nil {
		t.Fatalf("sessions.json should be well-formed: %v", err)
	}
}

// TestPersistenceRoundTripS7 covers a full metadata/events/result round trip
// across a fresh Store instance pointed at the same directory.
func TestPersistenceRoundTripS7(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	taskID := "task_abc123"
	meta := PersistedTaskMetadata{TaskID: taskID, Title: "t", Model: "x/y", Status: "working"}
	if err := s.SaveTaskMetadata(taskID, meta); err != nil {
		t.Fatalf("save meta: %v", err)
	}

	events := []map[string]any{
		{"type": "step_start", "timestamp": 1},
		{"type": "text", "timestamp": 2},
		{"type": "tool_use", "timestamp": 3},
		{"type": "step_finish", "timestamp": 4},
	}
	for _, e := range events {
		if err := s.AppendEvent(taskID, e); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	result := PersistedResult{TaskID: taskID, Status: "completed", Text: "done"}
	if err := s.SaveResult(taskID, result); err != nil {
		t.Fatalf("save result: %v", err)
	}

	// Fresh instance on the same directory — exercises the LRU cache miss path.
	fresh := New(dir, nil)

	gotMeta, found, err := fresh.LoadTaskMetadata(taskID)
	if err != nil || !found {
		t.Fatalf("load meta: found=%v err=%v", found, err)
	}
	if gotMeta != meta {
		t.Fatalf("meta mismatch: got %+v want %+v", gotMeta, meta)
	}

	gotEvents, err := fresh.LoadEvents(taskID)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(gotEvents) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(gotEvents))
	}
	for i, raw := range gotEvents {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode event %d: %v", i, err)
		}
		if decoded["type"] != events[i]["type"] {
			t.Fatalf("event %d out of order: got %v want %v", i, decoded["type"], events[i]["type"])
		}
	}

	gotResult, found, err := fresh.LoadResult(taskID)
	if err != nil || !found {
		t.Fatalf("load result: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(gotResult, result) {
		t.Fatalf("result mismatch: got %+v want %+v", gotResult, result)
	}

	ids, err := fresh.ListTasks()
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	count := 0
	for _, id := range ids {
		if id == taskID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected task to appear exactly once in listTasks, got %d", count)
	}
}

func TestLoadEventsSkipsUnparseableLines(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	taskID := "task_bad"

	path := filepath.Join(s.GetTasksDir(), taskID+".output.jsonl")
	content := `{"type":"text"}
not valid json
{"type":"step_finish"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	events, err := s.LoadEvents(taskID)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 surviving events, got %d", len(events))
	}
}

func TestLoadTaskMetadataMissingReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	_, found, err := s.LoadTaskMetadata("task_does_not_exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected not found")
	}
}

// TestSessionMappingOverwriteS10 checks that saving a session mapping twice
// overwrites rather than duplicates the entry.
func TestSessionMappingOverwriteS10(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := s.SaveSessionMapping("sess-1", "task_a"); err != nil {
		t.Fatalf("save mapping: %v", err)
	}
	taskID, ok, err := s.GetTaskIdBySession("sess-1")
	if err != nil || !ok || taskID != "task_a" {
		t.Fatalf("unexpected mapping: %q ok=%v err=%v", taskID, ok, err)
	}

	if err := s.SaveSessionMapping("sess-1", "task_b"); err != nil {
		t.Fatalf("overwrite mapping: %v", err)
	}
	taskID, ok, err = s.GetTaskIdBySession("sess-1")
	if err != nil || !ok || taskID != "task_b" {
		t.Fatalf("expected overwritten mapping task_b, got %q ok=%v err=%v", taskID, ok, err)
	}

	if err := s.RemoveSessionMapping("sess-1"); err != nil {
		t.Fatalf("remove mapping: %v", err)
	}
	_, ok, err = s.GetTaskIdBySession("sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected mapping to be gone after removal")
	}
}

func TestDeleteTaskToleratesMissingFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := s.DeleteTask("task_never_existed"); err != nil {
		t.Fatalf("expected ENOENT to be tolerated, got %v", err)
	}
}
