// Package task implements the TaskManager: the canonical in-memory
// registry of tasks, the lifecycle state machine, and idle-input
// detection.
//
// Grounded on alex/internal/delivery/server/app/task_store.go's in-memory
// registry-with-TTL-eviction shape, generalized from a CRUD task store into
// a state machine that enforces the DAG of statuses described in the
// status-change callback design note (channel-delivered, never invoked from
// inside a locked section).
package task

import (
	"strings"
	"time"
)

// Status is one of the five lifecycle states. input_required is the only
// non-terminal status besides working.
type Status string

const (
	StatusWorking       Status = "working"
	StatusInputRequired Status = "input_required"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// IsTerminal reports whether s is absorbing.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Agent is the optional enum constraining Task.Agent.
type Agent string

const (
	AgentExplore Agent = "explore"
	AgentPlan    Agent = "plan"
	AgentBuild   Agent = "build"
)

// MaxAccumulatedTextBytes is the hard cap on Task.AccumulatedText.
const MaxAccumulatedTextBytes = 1 << 20 // 1 MiB

// InputRequiredIdleThreshold is the one-shot idle-input timer duration.
const InputRequiredIdleThreshold = 30 * time.Second

// Task is the central entity. Fields are mutated exclusively by
// TaskManager; callers only ever see defensive copies.
type Task struct {
	TaskID          string
	SessionID       string
	Title           string
	Model           string
	Agent           Agent
	CreatedAt       time.Time
	LastEventAt     time.Time
	Status          Status
	StatusMessage   string
	AccumulatedText string
	LastTextEventAt time.Time

	// TerminationReason mirrors the triggering cause of a terminal
	// transition (completed/failed/cancelled; empty until then), written
	// into the persisted result.
	TerminationReason string
	// Warnings accumulates one-shot notices, e.g. the accumulated-text
	// overflow warning.
	Warnings []string

	textOverflowWarned bool
}

// Metadata is the read-only defensive copy returned by accessors.
type Metadata struct {
	TaskID            string
	SessionID         string
	Title             string
	Model             string
	Agent             Agent
	CreatedAt         time.Time
	LastEventAt       time.Time
	Status            Status
	StatusMessage     string
	AccumulatedText   string
	LastTextEventAt   time.Time
	TerminationReason string
	Warnings          []string
}

func (t *Task) snapshot() Metadata {
	warnings := make([]string, len(t.Warnings))
	copy(warnings, t.Warnings)
	return Metadata{
		TaskID:            t.TaskID,
		SessionID:         t.SessionID,
		Title:             t.Title,
		Model:             t.Model,
		Agent:             t.Agent,
		CreatedAt:         t.CreatedAt,
		LastEventAt:       t.LastEventAt,
		Status:            t.Status,
		StatusMessage:     t.StatusMessage,
		AccumulatedText:   t.AccumulatedText,
		LastTextEventAt:   t.LastTextEventAt,
		TerminationReason: t.TerminationReason,
		Warnings:          warnings,
	}
}

// appendText enforces the 1 MiB cap, discarding overflow silently and
// recording a one-shot warning.
func (t *Task) appendText(s string) {
	remaining := MaxAccumulatedTextBytes - len(t.AccumulatedText)
	if remaining <= 0 {
		t.markOverflow()
		return
	}
	if len(s) > remaining {
		t.AccumulatedText += s[:remaining]
		t.markOverflow()
		return
	}
	t.AccumulatedText += s
}

func (t *Task) markOverflow() {
	if t.textOverflowWarned {
		return
	}
	t.textOverflowWarned = true
	t.Warnings = append(t.Warnings, "accumulatedText exceeded 1 MiB cap; additional output was discarded")
}

// endsWithQuestion reports whether the trimmed buffer ends with '?' — the
// default idle-input trigger. Kept as its own function so the rule can
// become configurable later without touching callers.
func endsWithQuestion(s string) bool {
	return strings.HasSuffix(strings.TrimSpace(s), "?")
}
