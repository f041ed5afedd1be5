// Package idgen generates the supervisor's opaque task and request identifiers.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// TaskPrefix tags every taskId so it is recognizable at a glance in logs
// and on-disk filenames.
const TaskPrefix = "task_"

// NewTaskID returns a fresh taskId: the constant tag TaskPrefix followed by
// 24 lowercase hex characters derived from a random UUIDv4.
func NewTaskID() string {
	return TaskPrefix + hex24()
}

func hex24() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(raw) < 24 {
		raw = raw + raw
	}
	return raw[:24]
}
