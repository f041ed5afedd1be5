package task

import (
	"sync"
	"time"

	"github.com/ocmcp/supervisor/internal/codec"
	"github.com/ocmcp/supervisor/internal/idgen"
	"github.com/ocmcp/supervisor/internal/metrics"
	"github.com/ocmcp/supervisor/internal/superrors"
	"github.com/ocmcp/supervisor/internal/supervisorlog"
)

const (
	defaultRetention     = time.Hour
	defaultPurgeInterval = 10 * time.Minute
)

// CreateParams is the input to CreateTask.
type CreateParams struct {
	Title string
	Model string
	Agent Agent
}

// Manager is the canonical in-memory task registry and state machine.
type Manager struct {
	mu    sync.Mutex
	tasks map[string]*Task
	timer map[string]*time.Timer

	logger     supervisorlog.Logger
	metrics    *metrics.Registry
	dispatcher *dispatcher

	retention     time.Duration
	purgeInterval time.Duration
	stopOnce      sync.Once
	stopCh        chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetention overrides the default 1h completed-task retention.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) { m.retention = d }
}

// WithMetrics attaches a metrics registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = reg }
}

// NewManager constructs a Manager. sink (may be nil) receives status-change
// notifications via the dispatcher goroutine. Call Close to stop the
// background purge loop and the dispatcher.
func NewManager(logger supervisorlog.Logger, sink StatusChangeFunc, opts ...Option) *Manager {
	m := &Manager{
		tasks:         make(map[string]*Task),
		timer:         make(map[string]*time.Timer),
		logger:        logger,
		dispatcher:    newDispatcher(sink),
		retention:     defaultRetention,
		purgeInterval: defaultPurgeInterval,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.purgeLoop()
	return m
}

// Close stops the purge loop and the dispatcher goroutine.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.dispatcher.close()
	})
}

// CreateTask allocates a fresh taskId and an initial working task. Never fails.
func (m *Manager) CreateTask(p CreateParams) string {
	taskID := idgen.NewTaskID()
	now := time.Now()

	m.mu.Lock()
	m.tasks[taskID] = &Task{
		TaskID:    taskID,
		Title:     p.Title,
		Model:     p.Model,
		Agent:     p.Agent,
		CreatedAt: now,
		Status:    StatusWorking,
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordCreated()
	}
	return taskID
}

// HandleEvent applies one Worker CLI event to the named task.
// Returns superrors.NotFoundErr if taskID is unknown.
func (m *Manager) HandleEvent(taskID string, ev codec.Event) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return superrors.NewNotFound(taskID)
	}

	if t.Status.IsTerminal() {
		m.mu.Unlock()
		if m.logger != nil {
			m.logger.Debug("task %s: dropping event on terminal task (status=%s)", taskID, t.Status)
		}
		return nil
	}

	if t.SessionID == "" && ev.SessionID != "" {
		t.SessionID = ev.SessionID
	}
	t.LastEventAt = time.Now()
	m.cancelTimerLocked(taskID)

	prev := t.Status
	if t.Status == StatusInputRequired {
		// Any event on a task waiting for input means the worker is active again.
		t.Status = StatusWorking
		t.StatusMessage = ""
	}
	switch ev.Type {
	case codec.EventStepStart:
		// stays working
	case codec.EventText:
		t.appendText(codec.TextPayload(ev))
		t.LastTextEventAt = time.Now()
		if endsWithQuestion(t.AccumulatedText) {
			m.armIdleTimerLocked(taskID)
		}
	case codec.EventToolUse:
		// stays working; no buffer mutation
	case codec.EventStepFinish:
		if codec.IsCompletion(ev) {
			t.Status = StatusCompleted
			t.TerminationReason = "completed"
		}
		// tool-calls: stays working
	}
	newStatus := t.Status
	statusMessage := t.StatusMessage
	m.mu.Unlock()

	if prev != newStatus && newStatus.IsTerminal() && m.metrics != nil {
		m.metrics.RecordTerminal(string(newStatus))
	}
	m.notifyIfChanged(taskID, prev, newStatus, statusMessage)
	return nil
}

// armIdleTimerLocked must be called with m.mu held.
func (m *Manager) armIdleTimerLocked(taskID string) {
	m.timer[taskID] = time.AfterFunc(InputRequiredIdleThreshold, func() {
		m.fireIdleTimer(taskID)
	})
}

// cancelTimerLocked must be called with m.mu held.
func (m *Manager) cancelTimerLocked(taskID string) {
	if timer, ok := m.timer[taskID]; ok {
		timer.Stop()
		delete(m.timer, taskID)
	}
}

func (m *Manager) fireIdleTimer(taskID string) {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.timer, taskID)

	if t.Status != StatusWorking {
		m.mu.Unlock()
		return
	}
	if !endsWithQuestion(t.AccumulatedText) {
		m.mu.Unlock()
		return
	}
	if time.Since(t.LastTextEventAt) < InputRequiredIdleThreshold {
		m.mu.Unlock()
		return
	}

	prev := t.Status
	t.Status = StatusInputRequired
	t.StatusMessage = "Waiting for user input"
	newStatus, statusMessage := t.Status, t.StatusMessage
	m.mu.Unlock()

	m.notifyIfChanged(taskID, prev, newStatus, statusMessage)
}

// FailTask transitions taskID to failed with the given message. No-op if
// already terminal.
func (m *Manager) FailTask(taskID, message string) error {
	return m.terminate(taskID, StatusFailed, message, "failed")
}

// CancelTask transitions taskID to cancelled. No-op if already terminal.
func (m *Manager) CancelTask(taskID string) error {
	return m.terminate(taskID, StatusCancelled, "", "cancelled")
}

func (m *Manager) terminate(taskID string, status Status, message, reason string) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return superrors.NewNotFound(taskID)
	}
	if t.Status.IsTerminal() {
		m.mu.Unlock()
		return nil
	}

	m.cancelTimerLocked(taskID)
	prev := t.Status
	t.Status = status
	t.StatusMessage = message
	t.TerminationReason = reason
	t.LastEventAt = time.Now()
	newStatus, statusMessage := t.Status, t.StatusMessage
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordTerminal(string(status))
	}
	m.notifyIfChanged(taskID, prev, newStatus, statusMessage)
	return nil
}

func (m *Manager) notifyIfChanged(taskID string, prev, next Status, statusMessage string) {
	if prev == next {
		return
	}
	m.dispatcher.publish(taskID, next, statusMessage)
}

// GetTaskStatus returns the current status, or false if unknown.
func (m *Manager) GetTaskStatus(taskID string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return "", false
	}
	return t.Status, true
}

// GetTaskMetadata returns a defensive copy of the task, or false if unknown.
func (m *Manager) GetTaskMetadata(taskID string) (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return Metadata{}, false
	}
	return t.snapshot(), true
}

// GetTaskState is an alias kept distinct from GetTaskMetadata to match the
// three named read accessors callers expect; it is equivalent to
// GetTaskMetadata.
func (m *Manager) GetTaskState(taskID string) (Metadata, bool) {
	return m.GetTaskMetadata(taskID)
}

// ListActiveTasks returns metadata for tasks in {working, input_required}.
func (m *Manager) ListActiveTasks() []Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Metadata, 0)
	for _, t := range m.tasks {
		if t.Status == StatusWorking || t.Status == StatusInputRequired {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// ListAllTasks returns metadata for every known task.
func (m *Manager) ListAllTasks() []Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Metadata, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.snapshot())
	}
	return out
}

// RemoveTask cancels pending timers and drops taskID from the registry.
// Returns true iff the task existed.
func (m *Manager) RemoveTask(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[taskID]; !ok {
		return false
	}
	m.cancelTimerLocked(taskID)
	delete(m.tasks, taskID)
	return true
}

// Cleanup cancels every pending timer and empties the registry. Used at
// shutdown and in tests.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for taskID := range m.timer {
		m.cancelTimerLocked(taskID)
	}
	m.tasks = make(map[string]*Task)
}

func (m *Manager) purgeLoop() {
	ticker := time.NewTicker(m.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.purgeExpired()
		}
	}
}

func (m *Manager) purgeExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for taskID, t := range m.tasks {
		if !t.Status.IsTerminal() {
			continue
		}
		if now.Sub(t.LastEventAt) > m.retention {
			m.cancelTimerLocked(taskID)
			delete(m.tasks, taskID)
		}
	}
}
