package task

// StatusChangeFunc is the caller-supplied sink notified on every
// externally-visible status transition. It must return quickly — the
// TaskManager never awaits its side effects and the sink must be
// non-blocking from the TaskManager's perspective.
type StatusChangeFunc func(taskID string, newStatus Status, statusMessage string)

// statusChangeEvent is one queued transition notification.
type statusChangeEvent struct {
	taskID        string
	newStatus     Status
	statusMessage string
}

const dispatchQueueCapacity = 1024

// dispatcher delivers status-change notifications via a buffered channel
// consumed by a single dedicated goroutine, so the callback can never run
// from inside a locked section and deadlock against TaskManager internals.
type dispatcher struct {
	sink   StatusChangeFunc
	events chan statusChangeEvent
	stopCh chan struct{}
}

func newDispatcher(sink StatusChangeFunc) *dispatcher {
	d := &dispatcher{
		sink:   sink,
		events: make(chan statusChangeEvent, dispatchQueueCapacity),
		stopCh: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.stopCh:
			return
		case ev := <-d.events:
			if d.sink != nil {
				d.sink(ev.taskID, ev.newStatus, ev.statusMessage)
			}
		}
	}
}

// publish enqueues a notification. If the queue is saturated, the oldest
// pending notification is dropped to keep publish non-blocking.
func (d *dispatcher) publish(taskID string, newStatus Status, statusMessage string) {
	ev := statusChangeEvent{taskID: taskID, newStatus: newStatus, statusMessage: statusMessage}
	select {
	case d.events <- ev:
		return
	default:
	}
	select {
	case <-d.events:
	default:
	}
	select {
	case d.events <- ev:
	default:
	}
}

func (d *dispatcher) close() {
	close(d.stopCh)
}
