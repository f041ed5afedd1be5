package persistence

import (
	"sync"

	"github.com/ocmcp/supervisor/internal/async"
	"github.com/ocmcp/supervisor/internal/supervisorlog"
)

const writerQueueCapacity = 256

// job is one deferred persistence write, dequeued and run in submission
// order by a single drain goroutine.
type job func()

// Writer is the bounded fire-and-forget queue that hot paths (Worker
// Runner, TaskManager's status-change dispatch) submit writes through,
// rather than spawning one goroutine per write. On overflow the oldest
// queued job is dropped and logged at warn.
type Writer struct {
	logger supervisorlog.Logger
	queue  chan job

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWriter starts the drain goroutine and returns a ready Writer.
func NewWriter(logger supervisorlog.Logger) *Writer {
	w := &Writer{
		logger: logger,
		queue:  make(chan job, writerQueueCapacity),
		stopCh: make(chan struct{}),
	}
	async.Go(logger, "persistence-writer", w.drain)
	return w
}

// Submit enqueues fn for asynchronous execution. If the queue is full, the
// oldest pending job is dropped (drop-oldest policy) to make room, and the
// drop is logged at warn — Submit itself never blocks the caller.
func (w *Writer) Submit(fn func()) {
	select {
	case w.queue <- fn:
		return
	default:
	}

	select {
	case dropped := <-w.queue:
		_ = dropped
		if w.logger != nil {
			w.logger.Warn("persistence: writer queue full, dropping oldest pending write")
		}
	default:
	}

	select {
	case w.queue <- fn:
	default:
		if w.logger != nil {
			w.logger.Warn("persistence: writer queue full, dropping new write")
		}
	}
}

// Close tells the drain loop to run the jobs already queued and then exit.
// It does not wait for them to finish. Safe to call multiple times.
func (w *Writer) Close() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Writer) drain() {
	for {
		select {
		case <-w.stopCh:
			for {
				select {
				case fn := <-w.queue:
					fn()
				default:
					return
				}
			}
		case fn := <-w.queue:
			fn()
		}
	}
}
