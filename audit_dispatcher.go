package authcore

import (
	"context"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// dropWarnEvery spaces out the "audit buffer full" warnings.
const dropWarnEvery = 1000

// auditQueue hands events to the sink on one worker goroutine so login
// paths never wait on sink I/O. A nil queue accepts and discards events.
type auditQueue struct {
	sink       AuditSink
	logger     *log.Entry
	dropIfFull bool

	events  chan AuditEvent
	stop    chan struct{}
	stopped chan struct{}

	closing atomic.Bool
	once    sync.Once
	dropped atomic.Uint64
}

func newAuditQueue(cfg AuditConfig, sink AuditSink, logger *log.Entry) *auditQueue {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	q := &auditQueue{
		sink:       sink,
		logger:     logger.WithField("component", "audit"),
		dropIfFull: cfg.DropIfFull,
		events:     make(chan AuditEvent, size),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go q.work()
	return q
}

func (q *auditQueue) work() {
	defer close(q.stopped)
	for {
		select {
		case event := <-q.events:
			q.deliver(event)
		case <-q.stop:
			for {
				select {
				case event := <-q.events:
					q.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver keeps a panicking sink from taking the worker down with it.
func (q *auditQueue) deliver(event AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithFields(log.Fields{
				"event_id":   event.ID,
				"event_type": event.EventType,
				"panic":      r,
			}).Error("audit: sink panicked, event lost")
		}
	}()
	q.sink.Emit(context.Background(), event)
}

// Emit queues event. With DropIfFull a full buffer drops and counts it;
// otherwise Emit waits for room, for ctx, or for Close.
func (q *auditQueue) Emit(ctx context.Context, event AuditEvent) {
	if q == nil || q.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if q.dropIfFull {
		select {
		case q.events <- event:
		case <-q.stop:
		default:
			if n := q.dropped.Add(1); n == 1 || n%dropWarnEvery == 0 {
				q.logger.WithFields(log.Fields{
					"event_type": event.EventType,
					"dropped":    n,
				}).Warn("audit: buffer full, dropping events")
			}
		}
		return
	}

	select {
	case q.events <- event:
	case <-ctx.Done():
	case <-q.stop:
	}
}

// Close delivers what is already queued and stops the worker. Later calls
// and later Emits are no-ops.
func (q *auditQueue) Close() {
	if q == nil {
		return
	}
	q.once.Do(func() {
		q.closing.Store(true)
		close(q.stop)
		<-q.stopped
	})
}

func (q *auditQueue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}
