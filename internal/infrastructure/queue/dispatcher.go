package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-api/internal/api/metrics"
	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

const (
	defaultWorkers = 2
	channelBuffer  = 256
)

// AuditSink persists a single audit event and reports whether it was written.
// Implementations must contain their own failures.
type AuditSink interface {
	LogEvent(userID string, eventType domain.EventType) bool
}

type auditJob struct {
	userID    string
	eventType domain.EventType
}

// AuditDispatcher hands audit events to a fixed set of workers, sharded by
// user id so events for one user are written in publish order. Publish never
// blocks the request path: when a worker queue is full the event is dropped.
type AuditDispatcher struct {
	workers []chan auditJob
	sink    AuditSink
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
	done   chan struct{}
}

var _ ports.AuditPublisher = (*AuditDispatcher)(nil)

// NewAuditDispatcher creates a dispatcher with numWorkers sharded workers,
// each with a queue of queueSize events. Non-positive values use defaults.
func NewAuditDispatcher(numWorkers, queueSize int, sink AuditSink, log zerolog.Logger) *AuditDispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = channelBuffer
	}
	d := &AuditDispatcher{
		workers: make([]chan auditJob, numWorkers),
		sink:    sink,
		log:     log,
		done:    make(chan struct{}),
	}
	for i := range d.workers {
		d.workers[i] = make(chan auditJob, queueSize)
	}
	return d
}

// Start launches all worker goroutines. Cancelling ctx has the same effect
// as Stop.
func (d *AuditDispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(i, ch)
	}
	go func() {
		select {
		case <-ctx.Done():
			d.Stop()
		case <-d.done:
		}
	}()
}

// Publish enqueues an event for the worker responsible for userID.
func (d *AuditDispatcher) Publish(userID string, eventType domain.EventType) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(userID, eventType, "dispatcher stopped")
		return
	}

	idx := d.shardIndex(userID)
	select {
	case d.workers[idx] <- auditJob{userID: userID, eventType: eventType}:
		metrics.AuditQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		d.drop(userID, eventType, "queue full")
	}
}

// Stop closes the worker queues and waits until every queued event has been
// handed to the sink. It is safe to call more than once.
func (d *AuditDispatcher) Stop() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
		d.mu.Unlock()
		close(d.done)
	})
	d.wg.Wait()
}

func (d *AuditDispatcher) drop(userID string, eventType domain.EventType, reason string) {
	metrics.AuditEventsTotal.WithLabelValues(string(eventType), "dropped").Inc()
	d.log.Warn().
		Str("user_id", userID).
		Str("event_type", string(eventType)).
		Str("reason", reason).
		Msg("audit event dropped")
}

// shardIndex maps a user id deterministically to a worker index.
func (d *AuditDispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *AuditDispatcher) runWorker(id int, ch <-chan auditJob) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for job := range ch {
		metrics.AuditQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
		result := "persisted"
		if !d.sink.LogEvent(job.userID, job.eventType) {
			result = "failed"
		}
		metrics.AuditEventsTotal.WithLabelValues(string(job.eventType), result).Inc()
	}
}
