package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Pipeline defaults.
const (
	// defaultMaxQueueSize is the direct-lane capacity.
	defaultMaxQueueSize = 1000

	// defaultBatchSize is the batch-lane flush threshold.
	defaultBatchSize = 10

	// defaultBatchTimeout is the flush deadline measured from the first
	// message in an open batch.
	defaultBatchTimeout = 100 * time.Millisecond
)

// QueuedMessage is one outbound message waiting in the publish pipeline.
// It exists from the publish call until it is handed to the transport client
// or dropped under overflow.
type QueuedMessage struct {
	Topic      string
	Payload    any
	QoS        byte
	Retain     bool
	EnqueuedAt time.Time
}

// syncPublisher is the transport primitive the drain worker publishes
// through. Implemented by Client; faked in tests.
type syncPublisher interface {
	publishSync(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// pipeline decouples message producers from network availability.
//
// Two lanes: messages with qos >= 2 or retain set go straight to the direct
// lane, a bounded FIFO with a drop-oldest overflow policy. Everything else
// accumulates in the batch lane, which flushes into the direct lane when
// either batchSize messages are pending or batchTimeout has elapsed since
// the first message of the open batch.
//
// A single drain worker pulls from the direct lane and publishes through the
// transport. Messages drained while disconnected are discarded, not
// re-queued: during an extended outage the queue would otherwise grow without
// bound, and most payloads are current-state snapshots whose stale delivery
// has no value.
type pipeline struct {
	publisher syncPublisher
	logger    Logger
	stats     *statistics

	direct chan *QueuedMessage

	batchMu      sync.Mutex
	batch        []*QueuedMessage
	batchTimer   *time.Timer
	batchSize    int
	batchTimeout time.Duration

	// dropMu serializes the drop-oldest eviction so two producers cannot
	// both evict for one admitted message.
	dropMu sync.Mutex

	done chan struct{}
}

// sentinel unblocks the drain worker during shutdown without waiting out a
// queue timeout. It is enqueued only after all producers have stopped.
var sentinel = &QueuedMessage{}

func newPipeline(publisher syncPublisher, maxQueueSize, batchSize int, batchTimeout time.Duration, stats *statistics, logger Logger) *pipeline {
	if maxQueueSize < 1 {
		maxQueueSize = defaultMaxQueueSize
	}
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	return &pipeline{
		publisher:    publisher,
		logger:       logger,
		stats:        stats,
		direct:       make(chan *QueuedMessage, maxQueueSize),
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		done:         make(chan struct{}),
	}
}

// start launches the drain worker.
func (p *pipeline) start() {
	go p.drain()
}

// stop flushes the open batch, pushes the sentinel to unblock the drain
// worker and waits for it to exit, bounded by the given timeout.
// All producers must have stopped before stop is called.
func (p *pipeline) stop(timeout time.Duration) {
	p.flushBatch()
	p.enqueueDirect(sentinel)

	select {
	case <-p.done:
	case <-time.After(timeout):
		p.logger.Warn("publish drain worker did not stop in time")
	}
}

// enqueue routes a message to the appropriate lane. Critical messages
// (qos >= 2 or retained) bypass batching so state snapshots reach the broker
// with minimum latency.
func (p *pipeline) enqueue(msg *QueuedMessage) {
	if msg.QoS >= maxQoSLevel || msg.Retain {
		p.enqueueDirect(msg)
		return
	}
	p.enqueueBatch(msg)
}

// enqueueDirect admits a message to the bounded direct lane, evicting the
// oldest queued message when full (drop-oldest policy).
func (p *pipeline) enqueueDirect(msg *QueuedMessage) {
	select {
	case p.direct <- msg:
		return
	default:
	}

	p.dropMu.Lock()
	defer p.dropMu.Unlock()

	for {
		select {
		case p.direct <- msg:
			return
		default:
		}

		select {
		case old := <-p.direct:
			if old == sentinel {
				// Never drop the shutdown sentinel; the producer
				// contract makes this unreachable, but re-admitting
				// it is cheaper than relying on that.
				p.direct <- old
				return
			}
			p.stats.droppedMessages.Add(1)
			p.logger.Warn("dropped oldest queued message",
				"topic", old.Topic,
				"dropped_total", p.stats.droppedMessages.Load(),
			)
		default:
		}
	}
}

// enqueueBatch adds a message to the open batch, starting the flush timer on
// the first message and flushing immediately once the batch is full.
func (p *pipeline) enqueueBatch(msg *QueuedMessage) {
	p.batchMu.Lock()

	p.batch = append(p.batch, msg)
	if len(p.batch) == 1 {
		p.batchTimer = time.AfterFunc(p.batchTimeout, p.flushBatch)
	}

	if len(p.batch) >= p.batchSize {
		batch := p.takeBatchLocked()
		p.batchMu.Unlock()
		p.submitBatch(batch)
		return
	}
	p.batchMu.Unlock()
}

// flushBatch drains the open batch into the direct lane. Called by the batch
// timer and on shutdown.
func (p *pipeline) flushBatch() {
	p.batchMu.Lock()
	batch := p.takeBatchLocked()
	p.batchMu.Unlock()
	p.submitBatch(batch)
}

// takeBatchLocked detaches the open batch and stops its timer.
// Caller must hold batchMu.
func (p *pipeline) takeBatchLocked() []*QueuedMessage {
	if p.batchTimer != nil {
		p.batchTimer.Stop()
		p.batchTimer = nil
	}
	batch := p.batch
	p.batch = nil
	return batch
}

// submitBatch pushes flushed messages individually into the direct lane,
// preserving their enqueue order. Grouping a flush into a single wire
// message is a possible future optimization; per-message submission keeps
// the direct lane the single ordering domain.
func (p *pipeline) submitBatch(batch []*QueuedMessage) {
	for _, msg := range batch {
		p.enqueueDirect(msg)
		p.stats.batchedMessages.Add(1)
	}
}

// queueDepths reports the current direct and batch lane depths.
func (p *pipeline) queueDepths() (direct, batch int) {
	p.batchMu.Lock()
	batch = len(p.batch)
	p.batchMu.Unlock()
	return len(p.direct), batch
}

// drain is the single worker moving messages from the direct lane to the
// transport. It exits on the sentinel.
func (p *pipeline) drain() {
	defer close(p.done)

	for msg := range p.direct {
		if msg == sentinel {
			p.logger.Debug("publish drain worker received sentinel, exiting")
			return
		}

		if !p.publisher.IsConnected() {
			p.stats.publishErrors.Add(1)
			p.logger.Warn("discarding message, not connected", "topic", msg.Topic)
			continue
		}

		payload, err := encodePayload(msg.Payload)
		if err != nil {
			p.stats.publishErrors.Add(1)
			p.logger.Error("encoding outbound payload", "topic", msg.Topic, "error", err)
			continue
		}

		if err := p.publisher.publishSync(msg.Topic, payload, msg.QoS, msg.Retain); err != nil {
			p.stats.publishErrors.Add(1)
			if !errors.Is(err, ErrNotConnected) {
				p.logger.Error("publishing message", "topic", msg.Topic, "error", err)
			}
			continue
		}

		p.stats.messagesPublished.Add(1)
	}
}

// encodePayload converts a queued payload to wire bytes: byte slices and
// strings pass through, everything else is JSON-encoded.
func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshalling payload: %w", err)
		}
		return data, nil
	}
}
