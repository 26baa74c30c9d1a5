package mqtt

import (
	"encoding/json"
	"strings"
	"sync"
)

// Handler processes an inbound message.
//
// The payload is the decoded form of the wire message: a map/slice/number/
// bool for JSON payloads, or a string when the payload is not valid JSON.
// Inbound producers are not under this system's control, so handlers must
// tolerate either shape.
//
// Handlers run on the dispatcher's worker pool, never on the network thread,
// so they may block. A returned error is logged and does not affect message
// acknowledgment.
type Handler interface {
	HandleMessage(topic string, payload any) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(topic string, payload any) error

// HandleMessage calls f(topic, payload).
func (f HandlerFunc) HandleMessage(topic string, payload any) error {
	return f(topic, payload)
}

// binding pairs a topic pattern with its handler. Bindings live for the
// lifetime of the service and are re-applied as live subscriptions after
// every reconnect, in registration order.
type binding struct {
	pattern string
	qos     byte
	handler Handler
}

// dispatchJob is one message handed to the worker pool.
type dispatchJob struct {
	handler Handler
	topic   string
	payload any
}

// Worker pool sizing bounds.
const (
	defaultDispatchWorkers = 2

	// dispatchQueueDepth buffers bursts between the network thread and the
	// worker pool. A full buffer blocks paho's delivery goroutine, which is
	// acceptable backpressure; it never blocks the publish path.
	dispatchQueueDepth = 64
)

// dispatcher routes inbound messages to registered handlers.
//
// Matching: an exact pattern match wins; otherwise patterns are tried in
// registration order with MQTT wildcard semantics ("+" matches one topic
// segment, a trailing "#" matches any remaining suffix). First match wins.
//
// Handler execution happens on a small fixed worker pool so a slow or
// panicking handler cannot stall receipt of subsequent messages.
type dispatcher struct {
	mu       sync.RWMutex
	bindings []binding
	closed   bool

	jobs    chan dispatchJob
	wg      sync.WaitGroup
	workers int

	logger Logger
}

func newDispatcher(workers int, logger Logger) *dispatcher {
	if workers < 1 {
		workers = defaultDispatchWorkers
	}
	return &dispatcher{
		jobs:    make(chan dispatchJob, dispatchQueueDepth),
		workers: workers,
		logger:  logger,
	}
}

// start launches the worker pool.
func (d *dispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// stop closes the job queue and waits for in-flight handlers to finish.
// A paho delivery goroutine can still race the service shutdown; the closed
// flag makes such a late dispatch a no-op instead of a send on a closed
// channel.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.jobs)
	d.wg.Wait()
}

func (d *dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.runHandler(job)
	}
}

// runHandler executes one handler with panic recovery. A handler failure is
// logged and never propagates.
func (d *dispatcher) runHandler(job dispatchJob) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("message handler panic recovered",
				"topic", job.topic,
				"panic", r,
			)
		}
	}()

	if err := job.handler.HandleMessage(job.topic, job.payload); err != nil {
		d.logger.Warn("message handler returned error",
			"topic", job.topic,
			"error", err,
		)
	}
}

// register adds a binding. Duplicate patterns are rejected so the tie-break
// order of overlapping wildcards stays deterministic.
func (d *dispatcher) register(pattern string, qos byte, handler Handler) error {
	if pattern == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return ErrSubscribeFailed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, b := range d.bindings {
		if b.pattern == pattern {
			return ErrHandlerExists
		}
	}
	d.bindings = append(d.bindings, binding{pattern: pattern, qos: qos, handler: handler})
	return nil
}

// unregister removes a binding. Reports whether the pattern was present.
func (d *dispatcher) unregister(pattern string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, b := range d.bindings {
		if b.pattern == pattern {
			d.bindings = append(d.bindings[:i], d.bindings[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the current bindings in registration order, for
// re-subscription after a reconnect.
func (d *dispatcher) snapshot() []binding {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]binding, len(d.bindings))
	copy(out, d.bindings)
	return out
}

// dispatch decodes a wire payload and submits it to the matching handler.
// Called from the paho network goroutine; must not block on handler work.
// The send happens under the read lock so it cannot race stop's close: stop
// waits for in-flight sends before closing the channel, and any dispatch
// arriving after that sees the closed flag and drops the message.
func (d *dispatcher) dispatch(topic string, raw []byte) {
	handler := d.findHandler(topic)
	if handler == nil {
		d.logger.Debug("no handler for topic", "topic", topic)
		return
	}

	job := dispatchJob{
		handler: handler,
		topic:   topic,
		payload: decodePayload(raw),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Debug("dispatcher stopped, dropping message", "topic", topic)
		return
	}
	d.jobs <- job
}

// findHandler returns the handler for a topic: exact pattern match first,
// then registration-order wildcard matching.
func (d *dispatcher) findHandler(topic string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, b := range d.bindings {
		if b.pattern == topic {
			return b.handler
		}
	}
	for _, b := range d.bindings {
		if topicMatches(topic, b.pattern) {
			return b.handler
		}
	}
	return nil
}

// decodePayload optimistically decodes JSON; non-JSON payloads degrade to a
// plain string rather than being rejected.
func decodePayload(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// topicMatches reports whether a concrete topic matches a pattern with MQTT
// wildcard semantics: "+" matches exactly one segment, a trailing "#"
// matches the remaining suffix regardless of length (including empty).
func topicMatches(topic, pattern string) bool {
	if !strings.ContainsAny(pattern, "+#") {
		return topic == pattern
	}

	topicParts := strings.Split(topic, "/")
	patternParts := strings.Split(pattern, "/")

	if patternParts[len(patternParts)-1] == "#" {
		prefix := patternParts[:len(patternParts)-1]
		if len(topicParts) < len(prefix) {
			return false
		}
		return segmentsMatch(topicParts[:len(prefix)], prefix)
	}

	if len(topicParts) != len(patternParts) {
		return false
	}
	return segmentsMatch(topicParts, patternParts)
}

func segmentsMatch(topicParts, patternParts []string) bool {
	for i, p := range patternParts {
		if p != "+" && p != topicParts[i] {
			return false
		}
	}
	return true
}
