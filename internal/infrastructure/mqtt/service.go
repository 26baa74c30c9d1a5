package mqtt

import (
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/consultease/consultease-core/internal/infrastructure/config"
)

// joinTimeout bounds how long Stop waits for each background worker.
const joinTimeout = 5 * time.Second

// Service is the messaging layer's public surface: an asynchronous
// publish/subscribe client that survives broker disconnects.
//
// It composes the transport Client, the outbound publish pipeline, the topic
// dispatch registry and the connection supervisor. Business code interacts
// only with PublishAsync, RegisterHandler, UnregisterHandler and Stats, all
// of which are non-blocking.
type Service struct {
	cfg        config.MQTT
	client     *Client
	dispatcher *dispatcher
	pipeline   *pipeline
	supervisor *supervisor
	stats      *statistics
	logger     Logger

	running atomic.Bool
}

// NewService assembles an unstarted messaging service from configuration.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - logger: Structured logger (nil for silent operation)
func NewService(cfg config.MQTT, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}

	stats := &statistics{}
	client := newClient(cfg, logger)
	disp := newDispatcher(cfg.Queue.DispatchWorkers, logger)
	pipe := newPipeline(
		client,
		cfg.Queue.MaxSize,
		cfg.Queue.BatchSize,
		time.Duration(cfg.Queue.BatchTimeoutMS)*time.Millisecond,
		stats,
		logger,
	)
	super := newSupervisor(
		client,
		time.Duration(cfg.Reconnect.Delay)*time.Second,
		cfg.Reconnect.MaxAttempts,
		time.Duration(cfg.Reconnect.Cooldown)*time.Second,
		logger,
	)

	s := &Service{
		cfg:        cfg,
		client:     client,
		dispatcher: disp,
		pipeline:   pipe,
		supervisor: super,
		stats:      stats,
		logger:     logger,
	}

	// On every successful (re)connection, re-apply all registered patterns
	// as live subscriptions, in registration order.
	client.resubscribe = s.restoreSubscriptions

	return s
}

// Start launches the background workers and initiates the first connection
// attempt asynchronously. It returns immediately; connection progress is
// observable via IsConnected and Stats.
func (s *Service) Start() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("mqtt service already running")
		return
	}

	s.dispatcher.start()
	s.pipeline.start()
	s.supervisor.start()
	s.client.ConnectAsync()

	s.logger.Info("mqtt service started",
		"broker_host", s.cfg.Broker.Host,
		"broker_port", s.cfg.Broker.Port,
	)
}

// Stop shuts the service down: the supervisor exits first (no new
// connection attempts), then the pipeline drains out through its sentinel,
// the client disconnects with a quiesce window, and the dispatcher's worker
// pool stops last, after every producer of work to it has gone quiet.
// Workers that fail to join in time are logged, never fatal.
func (s *Service) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.supervisor.stop(joinTimeout)
	s.pipeline.stop(joinTimeout)
	s.client.disconnect()
	s.dispatcher.stop()

	s.logger.Info("mqtt service stopped")
}

// PublishAsync enqueues a message for publication without blocking on
// network I/O. Messages with qos >= 2 or retain set bypass batching.
//
// The payload may be []byte, string, or any JSON-marshallable value;
// encoding happens on the drain worker.
//
// Returns:
//   - error: ErrNotRunning or ErrInvalidTopic for caller mistakes; transport
//     failures are absorbed internally and only visible via Stats
func (s *Service) PublishAsync(topic string, payload any, qos byte, retain bool) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoSLevel {
		return ErrInvalidQoS
	}

	s.pipeline.enqueue(&QueuedMessage{
		Topic:      topic,
		Payload:    payload,
		QoS:        qos,
		Retain:     retain,
		EnqueuedAt: time.Now(),
	})
	return nil
}

// RegisterHandler binds a topic pattern (wildcards allowed) to a handler.
//
// The binding lives for the lifetime of the service and is re-applied as a
// live subscription after every reconnect. If currently connected, the
// broker subscription is issued immediately; while disconnected it is
// deferred to the next successful connect.
func (s *Service) RegisterHandler(pattern string, handler Handler) error {
	qos := byte(s.cfg.QoS)

	if err := s.dispatcher.register(pattern, qos, handler); err != nil {
		return err
	}

	if s.client.IsConnected() {
		if err := s.client.subscribe(pattern, qos, s.onMessage); err != nil {
			// Keep the binding: the next reconnect re-applies it.
			s.logger.Warn("immediate subscribe failed, will retry on reconnect",
				"pattern", pattern,
				"error", err,
			)
		}
	}

	s.logger.Debug("registered topic handler", "pattern", pattern)
	return nil
}

// UnregisterHandler removes a pattern binding and, if connected, issues an
// unsubscribe to the broker.
func (s *Service) UnregisterHandler(pattern string) {
	if !s.dispatcher.unregister(pattern) {
		return
	}

	if s.client.IsConnected() {
		if err := s.client.unsubscribe(pattern); err != nil {
			s.logger.Warn("unsubscribe failed", "pattern", pattern, "error", err)
		}
	}
}

// restoreSubscriptions re-subscribes every registered pattern after a
// (re)connect, in registration order. Failures are logged per pattern and do
// not interrupt the rest.
func (s *Service) restoreSubscriptions() {
	bindings := s.dispatcher.snapshot()
	for _, b := range bindings {
		if err := s.client.subscribe(b.pattern, b.qos, s.onMessage); err != nil {
			s.logger.Error("re-subscription failed",
				"pattern", b.pattern,
				"error", err,
			)
		}
	}
	if len(bindings) > 0 {
		s.logger.Info("subscriptions restored", "count", len(bindings))
	}
}

// onMessage is the single paho inbound callback; it counts the message and
// hands it to the dispatcher, which decodes and routes off the network
// thread.
func (s *Service) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	s.stats.messagesReceived.Add(1)
	s.dispatcher.dispatch(msg.Topic(), msg.Payload())
}

// IsConnected reports whether the transport currently holds a live
// connection.
func (s *Service) IsConnected() bool {
	return s.client.IsConnected()
}

// Stats returns a read-only snapshot of the messaging layer for the
// observability surface.
func (s *Service) Stats() Stats {
	direct, batch := s.pipeline.queueDepths()
	return Stats{
		State:             s.client.State().String(),
		Connected:         s.client.IsConnected(),
		MessagesPublished: s.stats.messagesPublished.Load(),
		MessagesReceived:  s.stats.messagesReceived.Load(),
		PublishErrors:     s.stats.publishErrors.Load(),
		DroppedMessages:   s.stats.droppedMessages.Load(),
		BatchedMessages:   s.stats.batchedMessages.Load(),
		QueueSize:         direct,
		BatchQueueSize:    batch,
		MaxQueueSize:      s.cfg.Queue.MaxSize,
		LastKeepalive:     s.supervisor.lastKeepalive.Load(),
	}
}
