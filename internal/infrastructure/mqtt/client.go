package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/consultease/consultease-core/internal/infrastructure/config"
)

// Logger is the logging interface used throughout this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client owns exactly one logical connection to the MQTT broker.
//
// It exposes the low-level connect/publish/subscribe primitives consumed by
// the publish pipeline, the dispatcher and the connection supervisor.
// Business code never calls the Client directly; it goes through Service.
//
// Connection failures are not surfaced to callers as errors: they update the
// connection state, which the supervisor observes and recovers from.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTT

	state atomic.Int32 // ConnectionState

	// onUp is invoked on the paho connect callback after subscriptions are
	// restored; onDown on connection loss. Set once during Service wiring,
	// before any connection attempt.
	onUp   func()
	onDown func(err error)

	// resubscribe re-applies every registered pattern after a (re)connect.
	resubscribe func()

	// connectMu serializes connection attempts.
	connectMu sync.Mutex

	logger Logger
}

// newClient builds an unconnected Client from configuration.
func newClient(cfg config.MQTT, logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

// ConnectAsync schedules connection establishment on a worker goroutine and
// returns immediately. The caller observes the outcome via IsConnected or
// the connection callbacks; a failed attempt leaves the client disconnected
// for the supervisor to retry.
func (c *Client) ConnectAsync() {
	go func() {
		if err := c.connect(context.Background()); err != nil {
			c.logger.Warn("async connect failed", "error", err)
		}
	}()
}

// connect performs one blocking connection attempt. Used by the supervisor,
// which owns retry policy; everything else uses ConnectAsync.
func (c *Client) connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.State() == StateConnected {
		return nil
	}
	c.setState(StateConnecting)

	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler callback runs asynchronously and may not have
	// executed yet; set the state here so IsConnected() is true as soon as
	// the token resolves.
	c.setState(StateConnected)
	return nil
}

// handleConnect is called by paho when a connection is established.
func (c *Client) handleConnect() {
	c.setState(StateConnected)

	if c.resubscribe != nil {
		c.resubscribe()
	}

	c.publishOnlineStatus()

	if c.onUp != nil {
		c.onUp()
	}
}

// handleDisconnect is called by paho when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setState(StateDisconnected)

	if c.onDown != nil {
		c.onDown(err)
	}
}

// publishOnlineStatus publishes the retained online status to the system
// status topic, complementing the LWT's crash status.
func (c *Client) publishOnlineStatus() {
	topic := Topics{}.SystemStatus()
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
}

// publishSync publishes a message and waits for the token with a timeout.
// Called only from the publish drain worker, never from business threads.
func (c *Client) publishSync(topic string, payload []byte, qos byte, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// subscribe issues a broker subscription for one pattern. The subscription
// token is the correlation id: it resolves when the broker acknowledges the
// grant. Acknowledgment failures are reported to the caller, which logs and
// carries on; a failed subscribe never crashes the service.
func (c *Client) subscribe(pattern string, qos byte, handler pahomqtt.MessageHandler) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(pattern, qos, handler)
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// unsubscribe removes a broker subscription for one pattern.
func (c *Client) unsubscribe(pattern string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(pattern)
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// disconnect publishes the graceful offline status and halts the network
// loop, allowing a quiesce window for in-flight operations. Halting the loop
// before thread teardown avoids a publish racing a dead socket.
func (c *Client) disconnect() {
	if c.IsConnected() {
		topic := Topics{}.SystemStatus()
		payload := buildOfflinePayload(c.cfg.Broker.ClientID)
		token := c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setState(StateDisconnected)
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsConnected returns whether the client currently holds a live connection.
//
// Note: This reflects the last known state. The supervisor performs the
// active liveness bookkeeping.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.client.IsConnected()
}

func (c *Client) setState(s ConnectionState) {
	old := ConnectionState(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Debug("connection state changed", "from", old.String(), "to", s.String())
	}
}
