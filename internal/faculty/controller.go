package faculty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/consultease/consultease-core/internal/infrastructure/mqtt"
)

// handlerTimeout bounds the store work done by one inbound message.
const handlerTimeout = 10 * time.Second

// MessageBus is the inbound messaging surface the controller needs.
// Implemented by mqtt.Service.
type MessageBus interface {
	RegisterHandler(pattern string, handler mqtt.Handler) error
}

// StatusSetter is the mutation surface the controller routes presence
// signals through. Implemented by Synchronizer.
type StatusSetter interface {
	SetStatusWithRetry(ctx context.Context, id int64, status bool) (*Faculty, error)
}

// StatusCallback receives the updated record after every applied status
// change. Callbacks run on the dispatch worker pool and should return
// quickly.
type StatusCallback func(f *Faculty)

// Controller subscribes to desk unit topics and routes presence signals to
// the Synchronizer.
//
// Desk unit firmware varies across generations, so payloads arrive in
// several shapes: JSON objects with a "present" or "status" field (bool or
// the strings "true"/"false"), bare booleans or numbers, and the legacy
// plain strings of first-generation units ("keychain_connected" etc.).
// Unknown shapes are logged and skipped, never fatal.
type Controller struct {
	sync     StatusSetter
	repo     Repository
	registry *Registry
	logger   Logger

	callbacks []StatusCallback
	cbMu      sync.RWMutex
}

// NewController creates a faculty controller.
func NewController(sync StatusSetter, repo Repository, registry *Registry, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		sync:     sync,
		repo:     repo,
		registry: registry,
		logger:   logger,
	}
}

// Start registers the controller's topic handlers. Bindings survive
// reconnects; Start is called once at startup.
func (c *Controller) Start(bus MessageBus) error {
	topics := mqtt.Topics{}

	if err := bus.RegisterHandler(topics.AllFacultyStatus(), mqtt.HandlerFunc(c.handleStatus)); err != nil {
		return fmt.Errorf("registering status handler: %w", err)
	}
	if err := bus.RegisterHandler(mqtt.TopicLegacyFacultyStatus, mqtt.HandlerFunc(c.handleLegacyStatus)); err != nil {
		return fmt.Errorf("registering legacy status handler: %w", err)
	}
	if err := bus.RegisterHandler(topics.AllFacultyHeartbeats(), mqtt.HandlerFunc(c.handleHeartbeat)); err != nil {
		return fmt.Errorf("registering heartbeat handler: %w", err)
	}

	c.logger.Info("faculty controller started")
	return nil
}

// RegisterCallback adds a callback invoked after every applied status change.
func (c *Controller) RegisterCallback(cb StatusCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

// handleStatus processes consultease/faculty/{id}/status messages.
func (c *Controller) handleStatus(topic string, payload any) error {
	id, err := mqtt.FacultyIDFromTopic(topic)
	if err != nil {
		return fmt.Errorf("parsing status topic: %w", err)
	}

	status, ok := parseStatus(payload)
	if !ok {
		c.logger.Warn("unrecognized status payload",
			"topic", topic,
			"payload", payload,
		)
		return nil
	}

	return c.apply(id, status)
}

// handleLegacyStatus processes the legacy faculty/status topic.
//
// Legacy desk units don't identify their faculty: plain-string payloads are
// attributed to the first faculty with a BLE beacon; JSON payloads may carry
// faculty_id or faculty_name.
func (c *Controller) handleLegacyStatus(_ string, payload any) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var (
		status bool
		target *Faculty
		err    error
	)

	switch v := payload.(type) {
	case string:
		var ok bool
		if status, ok = parseLegacyString(v); !ok {
			c.logger.Warn("unknown legacy status string", "payload", v)
			return nil
		}
		target, err = c.repo.FirstWithBLE(ctx)

	case map[string]any:
		status, _ = parseStatusValue(v["status"])
		target, err = c.resolveLegacyTarget(ctx, v)

	default:
		c.logger.Warn("unrecognized legacy status payload", "payload", payload)
		return nil
	}

	if err != nil {
		if errors.Is(err, ErrNoLegacyTarget) || errors.Is(err, ErrFacultyNotFound) {
			c.logger.Warn("cannot attribute legacy status message", "error", err)
			return nil
		}
		return err
	}

	return c.apply(target.ID, status)
}

// resolveLegacyTarget finds the faculty a legacy JSON payload refers to:
// faculty_id, then faculty_name, then the BLE fallback.
func (c *Controller) resolveLegacyTarget(ctx context.Context, data map[string]any) (*Faculty, error) {
	if raw, ok := data["faculty_id"]; ok {
		if id, ok := raw.(float64); ok {
			return c.repo.GetByID(ctx, int64(id))
		}
	}
	if raw, ok := data["faculty_name"]; ok {
		if name, ok := raw.(string); ok && name != "" {
			return c.repo.GetByName(ctx, name)
		}
	}
	return c.repo.FirstWithBLE(ctx)
}

// handleHeartbeat records desk unit liveness. Heartbeats touch last_seen
// only: no status change, no version bump, no notification.
func (c *Controller) handleHeartbeat(topic string, _ any) error {
	id, err := mqtt.FacultyIDFromTopic(topic)
	if err != nil {
		return fmt.Errorf("parsing heartbeat topic: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := c.repo.UpdateLastSeen(ctx, id, time.Now().UTC()); err != nil {
		if errors.Is(err, ErrFacultyNotFound) {
			c.logger.Warn("heartbeat from unknown faculty", "faculty_id", id)
			return nil
		}
		return fmt.Errorf("recording heartbeat: %w", err)
	}

	if c.registry != nil {
		c.registry.Invalidate(id)
	}
	c.logger.Debug("faculty heartbeat", "faculty_id", id)
	return nil
}

// apply routes one parsed presence signal through the synchronizer and
// invokes registered callbacks on success.
func (c *Controller) apply(id int64, status bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	f, err := c.sync.SetStatusWithRetry(ctx, id, status)
	if err != nil {
		if errors.Is(err, ErrFacultyNotFound) {
			c.logger.Warn("status update for unknown faculty", "faculty_id", id)
			return nil
		}
		return fmt.Errorf("applying status for faculty %d: %w", id, err)
	}

	c.cbMu.RLock()
	callbacks := make([]StatusCallback, len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(f.DeepCopy())
	}
	return nil
}

// parseStatus extracts a presence flag from any supported payload shape.
func parseStatus(payload any) (status, ok bool) {
	switch v := payload.(type) {
	case map[string]any:
		if raw, present := v["present"]; present {
			return parseStatusValue(raw)
		}
		if raw, present := v["status"]; present {
			return parseStatusValue(raw)
		}
		return false, false
	default:
		return parseStatusValue(payload)
	}
}

// parseStatusValue interprets a scalar presence value.
func parseStatusValue(raw any) (status, ok bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return parseLegacyString(v)
	default:
		return false, false
	}
}

// parseLegacyString interprets first-generation desk unit status strings.
func parseLegacyString(s string) (status, ok bool) {
	switch s {
	case "keychain_connected", "faculty_present":
		return true, true
	case "keychain_disconnected", "faculty_absent":
		return false, true
	default:
		return false, false
	}
}
