package consultation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/consultease/consultease-core/internal/infrastructure/mqtt"
)

const (
	// handlerTimeout bounds the store work done by one inbound message.
	handlerTimeout = 10 * time.Second

	// requestQoS delivers consultation requests at least once; the desk
	// unit deduplicates on message_id.
	requestQoS = 1

	// dedupCacheSize bounds the seen-message-id cache. QoS-1 redelivery
	// repeats recent ids, so a small window is enough.
	dedupCacheSize = 512
)

// Logger defines the logging interface used by this package.
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

// Publisher is the outbound messaging surface the controller needs.
// Implemented by mqtt.Service.
type Publisher interface {
	PublishAsync(topic string, payload any, qos byte, retain bool) error
}

// MessageBus is the inbound messaging surface the controller needs.
// Implemented by mqtt.Service.
type MessageBus interface {
	RegisterHandler(pattern string, handler mqtt.Handler) error
}

// HistoryRecorder receives consultation lifecycle events. Optional.
type HistoryRecorder interface {
	WriteConsultationEvent(facultyID int64, messageID, event string)
}

// ResponseCallback receives the consultation after a faculty response has
// been applied. Callbacks run on the dispatch worker pool.
type ResponseCallback func(c *Consultation)

// Controller brokers consultation requests between kiosks and desk units.
//
// SubmitRequest persists the request and delivers it to the faculty's desk
// unit. Responses come back on the per-faculty responses topic; redelivered
// responses (QoS 1) are suppressed by a bounded LRU of seen message ids,
// and the repository's pending-only transition guard catches anything that
// slips past the cache after a restart.
type Controller struct {
	repo      Repository
	publisher Publisher
	recorder  HistoryRecorder
	logger    Logger
	topics    mqtt.Topics

	seen *lru.Cache[string, time.Time]

	callbacks []ResponseCallback
}

// NewController creates a consultation controller.
func NewController(repo Repository, publisher Publisher, logger Logger) (*Controller, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	seen, err := lru.New[string, time.Time](dedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating dedup cache: %w", err)
	}

	return &Controller{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		seen:      seen,
	}, nil
}

// SetRecorder attaches an optional history recorder.
func (c *Controller) SetRecorder(recorder HistoryRecorder) {
	c.recorder = recorder
}

// RegisterCallback adds a callback invoked after every applied response.
// Must be called before Start; the callback list is not guarded afterwards.
func (c *Controller) RegisterCallback(cb ResponseCallback) {
	c.callbacks = append(c.callbacks, cb)
}

// Start registers the response topic handler.
func (c *Controller) Start(bus MessageBus) error {
	if err := bus.RegisterHandler(c.topics.AllFacultyResponses(), mqtt.HandlerFunc(c.handleResponse)); err != nil {
		return fmt.Errorf("registering response handler: %w", err)
	}
	c.logger.Info("consultation controller started")
	return nil
}

// SubmitRequest persists a new consultation and delivers it to the faculty's
// desk unit.
//
// Returns:
//   - *Consultation: the persisted request, with its generated message id
//   - error: a persistence failure; nothing was published in that case
func (c *Controller) SubmitRequest(ctx context.Context, studentName string, facultyID int64, message string) (*Consultation, error) {
	consultation := &Consultation{
		MessageID:   uuid.NewString(),
		StudentName: studentName,
		FacultyID:   facultyID,
		Message:     message,
		Status:      StatusPending,
		RequestedAt: time.Now().UTC(),
	}

	if err := c.repo.Create(ctx, consultation); err != nil {
		return nil, fmt.Errorf("persisting consultation request: %w", err)
	}

	payload := RequestPayload{
		Type:        "consultation_request",
		MessageID:   consultation.MessageID,
		StudentName: consultation.StudentName,
		Message:     consultation.Message,
		RequestedAt: consultation.RequestedAt.Format(time.RFC3339),
	}

	topic := c.topics.FacultyRequests(facultyID)
	if err := c.publisher.PublishAsync(topic, payload, requestQoS, false); err != nil {
		// The request is persisted; delivery rides on the pipeline and
		// reconnect machinery. Surface the enqueue failure only in logs.
		c.logger.Error("enqueueing consultation request",
			"topic", topic,
			"message_id", consultation.MessageID,
			"error", err,
		)
	}

	if c.recorder != nil {
		c.recorder.WriteConsultationEvent(facultyID, consultation.MessageID, "requested")
	}

	c.logger.Info("consultation request submitted",
		"faculty_id", facultyID,
		"message_id", consultation.MessageID,
	)
	return consultation, nil
}

// handleResponse processes consultease/faculty/{id}/responses messages.
func (c *Controller) handleResponse(topic string, payload any) error {
	topicFacultyID, err := mqtt.FacultyIDFromTopic(topic)
	if err != nil {
		return fmt.Errorf("parsing response topic: %w", err)
	}

	data, ok := payload.(map[string]any)
	if !ok {
		c.logger.Warn("unrecognized response payload", "topic", topic, "payload", payload)
		return nil
	}

	facultyID, ok := parseFacultyID(data["faculty_id"])
	if !ok {
		c.logger.Warn("response missing faculty_id", "topic", topic)
		return nil
	}
	messageID, _ := data["message_id"].(string)
	responseType, _ := data["response_type"].(string)
	if messageID == "" || responseType == "" {
		c.logger.Warn("response missing message_id or response_type", "topic", topic)
		return nil
	}

	if facultyID != topicFacultyID {
		c.logger.Warn("response faculty_id does not match topic",
			"topic", topic,
			"payload_faculty_id", facultyID,
		)
		return nil
	}

	// Suppress QoS-1 redelivery. Ids are marked seen only once the
	// transition has been applied; a failed update stays recoverable
	// through redelivery.
	if _, dup := c.seen.Get(messageID); dup {
		c.logger.Debug("duplicate response suppressed", "message_id", messageID)
		return nil
	}

	status, ok := statusForResponse(responseType)
	if !ok {
		c.logger.Warn("unknown response type",
			"message_id", messageID,
			"response_type", responseType,
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	consultation, err := c.repo.GetByMessageID(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			c.logger.Warn("response for unknown consultation", "message_id", messageID)
			return nil
		}
		return fmt.Errorf("loading consultation: %w", err)
	}

	if consultation.FacultyID != facultyID {
		c.logger.Warn("response from wrong faculty, ignoring",
			"message_id", messageID,
			"consultation_faculty", consultation.FacultyID,
			"responding_faculty", facultyID,
		)
		return nil
	}

	if err := c.repo.UpdateStatus(ctx, consultation.ID, status); err != nil {
		if errors.Is(err, ErrNotPending) {
			c.seen.Add(messageID, time.Now())
			c.logger.Warn("late response for settled consultation",
				"message_id", messageID,
				"response_type", responseType,
			)
			return nil
		}
		return fmt.Errorf("applying response: %w", err)
	}
	c.seen.Add(messageID, time.Now())
	consultation.Status = status
	now := time.Now().UTC()
	consultation.RespondedAt = &now

	c.notifyResponse(consultation, responseType)

	for _, cb := range c.callbacks {
		cb(consultation)
	}
	return nil
}

// notifyResponse publishes the applied response on the system notifications
// topic and records history.
func (c *Controller) notifyResponse(consultation *Consultation, responseType string) {
	n := ResponseNotification{
		Type:           "faculty_response",
		FacultyID:      consultation.FacultyID,
		ConsultationID: consultation.ID,
		MessageID:      consultation.MessageID,
		ResponseType:   responseType,
		Status:         string(consultation.Status),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	topic := c.topics.SystemNotifications()
	if err := c.publisher.PublishAsync(topic, n, requestQoS, false); err != nil {
		c.logger.Error("publishing response notification",
			"topic", topic,
			"message_id", consultation.MessageID,
			"error", err,
		)
	}

	if c.recorder != nil {
		c.recorder.WriteConsultationEvent(consultation.FacultyID, consultation.MessageID, string(consultation.Status))
	}

	c.logger.Info("faculty response applied",
		"faculty_id", consultation.FacultyID,
		"message_id", consultation.MessageID,
		"status", consultation.Status,
	)
}

// statusForResponse maps desk unit response types onto lifecycle states.
func statusForResponse(responseType string) (Status, bool) {
	switch strings.ToUpper(responseType) {
	case "ACKNOWLEDGE", "ACCEPTED":
		return StatusAccepted, true
	case "BUSY", "UNAVAILABLE":
		return StatusBusy, true
	case "REJECTED", "DECLINED":
		return StatusCancelled, true
	case "COMPLETED":
		return StatusCompleted, true
	default:
		return "", false
	}
}

// parseFacultyID accepts the id as a JSON number or a numeric string; desk
// unit firmware has shipped both.
func parseFacultyID(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
