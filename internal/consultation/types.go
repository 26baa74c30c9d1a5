package consultation

import "time"

// Status is the lifecycle state of a consultation request.
type Status string

// Consultation lifecycle states. A consultation starts pending and moves to
// exactly one terminal state on the faculty's response (or staff action).
const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusBusy      Status = "busy"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusBusy, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Consultation is one student request for a faculty consultation.
//
// MessageID is the wire identifier: it travels to the desk unit with the
// request and comes back in the response, tying the two together across
// QoS-1 redelivery.
type Consultation struct {
	ID          int64
	MessageID   string
	StudentName string
	FacultyID   int64
	Message     string
	Status      Status
	RequestedAt time.Time
	RespondedAt *time.Time
	BusyAt      *time.Time
}

// RequestPayload is the message published to a desk unit for a new
// consultation request.
type RequestPayload struct {
	Type        string `json:"type"`
	MessageID   string `json:"message_id"`
	StudentName string `json:"student_name"`
	Message     string `json:"message"`
	RequestedAt string `json:"requested_at"`
}

// ResponseNotification is published on the system notifications topic after
// a faculty response has been applied.
type ResponseNotification struct {
	Type           string `json:"type"`
	FacultyID      int64  `json:"faculty_id"`
	ConsultationID int64  `json:"consultation_id"`
	MessageID      string `json:"message_id"`
	ResponseType   string `json:"response_type"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
}
