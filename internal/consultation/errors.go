package consultation

import "errors"

// Sentinel errors for consultation operations.
var (
	// ErrConsultationNotFound indicates no consultation matches the given
	// identifier.
	ErrConsultationNotFound = errors.New("consultation: not found")

	// ErrDuplicateMessageID indicates a request collided with an existing
	// wire message id.
	ErrDuplicateMessageID = errors.New("consultation: duplicate message id")

	// ErrNotPending indicates a response arrived for a consultation already
	// in a terminal state; late or redundant responses are ignored.
	ErrNotPending = errors.New("consultation: no longer pending")
)
