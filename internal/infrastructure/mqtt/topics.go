package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic prefixes for the ConsultEase MQTT namespace.
//
// Faculty topics use the scheme consultease/faculty/{id}/{channel} and are
// published by desk units and the central core. A small set of legacy topics
// is kept for first-generation desk unit firmware that predates the
// namespaced scheme.
const (
	// TopicPrefix is the base for all ConsultEase topics.
	TopicPrefix = "consultease"

	// TopicPrefixFaculty is the base for faculty-scoped topics.
	TopicPrefixFaculty = "consultease/faculty"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "consultease/system"

	// TopicLegacyFacultyStatus is the status topic used by first-generation
	// desk units. Payloads are bare strings like "keychain_connected".
	TopicLegacyFacultyStatus = "faculty/status"
)

// Topics provides builders for ConsultEase MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.FacultyStatus(7)
//	// Returns: "consultease/faculty/7/status"
type Topics struct{}

// FacultyStatus returns the topic desk units publish presence updates on.
//
// Example: consultease/faculty/7/status
func (Topics) FacultyStatus(facultyID int64) string {
	return fmt.Sprintf("%s/%d/status", TopicPrefixFaculty, facultyID)
}

// FacultyStatusUpdate returns the entity-scoped topic the central core
// publishes sequenced status notifications on (retained).
//
// Example: consultease/faculty/7/status_update
func (Topics) FacultyStatusUpdate(facultyID int64) string {
	return fmt.Sprintf("%s/%d/status_update", TopicPrefixFaculty, facultyID)
}

// FacultyHeartbeat returns the topic desk units publish liveness beacons on.
//
// Example: consultease/faculty/7/heartbeat
func (Topics) FacultyHeartbeat(facultyID int64) string {
	return fmt.Sprintf("%s/%d/heartbeat", TopicPrefixFaculty, facultyID)
}

// FacultyRequests returns the topic consultation requests are delivered to a
// desk unit on.
//
// Example: consultease/faculty/7/requests
func (Topics) FacultyRequests(facultyID int64) string {
	return fmt.Sprintf("%s/%d/requests", TopicPrefixFaculty, facultyID)
}

// FacultyResponses returns the topic a desk unit publishes consultation
// responses (acknowledge/busy) on.
//
// Example: consultease/faculty/7/responses
func (Topics) FacultyResponses(facultyID int64) string {
	return fmt.Sprintf("%s/%d/responses", TopicPrefixFaculty, facultyID)
}

// AllFacultyStatus returns the wildcard pattern matching every faculty
// status topic.
func (Topics) AllFacultyStatus() string {
	return TopicPrefixFaculty + "/+/status"
}

// AllFacultyHeartbeats returns the wildcard pattern matching every faculty
// heartbeat topic.
func (Topics) AllFacultyHeartbeats() string {
	return TopicPrefixFaculty + "/+/heartbeat"
}

// AllFacultyResponses returns the wildcard pattern matching every faculty
// responses topic.
func (Topics) AllFacultyResponses() string {
	return TopicPrefixFaculty + "/+/responses"
}

// SystemNotifications returns the canonical topic for sequenced system
// notifications (status changes, consultation responses).
func (Topics) SystemNotifications() string {
	return TopicPrefixSystem + "/notifications"
}

// SystemStatus returns the topic carrying the central core's retained
// online/offline status (also used for the LWT).
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// FacultyIDFromTopic extracts the faculty id from a
// consultease/faculty/{id}/... topic.
//
// Returns an error if the topic is not faculty-scoped or the id segment is
// not an integer.
func FacultyIDFromTopic(topic string) (int64, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0]+"/"+parts[1] != TopicPrefixFaculty {
		return 0, fmt.Errorf("not a faculty topic: %s", topic)
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid faculty id in topic %s: %w", topic, err)
	}
	return id, nil
}
