package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteStatusChange records one committed faculty status transition.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Sequence and version tie the history record back to the retained MQTT
// notification carrying the same transition.
func (r *Recorder) WriteStatusChange(facultyID int64, facultyName string, status, previousStatus bool, version, sequence int64) {
	if !r.IsConnected() {
		return
	}

	point := write.NewPoint(
		"faculty_status",
		map[string]string{
			"faculty_id":   strconv.FormatInt(facultyID, 10),
			"faculty_name": facultyName,
		},
		map[string]interface{}{
			"status":          status,
			"previous_status": previousStatus,
			"version":         version,
			"sequence":        sequence,
		},
		time.Now(),
	)

	r.writeAPI.WritePoint(point)
}

// WriteConsultationEvent records a consultation lifecycle event
// (requested, acknowledged, busy).
func (r *Recorder) WriteConsultationEvent(facultyID int64, messageID, event string) {
	if !r.IsConnected() {
		return
	}

	point := write.NewPoint(
		"consultations",
		map[string]string{
			"faculty_id": strconv.FormatInt(facultyID, 10),
			"event":      event,
		},
		map[string]interface{}{
			"message_id": messageID,
		},
		time.Now(),
	)

	r.writeAPI.WritePoint(point)
}

// WriteQueueStats records a snapshot of the publish pipeline counters so
// drop and error rates can be graphed over time.
func (r *Recorder) WriteQueueStats(published, received, dropped, errors int64) {
	if !r.IsConnected() {
		return
	}

	point := write.NewPoint(
		"mqtt_pipeline",
		map[string]string{},
		map[string]interface{}{
			"messages_published": published,
			"messages_received":  received,
			"dropped_messages":   dropped,
			"publish_errors":     errors,
		},
		time.Now(),
	)

	r.writeAPI.WritePoint(point)
}
