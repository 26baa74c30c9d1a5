// Package influxdb records ConsultEase status history in InfluxDB v2.
//
// The Recorder is an optional component: when disabled in config the system
// runs without it and nothing in the message path depends on it. Writes are
// batched and non-blocking; InfluxDB outages cost history points, never
// message delivery.
//
// Measurements:
//   - faculty_status: one point per committed status transition, tagged by
//     faculty, carrying version and notification sequence
//   - consultations: consultation lifecycle events
//   - mqtt_pipeline: periodic publish pipeline counter snapshots
package influxdb
