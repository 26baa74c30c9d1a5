// Package consultation brokers student consultation requests between kiosks
// and faculty desk units.
//
// Requests are persisted before delivery, so a broker outage loses no
// submissions; delivery itself rides on the MQTT pipeline's retry machinery.
// Faculty responses arrive at least once and are deduplicated by wire
// message id plus a pending-only state transition in the store.
package consultation
