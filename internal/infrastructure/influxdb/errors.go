package influxdb

import "errors"

// Sentinel errors for the status history recorder.
//
// Check with errors.Is():
//
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // Run without history recording
//	}
var (
	// ErrNotConnected indicates the recorder is not connected to InfluxDB.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled indicates history recording is disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
