// Package logging provides structured logging for the ConsultEase central core.
//
// It wraps the standard library's log/slog with configuration-driven level,
// format and output selection, and stamps every record with the service name
// and build version so aggregated kiosk logs stay attributable.
package logging
