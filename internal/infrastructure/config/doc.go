// Package config loads and validates configuration for the ConsultEase
// central core.
//
// Configuration is read from a YAML file with a fixed set of sections
// (database, mqtt, influxdb, logging). Every value has a default suitable
// for a kiosk on a local network, and a small set of operational values
// (broker host, credentials, database path) can be overridden with
// CONSULTEASE_* environment variables so deployments never need to edit
// the file for per-site secrets.
package config
