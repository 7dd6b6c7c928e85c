// Package config loads and validates Serial Bridge configuration.
//
// Configuration is layered: hardcoded defaults, then the YAML file, then
// SERIALBRIDGE_* environment variables. The two personalities additionally
// override individual fields from their command-line flags after Load.
//
// Secrets (MQTT password, InfluxDB token) should be supplied via environment
// variables rather than the YAML file.
package config
