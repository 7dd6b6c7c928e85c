// Package logging provides structured logging for Serial Bridge.
//
// It wraps Go's standard log/slog package so both personalities log the
// same way: JSON for production, text for development, default fields
// (service, version) on every entry, and level-based filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("bridge started", "device", cfg.Serial.Device)
//	logger.Warn("publish failed", "topic", topic, "error", err)
//
// Never log broker credentials or the InfluxDB token.
package logging
