// Package history provides an optional SQLite log of decoded readings.
//
// MQTT delivers readings to whoever is listening right now; the history
// store keeps them for whoever asks later. One table, schema created on
// open, WAL mode and busy timeout per config. The bridge records every
// routed reading; Recent backs the -recent query flag and Prune applies
// the configured retention at startup.
package history
