// Package bridge contains the core serial-to-MQTT bridging logic.
//
// It decodes chunks read from the serial port into classified readings,
// drives the periodic Q-code poll cycle, routes readings to MQTT topics
// and optional sinks, and manages the lifecycle of the read and poll
// loops. Two operating modes share the same lifecycle machinery: the
// polling mode (Router handles chunks) and the line-forwarding mode
// (Forwarder handles chunks).
//
// The package has no direct dependency on the serial or MQTT
// implementations; transports and publishers are injected through small
// interfaces so the loops can be tested with fakes.
package bridge
