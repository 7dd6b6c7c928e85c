// Package mqtt provides the MQTT client for Serial Bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect (capped exponential backoff)
//   - Message publishing with QoS and per-call result inspection
//   - Last Will on the status topic for ungraceful-disconnect detection
//   - Online/offline status publishing on connect and graceful close
//
// The bridge is publish-only: decoded machine readings and raw forwarded
// lines flow out, nothing flows in. Reconnection is transparent to the
// core — while disconnected, publishes fail fast with ErrNotConnected and
// the affected messages are dropped (there is no outbound queue).
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: cfg.Bridge.TopicPrefix}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err // exit code 3 at startup
//	}
//	defer client.Close(topics)
//
//	err = client.Publish("serial/data/qcode/q100", payload, 1, false)
package mqtt
