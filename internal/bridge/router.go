package bridge

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher is the interface for publishing bridge messages.
// This is typically implemented by an MQTT client.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// ReadingSink receives every successfully published reading.
// Implementations must not block for long; sink failures are logged
// and never interrupt publishing.
type ReadingSink interface {
	StoreReading(r Reading) error
}

// Router turns raw serial chunks into classified readings and fans
// them out: a JSON message per reading to MQTT, plus optional sinks
// for persistence and telemetry.
type Router struct {
	prefix    string
	qos       byte
	retain    bool
	publisher Publisher
	sinks     []ReadingSink

	// Counters for health reporting
	published       atomic.Uint64
	publishFailures atomic.Uint64
	decodeFailures  atomic.Uint64

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// TopicPrefix is prepended to every reading topic.
	// Default: "serial/data".
	TopicPrefix string

	// QoS is the publish QoS level for reading messages.
	QoS byte

	// Retain marks reading messages as retained when true.
	Retain bool

	// Publisher delivers reading messages to the broker.
	Publisher Publisher

	// Sinks receive each published reading (optional).
	Sinks []ReadingSink
}

// NewRouter creates a router for decoded readings.
func NewRouter(cfg RouterConfig) *Router {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "serial/data"
	}

	return &Router{
		prefix:    prefix,
		qos:       cfg.QoS,
		retain:    cfg.Retain,
		publisher: cfg.Publisher,
		sinks:     cfg.Sinks,
	}
}

// SetLogger sets the logger for this router.
func (r *Router) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// Published returns the total number of readings published.
func (r *Router) Published() uint64 {
	return r.published.Load()
}

// PublishFailures returns the total number of failed publishes.
func (r *Router) PublishFailures() uint64 {
	return r.publishFailures.Load()
}

// DecodeFailures returns the total number of undecodable chunks.
func (r *Router) DecodeFailures() uint64 {
	return r.decodeFailures.Load()
}

// HandleChunk decodes a chunk and routes the resulting reading.
// Undecodable chunks are counted and logged, never fatal; the read
// loop keeps going regardless of what arrives on the wire.
func (r *Router) HandleChunk(chunk []byte) {
	reading, err := Decode(chunk, time.Now())
	if err != nil {
		r.decodeFailures.Add(1)
		r.logWarn("dropping undecodable chunk", "error", err)
		return
	}
	if reading == nil {
		return
	}

	r.Route(*reading)
}

// Topic returns the MQTT topic for a reading:
// {prefix}/{class}/{lowercase code}, where class is "qcode",
// "spontaneous", or "unknown" depending on the reading kind.
func (r *Router) Topic(reading Reading) string {
	var class string
	switch reading.Kind {
	case KindCodedResponse:
		class = "qcode"
	case KindSpontaneous:
		class = "spontaneous"
	default:
		class = "unknown"
	}

	return r.prefix + "/" + class + "/" + strings.ToLower(reading.Code)
}

// readingMessage is the JSON wire format for a published reading.
type readingMessage struct {
	Timestamp   string `json:"timestamp"`
	QCode       string `json:"qcode"`
	Value       string `json:"value"`
	MessageType string `json:"message_type"`
	RawData     string `json:"raw_data"`
}

// Payload returns the JSON message body for a reading.
func (r *Router) Payload(reading Reading) ([]byte, error) {
	return json.Marshal(readingMessage{
		Timestamp:   reading.TimeString(),
		QCode:       reading.Code,
		Value:       reading.Value,
		MessageType: string(reading.Kind),
		RawData:     reading.Raw,
	})
}

// Route publishes a reading to MQTT and feeds it to the sinks.
// Publish failures are logged as warnings and counted; a flaky broker
// must not take down the serial side of the bridge.
func (r *Router) Route(reading Reading) {
	payload, err := r.Payload(reading)
	if err != nil {
		r.logError("failed to encode reading", err, "code", reading.Code)
		return
	}

	topic := r.Topic(reading)
	if err := r.publisher.Publish(topic, payload, r.qos, r.retain); err != nil {
		r.publishFailures.Add(1)
		r.logWarn("failed to publish reading",
			"topic", topic,
			"code", reading.Code,
			"error", err,
		)
	} else {
		r.published.Add(1)
		r.logDebug("published reading",
			"topic", topic,
			"code", reading.Code,
			"value", reading.Value,
		)
	}

	for _, sink := range r.sinks {
		if err := sink.StoreReading(reading); err != nil {
			r.logWarn("reading sink failed", "code", reading.Code, "error", err)
		}
	}
}

func (r *Router) logDebug(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (r *Router) logWarn(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (r *Router) logError(msg string, err error, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		args := append([]any{"error", err}, keysAndValues...)
		logger.Error(msg, args...)
	}
}
