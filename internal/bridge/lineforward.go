package bridge

import (
	"strings"
	"sync"
	"sync/atomic"
)

// LineEnding selects how the forwarder rewrites line terminators
// before publishing.
type LineEnding string

const (
	// LineEndingStrip removes trailing whitespace and skips lines
	// that end up empty. This is the default.
	LineEndingStrip LineEnding = "strip"

	// LineEndingKeep forwards the line exactly as read.
	LineEndingKeep LineEnding = "keep"

	// LineEndingCRLF normalises the terminator to "\r\n".
	LineEndingCRLF LineEnding = "crlf"

	// LineEndingLF normalises the terminator to "\n".
	LineEndingLF LineEnding = "lf"
)

// Forwarder publishes raw serial lines to a single MQTT topic with
// no decoding beyond UTF-8 sanitising. This is the line-forwarding
// mode of the bridge, for machines whose output is plain text rather
// than framed Q-code replies.
type Forwarder struct {
	topic   string
	qos     byte
	retain  bool
	ending  LineEnding
	limiter *RateLimiter

	publisher Publisher

	// Counters for health reporting
	published       atomic.Uint64
	publishFailures atomic.Uint64
	rateLimited     atomic.Uint64

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// ForwarderConfig holds configuration for the line forwarder.
type ForwarderConfig struct {
	// Topic is the single publish topic for every line.
	Topic string

	// QoS is the publish QoS level.
	QoS byte

	// Retain marks messages as retained when true.
	Retain bool

	// LineEnding selects terminator handling. Default: strip.
	LineEnding LineEnding

	// Limiter drops lines arriving faster than its interval (optional).
	Limiter *RateLimiter

	// Publisher delivers lines to the broker.
	Publisher Publisher
}

// NewForwarder creates a line forwarder.
func NewForwarder(cfg ForwarderConfig) *Forwarder {
	ending := cfg.LineEnding
	if ending == "" {
		ending = LineEndingStrip
	}

	return &Forwarder{
		topic:     cfg.Topic,
		qos:       cfg.QoS,
		retain:    cfg.Retain,
		ending:    ending,
		limiter:   cfg.Limiter,
		publisher: cfg.Publisher,
	}
}

// SetLogger sets the logger for this forwarder.
func (f *Forwarder) SetLogger(logger Logger) {
	f.loggerMu.Lock()
	f.logger = logger
	f.loggerMu.Unlock()
}

// Published returns the total number of lines published.
func (f *Forwarder) Published() uint64 {
	return f.published.Load()
}

// PublishFailures returns the total number of failed publishes.
func (f *Forwarder) PublishFailures() uint64 {
	return f.publishFailures.Load()
}

// RateLimited returns the total number of lines dropped by the limiter.
func (f *Forwarder) RateLimited() uint64 {
	return f.rateLimited.Load()
}

// HandleChunk publishes one raw line. Invalid UTF-8 bytes are replaced
// with U+FFFD rather than dropped, so binary noise still surfaces on
// the topic for diagnosis.
func (f *Forwarder) HandleChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	text := strings.ToValidUTF8(string(chunk), "�")

	switch f.ending {
	case LineEndingKeep:
		// Forward untouched.
	case LineEndingCRLF:
		text = strings.TrimRight(text, "\r\n") + "\r\n"
	case LineEndingLF:
		text = strings.TrimRight(text, "\r\n") + "\n"
	default:
		text = strings.TrimRight(text, " \t\r\n")
		if text == "" {
			return
		}
	}

	if f.limiter != nil && !f.limiter.Allow() {
		f.rateLimited.Add(1)
		f.logDebug("line dropped by rate limit")
		return
	}

	if err := f.publisher.Publish(f.topic, []byte(text), f.qos, f.retain); err != nil {
		f.publishFailures.Add(1)
		f.logWarn("failed to publish line", "topic", f.topic, "error", err)
		return
	}

	f.published.Add(1)
	f.logDebug("published line", "topic", f.topic, "bytes", len(text))
}

func (f *Forwarder) logDebug(msg string, keysAndValues ...any) {
	f.loggerMu.RLock()
	logger := f.logger
	f.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (f *Forwarder) logWarn(msg string, keysAndValues ...any) {
	f.loggerMu.RLock()
	logger := f.logger
	f.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
