package bridge

import "time"

// Kind classifies how a reading was obtained from the wire.
//
// The string value of a Kind is the message_type field published on
// MQTT, so these constants are part of the external contract.
type Kind string

const (
	// KindCodedResponse is a framed reply to a Q-code request.
	KindCodedResponse Kind = "qcode_response"

	// KindSpontaneous is a machine-initiated SPONT_ report.
	KindSpontaneous Kind = "spontaneous"

	// KindPlainLine is an undecoded text line, as handled by the
	// line-forwarding personality. Routes to the unknown topic class.
	KindPlainLine Kind = "plain_line"

	// KindUnparseable is data that matched no known frame shape.
	KindUnparseable Kind = "unknown"
)

// Reading is a single decoded value from the machine.
type Reading struct {
	// ReceivedAt is when the chunk carrying this reading was decoded.
	ReceivedAt time.Time

	// Code is the Q-code ("Q100"), the spontaneous code ("SPONT_ALARM"),
	// "UNKNOWN" for framed replies without a separator, or "RAW" for
	// unparseable data.
	Code string

	// Value is the payload portion of the reading.
	Value string

	// Raw is the original chunk text, preserved for diagnostics.
	Raw string

	// Kind classifies the reading.
	Kind Kind
}

// TimeString formats the receive time as published on MQTT (HH:MM:SS).
func (r Reading) TimeString() string {
	return r.ReceivedAt.Format("15:04:05")
}

// DefaultCodes is the standard Q-code request set, covering machine
// identification, tooling, runtime counters, and cycle timers.
func DefaultCodes() []string {
	return []string{
		"Q100", // Machine serial number
		"Q101", // Control software version
		"Q102", // Machine model number
		"Q104", // Mode
		"Q200", // Tool changes (total)
		"Q201", // Tool number in use
		"Q300", // Power-on time (total)
		"Q301", // Motion time (total)
		"Q303", // Last cycle time
		"Q304", // Previous cycle time
		"Q402", // M30 parts counter #1
		"Q403", // M30 parts counter #2
		"Q500", // Three-in-one (program, Oxxxxx, parts)
	}
}
