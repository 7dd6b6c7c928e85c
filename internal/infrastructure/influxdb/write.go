package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading records a decoded machine reading.
//
// Values that parse as numbers become a "value" field so they can be
// graphed; everything else is recorded as an occurrence with the text in
// a tag-safe field. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Parameters:
//   - code: The machine parameter code (e.g., "Q300")
//   - kind: The reading classification ("qcode_response", "spontaneous", "unknown")
//   - value: The decoded value text
//   - at: The time the reading was decoded
//
// Example:
//
//	client.WriteReading("Q300", "qcode_response", "1234.5", time.Now())
func (c *Client) WriteReading(code, kind, value string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"code": code,
		"kind": kind,
	}

	fields := map[string]interface{}{}
	if num, err := strconv.ParseFloat(value, 64); err == nil {
		fields["value"] = num
	} else {
		fields["count"] = 1
		fields["text"] = value
	}

	c.writeAPI.WritePoint(write.NewPoint("readings", tags, fields, at))
}
