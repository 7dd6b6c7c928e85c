// Package influxdb provides the optional telemetry sink for Serial Bridge.
//
// When enabled, every decoded machine reading is also written to an
// InfluxDB v2 bucket: numeric values (cycle times, part counters) as a
// graphable "value" field, text values as tagged occurrences. Writes use
// the non-blocking batched WriteAPI, so a slow or unreachable InfluxDB
// never backs up the serial read path; failures surface through the
// async error callback and are logged as warnings.
//
// The sink is entirely optional — the MQTT pipeline works the same with
// it disabled.
package influxdb
