// Package influxdb records medication stock telemetry in InfluxDB v2.
//
// Two measurements are written, both tagged with entity_id and medication:
//
//	medication_stock            quantity
//	medication_days_remaining   days, is_low_stock
//
// InfluxDB is optional. Connect returns ErrDisabled when the influxdb
// section is disabled and the caller simply skips the sink.
package influxdb
