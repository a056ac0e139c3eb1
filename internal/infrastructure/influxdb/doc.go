// Package influxdb records conveyor telemetry in InfluxDB v2.
//
// Points written here are for trend dashboards: scan throughput, slot
// occupancy over the day, device round trips and POS batch sizes. The
// ledger database remains the source of truth; losing telemetry never
// affects a scan.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteScan("1-2-3", 17, true, false)
//
// Writes are batched and non-blocking. Async failures reach the callback
// set with SetOnError. All write methods are no-ops on a nil or closed
// client.
package influxdb
