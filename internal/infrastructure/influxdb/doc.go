// Package influxdb records relay telemetry in InfluxDB.
//
// Two measurements are written: button_press for every key press a room
// handles and fetch_error for every failed outbound fetch. Writes are
// batched and non-blocking; failures surface through SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteButtonPress("3f2a", 0, 4, 2)
package influxdb
