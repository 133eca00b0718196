// Package influxdb records stream telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, health checks and two measurements:
//
//	p1_frames    tags: address           fields: size_bytes, sequence
//	p1_sessions  tags: address, state,   fields: frames
//	             outcome (when stopped)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteFrameMetric("192.168.1.40:6000", len(frame), seq, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are non-blocking; batch failures reach the SetOnError callback
// wrapped in ErrWriteFailed. Connect and HealthCheck return ErrUnreachable
// or ErrUnhealthy directly.
package influxdb
