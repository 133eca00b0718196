package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementFrames   = "p1_frames"
	measurementSessions = "p1_sessions"
)

// WriteFrameMetric records one received frame.
//
// Parameters:
//   - address: Device address (tag)
//   - size: Payload size in bytes
//   - sequence: 1-based frame number within the session
//   - at: Time the frame was stored
func (c *Client) WriteFrameMetric(address string, size int, sequence uint64, at time.Time) {
	c.write(framePoint(address, size, sequence, at))
}

// WriteSessionEvent records a session lifecycle transition.
//
// outcome is empty while the session runs and "expired" or "error" once it
// has stopped.
func (c *Client) WriteSessionEvent(address, state, outcome string, frames uint64, at time.Time) {
	c.write(sessionPoint(address, state, outcome, frames, at))
}

func framePoint(address string, size int, sequence uint64, at time.Time) *write.Point {
	return write.NewPoint(
		measurementFrames,
		map[string]string{
			"address": address,
		},
		map[string]interface{}{
			"size_bytes": size,
			"sequence":   sequence,
		},
		at,
	)
}

func sessionPoint(address, state, outcome string, frames uint64, at time.Time) *write.Point {
	tags := map[string]string{
		"address": address,
		"state":   state,
	}
	if outcome != "" {
		tags["outcome"] = outcome
	}
	return write.NewPoint(
		measurementSessions,
		tags,
		map[string]interface{}{
			"frames": frames,
		},
		at,
	)
}
