package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotConnected is returned while the broker connection is down.
	ErrNotConnected = errors.New("mqtt: broker not connected")

	// ErrConnectionFailed is returned when the initial connect fails or times out.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps encoding, timeout and broker errors of a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrPayloadTooLarge is returned for event payloads over maxEventPayload.
	ErrPayloadTooLarge = errors.New("mqtt: event payload too large")

	// ErrSubscribeFailed wraps timeout and broker errors of a subscribe.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)

// maxEventPayload bounds published payloads. Events describe sessions and
// frames; frame bytes themselves are never published.
const maxEventPayload = 16 << 10

// frameQoS is used for non-retained messages. Frame announcements are
// superseded by the next one a second later, so they are not redelivered.
const frameQoS = 0

// PublishJSON encodes v and publishes it.
//
// Retained messages (session state) go out at the configured QoS so that
// late subscribers see the current state. Other messages (frame
// announcements) are sent at QoS 0.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	if len(payload) > maxEventPayload {
		return fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(payload), topic)
	}

	qos := byte(frameQoS)
	if retained {
		qos = c.qos()
	}
	return c.publish(topic, payload, qos, retained)
}

func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// qos returns the configured QoS, clamped to the protocol range.
func (c *Client) qos() byte {
	switch q := c.cfg.QoS; {
	case q <= 0:
		return 0
	case q >= maxQoS:
		return maxQoS
	default:
		return byte(q)
	}
}
