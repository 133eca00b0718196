package mqtt

import "fmt"

// Subscribe registers handler for topic at the configured QoS.
//
// The subscription is remembered and restored after every reconnect, since
// the client uses clean sessions. Subscribing to a topic again replaces its
// handler.
//
//	err := client.Subscribe(client.Topics().StartCommand(),
//	    func(topic string, payload []byte) error {
//	        return startFromCommand(payload)
//	    })
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: %s: nil handler", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	sub := subscription{topic: topic, qos: c.qos(), handler: handler}

	token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	c.subMu.Lock()
	c.subscriptions[topic] = sub
	c.subMu.Unlock()
	return nil
}
