package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every topic when none is configured.
const DefaultTopicPrefix = "videostream"

// Topics builds the bridge's MQTT topics under a common prefix.
//
// Session topics carry the device address as one topic level:
//
//	topics := mqtt.NewTopics("videostream")
//	topics.SessionState("192.168.1.40:6000")
//	// Returns: "videostream/session/192.168.1.40:6000/state"
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders rooted at prefix, or DefaultTopicPrefix if prefix is empty.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SessionState returns the retained lifecycle topic of one device session.
//
// Example: videostream/session/192.168.1.40:6000/state
func (t Topics) SessionState(address string) string {
	return fmt.Sprintf("%s/session/%s/state", t.prefix(), TopicSegment(address))
}

// SessionFrame returns the topic announcing each received frame of a device.
//
// Example: videostream/session/192.168.1.40:6000/frame
func (t Topics) SessionFrame(address string) string {
	return fmt.Sprintf("%s/session/%s/frame", t.prefix(), TopicSegment(address))
}

// StartCommand returns the topic on which other services ask the bridge to
// start streaming a device ahead of the first HTTP request.
//
// Example: videostream/command/start
func (t Topics) StartCommand() string {
	return fmt.Sprintf("%s/command/start", t.prefix())
}

// SystemStatus returns the retained online/offline topic of the bridge itself.
//
// Example: videostream/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// TopicSegment makes s safe to use as a single topic level by replacing the
// level separator and the wildcard characters.
func TopicSegment(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
