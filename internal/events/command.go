package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/p1-videostream/internal/bridges/p1"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/mqtt"
)

// ErrInvalidCommand is returned for start commands that cannot be parsed.
var ErrInvalidCommand = errors.New("events: invalid start command")

// StartCommand asks the bridge to warm up a streaming session.
type StartCommand struct {
	Address string `json:"address"`
	PIN     string `json:"pin"`
}

// Starter is satisfied by *p1.Registry.
type Starter interface {
	GetOrCreate(address, pin string) *p1.Handle
}

// StartCommandHandler returns an MQTT message handler that starts, or
// reuses, the worker named in the payload and releases it straight away.
// The worker keeps streaming on its own reference until its budget runs out.
func StartCommandHandler(starter Starter, logger Logger) mqtt.MessageHandler {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(topic string, payload []byte) error {
		var cmd StartCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			logger.Warn("dropping malformed start command", "topic", topic, "error", err)
			return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		if cmd.Address == "" || cmd.PIN == "" {
			logger.Warn("dropping start command without address or pin", "topic", topic)
			return fmt.Errorf("%w: address and pin are required", ErrInvalidCommand)
		}

		starter.GetOrCreate(cmd.Address, cmd.PIN).Release()
		return nil
	}
}
