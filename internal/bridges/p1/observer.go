package p1

import "time"

// WorkerEvent describes a worker state transition.
type WorkerEvent struct {
	WorkerID string
	Address  string
	State    State

	// Err is set when State is StateStopped. ErrBudgetExhausted marks a
	// normal expiry; anything else is a failure.
	Err error

	// Frames and Bytes count what has been read so far.
	Frames uint64
	Bytes  uint64

	At time.Time
}

// Expired reports whether the event is a stop caused by the frame budget.
func (e WorkerEvent) Expired() bool {
	return e.State == StateStopped && isExpiry(e.Err)
}

// FrameEvent describes one frame stored in a worker cache.
type FrameEvent struct {
	WorkerID string
	Address  string
	Size     int
	Sequence uint64
	At       time.Time
}

// Observer receives worker lifecycle and frame notifications.
//
// Methods are called synchronously from the worker goroutine and must not
// block. A panic inside an observer is recovered and logged.
type Observer interface {
	WorkerStateChanged(event WorkerEvent)
	FrameReceived(event FrameEvent)
}

// NopObserver discards all notifications.
type NopObserver struct{}

// WorkerStateChanged implements Observer.
func (NopObserver) WorkerStateChanged(WorkerEvent) {}

// FrameReceived implements Observer.
func (NopObserver) FrameReceived(FrameEvent) {}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
