// Package events fans streaming worker notifications out to the bridge's
// side channels: metrics, MQTT, InfluxDB, session history and WebSocket
// clients.
//
// Workers call observers synchronously, so sinks that may block (network
// publishes, database writes) are attached with AddQueued. Their events go
// through one bounded queue drained by Run; when the queue is full the
// event is dropped and counted.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/p1-videostream/internal/bridges/p1"
)

// DefaultQueueSize is used when NewFanout is given a non-positive size.
const DefaultQueueSize = 256

// Logger interface for optional logging.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type namedSink struct {
	name string
	sink p1.Observer
}

type job struct {
	sink  namedSink
	state *p1.WorkerEvent
	frame *p1.FrameEvent
}

// Fanout implements p1.Observer and forwards every event to its sinks.
type Fanout struct {
	mu     sync.RWMutex
	direct []namedSink
	queued []namedSink

	queue   chan job
	dropped atomic.Uint64
	onDrop  func(sink string)
	logger  Logger
}

// NewFanout creates a fanout whose queue holds up to queueSize events.
func NewFanout(queueSize int) *Fanout {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Fanout{
		queue:  make(chan job, queueSize),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for sink panics.
func (f *Fanout) SetLogger(logger Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// SetOnDrop registers a callback invoked with the sink name of every
// dropped event. It must be set before events flow.
func (f *Fanout) SetOnDrop(fn func(sink string)) {
	f.onDrop = fn
}

// Add attaches a sink called directly from the worker goroutine. It must
// not block.
func (f *Fanout) Add(name string, sink p1.Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, namedSink{name: name, sink: sink})
}

// AddQueued attaches a sink served by Run.
func (f *Fanout) AddQueued(name string, sink p1.Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, namedSink{name: name, sink: sink})
}

// Dropped returns the number of events dropped so far.
func (f *Fanout) Dropped() uint64 {
	return f.dropped.Load()
}

// WorkerStateChanged implements p1.Observer.
func (f *Fanout) WorkerStateChanged(event p1.WorkerEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, s := range f.direct {
		f.deliver(job{sink: s, state: &event})
	}
	for _, s := range f.queued {
		f.enqueue(job{sink: s, state: &event})
	}
}

// FrameReceived implements p1.Observer.
func (f *Fanout) FrameReceived(event p1.FrameEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, s := range f.direct {
		f.deliver(job{sink: s, frame: &event})
	}
	for _, s := range f.queued {
		f.enqueue(job{sink: s, frame: &event})
	}
}

func (f *Fanout) enqueue(j job) {
	select {
	case f.queue <- j:
	default:
		f.dropped.Add(1)
		if f.onDrop != nil {
			f.onDrop(j.sink.name)
		}
	}
}

// Run delivers queued events until ctx is cancelled, then delivers what is
// already buffered and returns.
func (f *Fanout) Run(ctx context.Context) {
	for {
		select {
		case j := <-f.queue:
			f.deliver(j)
		case <-ctx.Done():
			f.drain()
			return
		}
	}
}

func (f *Fanout) drain() {
	for {
		select {
		case j := <-f.queue:
			f.deliver(j)
		default:
			return
		}
	}
}

func (f *Fanout) deliver(j job) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event sink panic recovered", "sink", j.sink.name, "panic", r)
		}
	}()

	if j.state != nil {
		j.sink.sink.WorkerStateChanged(*j.state)
	}
	if j.frame != nil {
		j.sink.sink.FrameReceived(*j.frame)
	}
}
