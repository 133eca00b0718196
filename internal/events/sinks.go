package events

import (
	"context"
	"time"

	"github.com/nerrad567/p1-videostream/internal/bridges/p1"
	"github.com/nerrad567/p1-videostream/internal/history"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/mqtt"
	"github.com/nerrad567/p1-videostream/internal/metrics"
)

// Outcome classifies a stop event as expired or failed. Other events have
// no outcome.
func Outcome(event p1.WorkerEvent) string {
	switch {
	case event.State != p1.StateStopped:
		return ""
	case event.Expired():
		return history.OutcomeExpired
	default:
		return history.OutcomeFailed
	}
}

// failure returns the error text of a failed stop.
func failure(event p1.WorkerEvent) string {
	if event.Err == nil || event.Expired() {
		return ""
	}
	return event.Err.Error()
}

// MetricsSink updates the Prometheus collectors.
type MetricsSink struct {
	Metrics *metrics.Metrics
}

// WorkerStateChanged implements p1.Observer.
func (s MetricsSink) WorkerStateChanged(event p1.WorkerEvent) {
	switch event.State {
	case p1.StateConnecting:
		s.Metrics.WorkerStarted(event.Address)
	case p1.StateStopped:
		s.Metrics.WorkerStopped(Outcome(event))
	}
}

// FrameReceived implements p1.Observer.
func (s MetricsSink) FrameReceived(event p1.FrameEvent) {
	s.Metrics.ObserveFrame(event.Size)
}

// Publisher is the part of the MQTT client the sink needs.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// StatePayload is published, retained, on the session state topic.
type StatePayload struct {
	WorkerID  string    `json:"worker_id"`
	Address   string    `json:"address"`
	State     string    `json:"state"`
	Frames    uint64    `json:"frames"`
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FramePayload is published on the session frame topic for every frame.
type FramePayload struct {
	WorkerID  string    `json:"worker_id"`
	Sequence  uint64    `json:"sequence"`
	Size      int       `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStatePayload builds the wire form of a state event.
func NewStatePayload(event p1.WorkerEvent) StatePayload {
	return StatePayload{
		WorkerID:  event.WorkerID,
		Address:   event.Address,
		State:     event.State.String(),
		Frames:    event.Frames,
		Outcome:   Outcome(event),
		Error:     failure(event),
		Timestamp: event.At.UTC(),
	}
}

// MQTTSink publishes worker events to the broker.
type MQTTSink struct {
	Publisher Publisher
	Topics    mqtt.Topics
	Logger    Logger
}

// WorkerStateChanged implements p1.Observer.
func (s MQTTSink) WorkerStateChanged(event p1.WorkerEvent) {
	topic := s.Topics.SessionState(event.Address)
	if err := s.Publisher.PublishJSON(topic, NewStatePayload(event), true); err != nil {
		s.warn("publishing session state", topic, err)
	}
}

// FrameReceived implements p1.Observer.
func (s MQTTSink) FrameReceived(event p1.FrameEvent) {
	topic := s.Topics.SessionFrame(event.Address)
	payload := FramePayload{
		WorkerID:  event.WorkerID,
		Sequence:  event.Sequence,
		Size:      event.Size,
		Timestamp: event.At.UTC(),
	}
	if err := s.Publisher.PublishJSON(topic, payload, false); err != nil {
		s.warn("publishing frame event", topic, err)
	}
}

func (s MQTTSink) warn(msg, topic string, err error) {
	if s.Logger != nil {
		s.Logger.Warn(msg, "topic", topic, "error", err)
	}
}

// PointWriter is the part of the InfluxDB client the sink needs. Writes are
// buffered by the client and never block.
type PointWriter interface {
	WriteFrameMetric(address string, size int, sequence uint64, at time.Time)
	WriteSessionEvent(address, state, outcome string, frames uint64, at time.Time)
}

// InfluxSink writes frame sizes and session transitions as time series.
type InfluxSink struct {
	Writer PointWriter
}

// WorkerStateChanged implements p1.Observer.
func (s InfluxSink) WorkerStateChanged(event p1.WorkerEvent) {
	s.Writer.WriteSessionEvent(event.Address, event.State.String(), Outcome(event), event.Frames, event.At)
}

// FrameReceived implements p1.Observer.
func (s InfluxSink) FrameReceived(event p1.FrameEvent) {
	s.Writer.WriteFrameMetric(event.Address, event.Size, event.Sequence, event.At)
}

// Recorder is the part of the history repository the sink needs.
type Recorder interface {
	RecordStart(ctx context.Context, workerID, address string, at time.Time) error
	RecordStop(ctx context.Context, workerID, address string, stop history.Stop) error
}

// defaultRecordTimeout bounds each history write.
const defaultRecordTimeout = 5 * time.Second

// HistorySink stores one row per worker run.
type HistorySink struct {
	Recorder Recorder
	Timeout  time.Duration
	Logger   Logger
}

// WorkerStateChanged implements p1.Observer.
func (s HistorySink) WorkerStateChanged(event p1.WorkerEvent) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultRecordTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	switch event.State {
	case p1.StateConnecting:
		err = s.Recorder.RecordStart(ctx, event.WorkerID, event.Address, event.At)
	case p1.StateStopped:
		err = s.Recorder.RecordStop(ctx, event.WorkerID, event.Address, history.Stop{
			Frames:  event.Frames,
			Bytes:   event.Bytes,
			Outcome: Outcome(event),
			Error:   failure(event),
			At:      event.At,
		})
	default:
		return
	}

	if err != nil && s.Logger != nil {
		s.Logger.Warn("recording session history",
			"worker_id", event.WorkerID,
			"state", event.State.String(),
			"error", err,
		)
	}
}

// FrameReceived implements p1.Observer.
func (HistorySink) FrameReceived(p1.FrameEvent) {}
