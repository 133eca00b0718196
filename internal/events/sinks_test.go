package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/p1-videostream/internal/bridges/p1"
	"github.com/nerrad567/p1-videostream/internal/history"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/mqtt"
	"github.com/nerrad567/p1-videostream/internal/metrics"
)

var (
	at         = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	expiredEvt = p1.WorkerEvent{
		WorkerID: "w-1", Address: "10.0.0.5", State: p1.StateStopped,
		Err: p1.ErrBudgetExhausted, Frames: 600, Bytes: 4096, At: at,
	}
	failedEvt = p1.WorkerEvent{
		WorkerID: "w-2", Address: "10.0.0.6", State: p1.StateStopped,
		Err: fmt.Errorf("%w: refused", p1.ErrConnectionFailed), At: at,
	}
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name  string
		event p1.WorkerEvent
		want  string
	}{
		{"expired", expiredEvt, history.OutcomeExpired},
		{"failed", failedEvt, history.OutcomeFailed},
		{"streaming", p1.WorkerEvent{State: p1.StateStreaming}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Outcome(tt.event); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricsSink(t *testing.T) {
	m := metrics.New("")
	sink := MetricsSink{Metrics: m}

	sink.WorkerStateChanged(p1.WorkerEvent{Address: "10.0.0.5", State: p1.StateConnecting})
	sink.WorkerStateChanged(p1.WorkerEvent{Address: "10.0.0.5", State: p1.StateStreaming})
	sink.FrameReceived(p1.FrameEvent{Size: 1000})
	sink.WorkerStateChanged(expiredEvt)

	if got := testutil.ToFloat64(m.WorkersActive); got != 0 {
		t.Errorf("workers_active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.WorkersStopped.WithLabelValues("expired")); got != 1 {
		t.Errorf("workers_stopped_total{expired} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FramesTotal); got != 1 {
		t.Errorf("frames_received_total = %v, want 1", got)
	}
}

type published struct {
	topic    string
	payload  any
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishJSON(topic string, v any, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, v, retained})
	return p.err
}

type warnLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *warnLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *warnLogger) Error(string, ...any) {}

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := MQTTSink{Publisher: pub, Topics: mqtt.NewTopics("")}

	sink.WorkerStateChanged(failedEvt)
	sink.FrameReceived(p1.FrameEvent{WorkerID: "w-2", Address: "10.0.0.6", Sequence: 3, Size: 10, At: at})

	if len(pub.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.msgs))
	}

	state := pub.msgs[0]
	if state.topic != "videostream/session/10.0.0.6/state" || !state.retained {
		t.Errorf("state message topic=%q retained=%v", state.topic, state.retained)
	}
	payload, ok := state.payload.(StatePayload)
	if !ok {
		t.Fatalf("state payload type %T", state.payload)
	}
	if payload.State != "stopped" || payload.Outcome != "failed" || payload.Error == "" {
		t.Errorf("state payload = %+v", payload)
	}

	frame := pub.msgs[1]
	if frame.topic != "videostream/session/10.0.0.6/frame" || frame.retained {
		t.Errorf("frame message topic=%q retained=%v", frame.topic, frame.retained)
	}
	if fp := frame.payload.(FramePayload); fp.Sequence != 3 || fp.Size != 10 {
		t.Errorf("frame payload = %+v", fp)
	}
}

func TestMQTTSink_PublishErrorIsLogged(t *testing.T) {
	logger := &warnLogger{}
	sink := MQTTSink{
		Publisher: &fakePublisher{err: mqtt.ErrNotConnected},
		Topics:    mqtt.NewTopics("cams"),
		Logger:    logger,
	}

	sink.WorkerStateChanged(expiredEvt)

	if len(logger.warns) != 1 {
		t.Errorf("warnings = %d, want 1", len(logger.warns))
	}
}

func TestNewStatePayload_ExpiredHasNoError(t *testing.T) {
	p := NewStatePayload(expiredEvt)
	if p.Outcome != history.OutcomeExpired || p.Error != "" {
		t.Errorf("payload = %+v, want expired without error", p)
	}
	if p.Frames != 600 || !p.Timestamp.Equal(at) {
		t.Errorf("payload = %+v", p)
	}
}

type fakeWriter struct {
	frames   int
	sessions []string
}

func (w *fakeWriter) WriteFrameMetric(string, int, uint64, time.Time) { w.frames++ }

func (w *fakeWriter) WriteSessionEvent(_, state, outcome string, _ uint64, _ time.Time) {
	w.sessions = append(w.sessions, state+"/"+outcome)
}

func TestInfluxSink(t *testing.T) {
	w := &fakeWriter{}
	sink := InfluxSink{Writer: w}

	sink.WorkerStateChanged(p1.WorkerEvent{State: p1.StateStreaming})
	sink.FrameReceived(p1.FrameEvent{})
	sink.WorkerStateChanged(expiredEvt)

	if w.frames != 1 {
		t.Errorf("frame points = %d, want 1", w.frames)
	}
	want := []string{"streaming/", "stopped/expired"}
	if len(w.sessions) != 2 || w.sessions[0] != want[0] || w.sessions[1] != want[1] {
		t.Errorf("session points = %v, want %v", w.sessions, want)
	}
}

type fakeRecorder struct {
	starts []string
	stops  []history.Stop
	err    error
}

func (r *fakeRecorder) RecordStart(_ context.Context, workerID, _ string, _ time.Time) error {
	r.starts = append(r.starts, workerID)
	return r.err
}

func (r *fakeRecorder) RecordStop(_ context.Context, _, _ string, stop history.Stop) error {
	r.stops = append(r.stops, stop)
	return r.err
}

func TestHistorySink(t *testing.T) {
	rec := &fakeRecorder{}
	sink := HistorySink{Recorder: rec}

	sink.WorkerStateChanged(p1.WorkerEvent{WorkerID: "w-1", State: p1.StateConnecting, At: at})
	sink.WorkerStateChanged(p1.WorkerEvent{WorkerID: "w-1", State: p1.StateStreaming, At: at})
	sink.WorkerStateChanged(expiredEvt)

	if len(rec.starts) != 1 || rec.starts[0] != "w-1" {
		t.Errorf("starts = %v, want [w-1]", rec.starts)
	}
	if len(rec.stops) != 1 {
		t.Fatalf("stops = %d, want 1", len(rec.stops))
	}
	stop := rec.stops[0]
	if stop.Frames != 600 || stop.Bytes != 4096 || stop.Outcome != history.OutcomeExpired || stop.Error != "" {
		t.Errorf("stop = %+v", stop)
	}
}

func TestHistorySink_ErrorIsLogged(t *testing.T) {
	logger := &warnLogger{}
	sink := HistorySink{Recorder: &fakeRecorder{err: errors.New("disk full")}, Logger: logger}

	sink.WorkerStateChanged(failedEvt)

	if len(logger.warns) != 1 {
		t.Errorf("warnings = %d, want 1", len(logger.warns))
	}
}
