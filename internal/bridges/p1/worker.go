package p1

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Streaming defaults.
const (
	// DefaultFrameBudget is how many frames a worker reads before it expires (10 minutes at 1 fps).
	DefaultFrameBudget = 600

	// DefaultFrameInterval is the pause between frame reads.
	DefaultFrameInterval = time.Second
)

// State is the lifecycle state of a Worker.
type State int32

// Worker states. StateStopped is terminal.
const (
	StateConnecting State = iota
	StateAuthenticating
	StateStreaming
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "connecting":
		*s = StateConnecting
	case "authenticating":
		*s = StateAuthenticating
	case "streaming":
		*s = StateStreaming
	case "stopped":
		*s = StateStopped
	default:
		return fmt.Errorf("p1: unknown worker state %q", text)
	}
	return nil
}

// Dialer opens a Transport to a device. Connect is the production dialer.
type Dialer func(ctx context.Context, address string) (*Transport, error)

// WorkerConfig holds the streaming settings shared by every worker.
type WorkerConfig struct {
	// FrameBudget is the number of frames read before the worker expires.
	// Default: 600.
	FrameBudget int

	// FrameInterval is the fixed pause after each stored frame.
	// Default: 1 second.
	FrameInterval time.Duration

	// Transport holds the connection timeouts used by the default dialer.
	Transport TransportConfig

	// Dialer overrides how transports are opened. Default: Connect.
	Dialer Dialer

	// Observer receives lifecycle and frame notifications. Default: NopObserver.
	Observer Observer

	// Logger receives worker diagnostics. Default: discard.
	Logger Logger
}

// withDefaults returns a copy of cfg with zero values replaced by defaults.
func (cfg WorkerConfig) withDefaults() WorkerConfig {
	if cfg.FrameBudget <= 0 {
		cfg.FrameBudget = DefaultFrameBudget
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	cfg.Transport = cfg.Transport.withDefaults()
	if cfg.Dialer == nil {
		transportCfg := cfg.Transport
		cfg.Dialer = func(ctx context.Context, address string) (*Transport, error) {
			return Connect(ctx, address, transportCfg)
		}
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return cfg
}

// WorkerStats holds operational statistics for one worker.
type WorkerStats struct {
	FramesRx    uint64    `json:"frames_rx"`
	BytesRx     uint64    `json:"bytes_rx"`
	StartedAt   time.Time `json:"started_at"`
	LastFrameAt time.Time `json:"last_frame_at"` // zero until the first frame
	StoppedAt   time.Time `json:"stopped_at"`    // zero while running
}

// Worker streams frames from one device in a background goroutine and keeps
// the most recent one.
//
// A Worker is alive while at least one strong holder exists: its own
// goroutine, or a Handle that has not been released. Once the count drops to
// zero the worker is dead and can never be handed out again. Registries keep
// only weak references, so they never extend that lifetime.
//
// Thread Safety: All methods are safe for concurrent use.
type Worker struct {
	id      string
	address string
	cfg     WorkerConfig

	state atomic.Int32
	refs  atomic.Int64

	// frame is the single-slot cache; the worker goroutine is the only writer.
	frame   []byte
	frameMu sync.RWMutex

	err   error
	errMu sync.RWMutex

	done *closeOnce

	framesRx    atomic.Uint64
	bytesRx     atomic.Uint64
	startedAt   time.Time
	lastFrameAt atomic.Int64 // UnixNano
	stoppedAt   atomic.Int64 // UnixNano
}

// StartWorker spawns a worker for (address, pin) outside any registry.
//
// The returned Handle holds a strong reference; release it when done. The
// worker keeps streaming until its budget runs out or the stream fails,
// regardless of the handle.
func StartWorker(address, pin string, cfg WorkerConfig) *Handle {
	return newHandle(startWorker(address, pin, cfg.withDefaults()))
}

// startWorker creates the worker with two strong holders (its goroutine and
// the caller's handle) and launches the goroutine. cfg must have defaults applied.
func startWorker(address, pin string, cfg WorkerConfig) *Worker {
	w := &Worker{
		id:        uuid.NewString(),
		address:   address,
		cfg:       cfg,
		done:      newCloseOnce(),
		startedAt: time.Now(),
	}
	w.refs.Store(2)
	w.state.Store(int32(StateConnecting))

	w.notifyState(StateConnecting, nil)
	go w.run(pin)

	return w
}

// run is the worker goroutine. It never retries: the first failure stops the worker.
func (w *Worker) run(pin string) {
	defer w.finish()

	transport, err := w.cfg.Dialer(context.Background(), w.address)
	if err != nil {
		w.stop(err)
		return
	}

	w.transition(StateAuthenticating)
	session, err := transport.Login(pin)
	if err != nil {
		w.stop(err)
		return
	}
	defer session.Close() //nolint:errcheck // Stream is abandoned after stop

	w.transition(StateStreaming)
	w.cfg.Logger.Info("p1 session streaming", "address", w.address, "worker_id", w.id)

	for range w.cfg.FrameBudget {
		frame, err := session.ReadFrame()
		if err != nil {
			w.stop(err)
			return
		}
		w.storeFrame(frame)
		time.Sleep(w.cfg.FrameInterval)
	}

	w.stop(ErrBudgetExhausted)
}

// finish converts a panic into a stop, drops the goroutine's strong
// reference and signals Done. The reference is dropped before Done closes so
// that waiters observe a dead worker.
func (w *Worker) finish() {
	if r := recover(); r != nil {
		w.stop(fmt.Errorf("%w: %v", ErrWorkerPanic, r))
	}
	w.release()
	w.done.Close()
}

// stop records the stop reason and enters StateStopped. Only the first call has an effect.
func (w *Worker) stop(reason error) {
	if State(w.state.Load()) == StateStopped {
		return
	}

	w.errMu.Lock()
	w.err = reason
	w.errMu.Unlock()

	w.stoppedAt.Store(time.Now().UnixNano())
	w.state.Store(int32(StateStopped))

	if isExpiry(reason) {
		w.cfg.Logger.Info("p1 session expired",
			"address", w.address,
			"worker_id", w.id,
			"frames", w.framesRx.Load(),
		)
	} else {
		w.cfg.Logger.Warn("p1 session stopped",
			"address", w.address,
			"worker_id", w.id,
			"frames", w.framesRx.Load(),
			"error", reason,
		)
	}

	w.notifyState(StateStopped, reason)
}

func (w *Worker) transition(state State) {
	w.state.Store(int32(state))
	w.notifyState(state, nil)
}

// storeFrame replaces the cached frame. Readers never see a partially written slot.
func (w *Worker) storeFrame(frame []byte) {
	w.frameMu.Lock()
	w.frame = frame
	w.frameMu.Unlock()

	now := time.Now()
	seq := w.framesRx.Add(1)
	w.bytesRx.Add(uint64(len(frame)))
	w.lastFrameAt.Store(now.UnixNano())

	w.safeNotify(func(o Observer) {
		o.FrameReceived(FrameEvent{
			WorkerID: w.id,
			Address:  w.address,
			Size:     len(frame),
			Sequence: seq,
			At:       now,
		})
	})
}

func (w *Worker) notifyState(state State, err error) {
	w.safeNotify(func(o Observer) {
		o.WorkerStateChanged(WorkerEvent{
			WorkerID: w.id,
			Address:  w.address,
			State:    state,
			Err:      err,
			Frames:   w.framesRx.Load(),
			Bytes:    w.bytesRx.Load(),
			At:       time.Now(),
		})
	})
}

// safeNotify isolates the worker from observer panics.
func (w *Worker) safeNotify(fn func(Observer)) {
	defer func() {
		if r := recover(); r != nil {
			w.cfg.Logger.Error("p1 observer panic recovered",
				"address", w.address,
				"worker_id", w.id,
				"panic", r,
			)
		}
	}()
	fn(w.cfg.Observer)
}

// LatestFrame returns a copy of the most recent frame.
//
// It never blocks on the device. The result is absent before the first frame
// and may be stale once the worker has stopped.
func (w *Worker) LatestFrame() ([]byte, bool) {
	w.frameMu.RLock()
	defer w.frameMu.RUnlock()

	if w.frame == nil {
		return nil, false
	}
	frame := make([]byte, len(w.frame))
	copy(frame, w.frame)
	return frame, true
}

// ID returns the unique identifier of this worker instance.
func (w *Worker) ID() string { return w.id }

// Address returns the device address the worker streams from.
func (w *Worker) Address() string { return w.address }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Err returns the stop reason, or nil while the worker runs.
func (w *Worker) Err() error {
	w.errMu.RLock()
	defer w.errMu.RUnlock()
	return w.err
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.done.Done() }

// Stats returns a snapshot of the worker statistics.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		FramesRx:    w.framesRx.Load(),
		BytesRx:     w.bytesRx.Load(),
		StartedAt:   w.startedAt,
		LastFrameAt: unixNanoTime(w.lastFrameAt.Load()),
		StoppedAt:   unixNanoTime(w.stoppedAt.Load()),
	}
}

// acquire adds a strong holder unless the worker is already dead.
func (w *Worker) acquire() bool {
	for {
		n := w.refs.Load()
		if n <= 0 {
			return false
		}
		if w.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a strong holder.
func (w *Worker) release() {
	if w.refs.Add(-1) == 0 {
		w.cfg.Logger.Debug("p1 worker released", "address", w.address, "worker_id", w.id)
	}
}

// alive reports whether any strong holder remains.
func (w *Worker) alive() bool {
	return w.refs.Load() > 0
}

// Handle is a strong reference to a Worker.
//
// Release must be called exactly once when the caller is done; further
// calls are ignored. A released handle must not be used.
type Handle struct {
	w        *Worker
	released atomic.Bool
}

func newHandle(w *Worker) *Handle {
	return &Handle{w: w}
}

// Worker returns the referenced worker.
func (h *Handle) Worker() *Worker { return h.w }

// LatestFrame returns a copy of the worker's cached frame.
func (h *Handle) LatestFrame() ([]byte, bool) { return h.w.LatestFrame() }

// Release drops the strong reference.
func (h *Handle) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.w.release()
	}
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

func isExpiry(err error) bool {
	return errors.Is(err, ErrBudgetExhausted)
}

func unixNanoTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
