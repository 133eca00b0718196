package p1

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// syntheticDevice is an in-memory device stream. It records the login packet
// and serves frames produced by next until next reports the end of stream.
type syntheticDevice struct {
	mu      sync.Mutex
	written bytes.Buffer
	pending []byte
	seq     int

	// gate, when non-nil, blocks reads until it is closed.
	gate chan struct{}

	// next returns the payload of frame seq, or false to end the stream.
	next func(seq int) ([]byte, bool)

	closed atomic.Bool
}

func newSyntheticDevice(next func(seq int) ([]byte, bool)) *syntheticDevice {
	return &syntheticDevice{next: next}
}

// endlessFrames produces "frame-N" forever.
func endlessFrames(seq int) ([]byte, bool) {
	return []byte(fmt.Sprintf("frame-%d", seq)), true
}

// limitedFrames produces n frames and then ends the stream.
func limitedFrames(n int) func(int) ([]byte, bool) {
	return func(seq int) ([]byte, bool) {
		if seq >= n {
			return nil, false
		}
		return endlessFrames(seq)
	}
}

func (d *syntheticDevice) Read(p []byte) (int, error) {
	if d.gate != nil {
		<-d.gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		payload, ok := d.next(d.seq)
		if !ok {
			return 0, io.EOF
		}
		d.seq++
		d.pending = EncodeFrame(payload)
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *syntheticDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written.Write(p)
}

func (d *syntheticDevice) Close() error {
	d.closed.Store(true)
	return nil
}

// loginPacket returns what the client wrote.
func (d *syntheticDevice) loginPacket() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written.Bytes()...)
}

// untouchableConn fails the test if any I/O reaches it.
type untouchableConn struct {
	t      *testing.T
	closed bool
}

func (c *untouchableConn) Read([]byte) (int, error) {
	c.t.Helper()
	panic("unexpected read on untouchable connection")
}

func (c *untouchableConn) Write([]byte) (int, error) {
	c.t.Helper()
	panic("unexpected write on untouchable connection")
}

func (c *untouchableConn) Close() error {
	c.closed = true
	return nil
}

// deviceDialer returns a Dialer that serves the given synthetic devices in
// order and counts the dials.
func deviceDialer(devices ...*syntheticDevice) (Dialer, *atomic.Int32) {
	var calls atomic.Int32
	dialer := func(_ context.Context, _ string) (*Transport, error) {
		i := int(calls.Add(1)) - 1
		if i >= len(devices) {
			return nil, fmt.Errorf("%w: no device for dial %d", ErrConnectionFailed, i)
		}
		return NewTransport(devices[i], TransportConfig{}), nil
	}
	return dialer, &calls
}

// waitDone waits for the worker goroutine to exit.
func waitDone(t *testing.T, w *Worker, timeout time.Duration) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(timeout):
		t.Fatalf("worker %s did not stop within %v (state=%s)", w.ID(), timeout, w.State())
	}
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// recordingObserver keeps every event it receives.
type recordingObserver struct {
	mu     sync.Mutex
	states []WorkerEvent
	frames []FrameEvent
}

func (o *recordingObserver) WorkerStateChanged(e WorkerEvent) {
	o.mu.Lock()
	o.states = append(o.states, e)
	o.mu.Unlock()
}

func (o *recordingObserver) FrameReceived(e FrameEvent) {
	o.mu.Lock()
	o.frames = append(o.frames, e)
	o.mu.Unlock()
}

func (o *recordingObserver) stateSequence() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	seq := make([]State, 0, len(o.states))
	for _, e := range o.states {
		seq = append(seq, e.State)
	}
	return seq
}

// MockDevice is a TLS server that speaks the device side of the protocol.
type MockDevice struct {
	listener net.Listener
	frames   [][]byte
	hold     bool

	mu     sync.Mutex
	logins [][]byte

	wg   sync.WaitGroup
	done chan struct{}
}

// NewMockDevice starts a loopback TLS device. After reading the login packet
// it sends frames; if hold is set it then keeps the connection open instead
// of closing it.
func NewMockDevice(t *testing.T, serverCfg *tls.Config, frames [][]byte, hold bool) *MockDevice {
	t.Helper()

	if serverCfg == nil {
		serverCfg = &tls.Config{
			Certificates: []tls.Certificate{selfSignedCert(t)},
			MinVersion:   tls.VersionTLS12,
		}
	}

	listener, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	if err != nil {
		t.Fatalf("failed to start mock device: %v", err)
	}

	m := &MockDevice{
		listener: listener,
		frames:   frames,
		hold:     hold,
		done:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.acceptLoop()

	t.Cleanup(m.Close)
	return m
}

// Addr returns the device address.
func (m *MockDevice) Addr() string {
	return m.listener.Addr().String()
}

// Logins returns the login packets received so far.
func (m *MockDevice) Logins() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.logins...)
}

// Close stops the device.
func (m *MockDevice) Close() {
	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}
	m.listener.Close()
	m.wg.Wait()
}

func (m *MockDevice) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		m.wg.Add(1)
		go m.serve(conn)
	}
}

func (m *MockDevice) serve(conn net.Conn) {
	defer m.wg.Done()
	defer conn.Close()

	login := make([]byte, LoginPacketSize)
	if _, err := io.ReadFull(conn, login); err != nil {
		return
	}
	m.mu.Lock()
	m.logins = append(m.logins, login)
	m.mu.Unlock()

	for _, f := range m.frames {
		if _, err := conn.Write(f); err != nil {
			return
		}
	}

	if m.hold {
		<-m.done
	}
}

// selfSignedCert generates a throwaway ECDSA server certificate.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "p1-mock-device"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}
