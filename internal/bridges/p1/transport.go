package p1

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"
)

// Default timeouts for device communication.
const (
	// defaultDialTimeout is the maximum time to wait for the TCP connection.
	defaultDialTimeout = 5 * time.Second

	// defaultIOTimeout bounds every individual read and write, including the TLS handshake.
	defaultIOTimeout = 5 * time.Second

	// tlsMinVersion is the protocol floor accepted from the device.
	tlsMinVersion = tls.VersionTLS12
)

// TransportConfig holds device connection settings.
type TransportConfig struct {
	// DialTimeout is the maximum time to wait for the TCP connection.
	// Default: 5 seconds.
	DialTimeout time.Duration

	// IOTimeout bounds each read and write on the established stream.
	// Default: 5 seconds.
	IOTimeout time.Duration
}

// withDefaults returns a copy of cfg with zero values replaced by defaults.
func (cfg TransportConfig) withDefaults() TransportConfig {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	return cfg
}

// Transport is an encrypted, not yet authenticated stream to a device.
//
// A Transport is single use: Login consumes it whether or not the login
// succeeds. Call Close only if Login is never called.
type Transport struct {
	conn     io.ReadWriteCloser
	cfg      TransportConfig
	consumed atomic.Bool
}

// Connect opens a TLS session to the device at address.
//
// The TCP dial is bounded by cfg.DialTimeout and the handshake by
// cfg.IOTimeout. Server certificates are not verified: devices present
// self-signed certificates that cannot be validated, so the session keeps
// confidentiality but not peer authenticity.
//
// Parameters:
//   - ctx: Context for cancellation of the dial and handshake
//   - address: Device address in host:port form
//   - cfg: Timeouts (zero values use defaults)
//
// Returns:
//   - *Transport: Encrypted stream ready for Login
//   - error: Wrapping ErrConnectionFailed or ErrHandshakeFailed
func Connect(ctx context.Context, address string, cfg TransportConfig) (*Transport, error) {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	tlsConn := tls.Client(rawConn, tlsClientConfig(address))

	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.IOTimeout)
	defer cancel()

	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		rawConn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	return NewTransport(tlsConn, cfg), nil
}

// NewTransport wraps an established stream as a Transport.
//
// If conn is a net.Conn, every read and write is bounded by cfg.IOTimeout.
// Other streams are used as-is, which is how tests inject synthetic devices.
func NewTransport(conn io.ReadWriteCloser, cfg TransportConfig) *Transport {
	cfg = cfg.withDefaults()
	if nc, ok := conn.(net.Conn); ok {
		conn = &deadlineConn{Conn: nc, timeout: cfg.IOTimeout}
	}
	return &Transport{conn: conn, cfg: cfg}
}

// Login sends the login packet and returns the authenticated session.
//
// The PIN is validated before anything is written, so an oversized PIN never
// reaches the network. The device sends no acknowledgment; a login is only
// known to have worked once the first frame arrives.
//
// Parameters:
//   - pin: Device access code, at most 31 bytes
//
// Returns:
//   - *Session: Session reading frames from the same stream
//   - error: ErrTransportConsumed, ErrPinTooLong or ErrLoginFailed
func (t *Transport) Login(pin string) (*Session, error) {
	if !t.consumed.CompareAndSwap(false, true) {
		return nil, ErrTransportConsumed
	}

	packet, err := BuildLoginPacket(pin)
	if err != nil {
		t.conn.Close() //nolint:errcheck // Transport is consumed either way
		return nil, err
	}

	n, err := t.conn.Write(packet[:])
	if err == nil && n != len(packet) {
		err = io.ErrShortWrite
	}
	if err != nil {
		t.conn.Close() //nolint:errcheck // Transport is consumed either way
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	return &Session{conn: t.conn}, nil
}

// Close releases a Transport that will not be used for Login.
func (t *Transport) Close() error {
	if !t.consumed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

// tlsClientConfig returns the client TLS settings for a device.
func tlsClientConfig(address string) *tls.Config {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	return &tls.Config{
		ServerName:         host,
		MinVersion:         tlsMinVersion,
		InsecureSkipVerify: true, //nolint:gosec // Devices only present self-signed certificates
	}
}

// deadlineConn refreshes the read or write deadline before every operation,
// so each call is bounded by timeout rather than the session as a whole.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}
