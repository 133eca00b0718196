package p1

import "errors"

// Domain-specific errors for P1 device sessions.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when the TCP connection to the device cannot be established.
	ErrConnectionFailed = errors.New("p1: connection failed")

	// ErrHandshakeFailed is returned when the TLS handshake with the device fails or times out.
	ErrHandshakeFailed = errors.New("p1: tls handshake failed")

	// ErrPinTooLong is returned when the PIN does not fit the 32-byte login field.
	// The field must keep at least one trailing zero byte, so the limit is 31 bytes.
	ErrPinTooLong = errors.New("p1: pin exceeds 31 bytes")

	// ErrTransportConsumed is returned when Login is called twice on the same Transport.
	ErrTransportConsumed = errors.New("p1: transport already consumed by login")

	// ErrLoginFailed is returned when the login packet cannot be written in full.
	ErrLoginFailed = errors.New("p1: login failed")

	// ErrFrameTruncated is returned when the stream ends or times out inside a frame.
	ErrFrameTruncated = errors.New("p1: frame truncated")

	// ErrBudgetExhausted is the stop reason of a worker that read its full frame budget.
	ErrBudgetExhausted = errors.New("p1: frame budget exhausted")

	// ErrWorkerPanic is the stop reason of a worker whose goroutine panicked.
	ErrWorkerPanic = errors.New("p1: worker panicked")
)
