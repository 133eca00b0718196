// Package p1 implements the camera session protocol of P1-series printers.
//
// The device exposes its chamber camera as a proprietary TLS stream. This
// package logs in to that stream, parses the framed JPEG images it sends, and
// keeps the most recent image of each device behind a shared, self-expiring
// background worker.
//
// # Architecture
//
//	┌──────────────┐  GetOrCreate   ┌──────────┐  ReadFrame  ┌─────────┐  TLS
//	│ HTTP handler │───────────────►│  Worker  │◄────────────│ Session │◄──────► Device
//	│  (api pkg)   │◄── LatestFrame │ (1 per   │             └─────────┘
//	└──────────────┘                │ address) │
//	        │                       └──────────┘
//	        └──── Registry (weak entries, address → Worker)
//
// # Wire Protocol
//
// After the TLS handshake the client sends one 80-byte login packet:
//
//	[0, 16)   version fields 40 00 00 00 00 30 00 00 00 00 00 00 00 00 00 00
//	[16, 20)  "bblp"
//	[20, 48)  zero
//	[48, 80)  PIN, zero-padded (max 31 bytes)
//
// The device then streams units of
//
//	[4 bytes LE length n][12 bytes metadata][n bytes JPEG]
//
// There is no login acknowledgment; a wrong PIN shows up as the stream
// closing before the first frame.
//
// # Worker Lifecycle
//
//	Connecting → Authenticating → Streaming → Stopped
//
// A worker reads at most FrameBudget frames (600 by default), sleeping
// FrameInterval (1s) after each. The first error, or the end of the budget,
// stops it for good. There are no retries: the next request for the device
// simply starts a new worker.
//
// # Lifetime and Sharing
//
// A worker stays alive while its goroutine runs or a caller holds a Handle.
// The Registry only stores weak references, so it can find a live worker but
// never keeps one alive. Concurrent GetOrCreate calls for one address share a
// single worker, and the PIN of the first caller wins.
//
// # Thread Safety
//
// Transport and Session belong to a single goroutine. Worker, Handle and
// Registry are safe for concurrent use.
//
// # Security Considerations
//
// Certificates presented by the device are not verified. The stream is
// encrypted against passive observers but the peer is not authenticated.
package p1
