// Package api implements the HTTP server of the video-stream bridge.
//
// This package provides:
//   - POST /v1/p1, the latest cached frame of a device
//   - GET /v1/p1/mjpeg, the same frames as a multipart MJPEG stream
//   - GET /v1/events, a WebSocket feed of worker lifecycle and frame events
//   - GET /v1/sessions, live workers and recent session history
//   - The browser front end under /site/ and operational endpoints
//
// # Error Responses
//
// The frame endpoints, the redirect at / and the front end answer errors
// with an empty body and Connection: close, which is what embedded players
// polling the bridge expect. The JSON endpoints answer with an Error body.
//
// # Security
//
// Every device endpoint takes the API key in the auth query parameter and
// compares its SHA-256 against the configured hash in constant time. The
// query string also carries the device PIN and is never logged.
//
// # Connection Limits
//
// The listener accepts at most server.max_connections client connections at
// once. Further clients wait in the kernel accept queue.
package api
