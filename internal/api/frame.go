package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mattn/go-mjpeg"

	"github.com/nerrad567/p1-videostream/internal/bridges/p1"
	"github.com/nerrad567/p1-videostream/internal/metrics"
)

// Query parameters naming the device.
const (
	addressParam = "address"
	pinParam     = "pin"
)

// deviceQuery parses and authorises a device request. On failure it has
// already answered with an empty body and returns ok=false.
func (s *Server) deviceQuery(w http.ResponseWriter, r *http.Request) (address, pin string, ok bool) {
	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		s.metrics.FrameRequests.WithLabelValues(metrics.ResultBadRequest).Inc()
		writeBare(w, http.StatusBadRequest)
		return "", "", false
	}
	if !s.checkAPIKey(query.Get(authParam)) {
		s.metrics.FrameRequests.WithLabelValues(metrics.ResultForbidden).Inc()
		writeBare(w, http.StatusForbidden)
		return "", "", false
	}
	if !query.Has(addressParam) || !query.Has(pinParam) {
		s.metrics.FrameRequests.WithLabelValues(metrics.ResultBadRequest).Inc()
		writeBare(w, http.StatusBadRequest)
		return "", "", false
	}
	return query.Get(addressParam), query.Get(pinParam), true
}

// handleFrame returns the latest cached frame of a device, starting a
// streaming worker when none is alive.
//
// The answer is 200 in both cases: image/jpeg with the frame, or an empty
// text/plain body while no frame has arrived yet.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	address, pin, ok := s.deviceQuery(w, r)
	if !ok {
		return
	}

	w.Header().Set("Cache-Control", "no-store")

	frame, ok := s.frames.GetFrame(address, pin)
	if !ok {
		s.metrics.FrameRequests.WithLabelValues(metrics.ResultMiss).Inc()
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
		return
	}

	s.metrics.FrameRequests.WithLabelValues(metrics.ResultHit).Inc()
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(frame) //nolint:errcheck // Client disconnects are not actionable
	}
}

// handleMJPEG streams the cached frames of a device as multipart MJPEG
// until the client goes away. When a worker stops, the next one is started
// on the following tick.
func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	address, pin, ok := s.deviceQuery(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("mjpeg: clearing write deadline failed", "error", err)
	}

	interval := s.stream.FrameInterval
	if interval <= 0 {
		interval = p1.DefaultFrameInterval
	}

	stream := mjpeg.NewStream()
	go s.pumpFrames(r.Context(), address, pin, stream, interval)

	s.metrics.FrameRequests.WithLabelValues(metrics.ResultStream).Inc()
	stream.ServeHTTP(&flushWriter{ResponseWriter: w, rc: rc}, r)
}

// pumpFrames feeds stream from the device worker every interval and closes
// it when ctx ends.
func (s *Server) pumpFrames(ctx context.Context, address, pin string, stream *mjpeg.Stream, interval time.Duration) {
	h := s.frames.GetOrCreate(address, pin)
	defer func() {
		h.Release()
		stream.Close() //nolint:errcheck // Close never fails
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if frame, ok := h.LatestFrame(); ok {
			if err := stream.Update(frame); err != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		select {
		case <-h.Worker().Done():
			h.Release()
			h = s.frames.GetOrCreate(address, pin)
		default:
		}
	}
}

// flushWriter pushes every multipart chunk to the client immediately.
type flushWriter struct {
	http.ResponseWriter
	rc *http.ResponseController
}

func (w *flushWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	if err != nil {
		return n, err
	}
	return n, w.rc.Flush()
}
