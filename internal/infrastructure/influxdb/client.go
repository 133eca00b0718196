package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/p1-videostream/internal/infrastructure/config"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrUnreachable means the server did not answer the ping.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrUnhealthy means the server answered but reported itself not ready.
	ErrUnhealthy = errors.New("influxdb: server not healthy")

	// ErrClosed is returned by HealthCheck on a closed or unconnected client.
	ErrClosed = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps every asynchronous batch failure passed to the
	// SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: telemetry write failed")
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// Each streaming camera produces one frame point per second and a
	// handful of session points per ten minutes, so a batch of 60 holds about
	// a minute of one camera.
	defaultBatchSize     = 60
	defaultFlushInterval = 5 * time.Second

	// Frames are at least a second apart; millisecond timestamps keep the
	// sequence ordered without nanosecond line-protocol overhead.
	writePrecision = time.Millisecond

	// retryBufferFactor bounds the retry buffer to this many batches, about
	// ten minutes of one camera at the default batch size.
	retryBufferFactor = 10
	maxRetries        = 3
)

// Client records frame and session telemetry in InfluxDB.
//
// Writes are non-blocking: they are buffered by the write API and flushed
// in batches, so the client can be called from worker goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	// writeMu orders writes before Close so no point reaches a closed write API.
	writeMu   sync.RWMutex
	closed    atomic.Bool
	closeOnce sync.Once

	mu      sync.RWMutex
	onError func(err error)
}

// Connect pings the server and prepares the batched write API for the
// configured org and bucket.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	case !healthy:
		client.Close()
		return nil, ErrUnhealthy
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

// writeOptions sizes batching for the frame and session workload.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batchSize := defaultBatchSize
	if cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	//nolint:gosec // batchSize and flush are positive
	return influxdb2.DefaultOptions().
		SetApplicationName("videostream").
		SetLogLevel(0).
		SetPrecision(writePrecision).
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(flush.Milliseconds())).
		SetRetryBufferLimit(uint(batchSize * retryBufferFactor)).
		SetMaxRetries(maxRetries)
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError sets the callback for batch failures. Each error wraps
// ErrWriteFailed.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// writable reports whether points are accepted.
func (c *Client) writable() bool {
	return c.writeAPI != nil && !c.closed.Load()
}

// write buffers p unless the client is closed.
func (c *Client) write(p *write.Point) {
	c.writeMu.RLock()
	defer c.writeMu.RUnlock()

	if c.writable() {
		c.writeAPI.WritePoint(p)
	}
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.writable() {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !healthy {
		return ErrUnhealthy
	}
	return nil
}

// Close flushes buffered points and releases the client. Later writes are
// dropped. Close is idempotent.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed.Store(true)
		c.writeMu.Unlock()

		c.writeAPI.Flush()
		c.client.Close()
	})
	return nil
}
