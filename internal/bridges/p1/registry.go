package p1

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"weak"
)

// WorkerInfo is a point-in-time view of a live registry entry.
type WorkerInfo struct {
	WorkerID string      `json:"worker_id"`
	Address  string      `json:"address"`
	State    State       `json:"state"`
	Stats    WorkerStats `json:"stats"`
}

// Registry shares one Worker per device address between concurrent callers.
//
// Entries are weak: the registry finds a worker while something else keeps
// it alive, and silently forgets it afterwards. Dead entries are replaced on
// the next lookup for the same address and removed in bulk by Sweep.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	cfg WorkerConfig

	entries map[string]weak.Pointer[Worker]
	mu      sync.Mutex

	created atomic.Uint64
}

// NewRegistry creates an empty registry whose workers use cfg.
func NewRegistry(cfg WorkerConfig) *Registry {
	return &Registry{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]weak.Pointer[Worker]),
	}
}

// GetOrCreate returns a strong handle to the live worker for address,
// starting one for (address, pin) if none is alive.
//
// An existing worker is reused even if pin differs from the PIN it was
// started with: the first caller's PIN stays in effect for the worker's
// lifetime.
//
// The lookup and the insert happen in one critical section. A worker that
// has stopped but is still held by another caller counts as alive and is
// returned with its stale cache.
//
// Parameters:
//   - address: Device address, compared by exact string equality
//   - pin: Device access code used only when a new worker starts
//
// Returns:
//   - *Handle: Strong reference; the caller must Release it
func (r *Registry) GetOrCreate(address, pin string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ref, ok := r.entries[address]; ok {
		if w := ref.Value(); w != nil && w.acquire() {
			return newHandle(w)
		}
	}

	w := startWorker(address, pin, r.cfg)
	r.entries[address] = weak.Make(w)
	r.created.Add(1)

	return newHandle(w)
}

// GetFrame returns the latest cached frame for the device, starting a
// worker if none is alive. It never waits for the device: a freshly started
// worker has no frame yet and the result is absent.
func (r *Registry) GetFrame(address, pin string) ([]byte, bool) {
	h := r.GetOrCreate(address, pin)
	defer h.Release()
	return h.LatestFrame()
}

// Sweep removes entries whose worker is dead or collected.
//
// Returns:
//   - int: Number of entries removed
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for address, ref := range r.entries {
		if w := ref.Value(); w == nil || !w.alive() {
			delete(r.entries, address)
			removed++
		}
	}
	return removed
}

// RunReaper calls Sweep every interval until ctx is cancelled.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.cfg.Logger.Debug("p1 registry swept", "removed", n)
			}
		}
	}
}

// Snapshot lists the live workers ordered by address.
func (r *Registry) Snapshot() []WorkerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]WorkerInfo, 0, len(r.entries))
	for _, ref := range r.entries {
		w := ref.Value()
		if w == nil || !w.alive() {
			continue
		}
		infos = append(infos, WorkerInfo{
			WorkerID: w.ID(),
			Address:  w.Address(),
			State:    w.State(),
			Stats:    w.Stats(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Address < infos[j].Address
	})
	return infos
}

// Created returns how many workers this registry has started.
func (r *Registry) Created() uint64 {
	return r.created.Load()
}

// Len returns the number of entries, including dead ones not yet swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// defaultRegistry is the process-wide registry.
var defaultRegistry atomic.Pointer[Registry]

// InitDefault installs the process-wide registry. Call it once at startup,
// before serving requests.
func InitDefault(cfg WorkerConfig) *Registry {
	r := NewRegistry(cfg)
	defaultRegistry.Store(r)
	return r
}

// Default returns the process-wide registry, creating one with default
// settings if InitDefault was never called.
func Default() *Registry {
	if r := defaultRegistry.Load(); r != nil {
		return r
	}
	defaultRegistry.CompareAndSwap(nil, NewRegistry(WorkerConfig{}))
	return defaultRegistry.Load()
}

// GetFrame returns the latest frame for the device from the process-wide registry.
func GetFrame(address, pin string) ([]byte, bool) {
	return Default().GetFrame(address, pin)
}
