package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShardCount = 64

// InMemoryLimiter keeps one window per key in process memory.
//
// Keys are spread over shards so that unrelated keys rarely share a lock, and
// each window carries its own mutex for the read-check-increment sequence.
// A shard sweeps its expired windows when it is touched after SweepInterval
// has elapsed, and Sweep can be driven by a background job as well.
type InMemoryLimiter struct {
	cfg           Config
	sweepInterval time.Duration
	shards        []*shard
}

type shard struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

type window struct {
	mu      sync.Mutex
	start   time.Time
	count   int
	evicted bool
}

type Option func(*InMemoryLimiter)

// WithSweepInterval sets how often a shard evicts expired windows on access.
// Zero disables on-access sweeping.
func WithSweepInterval(d time.Duration) Option {
	return func(l *InMemoryLimiter) {
		l.sweepInterval = d
	}
}

func WithShards(n int) Option {
	return func(l *InMemoryLimiter) {
		if n > 0 {
			l.shards = newShards(n)
		}
	}
}

func NewInMemory(cfg Config, opts ...Option) *InMemoryLimiter {
	cfg = cfg.withDefaults()
	l := &InMemoryLimiter{
		cfg:           cfg,
		sweepInterval: cfg.Window,
		shards:        newShards(defaultShardCount),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{windows: make(map[string]*window)}
	}
	return shards
}

func (l *InMemoryLimiter) Config() Config {
	return l.cfg
}

func (l *InMemoryLimiter) Admit(_ context.Context, key string, now time.Time) (Decision, error) {
	s := l.shardFor(key)
	for {
		w := s.acquire(key, now, l.sweepInterval, l.cfg.Window)

		w.mu.Lock()
		if w.evicted {
			// Swept between lookup and lock; the map no longer points at it.
			w.mu.Unlock()
			continue
		}
		d := w.admit(l.cfg, now)
		w.mu.Unlock()
		return d, nil
	}
}

// Sweep evicts every expired window and returns how many were removed.
func (l *InMemoryLimiter) Sweep(now time.Time) int {
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		removed += s.sweepLocked(now, l.cfg.Window)
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of windows currently held, expired or not.
func (l *InMemoryLimiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

// Reset drops the window for key.
func (l *InMemoryLimiter) Reset(key string) {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[key]; ok {
		w.mu.Lock()
		w.evicted = true
		w.mu.Unlock()
		delete(s.windows, key)
	}
}

func (l *InMemoryLimiter) shardFor(key string) *shard {
	return l.shards[xxhash.Sum64String(key)%uint64(len(l.shards))]
}

func (s *shard) acquire(key string, now time.Time, sweepInterval, windowSize time.Duration) *window {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sweepInterval > 0 && now.Sub(s.lastSweep) >= sweepInterval {
		s.sweepLocked(now, windowSize)
	}

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	return w
}

// sweepLocked must be called with s.mu held. Windows busy in an admission are
// skipped; they are live by definition.
func (s *shard) sweepLocked(now time.Time, windowSize time.Duration) int {
	s.lastSweep = now
	removed := 0
	for key, w := range s.windows {
		if !w.mu.TryLock() {
			continue
		}
		// count is zero only while the window's first admission is in flight.
		if w.count > 0 && w.expired(now, windowSize) {
			w.evicted = true
			delete(s.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

func (w *window) expired(now time.Time, windowSize time.Duration) bool {
	return w.count == 0 || !now.Before(w.start.Add(windowSize))
}

func (w *window) admit(cfg Config, now time.Time) Decision {
	if w.expired(now, cfg.Window) {
		w.start = now
		w.count = 1
		return allow(cfg, w.count, w.start)
	}
	if w.count < cfg.MaxRequests {
		w.count++
		return allow(cfg, w.count, w.start)
	}
	return deny(cfg, w.count, w.start, now)
}
