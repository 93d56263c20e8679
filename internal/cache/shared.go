package cache

import (
	"context"
	"sync"
	"time"

	"caching-proxy/internal/metrics"
	"caching-proxy/pkg/logging"

	"go.uber.org/zap"
)

// Session is exclusive access to the response cache. Every Session must be
// released; Release is safe to call more than once.
type Session interface {
	Get(key Key) ([]byte, bool)
	Set(key Key, body []byte)
	Release()
}

// Shared guards one response store with a single exclusive lock. A request
// handler holds the lock from its cache check until its cache update, so
// origin fetches are serialized process-wide. That bounds throughput to one
// in-flight fetch at a time, and a hung fetch blocks every other request
// until the upstream timeout fires.
type Shared struct {
	mu    sync.Mutex
	store *TTLStore[Key, []byte]

	stopSweep chan struct{}
	sweepOnce sync.Once
	closeOnce sync.Once
	sweepDone chan struct{}
}

// NewShared wraps store. The caller owns the result and passes it to the
// handlers that use it.
func NewShared(store *TTLStore[Key, []byte]) *Shared {
	return &Shared{
		store:     store,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
}

// Acquire blocks until the cache lock is held.
func (s *Shared) Acquire(ctx context.Context) Session {
	s.mu.Lock()
	return &lockedSession{shared: s, logger: logging.L(ctx)}
}

// StartSweeper removes expired entries every interval until Close. It is a
// no-op for interval <= 0 or when a sweeper is already running.
func (s *Shared) StartSweeper(interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s.sweepOnce.Do(func() {
		go s.sweep(interval, logger.Named("sweeper"))
	})
}

func (s *Shared) sweep(interval time.Duration, logger *zap.Logger) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, remaining := s.SweepNow()
			if removed > 0 {
				logger.Debug("cache_sweep",
					zap.Int("removed", removed),
					zap.Int("remaining", remaining),
				)
			}
		case <-s.stopSweep:
			return
		}
	}
}

// SweepNow runs one sweep under the cache lock and returns the number of
// entries removed and left.
func (s *Shared) SweepNow() (removed, remaining int) {
	s.mu.Lock()
	removed = s.store.Sweep()
	remaining = s.store.Len()
	s.mu.Unlock()

	metrics.CacheSweptTotal.Add(float64(removed))
	metrics.CacheEntries.Set(float64(remaining))
	return removed, remaining
}

// Close stops the sweeper and waits for it to exit.
func (s *Shared) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopSweep)
	})
	started := true
	s.sweepOnce.Do(func() { started = false })
	if started {
		<-s.sweepDone
	}
	return nil
}

type lockedSession struct {
	shared   *Shared
	logger   *zap.Logger
	released bool
}

func (l *lockedSession) Get(key Key) ([]byte, bool) {
	start := time.Now()
	body, ok := l.shared.store.Get(key)

	result := "miss"
	if ok {
		result = "hit"
		metrics.CacheHitsTotal.Inc()
	} else {
		metrics.CacheMissesTotal.Inc()
	}

	l.logger.Debug("response_cache_get",
		zap.String("cache_key", key.String()),
		zap.String("cache_result", result),
		zap.Int("bytes", len(body)),
		zap.Duration("latency", time.Since(start)),
	)
	return body, ok
}

// Set stores a private copy of body.
func (l *lockedSession) Set(key Key, body []byte) {
	valueCopy := make([]byte, len(body))
	copy(valueCopy, body)

	_, replaced := l.shared.store.Set(key, valueCopy)
	metrics.CacheWritesTotal.Inc()

	l.logger.Debug("response_cache_set",
		zap.String("cache_key", key.String()),
		zap.Int("bytes", len(valueCopy)),
		zap.Bool("replaced", replaced),
	)
}

func (l *lockedSession) Release() {
	if l.released {
		return
	}
	l.released = true
	l.shared.mu.Unlock()
}
