package cache

import "time"

// DefaultTTLSeconds is the freshness window used when none is configured.
const DefaultTTLSeconds = 30

type ttlEntry[V any] struct {
	value      V
	insertedAt time.Time
}

// TTLStore is an expiring map. Entries older than the TTL read as absent but
// stay in the map until Sweep removes them. TTLStore is not safe for
// concurrent use; callers serialize access (see Shared).
type TTLStore[K comparable, V any] struct {
	entries    map[K]ttlEntry[V]
	ttlSeconds int64
	now        func() time.Time
}

type Option func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now as the source of insertion and lookup times.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		o.now = now
	}
}

// NewTTLStore creates a store whose entries stay fresh for ttlSeconds whole
// seconds. ttlSeconds <= 0 uses DefaultTTLSeconds.
func NewTTLStore[K comparable, V any](ttlSeconds int64, opts ...Option) *TTLStore[K, V] {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}

	return &TTLStore[K, V]{
		entries:    make(map[K]ttlEntry[V]),
		ttlSeconds: ttlSeconds,
		now:        o.now,
	}
}

// TTLSeconds returns the configured freshness window.
func (s *TTLStore[K, V]) TTLSeconds() int64 {
	return s.ttlSeconds
}

// Set stores value under key, stamped with the current time, and returns the
// value it displaced. Freshness of the displaced entry is not consulted.
func (s *TTLStore[K, V]) Set(key K, value V) (V, bool) {
	prev, ok := s.entries[key]
	s.entries[key] = ttlEntry[V]{value: value, insertedAt: s.now()}
	return prev.value, ok
}

// Get returns the value under key if it is present and fresh. It never
// modifies the store.
func (s *TTLStore[K, V]) Get(key K) (V, bool) {
	entry, ok := s.entries[key]
	if !ok || s.expired(entry, s.now()) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Sweep deletes every expired entry and reports how many were removed.
func (s *TTLStore[K, V]) Sweep() int {
	now := s.now()
	removed := 0
	for k, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (s *TTLStore[K, V]) Len() int {
	return len(s.entries)
}

// expired compares whole elapsed seconds against the TTL; an entry exactly
// ttlSeconds old is still fresh. A clock that moved backwards counts as zero
// elapsed.
func (s *TTLStore[K, V]) expired(entry ttlEntry[V], now time.Time) bool {
	elapsed := now.Sub(entry.insertedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return int64(elapsed/time.Second) > s.ttlSeconds
}
