package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestTTLStoreSetGet(t *testing.T) {
	clock := newClock()
	s := NewTTLStore[string, string](30, WithClock(clock.Now))

	_, ok := s.Get("a")
	assert.False(t, ok)

	prev, replaced := s.Set("a", "one")
	assert.False(t, replaced)
	assert.Empty(t, prev)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "one", got)
}

func TestTTLStoreSetReturnsDisplacedValue(t *testing.T) {
	clock := newClock()
	s := NewTTLStore[string, string](30, WithClock(clock.Now))

	s.Set("a", "one")
	clock.Advance(time.Hour) // expired entries are still displaced

	prev, replaced := s.Set("a", "two")
	require.True(t, replaced)
	assert.Equal(t, "one", prev)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "two", got)
	assert.Equal(t, 1, s.Len())
}

func TestTTLStoreExpiry(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		fresh   bool
	}{
		{name: "immediately", elapsed: 0, fresh: true},
		{name: "just under ttl", elapsed: 29 * time.Second, fresh: true},
		{name: "exactly ttl", elapsed: 30 * time.Second, fresh: true},
		{name: "ttl plus fraction", elapsed: 30*time.Second + 999*time.Millisecond, fresh: true},
		{name: "one second past ttl", elapsed: 31 * time.Second, fresh: false},
		{name: "long past ttl", elapsed: time.Hour, fresh: false},
		{name: "clock stepped back", elapsed: -time.Minute, fresh: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newClock()
			s := NewTTLStore[string, []byte](30, WithClock(clock.Now))
			s.Set("k", []byte("v"))

			clock.Advance(tt.elapsed)

			_, ok := s.Get("k")
			assert.Equal(t, tt.fresh, ok)
		})
	}
}

func TestTTLStoreGetDoesNotEvict(t *testing.T) {
	clock := newClock()
	s := NewTTLStore[string, int](1, WithClock(clock.Now))
	s.Set("k", 1)

	clock.Advance(5 * time.Second)
	_, ok := s.Get("k")
	require.False(t, ok)

	assert.Equal(t, 1, s.Len())
}

func TestTTLStoreSweep(t *testing.T) {
	clock := newClock()
	s := NewTTLStore[string, int](10, WithClock(clock.Now))
	s.Set("old", 1)
	clock.Advance(8 * time.Second)
	s.Set("new", 2)
	clock.Advance(3 * time.Second)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())

	got, ok := s.Get("new")
	require.True(t, ok)
	assert.Equal(t, 2, got)

	assert.Equal(t, 0, s.Sweep())
}

func TestTTLStoreDefaults(t *testing.T) {
	s := NewTTLStore[string, int](0)
	assert.EqualValues(t, DefaultTTLSeconds, s.TTLSeconds())

	s = NewTTLStore[string, int](-5, WithClock(nil))
	assert.EqualValues(t, DefaultTTLSeconds, s.TTLSeconds())
	s.Set("k", 1)
	_, ok := s.Get("k")
	assert.True(t, ok)
}
