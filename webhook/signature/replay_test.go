package signature

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryReplayCache(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("remembers within TTL", func(t *testing.T) {
		cache := NewMemoryReplayCache(10*time.Minute, 0)

		assert.False(t, cache.Seen("fp-1", now))
		cache.Remember("fp-1", now)
		assert.True(t, cache.Seen("fp-1", now))
		assert.True(t, cache.Seen("fp-1", now.Add(9*time.Minute)))
	})

	t.Run("expires after TTL", func(t *testing.T) {
		cache := NewMemoryReplayCache(10*time.Minute, 0)

		cache.Remember("fp-1", now)
		assert.False(t, cache.Seen("fp-1", now.Add(11*time.Minute)))
	})

	t.Run("lazy eviction drops expired entries on checks", func(t *testing.T) {
		cache := NewMemoryReplayCache(10*time.Minute, 0)

		cache.Remember("fp-old", now)
		cache.Remember("fp-new", now.Add(8*time.Minute))

		// fp-old is expired by now+11m, fp-new is not
		assert.False(t, cache.Seen("fp-old", now.Add(11*time.Minute)))
		assert.True(t, cache.Seen("fp-new", now.Add(11*time.Minute)))
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("evicts oldest-expiring half over the hard cap", func(t *testing.T) {
		cache := NewMemoryReplayCache(10*time.Minute, 10)

		for i := 0; i < 11; i++ {
			cache.Remember(fmt.Sprintf("fp-%d", i), now.Add(time.Duration(i)*time.Second))
		}

		// Cap exceeded on the 11th insert: the 5 oldest-expiring
		// entries are evicted, the newest survive
		assert.Equal(t, 6, cache.Len())
		assert.False(t, cache.Seen("fp-0", now))
		assert.True(t, cache.Seen("fp-10", now))
	})

	t.Run("explicit evict removes expired entries", func(t *testing.T) {
		cache := NewMemoryReplayCache(10*time.Minute, 0)

		cache.Remember("fp-1", now)
		cache.Remember("fp-2", now.Add(5*time.Minute))
		cache.Evict(now.Add(12 * time.Minute))

		assert.Equal(t, 1, cache.Len())
	})

	t.Run("defaults applied for non-positive arguments", func(t *testing.T) {
		cache := NewMemoryReplayCache(0, 0)

		cache.Remember("fp-1", now)
		assert.True(t, cache.Seen("fp-1", now.Add(DefaultReplayWindow-time.Second)))
		assert.False(t, cache.Seen("fp-1", now.Add(DefaultReplayWindow+time.Second)))
	})
}
