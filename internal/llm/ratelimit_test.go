package llm

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTrackerWithClock() (*RateTracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewRateTracker(time.Minute)
	tracker.now = clock.Now
	return tracker, clock
}

func TestRateTrackerCeiling(t *testing.T) {
	tracker, clock := newTrackerWithClock()
	tracker.Register("gemini", 2)

	assert.False(t, tracker.IsLimited("gemini"))
	assert.True(t, tracker.Reserve("gemini"))
	assert.False(t, tracker.IsLimited("gemini"))
	assert.True(t, tracker.Reserve("gemini"))
	assert.True(t, tracker.IsLimited("gemini"))
	assert.False(t, tracker.Reserve("gemini"))

	clock.advance(time.Minute)
	assert.False(t, tracker.IsLimited("gemini"))
	count, limit := tracker.Usage("gemini")
	assert.Equal(t, 0, count)
	assert.Equal(t, 2, limit)
}

func TestRateTrackerUnlimitedBackend(t *testing.T) {
	tracker, _ := newTrackerWithClock()
	tracker.Register("groq", 0)

	for i := 0; i < 100; i++ {
		assert.True(t, tracker.Reserve("groq"))
	}
	assert.False(t, tracker.IsLimited("groq"))
	assert.False(t, tracker.IsLimited("never-registered"))
}

func TestRateTrackerMarkLimitedCooldown(t *testing.T) {
	tracker, clock := newTrackerWithClock()
	tracker.Register("claude", 0)

	tracker.MarkLimited("claude", 30*time.Second)
	assert.True(t, tracker.IsLimited("claude"))

	clock.advance(29 * time.Second)
	assert.True(t, tracker.IsLimited("claude"))

	clock.advance(time.Second)
	assert.False(t, tracker.IsLimited("claude"))
	_, limit := tracker.Usage("claude")
	assert.Equal(t, 0, limit)
}

func TestRateTrackerReleaseReturnsSlot(t *testing.T) {
	tracker, _ := newTrackerWithClock()
	tracker.Register("gemini", 1)

	assert.True(t, tracker.Reserve("gemini"))
	assert.False(t, tracker.Reserve("gemini"))

	tracker.Release("gemini")
	count, _ := tracker.Usage("gemini")
	assert.Equal(t, 0, count)
	assert.True(t, tracker.Reserve("gemini"))

	tracker.Release("gemini")
	tracker.Release("gemini")
	count, _ = tracker.Usage("gemini")
	assert.Equal(t, 0, count)
}

func TestRateTrackerConcurrentReserveHoldsCeiling(t *testing.T) {
	tracker := NewRateTracker(time.Minute)
	tracker.Register("gemini", 7)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.Reserve("gemini") {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, granted)
	count, _ := tracker.Usage("gemini")
	assert.Equal(t, 7, count)
}
