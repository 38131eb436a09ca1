package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestClock_StartsAtStart(t *testing.T) {
	clock := NewClock(epoch)
	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, epoch, clock.Now(), "reading does not move on its own")
}

func TestClock_Advance(t *testing.T) {
	clock := NewClock(epoch)

	assert.Equal(t, epoch.Add(time.Second), clock.Advance(time.Second))
	assert.Equal(t, epoch.Add(time.Second+250*time.Millisecond), clock.Advance(250*time.Millisecond))
	assert.Equal(t, epoch.Add(time.Second+250*time.Millisecond), clock.Now())
}

func TestClock_AdvanceIgnoresNegative(t *testing.T) {
	clock := NewClock(epoch)
	clock.Advance(time.Minute)

	assert.Equal(t, epoch.Add(time.Minute), clock.Advance(-time.Hour))
}

func TestClock_Set(t *testing.T) {
	clock := NewClock(epoch)
	clock.Advance(time.Hour)

	clock.Set(epoch)
	assert.Equal(t, epoch, clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock(epoch)
	const numGoroutines = 100
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Advance(time.Millisecond)
				_ = clock.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, epoch.Add(numGoroutines*callsPerGoroutine*time.Millisecond), clock.Now())
}

func TestClock_MatchesTimeHook(t *testing.T) {
	clock := NewClock(epoch)
	var now func() time.Time = clock.Now

	clock.Advance(time.Second)
	assert.Equal(t, epoch.Add(time.Second), now())
}
