package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/throttle"
)

func TestPacer_Delay(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := throttle.NewPacer(throttle.Config{
		RatePerSecond: 2,
		Burst:         1,
		MinDelay:      50 * time.Millisecond,
		MaxDelay:      time.Second,
	}).WithClock(func() time.Time { return now })

	assert.Equal(t, 50*time.Millisecond, p.Delay(), "burst token only pays the floor")
	assert.Equal(t, 500*time.Millisecond, p.Delay())
	assert.Equal(t, time.Second, p.Delay())
	assert.Equal(t, time.Second, p.Delay(), "capped at MaxDelay")

	now = now.Add(10 * time.Second)
	assert.Equal(t, 50*time.Millisecond, p.Delay())
}

func TestPacer_Unlimited(t *testing.T) {
	p := throttle.NewPacer(throttle.Config{MinDelay: 10 * time.Millisecond})
	for i := 0; i < 5; i++ {
		assert.Equal(t, 10*time.Millisecond, p.Delay())
	}
}

func TestWait(t *testing.T) {
	assert.NoError(t, throttle.Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, throttle.Wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, throttle.Wait(ctx, 0), context.Canceled)
}
