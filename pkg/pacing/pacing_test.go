package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitterUniformBounds(t *testing.T) {
	j := NewSeededJitter(42)
	for range 1000 {
		d := j.Uniform(500*time.Millisecond, 3*time.Second)
		require.GreaterOrEqual(t, d, 500*time.Millisecond)
		require.LessOrEqual(t, d, 3*time.Second)
	}
	assert.Equal(t, time.Second, j.Uniform(time.Second, time.Second))
}

func TestTimerSleeperHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := TimerSleeper{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDelayWaitRecords(t *testing.T) {
	rec := &Recorder{}
	d := Delay{Min: time.Second, Max: 3 * time.Second, Jitter: NewSeededJitter(1), Sleeper: rec}

	require.NoError(t, d.Wait(context.Background()))
	require.NoError(t, d.Wait(context.Background()))

	sleeps := rec.Sleeps()
	require.Len(t, sleeps, 2)
	for _, s := range sleeps {
		assert.GreaterOrEqual(t, s, time.Second)
		assert.LessOrEqual(t, s, 3*time.Second)
	}
}

func TestDelayZeroIsNoop(t *testing.T) {
	rec := &Recorder{}
	require.NoError(t, Delay{Sleeper: rec}.Wait(context.Background()))
	assert.Empty(t, rec.Sleeps())
}
