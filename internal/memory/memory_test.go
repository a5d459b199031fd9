package memory_test

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutroom/internal/memory"
	"cutroom/internal/timeline"
)

func TestBudgetClassify(t *testing.T) {
	b := memory.Budget{Limit: 1000}.WithDefaults()
	assert.Equal(t, memory.DefaultWarningRatio, b.WarningRatio)
	assert.Equal(t, memory.DefaultCriticalRatio, b.CriticalRatio)

	assert.Equal(t, memory.LevelOK, b.Classify(0))
	assert.Equal(t, memory.LevelOK, b.Classify(849))
	assert.Equal(t, memory.LevelWarning, b.Classify(850))
	assert.Equal(t, memory.LevelWarning, b.Classify(949))
	assert.Equal(t, memory.LevelCritical, b.Classify(950))
	assert.Equal(t, memory.LevelCritical, b.Classify(5000))

	unbounded := memory.Budget{}.WithDefaults()
	assert.Equal(t, memory.LevelOK, unbounded.Classify(1<<40))
}

func TestBudgetWithDefaultsRepairsRatios(t *testing.T) {
	b := memory.Budget{Limit: 10, WarningRatio: 0.9, CriticalRatio: 0.5}.WithDefaults()
	assert.Equal(t, 0.9, b.WarningRatio)
	assert.Equal(t, memory.DefaultCriticalRatio, b.CriticalRatio)
}

func TestDefaultBudgetIsBounded(t *testing.T) {
	b := memory.DefaultBudget(context.Background())
	assert.NotZero(t, b.Limit)
	assert.LessOrEqual(t, b.Limit, uint64(8<<30))
}

func TestEstimate(t *testing.T) {
	s := timeline.Settings{Width: 1920, Height: 1080}
	frame := uint64(1920 * 1080 * 4)
	assert.Equal(t, frame, memory.FrameBytes(1920, 1080))
	assert.Equal(t, uint64(48000*2*4*10), memory.AudioBytes(10, 48000, 2))
	assert.Equal(t, frame*8+uint64(48000*2*4*10), memory.Estimate(s, 8, 10, 48000, 2))
	assert.Equal(t, frame, memory.Estimate(s, 0, 0, 48000, 2), "window is at least one frame")
	assert.Zero(t, memory.FrameBytes(0, 10))
}

func TestEstimateSaturates(t *testing.T) {
	assert.Equal(t, uint64(math.MaxUint64), memory.AudioBytes(1e300, 48000, 2))
	assert.Equal(t, uint64(math.MaxUint64), memory.AudioBytes(math.Inf(1), 48000, 2))
	assert.Equal(t, uint64(math.MaxUint64), memory.AudioBytes(math.NaN(), 48000, 2))

	s := timeline.Settings{Width: 1920, Height: 1080}
	assert.Equal(t, uint64(math.MaxUint64), memory.Estimate(s, 8, 1e300, 48000, 2))
	assert.Equal(t, uint64(math.MaxUint64), memory.Estimate(s, math.MaxInt, 10, 48000, 2))

	b := memory.Budget{Limit: 1 << 30}.WithDefaults()
	assert.Equal(t, memory.LevelCritical, b.Classify(memory.Estimate(s, 8, 1e15, 48000, 2)))
}

func TestTrackerReserveRelease(t *testing.T) {
	tr := memory.NewTracker(memory.Budget{Limit: 100}, nil)
	tr.Reserve(60)
	tr.Reserve(30)
	assert.Equal(t, uint64(90), tr.Usage())
	assert.Equal(t, memory.LevelWarning, tr.Level())

	tr.Release(50)
	assert.Equal(t, uint64(40), tr.Reserved())
	assert.Equal(t, memory.LevelOK, tr.Level())
	assert.Equal(t, uint64(90), tr.Peak())

	tr.Release(1000)
	assert.Zero(t, tr.Reserved(), "release saturates at zero")
}

func TestTrackerProbe(t *testing.T) {
	var synthetic atomic.Uint64
	tr := memory.NewTracker(memory.Budget{Limit: 100}, synthetic.Load)
	tr.Reserve(10)
	assert.Equal(t, memory.LevelOK, tr.Level())

	synthetic.Store(90)
	assert.Equal(t, uint64(100), tr.Usage())
	assert.Equal(t, memory.LevelCritical, tr.Level())
}

func TestTrackerConcurrentUse(t *testing.T) {
	tr := memory.NewTracker(memory.Budget{Limit: 1 << 20}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Reserve(8)
				tr.Release(8)
			}
		}()
	}
	wg.Wait()
	require.Zero(t, tr.Reserved())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "ok", memory.LevelOK.String())
	assert.Equal(t, "warning", memory.LevelWarning.String())
	assert.Equal(t, "critical", memory.LevelCritical.String())
}
