package profiling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackAndReset(t *testing.T) {
	ResetFrame()
	stop := Track("test.Op")
	time.Sleep(time.Millisecond)
	stop()

	snap := Snapshot()
	assert.GreaterOrEqual(t, snap["test.Op"], time.Millisecond)

	ResetFrame()
	assert.Empty(t, Snapshot())
}

func TestCountersSurviveFrameReset(t *testing.T) {
	ResetCounters()
	Add("uploads", 2)
	Add("uploads", 3)
	ResetFrame()
	assert.Equal(t, int64(5), Counters()["uploads"])
	ResetCounters()
	assert.Empty(t, Counters())
}

func TestFormatMs(t *testing.T) {
	assert.Equal(t, "4.2ms", formatMs(4200*time.Microsecond))
	assert.Equal(t, "3ms", formatMs(3*time.Millisecond))
	assert.Equal(t, "0ms", formatMs(0))
}

func TestTopNOrdersByDuration(t *testing.T) {
	ResetFrame()
	mu.Lock()
	frameTotals["a"] = 2 * time.Millisecond
	frameTotals["b"] = 5 * time.Millisecond
	frameTotals["c"] = time.Millisecond
	mu.Unlock()
	assert.Equal(t, "b:5ms, a:2ms", TopN(2))
	assert.Equal(t, "b:5ms, a:2ms, c:1ms", TopN(10))
	ResetFrame()
}
