package render

import "time"

// fpsCounter measures presented frames per second over fixed windows.
type fpsCounter struct {
	interval time.Duration
	count    uint64
	last     time.Time
}

func newFPSCounter(interval time.Duration, now time.Time) *fpsCounter {
	return &fpsCounter{interval: interval, last: now}
}

// tick records one frame. Once per interval it returns the rate since the
// previous report.
func (c *fpsCounter) tick(now time.Time) (float64, bool) {
	c.count++
	elapsed := now.Sub(c.last)
	if elapsed < c.interval {
		return 0, false
	}
	rate := float64(c.count) / elapsed.Seconds()
	c.count = 0
	c.last = now
	return rate, true
}
