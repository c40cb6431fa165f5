package session

import (
	"sync"
	"time"
)

// rateWindow is the averaging window for send-rate display.
const rateWindow = 2 * time.Second

// SendCounter tracks messages and bytes pushed over the data channels,
// with a short-window rate for the status display.
type SendCounter struct {
	mu          sync.Mutex
	totalMsgs   uint64
	totalBytes  uint64
	windowMsgs  uint64
	windowStart time.Time
	lastRate    float64
}

// Add records one sent message of the given size.
func (c *SendCounter) Add(bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.windowStart.IsZero() {
		c.windowStart = now
	}
	c.totalMsgs++
	c.totalBytes += uint64(bytes)
	c.windowMsgs++

	if elapsed := now.Sub(c.windowStart); elapsed >= rateWindow {
		c.lastRate = float64(c.windowMsgs) / elapsed.Seconds()
		c.windowMsgs = 0
		c.windowStart = now
	}
}

// Snapshot returns totals and the most recent per-second rate.
func (c *SendCounter) Snapshot() (msgs, bytes uint64, perSec float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalMsgs, c.totalBytes, c.lastRate
}

// Reset clears the counter for a new broadcast phase.
func (c *SendCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalMsgs, c.totalBytes, c.windowMsgs = 0, 0, 0
	c.windowStart = time.Time{}
	c.lastRate = 0
}
