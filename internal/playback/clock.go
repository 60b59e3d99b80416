// Package playback adapts media players to the playback offset the sync loop
// polls.
package playback

import (
	"sync"
	"time"
)

// Clock is the view of the external player the sync loop needs.
type Clock interface {
	// Position returns the current playback offset in seconds. It must not
	// block on I/O.
	Position() float64
	// Play starts or resumes playback.
	Play()
}

// Controller is implemented by clocks that can also be paused and seeked.
type Controller interface {
	Clock
	Pause()
	Seek(seconds float64)
	Playing() bool
}

// SimClock is a player without video: the offset advances with wall time
// while playing.
type SimClock struct {
	mu       sync.Mutex
	now      func() time.Time
	playing  bool
	base     float64   // offset at anchor
	anchor   time.Time // wall time base was captured
	rate     float64
	duration float64 // 0 means unbounded
}

// SimConfig holds configuration for the simulated clock.
type SimConfig struct {
	Start    float64 `yaml:"start" json:"start"`       // Initial offset, seconds
	Rate     float64 `yaml:"rate" json:"rate"`         // Playback speed multiplier
	Duration float64 `yaml:"duration" json:"duration"` // Stop at this offset (0 = never)
}

// NewSimClock creates a paused simulated clock.
func NewSimClock(cfg SimConfig) *SimClock {
	return newSimClock(cfg, time.Now)
}

func newSimClock(cfg SimConfig, now func() time.Time) *SimClock {
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Start < 0 {
		cfg.Start = 0
	}
	return &SimClock{
		now:      now,
		base:     cfg.Start,
		rate:     cfg.Rate,
		duration: cfg.Duration,
	}
}

func (c *SimClock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *SimClock) positionLocked() float64 {
	pos := c.base
	if c.playing {
		pos += c.now().Sub(c.anchor).Seconds() * c.rate
	}
	if c.duration > 0 && pos > c.duration {
		pos = c.duration
	}
	return pos
}

func (c *SimClock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.anchor = c.now()
	c.playing = true
}

func (c *SimClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.base = c.positionLocked()
	c.playing = false
}

// Seek jumps to seconds, backwards or forwards, keeping the play state.
func (c *SimClock) Seek(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	c.base = seconds
	c.anchor = c.now()
}

func (c *SimClock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}
