// Package syncloop drives the periodic lookup of the fix and wall-clock label
// in effect at the player's current offset.
package syncloop

import (
	"context"
	"log"
	"time"

	"github.com/shaunagostinho/trailsync/internal/gps"
	"github.com/shaunagostinho/trailsync/internal/observability"
	"github.com/shaunagostinho/trailsync/internal/playback"
	"github.com/shaunagostinho/trailsync/internal/track"
)

// DefaultInterval is the tick period (5 Hz).
const DefaultInterval = 200 * time.Millisecond

// Submitter accepts position events for broadcast. Submit must return
// immediately; delivery happens elsewhere.
type Submitter interface {
	Submit(p gps.Position)
}

// Submitters fans one event out to several submitters in order.
type Submitters []Submitter

func (s Submitters) Submit(p gps.Position) {
	for _, sub := range s {
		sub.Submit(p)
	}
}

// Config holds the sync loop's dependencies.
type Config struct {
	Clock    playback.Clock
	Fixes    *track.Index[track.PositionFix]
	Labels   *track.Index[track.TimeLabel]
	Display  Display
	Out      Submitter
	Interval time.Duration
}

// Loop maps the playback offset to display state and position events.
type Loop struct {
	clock    playback.Clock
	fixes    *track.Index[track.PositionFix]
	labels   *track.Index[track.TimeLabel]
	display  Display
	out      Submitter
	interval time.Duration
}

// New creates a Loop. Nil indices behave as empty logs.
func New(cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Fixes == nil {
		cfg.Fixes = track.NewIndex[track.PositionFix](nil)
	}
	if cfg.Labels == nil {
		cfg.Labels = track.NewIndex[track.TimeLabel](nil)
	}
	if cfg.Display == nil {
		cfg.Display = Displays(nil)
	}
	if cfg.Out == nil {
		cfg.Out = Submitters(nil)
	}
	return &Loop{
		clock:    cfg.Clock,
		fixes:    cfg.Fixes,
		labels:   cfg.Labels,
		display:  cfg.Display,
		out:      cfg.Out,
		interval: cfg.Interval,
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	log.Printf("[sync] running at %v per tick", l.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sync] stopped")
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick performs one lookup. The display always sees the new state before a
// position event is submitted; no event is submitted without a fix.
func (l *Loop) Tick() State {
	offset := l.clock.Position()

	st := State{Offset: offset}
	if lbl, ok := l.labels.At(offset); ok {
		st.Label = lbl.Label
		st.HasLabel = true
	}
	fix, hasFix := l.fixes.At(offset)
	if hasFix {
		st.Latitude = fix.Latitude
		st.Longitude = fix.Longitude
		st.HasFix = true
	}

	observability.Ticks.Inc()
	l.display.Show(st)

	if !hasFix {
		observability.TicksWithoutFix.Inc()
		return st
	}
	l.out.Submit(fix.Position())
	return st
}
