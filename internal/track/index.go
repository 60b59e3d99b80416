// Package track holds the immutable time-ordered lookup tables built from the
// position and wall-clock logs of a recorded session.
package track

import (
	"math"
	"sort"

	"github.com/shaunagostinho/trailsync/internal/gps"
)

// Entry is anything stamped with a playback offset in seconds.
type Entry interface {
	Offset() float64
}

// PositionFix is one timestamped geographic coordinate.
type PositionFix struct {
	Time      float64 `json:"time"`      // Seconds into the video
	Latitude  float64 `json:"latitude"`  // Decimal degrees
	Longitude float64 `json:"longitude"` // Decimal degrees
}

func (p PositionFix) Offset() float64 { return p.Time }

// Position returns the broadcast payload for this fix.
func (p PositionFix) Position() gps.Position {
	return gps.Position{Latitude: p.Latitude, Longitude: p.Longitude}
}

// TimeLabel is a free-form wall-clock string in effect from Time onwards.
type TimeLabel struct {
	Time  float64 `json:"time"`
	Label string  `json:"label"`
}

func (l TimeLabel) Offset() float64 { return l.Time }

// Index answers "which entry is in effect at offset t". It is immutable
// after construction and safe for concurrent readers.
type Index[T Entry] struct {
	entries []T
}

// NewIndex copies entries and stable-sorts them by offset, so entries that
// share an offset keep their source order.
func NewIndex[T Entry](entries []T) *Index[T] {
	sorted := make([]T, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset() < sorted[j].Offset()
	})
	return &Index[T]{entries: sorted}
}

// Len returns the number of entries.
func (ix *Index[T]) Len() int { return len(ix.entries) }

// At returns the entry with the greatest offset not after t. When several
// entries share that offset the last one in source order wins. It reports
// false when t precedes the first entry, t is NaN, or the index is empty.
func (ix *Index[T]) At(t float64) (T, bool) {
	var zero T
	if math.IsNaN(t) {
		return zero, false
	}
	// first entry strictly after t
	i := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].Offset() > t
	})
	if i == 0 {
		return zero, false
	}
	return ix.entries[i-1], true
}

// Span returns the first and last offsets. Both are zero for an empty index.
func (ix *Index[T]) Span() (first, last float64) {
	if len(ix.entries) == 0 {
		return 0, 0
	}
	return ix.entries[0].Offset(), ix.entries[len(ix.entries)-1].Offset()
}
