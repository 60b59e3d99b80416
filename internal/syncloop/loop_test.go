package syncloop

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaunagostinho/trailsync/internal/gps"
	"github.com/shaunagostinho/trailsync/internal/track"
)

type manualClock struct {
	mu  sync.Mutex
	pos float64
}

func (c *manualClock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

func (c *manualClock) Play() {}

func (c *manualClock) set(p float64) {
	c.mu.Lock()
	c.pos = p
	c.mu.Unlock()
}

// journal records display and submit calls in one ordered stream.
type journal struct {
	mu     sync.Mutex
	events []string
	states []State
	subs   []gps.Position
}

func (j *journal) Show(st State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, "show")
	j.states = append(j.states, st)
}

func (j *journal) Submit(p gps.Position) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, "submit")
	j.subs = append(j.subs, p)
}

func (j *journal) counts() (shows, submits int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.states), len(j.subs)
}

func testIndices() (*track.Index[track.PositionFix], *track.Index[track.TimeLabel]) {
	fixes := track.NewIndex([]track.PositionFix{
		{Time: 0, Latitude: -32.5, Longitude: 115.9},
		{Time: 10, Latitude: -32.6, Longitude: 116.0},
	})
	labels := track.NewIndex([]track.TimeLabel{
		{Time: 2, Label: " 14:09:23"},
	})
	return fixes, labels
}

func TestTick(t *testing.T) {
	fixes, labels := testIndices()

	tests := []struct {
		name       string
		offset     float64
		wantFix    bool
		wantLabel  bool
		wantLat    float64
		wantSubmit bool
	}{
		{name: "before everything", offset: -1, wantFix: false, wantLabel: false},
		{name: "fix but no label yet", offset: 1, wantFix: true, wantLat: -32.5, wantSubmit: true},
		{name: "fix and label", offset: 5, wantFix: true, wantLabel: true, wantLat: -32.5, wantSubmit: true},
		{name: "after last fix", offset: 100, wantFix: true, wantLabel: true, wantLat: -32.6, wantSubmit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &journal{}
			clock := &manualClock{pos: tt.offset}
			l := New(Config{Clock: clock, Fixes: fixes, Labels: labels, Display: j, Out: j})

			st := l.Tick()
			if st.HasFix != tt.wantFix || st.HasLabel != tt.wantLabel {
				t.Fatalf("state = %+v", st)
			}
			if tt.wantFix && st.Latitude != tt.wantLat {
				t.Errorf("lat = %v, want %v", st.Latitude, tt.wantLat)
			}

			shows, submits := j.counts()
			if shows != 1 {
				t.Errorf("display shown %d times, want 1", shows)
			}
			if (submits == 1) != tt.wantSubmit || submits > 1 {
				t.Errorf("submits = %d, want submit=%v", submits, tt.wantSubmit)
			}
			if tt.wantSubmit && j.events[0] != "show" {
				t.Errorf("events = %v, display must come first", j.events)
			}
		})
	}
}

func TestTickToleratesSeekBackward(t *testing.T) {
	fixes, labels := testIndices()
	j := &journal{}
	clock := &manualClock{}
	l := New(Config{Clock: clock, Fixes: fixes, Labels: labels, Display: j, Out: j})

	clock.set(12)
	if st := l.Tick(); st.Latitude != -32.6 {
		t.Fatalf("at 12: %+v", st)
	}
	clock.set(3)
	if st := l.Tick(); st.Latitude != -32.5 || !st.HasLabel {
		t.Fatalf("after seek back to 3: %+v", st)
	}
	clock.set(-0.5)
	if st := l.Tick(); st.HasFix || st.HasLabel {
		t.Fatalf("after seek before start: %+v", st)
	}

	if len(j.subs) != 2 {
		t.Errorf("submits = %d, want 2", len(j.subs))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	fixes, labels := testIndices()
	j := &journal{}
	l := New(Config{
		Clock:    &manualClock{pos: 1},
		Fixes:    fixes,
		Labels:   labels,
		Display:  j,
		Out:      j,
		Interval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if shows, _ := j.counts(); shows >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("loop did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	shows, _ := j.counts()
	time.Sleep(20 * time.Millisecond)
	if after, _ := j.counts(); after != shows {
		t.Errorf("ticked after cancel: %d -> %d", shows, after)
	}
}

func TestNewDefaults(t *testing.T) {
	l := New(Config{Clock: &manualClock{pos: 4}})
	if l.interval != DefaultInterval {
		t.Errorf("interval = %v", l.interval)
	}
	if st := l.Tick(); st.HasFix || st.HasLabel {
		t.Errorf("empty loop produced %+v", st)
	}
}

func TestStateText(t *testing.T) {
	unknown := State{}
	if got := unknown.TimeText(); got != "Current Time: --:--:--" {
		t.Errorf("TimeText = %q", got)
	}
	if got := unknown.PositionText(); got != "Current GPS: --, --" {
		t.Errorf("PositionText = %q", got)
	}

	st := State{Label: " 14:09:21", HasLabel: true, Latitude: -32.5121111, Longitude: 115.97735, HasFix: true}
	if got := st.TimeText(); got != "Current Time: 14:09:21" {
		t.Errorf("TimeText = %q", got)
	}
	if got := st.PositionText(); got != "Current GPS: -32.512111, 115.977350" {
		t.Errorf("PositionText = %q", got)
	}
}

func TestConsoleDisplayOnlyOnChange(t *testing.T) {
	var b strings.Builder
	c := NewConsoleDisplay(&b)

	st := State{Label: "a", HasLabel: true}
	c.Show(st)
	c.Show(st)
	st.Offset = 9 // offset alone does not change the text
	c.Show(st)
	c.Show(State{})

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), b.String())
	}
}

func TestSnapshotAndFanOut(t *testing.T) {
	var snap Snapshot
	if _, ok := snap.Latest(); ok {
		t.Error("Latest ok before first Show")
	}

	j1, j2 := &journal{}, &journal{}
	Displays{&snap, j1}.Show(State{Offset: 3})
	Submitters{j1, j2}.Submit(gps.Position{Latitude: 1})

	if st, ok := snap.Latest(); !ok || st.Offset != 3 {
		t.Errorf("Latest = %+v, %v", st, ok)
	}
	if len(j1.subs) != 1 || len(j2.subs) != 1 {
		t.Errorf("fan-out submits = %d, %d", len(j1.subs), len(j2.subs))
	}
}
