package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaunagostinho/trailsync/internal/publish"
)

type slowClosePublisher struct {
	closed atomic.Bool
}

func (p *slowClosePublisher) Publish(ctx context.Context, payload []byte) error { return nil }

func (p *slowClosePublisher) Close() error {
	time.Sleep(50 * time.Millisecond) // pending batch flush
	p.closed.Store(true)
	return nil
}

func TestRunMirrorsWaitsForClose(t *testing.T) {
	pubs := []*slowClosePublisher{{}, {}}
	mirrors := []*publish.Mirror{
		publish.NewMirror("a", pubs[0], 4),
		publish.NewMirror("b", pubs[1], 4),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runMirrors(ctx, mirrors)

	select {
	case <-done:
		t.Fatal("done before cancel")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mirrors did not stop")
	}
	for i, p := range pubs {
		if !p.closed.Load() {
			t.Errorf("publisher %d not closed when done fired", i)
		}
	}
}

func TestRunMirrorsNone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	select {
	case <-runMirrors(ctx, nil):
	case <-time.After(time.Second):
		t.Fatal("no mirrors: done never closed")
	}
}
