// Package publish mirrors the live position stream to message brokers and
// caches alongside the websocket channel.
package publish

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/shaunagostinho/trailsync/internal/gps"
	"github.com/shaunagostinho/trailsync/internal/observability"
)

// Publisher delivers one position to an external system.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// publishTimeout bounds a single delivery so one stuck broker call cannot
// hold the queue forever.
const publishTimeout = 2 * time.Second

// Mirror queues positions for a Publisher and delivers them from its own
// goroutine. Submit never blocks.
type Mirror struct {
	name  string
	pub   Publisher
	queue chan gps.Position
	done  chan struct{}

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// MirrorStats is a snapshot of mirror counters.
type MirrorStats struct {
	Published uint64
	Failed    uint64
	Dropped   uint64
}

// NewMirror creates a mirror named name (used in logs and metrics).
func NewMirror(name string, pub Publisher, buffer int) *Mirror {
	if buffer <= 0 {
		buffer = 32
	}
	return &Mirror{
		name:  name,
		pub:   pub,
		queue: make(chan gps.Position, buffer),
		done:  make(chan struct{}),
	}
}

// Name returns the mirror name.
func (m *Mirror) Name() string { return m.name }

// Submit queues p, dropping it when the queue is full or the mirror stopped.
func (m *Mirror) Submit(p gps.Position) {
	select {
	case <-m.done:
		m.drop()
		return
	default:
	}
	select {
	case m.queue <- p:
	default:
		m.drop()
	}
}

func (m *Mirror) drop() {
	m.dropped.Add(1)
	observability.MirrorDropped.WithLabelValues(m.name).Inc()
}

// Stats returns current counters.
func (m *Mirror) Stats() MirrorStats {
	return MirrorStats{
		Published: m.published.Load(),
		Failed:    m.failed.Load(),
		Dropped:   m.dropped.Load(),
	}
}

// Run delivers queued positions until ctx is cancelled, then closes the
// publisher.
func (m *Mirror) Run(ctx context.Context) {
	defer func() {
		close(m.done)
		if err := m.pub.Close(); err != nil {
			log.Printf("[%s] close: %v", m.name, err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-m.queue:
			m.deliver(ctx, p)
		}
	}
}

func (m *Mirror) deliver(ctx context.Context, p gps.Position) {
	payload, err := json.Marshal(p)
	if err != nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := m.pub.Publish(pubCtx, payload); err != nil {
		m.failed.Add(1)
		observability.MirrorErrors.WithLabelValues(m.name).Inc()
		log.Printf("[%s] publish failed: %v", m.name, err)
		return
	}
	m.published.Add(1)
	observability.MirrorPublished.WithLabelValues(m.name).Inc()
}
