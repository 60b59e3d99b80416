package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaunagostinho/trailsync/internal/gps"
)

var errFakeClosed = errors.New("fake: closed")

// fakeConn stands in for a websocket connection.
type fakeConn struct {
	fail   bool
	wrote  chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes int
}

func newFakeConn(fail bool) *fakeConn {
	return &fakeConn{
		fail:   fail,
		wrote:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errFakeClosed
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	if f.fail {
		return errors.New("fake: broken pipe")
	}
	f.wrote <- append([]byte(nil), data...)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func startHub(t *testing.T, bridgeBuffer, clientBuffer int) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub(bridgeBuffer, clientBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h, cancel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %s", what)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func recv(t *testing.T, c *fakeConn) gps.Position {
	t.Helper()
	select {
	case data := <-c.wrote:
		var p gps.Position
		if err := json.Unmarshal(data, &p); err != nil {
			t.Fatalf("bad payload %q: %v", data, err)
		}
		return p
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return gps.Position{}
	}
}

// TestSubmitNoClients verifies an idle hub does no work.
func TestSubmitNoClients(t *testing.T) {
	h, _ := startHub(t, 4, 4)

	h.Submit(gps.Position{Latitude: 1, Longitude: 2})

	st := h.Stats()
	if st.Submitted != 0 || st.Broadcasts != 0 {
		t.Errorf("idle hub stats = %+v, want nothing submitted or broadcast", st)
	}
	if st.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", st.Dropped)
	}
}

// TestFanOut verifies every client receives the exact wire payload.
func TestFanOut(t *testing.T) {
	h, _ := startHub(t, 4, 4)
	a, b := newFakeConn(false), newFakeConn(false)
	h.attach(a)
	h.attach(b)
	waitFor(t, "two clients", func() bool { return h.Len() == 2 })

	h.Submit(gps.Position{Latitude: -32.5, Longitude: 115.25})

	for _, c := range []*fakeConn{a, b} {
		select {
		case data := <-c.wrote:
			if string(data) != `{"lat":-32.5,"lon":115.25}` {
				t.Errorf("payload = %s", data)
			}
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
	if st := h.Stats(); st.Broadcasts != 1 || st.Submitted != 1 {
		t.Errorf("stats = %+v", st)
	}
}

// TestFailedClientIsolated verifies a broken client is removed without
// affecting delivery to a healthy one.
func TestFailedClientIsolated(t *testing.T) {
	h, _ := startHub(t, 4, 4)
	bad, good := newFakeConn(true), newFakeConn(false)
	h.attach(bad)
	h.attach(good)
	waitFor(t, "two clients", func() bool { return h.Len() == 2 })

	h.Submit(gps.Position{Latitude: 1})
	if p := recv(t, good); p.Latitude != 1 {
		t.Errorf("good client got %+v", p)
	}

	waitFor(t, "bad client removal", func() bool { return h.Len() == 1 })
	if !bad.isClosed() {
		t.Error("failed client was not closed")
	}
	if st := h.Stats(); st.SendFailures != 1 {
		t.Errorf("SendFailures = %d, want 1", st.SendFailures)
	}

	h.Submit(gps.Position{Latitude: 2})
	if p := recv(t, good); p.Latitude != 2 {
		t.Errorf("good client got %+v", p)
	}
	if n := bad.writeCount(); n != 1 {
		t.Errorf("bad client saw %d writes, want 1", n)
	}
}

// TestDisconnectedClientSkipped verifies a client that went away is not
// written to again.
func TestDisconnectedClientSkipped(t *testing.T) {
	h, _ := startHub(t, 4, 4)
	gone, stay := newFakeConn(false), newFakeConn(false)
	h.attach(gone)
	h.attach(stay)
	waitFor(t, "two clients", func() bool { return h.Len() == 2 })

	gone.Close() // reader sees the disconnect
	waitFor(t, "disconnect", func() bool { return h.Len() == 1 })

	h.Submit(gps.Position{Latitude: 3})
	recv(t, stay)
	if n := gone.writeCount(); n != 0 {
		t.Errorf("disconnected client saw %d writes", n)
	}
}

// TestSubmitOrder verifies events arrive in submission order.
func TestSubmitOrder(t *testing.T) {
	h, _ := startHub(t, 32, 32)
	c := newFakeConn(false)
	h.attach(c)
	waitFor(t, "client", func() bool { return h.Len() == 1 })

	for i := 0; i < 20; i++ {
		h.Submit(gps.Position{Latitude: float64(i)})
	}
	for i := 0; i < 20; i++ {
		if p := recv(t, c); p.Latitude != float64(i) {
			t.Fatalf("message %d = %+v, out of order", i, p)
		}
	}
}

// TestSubmitNeverBlocks verifies a stalled hub drops instead of blocking.
func TestSubmitNeverBlocks(t *testing.T) {
	h := NewHub(1, 1) // never started
	h.count.Store(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			h.Submit(gps.Position{Latitude: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Submit blocked")
	}
	if st := h.Stats(); st.Submitted != 1 || st.Dropped != 2 {
		t.Errorf("stats = %+v, want 1 submitted, 2 dropped", st)
	}
}

// TestNoReplayForNewClients verifies late joiners only see later events.
func TestNoReplayForNewClients(t *testing.T) {
	h, _ := startHub(t, 4, 4)
	early := newFakeConn(false)
	h.attach(early)
	waitFor(t, "client", func() bool { return h.Len() == 1 })

	h.Submit(gps.Position{Latitude: 1})
	recv(t, early)

	late := newFakeConn(false)
	h.attach(late)
	waitFor(t, "late client", func() bool { return h.Len() == 2 })

	select {
	case data := <-late.wrote:
		t.Fatalf("late client got replay %s", data)
	case <-time.After(30 * time.Millisecond):
	}

	h.Submit(gps.Position{Latitude: 2})
	if p := recv(t, late); p.Latitude != 2 {
		t.Errorf("late client first message = %+v, want lat 2", p)
	}
}

// TestShutdownClosesClients verifies cancellation closes every connection
// and later calls are harmless.
func TestShutdownClosesClients(t *testing.T) {
	h, cancel := startHub(t, 4, 4)
	a, b := newFakeConn(false), newFakeConn(false)
	h.attach(a)
	h.attach(b)
	waitFor(t, "two clients", func() bool { return h.Len() == 2 })

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	if !a.isClosed() || !b.isClosed() {
		t.Error("connections left open after shutdown")
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d after shutdown", h.Len())
	}

	h.Submit(gps.Position{})
	late := newFakeConn(false)
	h.attach(late)
	if !late.isClosed() {
		t.Error("connection attached after shutdown was not closed")
	}
}
