// ABOUTME: Tests for the telemetry monitor server and viewer client
// ABOUTME: Exercises handshake, stats broadcast, event fan-out and slow-viewer drops
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Resonate-Protocol/soundscape/pkg/sound"
)

type fakeSource struct {
	id    uuid.UUID
	stats sound.Stats
}

func (f *fakeSource) ID() uuid.UUID { return f.id }
func (f *fakeSource) Config() sound.Config {
	return sound.Config{SampleRate: 48000, Quantum: 256, MaxSources: 32}
}
func (f *fakeSource) Stats() sound.Stats              { return f.stats }
func (f *fakeSource) QuantumDuration() time.Duration { return 5 * time.Millisecond }

func newTestMonitor(t *testing.T, cfg Config) (*Server, *fakeSource, string) {
	t.Helper()
	src := &fakeSource{
		id: uuid.New(),
		stats: sound.Stats{
			Passes:        42,
			ActiveSources: 3,
			Underruns:     1,
			LastPass:      time.Millisecond,
			PeakLeft:      0.5,
		},
	}
	srv := NewServer(src, cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, src, strings.TrimPrefix(ts.URL, "http://")
}

func dialTest(t *testing.T, addr string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, "")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func nextUpdate(t *testing.T, c *Client, want func(Update) bool) Update {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-c.Updates():
			if !ok {
				t.Fatal("updates channel closed")
			}
			if want(u) {
				return u
			}
		case <-timeout:
			t.Fatal("timed out waiting for update")
		}
	}
}

func waitClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for srv.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d viewers, have %d", n, srv.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHelloIdentifiesEngine(t *testing.T) {
	t.Parallel()
	_, src, addr := newTestMonitor(t, Config{})
	c := dialTest(t, addr)

	hello := c.Hello()
	if hello.EngineID != src.id.String() {
		t.Errorf("expected engine id %s, got %s", src.id, hello.EngineID)
	}
	if _, err := uuid.Parse(hello.SessionID); err != nil {
		t.Errorf("session id %q is not a uuid: %v", hello.SessionID, err)
	}
	if hello.SampleRate != 48000 || hello.Quantum != 256 || hello.MaxSources != 32 {
		t.Errorf("unexpected engine config in hello: %+v", hello)
	}
	if hello.Product == "" || hello.Version == "" {
		t.Errorf("hello missing product identification: %+v", hello)
	}
}

func TestSessionsAreDistinct(t *testing.T) {
	t.Parallel()
	srv, _, addr := newTestMonitor(t, Config{})
	a := dialTest(t, addr)
	b := dialTest(t, addr)

	if a.Hello().SessionID == b.Hello().SessionID {
		t.Error("expected distinct session ids")
	}
	waitClients(t, srv, 2)
}

func TestPublishReachesViewer(t *testing.T) {
	t.Parallel()
	srv, _, addr := newTestMonitor(t, Config{})
	c := dialTest(t, addr)
	waitClients(t, srv, 1)

	srv.Publish(sound.Event{Kind: sound.EventDecodeError, Frames: 96000, Err: errors.New("bad frame")})

	u := nextUpdate(t, c, func(u Update) bool { return u.Event != nil })
	if u.Event.Kind != sound.EventDecodeError.String() {
		t.Errorf("expected kind %s, got %s", sound.EventDecodeError, u.Event.Kind)
	}
	if u.Event.Frames != 96000 {
		t.Errorf("expected frames 96000, got %d", u.Event.Frames)
	}
	if u.Event.Error != "bad frame" {
		t.Errorf("expected error text, got %q", u.Event.Error)
	}
}

func TestRunBroadcastsStats(t *testing.T) {
	t.Parallel()
	srv, _, addr := newTestMonitor(t, Config{Interval: 10 * time.Millisecond})
	c := dialTest(t, addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	u := nextUpdate(t, c, func(u Update) bool { return u.Stats != nil })
	if u.Stats.Passes != 42 || u.Stats.ActiveSources != 3 || u.Stats.Underruns != 1 {
		t.Errorf("unexpected stats: %+v", u.Stats)
	}
	if u.Stats.LastPassMicros != 1000 {
		t.Errorf("expected last pass 1000us, got %d", u.Stats.LastPassMicros)
	}
	if u.Stats.Load < 0.19 || u.Stats.Load > 0.21 {
		t.Errorf("expected load 0.2, got %f", u.Stats.Load)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	_, _, addr := newTestMonitor(t, Config{})

	resp, err := http.Get("http://" + addr + "/stats")
	if err != nil {
		t.Fatalf("GET /stats failed: %v", err)
	}
	defer resp.Body.Close()

	var p StatsPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if p.Passes != 42 || p.PeakLeft != 0.5 {
		t.Errorf("unexpected stats payload: %+v", p)
	}
}

func TestViewerDisconnectUnregisters(t *testing.T) {
	t.Parallel()
	srv, _, addr := newTestMonitor(t, Config{})
	c := dialTest(t, addr)
	waitClients(t, srv, 1)

	c.Close()
	waitClients(t, srv, 0)

	// Publishing with no viewers is a no-op
	srv.Publish(sound.Event{Kind: sound.EventUnderrun})
}

func TestCloseEndsViewerUpdates(t *testing.T) {
	t.Parallel()
	srv, _, addr := newTestMonitor(t, Config{})
	c := dialTest(t, addr)
	waitClients(t, srv, 1)

	srv.Close()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-c.Updates():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("updates channel not closed after server Close")
		}
	}
}

func TestSlowViewerDropsMessages(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeSource{id: uuid.New()}, Config{SendQueue: 1})
	slow := &client{id: uuid.New(), send: make(chan Message, 1), done: make(chan struct{})}
	srv.clients[slow.id] = slow

	srv.Publish(sound.Event{Kind: sound.EventUnderrun})
	srv.Publish(sound.Event{Kind: sound.EventUnderrun})
	srv.Publish(sound.Event{Kind: sound.EventUnderrun})

	if got := slow.dropped.Load(); got != 2 {
		t.Errorf("expected 2 dropped messages, got %d", got)
	}
	if len(slow.send) != 1 {
		t.Errorf("expected queue to hold 1 message, has %d", len(slow.send))
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeSource{id: uuid.New()}, Config{Interval: 5 * time.Millisecond})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	c := dialTest(t, ln.Addr().String())
	nextUpdate(t, c, func(u Update) bool { return u.Stats != nil })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestEventPayloadOmitsEmptyError(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(NewEventPayload(sound.Event{Kind: sound.EventSourceStopped}))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), "error") {
		t.Errorf("expected no error field, got %s", data)
	}
}
