// ABOUTME: WebSocket telemetry server for a running engine
// ABOUTME: Streams periodic stats and engine events as JSON to any number of viewers
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/soundscape/internal/version"
	"github.com/Resonate-Protocol/soundscape/pkg/sound"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	shutdownGrace = 5 * time.Second
)

// Source is the engine surface the monitor reads
type Source interface {
	ID() uuid.UUID
	Config() sound.Config
	Stats() sound.Stats
	QuantumDuration() time.Duration
}

// Config holds server configuration
type Config struct {
	Path      string        // WebSocket endpoint, default /monitor
	Interval  time.Duration // stats period, default 250ms
	SendQueue int           // per-viewer message queue, default 64
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/monitor"
	}
	if c.Interval <= 0 {
		c.Interval = 250 * time.Millisecond
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	return c
}

// Server fans engine telemetry out to WebSocket viewers
type Server struct {
	cfg      Config
	src      Source
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	closed  bool

	wg sync.WaitGroup
}

// client is one connected viewer
type client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	send    chan Message
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewServer creates a monitor for src
func NewServer(src Source, cfg Config) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg: cfg,
		src: src,
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Viewers are local tools; browsers on other origins are accepted
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]*client),
	}
	s.mux.HandleFunc(cfg.Path, s.handleWebSocket)
	s.mux.HandleFunc("/stats", s.handleStats)
	return s
}

// Handler returns the HTTP handler serving the monitor endpoints
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Path returns the WebSocket endpoint path
func (s *Server) Path() string {
	return s.cfg.Path
}

// Clients returns the number of connected viewers
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Serve accepts viewers on ln and broadcasts stats until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{Handler: s.mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Monitor listening on %s%s", ln.Addr(), s.cfg.Path)
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.Close()
		return err
	})

	err := g.Wait()
	s.wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Run broadcasts a stats snapshot every interval until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.broadcast(Message{
				Type:    TypeStats,
				Payload: NewStatsPayload(s.src.Stats(), s.src.QuantumDuration()),
			})
		}
	}
}

// Publish forwards an engine event to every viewer
func (s *Server) Publish(ev sound.Event) {
	s.broadcast(Message{Type: TypeEvent, Payload: NewEventPayload(ev)})
}

// Close disconnects every viewer and refuses new ones
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.stop()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// broadcast queues msg for every viewer, dropping it for viewers whose
// queue is full
func (s *Server) broadcast(msg Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		select {
		case c.send <- msg:
		default:
			if c.dropped.Add(1) == 1 {
				log.Warnf("Viewer %s is not keeping up, dropping messages", c.id)
			}
		}
	}
}

// handleStats serves one stats snapshot over plain HTTP
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := NewStatsPayload(s.src.Stats(), s.src.QuantumDuration())
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Debugf("stats response error: %v", err)
	}
}

// handleWebSocket upgrades a viewer and runs its connection
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan Message, s.cfg.SendQueue),
		done: make(chan struct{}),
	}
	c.send <- s.hello(c.id)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.Debugf("Rejecting viewer %s during shutdown", r.RemoteAddr)
		conn.Close()
		return
	}
	s.clients[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()

	log.Infof("Viewer %s connected from %s", c.id, r.RemoteAddr)
	s.handleConnection(c)
}

// hello identifies the engine to a new viewer
func (s *Server) hello(session uuid.UUID) Message {
	h := NewHello(s.src)
	h.SessionID = session.String()
	return Message{Type: TypeHello, Payload: h}
}

// NewHello describes src without a session
func NewHello(src Source) Hello {
	cfg := src.Config()
	return Hello{
		EngineID:   src.ID().String(),
		Product:    version.Product,
		Version:    version.Version,
		SampleRate: cfg.SampleRate,
		Quantum:    cfg.Quantum,
		MaxSources: cfg.MaxSources,
	}
}

// handleConnection starts the writer and reads until the
// viewer goes away
func (s *Server) handleConnection(c *client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		c.stop()
		c.conn.Close()
		log.Infof("Viewer %s disconnected (%d messages dropped)", c.id, c.dropped.Load())
	}()

	go s.clientWriter(c)

	// Viewers never send anything meaningful; reading keeps control
	// frames flowing and notices the close
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("Viewer %s read error: %v", c.id, err)
			}
			return
		}
	}
}

// clientWriter drains the viewer's queue onto the connection
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Errorf("Error marshaling %s: %v", msg.Type, err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debugf("Viewer %s write error: %v", c.id, err)
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
