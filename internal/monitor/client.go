// ABOUTME: WebSocket viewer for a remote engine monitor
// ABOUTME: Performs the hello handshake and decodes stats and events into updates
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrUnexpectedMessage = errors.New("unexpected monitor message")

const helloTimeout = 5 * time.Second

// Update carries exactly one of Stats or Event
type Update struct {
	Stats *StatsPayload
	Event *EventPayload
}

// Client is a connected monitor viewer
type Client struct {
	conn    *websocket.Conn
	hello   Hello
	updates chan Update
	done    chan struct{}
	once    sync.Once
}

// Dial connects to the monitor at addr (host:port) and waits for its hello
func Dial(ctx context.Context, addr, path string) (*Client, error) {
	if path == "" {
		path = "/monitor"
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: path}
	log.Debugf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Client{
		conn:    conn,
		updates: make(chan Update, 64),
		done:    make(chan struct{}),
	}
	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return c, nil
}

// handshake reads the monitor/hello that opens every session
func (c *Client) handshake() error {
	c.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", TypeHello, err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to parse %s: %w", TypeHello, err)
	}
	if env.Type != TypeHello {
		return fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedMessage, TypeHello, env.Type)
	}
	if err := json.Unmarshal(env.Payload, &c.hello); err != nil {
		return fmt.Errorf("failed to parse %s payload: %w", TypeHello, err)
	}
	return nil
}

// Hello returns the engine identification received at connect
func (c *Client) Hello() Hello {
	return c.hello
}

// Updates delivers decoded telemetry. The channel is closed when the
// connection ends.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Close disconnects from the monitor
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// readMessages decodes messages until the connection fails or Close is called
func (c *Client) readMessages() {
	defer close(c.updates)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("Monitor read error: %v", err)
				}
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warnf("Error unmarshaling monitor message: %v", err)
			continue
		}

		var u Update
		switch env.Type {
		case TypeStats:
			u.Stats = new(StatsPayload)
			err = json.Unmarshal(env.Payload, u.Stats)
		case TypeEvent:
			u.Event = new(EventPayload)
			err = json.Unmarshal(env.Payload, u.Event)
		default:
			log.Debugf("Ignoring monitor message %s", env.Type)
			continue
		}
		if err != nil {
			log.Warnf("Error parsing %s payload: %v", env.Type, err)
			continue
		}

		select {
		case c.updates <- u:
		case <-c.done:
			return
		}
	}
}
