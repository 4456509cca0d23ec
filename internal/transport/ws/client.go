// Package ws connects a session engine to the server over a WebSocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/livedoc/internal/protocol"
	"github.com/xiaot623/livedoc/internal/session"
)

// ErrClosed is returned when the connection is gone.
var ErrClosed = errors.New("connection closed")

// Config holds the WebSocket connection settings.
type Config struct {
	URL            string
	Header         http.Header
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

type frame struct {
	in  *protocol.Inbound
	err error
}

// Client owns one connection. Inbound frames are decoded on the read
// goroutine and applied to the engine on the goroutine running Run.
type Client struct {
	cfg  Config
	conn *websocket.Conn

	send     chan []byte
	inbound  chan frame
	commands chan func(*session.Engine)

	closed    chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	mu      sync.Mutex
	readErr error
}

// Dial connects to cfg.URL.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.WriteTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		cfg:      cfg,
		conn:     conn,
		send:     make(chan []byte, cfg.SendBuffer),
		inbound:  make(chan frame, cfg.SendBuffer),
		commands: make(chan func(*session.Engine)),
		closed:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Send queues out for writing. It implements session.Sender.
func (c *Client) Send(ctx context.Context, out *protocol.Outbound) error {
	data, err := protocol.EncodeOutbound(out)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resync asks the server for a fresh run after the engine lost track of the
// message cache. It is meant for session.Options.OnResync.
func (c *Client) Resync(e *session.Engine, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()

	glog.Infof("ws: requesting a fresh run after %v", cause)
	if _, err := e.RequestRerun(ctx, session.RerunOptions{}); err != nil {
		glog.Errorf("ws: resync failed: %v", err)
	}
}

// Do runs fn on the engine goroutine and waits for it to return. It must not
// be called from that goroutine. ctx only bounds the wait for the engine to
// pick fn up; once accepted, fn runs to completion before Do returns, so
// variables it writes may be read afterwards. On error fn was never run.
func (c *Client) Do(ctx context.Context, fn func(*session.Engine)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	cmd := func(e *session.Engine) {
		defer close(done)
		fn(e)
	}
	select {
	case c.commands <- cmd:
	case <-c.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Run pumps messages between the connection and engine until ctx is done
// or the connection drops. Frames that arrive together are all received
// before the queue is flushed, so a new session among them supersedes the
// older messages.
func (c *Client) Run(ctx context.Context, engine *session.Engine) error {
	defer close(c.stopped)
	defer c.Close()

	go c.writePump()
	go c.readPump()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.commands:
			cmd(engine)
		case f, ok := <-c.inbound:
			if !ok {
				engine.Flush()
				return c.err()
			}
			c.apply(engine, f)
			if !c.drain(engine) {
				engine.Flush()
				return c.err()
			}
			engine.Flush()
		}
	}
}

// drain receives every frame already waiting. It reports false once the
// read side has closed.
func (c *Client) drain(engine *session.Engine) bool {
	for {
		select {
		case f, ok := <-c.inbound:
			if !ok {
				return false
			}
			c.apply(engine, f)
		default:
			return true
		}
	}
}

func (c *Client) apply(engine *session.Engine, f frame) {
	if f.err != nil {
		engine.Flush()
		engine.ReportDecodeFailure(f.err)
		return
	}
	engine.Receive(f.in)
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
		err = c.conn.Close()
	})
	return err
}

func (c *Client) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr == nil {
		return ErrClosed
	}
	return c.readErr
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer close(c.inbound)

	c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					glog.Errorf("ws: read failed: %v", err)
				}
				c.mu.Lock()
				c.readErr = fmt.Errorf("%w: %w", ErrClosed, err)
				c.mu.Unlock()
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		in, err := protocol.DecodeInbound(message)
		if glog.V(2) && err == nil {
			glog.Infof("ws: received %d bytes for run %s", len(message), in.RunID)
		}
		select {
		case c.inbound <- frame{in: in, err: err}:
		case <-c.closed:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				glog.Errorf("ws: failed to write message: %v", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.closed:
			return
		}
	}
}
