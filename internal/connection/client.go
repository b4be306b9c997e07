package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smallnest/chanx"
)

const handshakeTimeout = 10 * time.Second

// Client is one WebSocket connection to the push server.
type Client interface {
	// Connect dials the server and starts reading.
	Connect(ctx context.Context) error

	// Close sends a close frame and tears the connection down. It is safe
	// to call more than once.
	Close() error

	// Send writes one text frame.
	Send(data []byte) error

	// Messages delivers every received frame in order. The inbox is
	// unbounded, so a slow consumer never causes drops.
	Messages() <-chan TimestampedMessage

	// Errors delivers the error that ended the connection.
	Errors() <-chan error

	IsConnected() bool
}

type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	inbox  *chanx.UnboundedChan[TimestampedMessage]
	errs   chan error
	done   chan struct{}
	cancel context.CancelFunc

	// lastSeen is the unix-nano time of the last ping or pong.
	lastSeen  atomic.Int64
	connected atomic.Bool

	writeMu sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewClient creates a client. Nothing is dialed until Connect.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultClientConfig().InboxSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		cfg:    cfg,
		logger: logger.With("url", cfg.URL),
		inbox:  chanx.NewUnboundedChan[TimestampedMessage](ctx, cfg.InboxSize),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

func (c *client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *client) sinceSeen() time.Duration {
	return time.Since(time.Unix(0, c.lastSeen.Load()))
}

func (c *client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := make(http.Header)
	header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := d.DialContext(ctx, c.cfg.URL, header)
	return conn, err
}

func (c *client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrAlreadyClosed
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	// Either side may ping; any control frame counts as liveness.
	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.touch()
	c.connected.Store(true)
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.keepalive(conn)

	c.logger.Debug("push socket connected")
	return nil
}

func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.connected.Store(false)
	close(c.done)
	c.cancel()

	if conn == nil {
		return nil
	}
	bye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, bye, time.Now().Add(time.Second))
	return conn.Close()
}

func (c *client) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !c.connected.Load() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) Messages() <-chan TimestampedMessage { return c.inbox.Out }

func (c *client) Errors() <-chan error { return c.errs }

func (c *client) IsConnected() bool { return c.connected.Load() }

// fail reports err unless one is already pending or the client was closed.
func (c *client) fail(err error) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.errs <- err:
	default:
	}
}

func (c *client) readLoop(conn *websocket.Conn) {
	defer c.connected.Store(false)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		select {
		case c.inbox.In <- TimestampedMessage{Data: data, ReceivedAt: time.Now()}:
		case <-c.done:
			return
		}
	}
}

// keepalive pings at half the ping timeout and reports ErrStaleConnection
// once nothing has been heard for longer than the timeout.
func (c *client) keepalive(conn *websocket.Conn) {
	every := c.cfg.PingTimeout / 2
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			c.logger.Debug("ping failed", "error", err)
		}

		if c.cfg.PingTimeout > 0 {
			if quiet := c.sinceSeen(); quiet > c.cfg.PingTimeout {
				c.logger.Warn("push socket stale", "quiet_for", quiet, "timeout", c.cfg.PingTimeout)
				c.fail(ErrStaleConnection)
				return
			}
		}
	}
}
