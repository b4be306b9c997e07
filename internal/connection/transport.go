package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/lot-watch/internal/storage"
)

// Transport keeps one registered push connection alive.
type Transport struct {
	cfg      TransportConfig
	store    storage.HeartbeatStore
	logger   *slog.Logger
	clientID string

	handlerMu      sync.RWMutex
	handler        func(Message)
	onAvailability func(bool)

	mu        sync.RWMutex
	client    Client
	available bool
	lagged    bool
	started   bool
	failures  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTransport creates a push transport. A nil store keeps heartbeat
// times in memory only.
func NewTransport(cfg TransportConfig, store storage.HeartbeatStore, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = storage.NewMemory()
	}
	defaults := DefaultTransportConfig()
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = defaults.HeartbeatTimeout
	}
	if cfg.HeartbeatSkew <= 0 {
		cfg.HeartbeatSkew = defaults.HeartbeatSkew
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = defaults.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = max(defaults.ReconnectMaxWait, cfg.ReconnectBaseWait)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	clientID := uuid.NewString()

	return &Transport{
		cfg:      cfg,
		store:    store,
		logger:   logger.With("client_id", clientID),
		clientID: clientID,
	}
}

// ClientID returns the id sent in every connect message.
func (t *Transport) ClientID() string {
	return t.clientID
}

// OnMessage sets the handler for non-heartbeat messages. It runs on the
// transport goroutine and must not block.
func (t *Transport) OnMessage(fn func(Message)) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.handler = fn
}

// OnAvailabilityChange sets a callback for availability transitions.
func (t *Transport) OnAvailabilityChange(fn func(available bool)) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.onAvailability = fn
}

// Start begins connecting in the background.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.URL == "" {
		return ErrTransportDisabled
	}

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.available = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run()

	t.logger.Info("push transport started",
		"url", t.cfg.URL,
		"channels", t.cfg.Channels,
		"auction_id", t.cfg.AuctionID,
	)
	return nil
}

// Stop closes the connection and waits for the transport goroutine.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = false
	t.available = false
	cancel := t.cancel
	t.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.logger.Warn("shutdown timeout, forcing close")
	}

	t.mu.Lock()
	if t.client != nil {
		t.client.Close()
		t.client = nil
	}
	t.mu.Unlock()

	t.logger.Info("push transport stopped")
	return nil
}

// Send writes a message on the current connection.
func (t *Transport) Send(data []byte) error {
	t.mu.RLock()
	c := t.client
	t.mu.RUnlock()

	if c == nil {
		return ErrNotConnected
	}
	return c.Send(data)
}

// Available reports whether push updates can be relied on. It turns false
// after MaxReconnectAttempts consecutive connection failures and true again
// on the next successful connection.
func (t *Transport) Available() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.available
}

// Connected reports whether a connection is currently open.
func (t *Transport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client != nil && t.client.IsConnected()
}

// HeartbeatLagged reports whether two heartbeats were ever further apart
// than HeartbeatSkew. The flag is sticky.
func (t *Transport) HeartbeatLagged() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lagged
}

// run connects, reads until the connection fails, and reconnects with
// exponential backoff until the transport is stopped.
func (t *Transport) run() {
	defer t.wg.Done()

	wait := t.cfg.ReconnectBaseWait
	first := true

	for {
		if !first {
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(wait):
			}
			t.logger.Info("attempting reconnection")
		}
		first = false

		c, err := t.connect()
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.logger.Warn("push connection failed", "error", err)
			t.recordFailure()

			wait *= 2
			if wait > t.cfg.ReconnectMaxWait {
				wait = t.cfg.ReconnectMaxWait
			}
			continue
		}

		t.recordSuccess()
		wait = t.cfg.ReconnectBaseWait

		err = t.readLoop(c)

		t.mu.Lock()
		if t.client == c {
			t.client = nil
		}
		t.mu.Unlock()
		c.Close()

		if t.ctx.Err() != nil {
			return
		}
		t.logger.Warn("push connection lost", "error", err)
	}
}

// connect opens a connection and registers it.
func (t *Transport) connect() (Client, error) {
	c := NewClient(ClientConfig{
		URL:          t.cfg.URL,
		APIKey:       t.cfg.APIKey,
		PingTimeout:  DefaultClientConfig().PingTimeout,
		WriteTimeout: t.cfg.WriteTimeout,
		InboxSize:    DefaultClientConfig().InboxSize,
	}, t.logger)

	if err := c.Connect(t.ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	data, err := json.Marshal(ConnectMessage{
		Type:      TypeConnect,
		ClientID:  t.clientID,
		Channels:  t.cfg.Channels,
		AuctionID: t.cfg.AuctionID,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("marshal connect message: %w", err)
	}
	if err := c.Send(data); err != nil {
		c.Close()
		return nil, fmt.Errorf("send connect message: %w", err)
	}

	t.mu.Lock()
	t.client = c
	t.mu.Unlock()

	t.logger.Debug("push connection registered")
	return c, nil
}

// readLoop consumes messages until the connection fails, a heartbeat is
// missed, or the transport stops. The heartbeat deadline is armed by the
// first heartbeat and re-armed by every later one.
func (t *Transport) readLoop(c Client) error {
	var timer *time.Timer
	var deadline <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-t.ctx.Done():
			return t.ctx.Err()

		case err := <-c.Errors():
			return err

		case <-deadline:
			t.logger.Warn("heartbeat missed, reinitializing connection",
				"timeout", t.cfg.HeartbeatTimeout,
			)
			return ErrHeartbeatTimeout

		case raw, ok := <-c.Messages():
			if !ok {
				return ErrNotConnected
			}

			var msg Message
			if err := json.Unmarshal(raw.Data, &msg); err != nil {
				t.logger.Debug("ignoring malformed push message", "error", err)
				continue
			}
			msg.ReceivedAt = raw.ReceivedAt

			if msg.Type == TypeHeartbeat {
				t.heartbeat(raw.ReceivedAt)
				if timer == nil {
					timer = time.NewTimer(t.cfg.HeartbeatTimeout)
				} else {
					timer.Reset(t.cfg.HeartbeatTimeout)
				}
				deadline = timer.C
				continue
			}

			t.dispatch(msg)
		}
	}
}

// heartbeat compares at with the persisted heartbeat time and records it.
func (t *Transport) heartbeat(at time.Time) {
	last, err := t.store.LastHeartbeat(t.ctx)
	switch {
	case err == nil:
		gap := at.Sub(last)
		if gap > t.cfg.HeartbeatSkew || gap < -t.cfg.HeartbeatSkew {
			t.mu.Lock()
			first := !t.lagged
			t.lagged = true
			t.mu.Unlock()
			if first {
				t.logger.Warn("heartbeat lag detected", "gap", gap, "skew", t.cfg.HeartbeatSkew)
			}
		}
	case !errors.Is(err, storage.ErrNotFound):
		t.logger.Debug("failed to load heartbeat time", "error", err)
	}

	if err := t.store.SaveHeartbeat(t.ctx, at); err != nil {
		t.logger.Debug("failed to save heartbeat time", "error", err)
	}
}

func (t *Transport) dispatch(msg Message) {
	t.handlerMu.RLock()
	handler := t.handler
	t.handlerMu.RUnlock()

	if handler == nil {
		return
	}
	handler(msg)
}

func (t *Transport) recordFailure() {
	t.mu.Lock()
	t.failures++
	changed := t.available && t.cfg.MaxReconnectAttempts > 0 && t.failures >= t.cfg.MaxReconnectAttempts
	if changed {
		t.available = false
	}
	failures := t.failures
	t.mu.Unlock()

	if changed {
		t.logger.Warn("push unavailable, falling back to polling", "attempts", failures)
		t.notifyAvailability(false)
	}
}

func (t *Transport) recordSuccess() {
	t.mu.Lock()
	t.failures = 0
	changed := !t.available
	t.available = true
	t.mu.Unlock()

	if changed {
		t.logger.Info("push available again")
		t.notifyAvailability(true)
	}
}

func (t *Transport) notifyAvailability(available bool) {
	t.handlerMu.RLock()
	fn := t.onAvailability
	t.handlerMu.RUnlock()

	if fn != nil {
		fn(available)
	}
}
