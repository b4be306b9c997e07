package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrStaleConnection   = errors.New("connection stale (no ping)")
	ErrHeartbeatTimeout  = errors.New("heartbeat timeout")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrAlreadyStarted    = errors.New("transport already started")
	ErrTransportDisabled = errors.New("push transport disabled")
)

// Push message types.
const (
	TypeConnect     = "connect"
	TypeHeartbeat   = "heartbeat"
	TypeLotsChanged = "lots_changed"
	TypeLotUpdate   = "lot_update"
	TypeAuctionEnd  = "auction_end"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ConnectMessage registers a connection for push updates.
type ConnectMessage struct {
	Type      string   `json:"type"`
	ClientID  string   `json:"client_id"`
	Channels  []string `json:"channels"`
	AuctionID int64    `json:"auction_id,omitempty"`
}

// Message is a push message from the server.
type Message struct {
	Type      string          `json:"type"`
	AuctionID int64           `json:"auction_id,omitempty"`
	Lot       json.RawMessage `json:"lot,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://push.example.com/ws)
	APIKey       string        // Bearer token (empty = no auth)
	PingTimeout  time.Duration // Max time without ping before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	InboxSize    int           // Initial capacity of the unbounded message inbox
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		InboxSize:    64,
	}
}

// TransportConfig configures the push Transport.
type TransportConfig struct {
	URL       string   // WebSocket URL; empty disables push
	APIKey    string   // Bearer token
	Channels  []string // Channels named in the connect message
	AuctionID int64    // Auction named in the connect message (0 = none)

	HeartbeatTimeout     time.Duration // Max gap between heartbeats before reconnecting
	HeartbeatSkew        time.Duration // Gap against the persisted heartbeat that raises the lag flag
	ReconnectBaseWait    time.Duration // Base wait time for reconnection
	ReconnectMaxWait     time.Duration // Max wait time for reconnection
	MaxReconnectAttempts int           // Consecutive failures before reporting unavailable
	WriteTimeout         time.Duration
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Channels:             []string{"lots"},
		HeartbeatTimeout:     6 * time.Second,
		HeartbeatSkew:        10 * time.Second,
		ReconnectBaseWait:    1 * time.Second,
		ReconnectMaxWait:     60 * time.Second,
		MaxReconnectAttempts: 5,
		WriteTimeout:         5 * time.Second,
	}
}
