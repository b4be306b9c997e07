package connection

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/rickgao/lot-watch/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func testTransportConfig(url string) TransportConfig {
	cfg := DefaultTransportConfig()
	cfg.URL = url
	cfg.AuctionID = 99
	cfg.ReconnectBaseWait = 5 * time.Millisecond
	cfg.ReconnectMaxWait = 20 * time.Millisecond
	return cfg
}

func stopTransport(t *testing.T, tr *Transport) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

// drain reads until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestTransport_StartDisabled(t *testing.T) {
	tr := NewTransport(TransportConfig{}, nil, nil)
	if err := tr.Start(context.Background()); err != ErrTransportDisabled {
		t.Errorf("Start() = %v, want ErrTransportDisabled", err)
	}
	if tr.Available() {
		t.Error("disabled transport should not be available")
	}
}

func TestTransport_SendsConnectMessage(t *testing.T) {
	got := make(chan ConnectMessage, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ConnectMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			got <- msg
		}
		drain(conn)
	})
	defer server.Close()

	tr := NewTransport(testTransportConfig(wsURL(server)), nil, nil)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopTransport(t, tr)

	select {
	case msg := <-got:
		if msg.Type != TypeConnect {
			t.Errorf("Type = %q, want %q", msg.Type, TypeConnect)
		}
		if msg.ClientID != tr.ClientID() || msg.ClientID == "" {
			t.Errorf("ClientID = %q, want %q", msg.ClientID, tr.ClientID())
		}
		if len(msg.Channels) != 1 || msg.Channels[0] != "lots" {
			t.Errorf("Channels = %v, want [lots]", msg.Channels)
		}
		if msg.AuctionID != 99 {
			t.Errorf("AuctionID = %d, want 99", msg.AuctionID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for connect message")
	}

	if !tr.Available() {
		t.Error("expected transport to be available")
	}
	if !waitFor(t, time.Second, tr.Connected) {
		t.Error("expected transport to be connected")
	}
}

func TestTransport_DispatchesNonHeartbeatMessages(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage() // connect message
		for _, m := range []string{
			`{"type":"heartbeat"}`,
			`{"type":"lots_changed","auction_id":99}`,
			`not json`,
			`{"type":"lot_update","lot":{"row_id":3}}`,
		} {
			conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
		drain(conn)
	})
	defer server.Close()

	var mu sync.Mutex
	var types []string
	tr := NewTransport(testTransportConfig(wsURL(server)), nil, nil)
	tr.OnMessage(func(msg Message) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, msg.Type)
	})
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopTransport(t, tr)

	ok := waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(types) == 2
	})
	if !ok {
		t.Fatal("timeout waiting for messages")
	}

	mu.Lock()
	defer mu.Unlock()
	if types[0] != TypeLotsChanged || types[1] != TypeLotUpdate {
		t.Errorf("types = %v, want [lots_changed lot_update]", types)
	}
}

func TestTransport_HeartbeatTimeoutReconnects(t *testing.T) {
	var connections int32
	server := mockWSServer(t, func(conn *websocket.Conn) {
		n := atomic.AddInt32(&connections, 1)
		conn.ReadMessage() // connect message
		if n == 1 {
			// One heartbeat arms the deadline, then silence.
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
		}
		drain(conn)
	})
	defer server.Close()

	cfg := testTransportConfig(wsURL(server))
	cfg.HeartbeatTimeout = 50 * time.Millisecond
	tr := NewTransport(cfg, nil, nil)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopTransport(t, tr)

	ok := waitFor(t, 2*time.Second, func() bool {
		return atomic.LoadInt32(&connections) >= 2
	})
	if !ok {
		t.Fatalf("connections = %d, want reconnect after missed heartbeat", atomic.LoadInt32(&connections))
	}
}

func TestTransport_NoDeadlineBeforeFirstHeartbeat(t *testing.T) {
	var connections int32
	server := mockWSServer(t, func(conn *websocket.Conn) {
		atomic.AddInt32(&connections, 1)
		drain(conn)
	})
	defer server.Close()

	cfg := testTransportConfig(wsURL(server))
	cfg.HeartbeatTimeout = 20 * time.Millisecond
	tr := NewTransport(cfg, nil, nil)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopTransport(t, tr)

	time.Sleep(150 * time.Millisecond)
	if n := atomic.LoadInt32(&connections); n != 1 {
		t.Errorf("connections = %d, want 1", n)
	}
}

func TestTransport_HeartbeatSkew(t *testing.T) {
	t.Run("stale persisted heartbeat raises flag", func(t *testing.T) {
		store := storage.NewMemory()
		store.SaveHeartbeat(context.Background(), time.Now().Add(-time.Minute))

		server := mockWSServer(t, func(conn *websocket.Conn) {
			conn.ReadMessage()
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
			drain(conn)
		})
		defer server.Close()

		tr := NewTransport(testTransportConfig(wsURL(server)), store, nil)
		if err := tr.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer stopTransport(t, tr)

		if !waitFor(t, time.Second, tr.HeartbeatLagged) {
			t.Error("expected HeartbeatLagged after a one minute gap")
		}
	})

	t.Run("regular heartbeats do not", func(t *testing.T) {
		store := storage.NewMemory()
		server := mockWSServer(t, func(conn *websocket.Conn) {
			conn.ReadMessage()
			for i := 0; i < 3; i++ {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
				time.Sleep(10 * time.Millisecond)
			}
			drain(conn)
		})
		defer server.Close()

		tr := NewTransport(testTransportConfig(wsURL(server)), store, nil)
		if err := tr.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer stopTransport(t, tr)

		ok := waitFor(t, time.Second, func() bool {
			_, err := store.LastHeartbeat(context.Background())
			return err == nil
		})
		if !ok {
			t.Fatal("heartbeat time was never persisted")
		}
		time.Sleep(50 * time.Millisecond)
		if tr.HeartbeatLagged() {
			t.Error("HeartbeatLagged should stay false")
		}
	})
}

func TestTransport_UnavailableAfterMaxAttempts(t *testing.T) {
	dead := httptest.NewServer(nil)
	url := wsURL(dead)
	dead.Close()

	cfg := testTransportConfig(url)
	cfg.MaxReconnectAttempts = 2

	changes := make(chan bool, 4)
	tr := NewTransport(cfg, nil, nil)
	tr.OnAvailabilityChange(func(available bool) {
		changes <- available
	})
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopTransport(t, tr)

	select {
	case available := <-changes:
		if available {
			t.Error("first availability change should be to unavailable")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for availability change")
	}
	if tr.Available() {
		t.Error("Available() = true, want false")
	}
	if err := tr.Send([]byte(`{}`)); err != ErrNotConnected {
		t.Errorf("Send() = %v, want ErrNotConnected", err)
	}
}

func TestTransport_DoubleStart(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	tr := NewTransport(testTransportConfig(wsURL(server)), nil, nil)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopTransport(t, tr)

	if err := tr.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}
}
