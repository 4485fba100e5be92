package geyser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpswap-radar/internal/solana"
)

const testProgram = "pAMMBay6oceH9fJKBRHGP5D4sWpmSwMn52FMfXEA111"

// testConfig keeps every timer short enough for tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PingInterval = time.Hour
	cfg.IdleTimeout = 5 * time.Second
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.Buffer = 16
	cfg.DedupWindow = 32
	return cfg
}

// startStreamServer runs handler once per websocket connection.
func startStreamServer(t *testing.T, handler func(conn *websocket.Conn, attempt int)) string {
	t.Helper()

	var attempts atomic.Int64
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn, int(attempts.Add(1)))
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func txnUpdate(sig string) update {
	return update{
		Transaction: &solana.ParsedTransaction{
			Slot: 1,
			Transaction: solana.Transaction{
				Signatures: []string{sig},
			},
		},
	}
}

func recvUpdate(t *testing.T, updates <-chan TransactionUpdate) TransactionUpdate {
	t.Helper()
	select {
	case upd, ok := <-updates:
		require.True(t, ok, "update channel closed")
		return upd
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for update")
		return TransactionUpdate{}
	}
}

func TestSubscribeDeliversTransactions(t *testing.T) {
	subs := make(chan SubscribeRequest, 1)
	endpoint := startStreamServer(t, func(conn *websocket.Conn, _ int) {
		var req SubscribeRequest
		require.NoError(t, conn.ReadJSON(&req))
		subs <- req

		require.NoError(t, conn.WriteJSON(txnUpdate("sig-1")))
	})

	cfg := testConfig()
	client := NewClient(endpoint, &cfg, nil, WithToken("secret"))
	defer client.Close()

	updates, err := client.Subscribe(context.Background(),
		NewSubscribeRequest(testProgram, "confirmed"))
	require.NoError(t, err)

	upd := recvUpdate(t, updates)
	assert.Equal(t, "sig-1", upd.Txn.Signature())
	assert.False(t, upd.ReceivedAt.IsZero())

	req := <-subs
	assert.Equal(t, []string{testProgram}, req.Transactions["client"].AccountInclude)
	assert.False(t, req.Transactions["client"].Vote)
	assert.False(t, req.Transactions["client"].Failed)
	assert.Equal(t, "confirmed", req.Commitment)
}

func TestSubscribeSendsAuthHeader(t *testing.T) {
	tokens := make(chan string, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.Header.Get("X-Token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var req SubscribeRequest
		conn.ReadJSON(&req)
	}))
	defer srv.Close()

	cfg := testConfig()
	client := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), &cfg, nil,
		WithToken("secret"))
	defer client.Close()

	_, err := client.Subscribe(context.Background(),
		NewSubscribeRequest(testProgram, ""))
	require.NoError(t, err)

	select {
	case token := <-tokens:
		assert.Equal(t, "secret", token)
	case <-time.After(3 * time.Second):
		t.Fatal("no connection arrived")
	}
}

func TestDuplicateSignaturesSkipped(t *testing.T) {
	endpoint := startStreamServer(t, func(conn *websocket.Conn, _ int) {
		var req SubscribeRequest
		require.NoError(t, conn.ReadJSON(&req))

		require.NoError(t, conn.WriteJSON(txnUpdate("sig-a")))
		require.NoError(t, conn.WriteJSON(txnUpdate("sig-a")))
		require.NoError(t, conn.WriteJSON(txnUpdate("sig-b")))
	})

	cfg := testConfig()
	client := NewClient(endpoint, &cfg, nil)
	defer client.Close()

	updates, err := client.Subscribe(context.Background(),
		NewSubscribeRequest(testProgram, ""))
	require.NoError(t, err)

	assert.Equal(t, "sig-a", recvUpdate(t, updates).Txn.Signature())
	assert.Equal(t, "sig-b", recvUpdate(t, updates).Txn.Signature())
}

func TestReconnectResubscribes(t *testing.T) {
	subs := make(chan SubscribeRequest, 2)
	endpoint := startStreamServer(t, func(conn *websocket.Conn, attempt int) {
		var req SubscribeRequest
		require.NoError(t, conn.ReadJSON(&req))
		subs <- req

		if attempt == 1 {
			require.NoError(t, conn.WriteJSON(txnUpdate("sig-first")))
			conn.Close()
			return
		}
		require.NoError(t, conn.WriteJSON(txnUpdate("sig-second")))
	})

	cfg := testConfig()
	client := NewClient(endpoint, &cfg, nil)
	defer client.Close()

	request := NewSubscribeRequest(testProgram, "confirmed")
	updates, err := client.Subscribe(context.Background(), request)
	require.NoError(t, err)

	assert.Equal(t, "sig-first", recvUpdate(t, updates).Txn.Signature())
	assert.Equal(t, "sig-second", recvUpdate(t, updates).Txn.Signature())

	// Both connections carried the same subscription.
	first, second := <-subs, <-subs
	assert.Equal(t, first, second)
}

func TestIdleTimeoutTriggersReconnect(t *testing.T) {
	subs := make(chan SubscribeRequest, 2)
	endpoint := startStreamServer(t, func(conn *websocket.Conn, attempt int) {
		var req SubscribeRequest
		require.NoError(t, conn.ReadJSON(&req))
		subs <- req

		// Starve the first connection so the read deadline fires.
		if attempt == 1 {
			return
		}
		require.NoError(t, conn.WriteJSON(txnUpdate("sig-after-idle")))
	})

	cfg := testConfig()
	cfg.IdleTimeout = 200 * time.Millisecond
	client := NewClient(endpoint, &cfg, nil)
	defer client.Close()

	updates, err := client.Subscribe(context.Background(),
		NewSubscribeRequest(testProgram, "confirmed"))
	require.NoError(t, err)

	assert.Equal(t, "sig-after-idle", recvUpdate(t, updates).Txn.Signature())

	first, second := <-subs, <-subs
	assert.Equal(t, first, second)
}

func TestNonTransactionMessagesIgnored(t *testing.T) {
	endpoint := startStreamServer(t, func(conn *websocket.Conn, _ int) {
		var req SubscribeRequest
		require.NoError(t, conn.ReadJSON(&req))

		require.NoError(t, conn.WriteJSON(map[string]any{"pong": map[string]int{"id": 1}}))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		require.NoError(t, conn.WriteJSON(txnUpdate("sig-after")))
	})

	cfg := testConfig()
	client := NewClient(endpoint, &cfg, nil)
	defer client.Close()

	updates, err := client.Subscribe(context.Background(),
		NewSubscribeRequest(testProgram, ""))
	require.NoError(t, err)

	assert.Equal(t, "sig-after", recvUpdate(t, updates).Txn.Signature())
}

func TestSubscribeOnlyOnce(t *testing.T) {
	endpoint := startStreamServer(t, func(conn *websocket.Conn, _ int) {
		var req SubscribeRequest
		conn.ReadJSON(&req)
	})

	cfg := testConfig()
	client := NewClient(endpoint, &cfg, nil)
	defer client.Close()

	req := NewSubscribeRequest(testProgram, "")
	_, err := client.Subscribe(context.Background(), req)
	require.NoError(t, err)

	_, err = client.Subscribe(context.Background(), req)
	assert.Error(t, err)
}

func TestCloseShutsDownStream(t *testing.T) {
	endpoint := startStreamServer(t, func(conn *websocket.Conn, _ int) {
		var req SubscribeRequest
		conn.ReadJSON(&req)
	})

	cfg := testConfig()
	client := NewClient(endpoint, &cfg, nil)

	updates, err := client.Subscribe(context.Background(),
		NewSubscribeRequest(testProgram, ""))
	require.NoError(t, err)

	require.NoError(t, client.Close())

	select {
	case _, ok := <-updates:
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("update channel not closed")
	}

	_, err = client.Subscribe(context.Background(),
		NewSubscribeRequest(testProgram, ""))
	assert.Error(t, err)
}

func TestCloseDuringActivePings(t *testing.T) {
	// A tight ping interval keeps a write in flight while Close writes the
	// close frame; both must share the connection's single writer slot.
	endpoint := startStreamServer(t, func(conn *websocket.Conn, _ int) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	cfg := testConfig()
	cfg.PingInterval = time.Millisecond
	client := NewClient(endpoint, &cfg, nil)

	_, err := client.Subscribe(context.Background(),
		NewSubscribeRequest(testProgram, ""))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())
}

func TestSigCacheEvictsOldest(t *testing.T) {
	cache := newSigCache(2)

	assert.False(t, cache.seen("a"))
	assert.False(t, cache.seen("b"))
	assert.True(t, cache.seen("a"))

	// "c" pushes "a" out.
	assert.False(t, cache.seen("c"))
	assert.False(t, cache.seen("a"))
}

func TestPingRequestShape(t *testing.T) {
	ping := pingRequest()
	require.NotNil(t, ping.Ping)
	assert.Equal(t, 1, ping.Ping.ID)
	assert.Empty(t, ping.Transactions)
	assert.NotNil(t, ping.Accounts)
}
