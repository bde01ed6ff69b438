package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/auction-house/internal/metrics"
	"github.com/leafsii/auction-house/internal/store"
	"github.com/leafsii/auction-house/pkg/kv/memory"
)

func startHub(t *testing.T) (*Hub, *store.Cache, *httptest.Server) {
	t.Helper()
	return startHubWith(t, nil, nil)
}

// startHubWith runs a hub with metrics m. A nil events runs it on the
// cache's own event stream.
func startHubWith(t *testing.T, m *metrics.Metrics, events func(ctx context.Context, cache *store.Cache) *store.Subscription) (*Hub, *store.Cache, *httptest.Server) {
	t.Helper()
	cache := store.NewCache(memory.New(0), nil, nil)
	hub := NewHub(cache, nil, m, []string{"http://localhost:3000"})

	ctx, cancel := context.WithCancel(context.Background())
	if events == nil {
		go hub.Run(ctx)
	} else {
		go hub.run(ctx, events(ctx, cache))
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		cache.Close()
	})
	return hub, cache, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWalletEventsReachSubscriber(t *testing.T) {
	hub, cache, srv := startHub(t)
	conn := dial(t, srv, "?address=buyer1")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, cache.Publish(ctx, store.WalletChannel("someone-else"), map[string]string{"id": "x"}))
	require.NoError(t, cache.Publish(ctx, store.WalletChannel("buyer1"), map[string]string{"id": "r1"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "update", msg.Type)
	assert.Equal(t, "ah:wallet:buyer1", msg.Topic)
	assert.JSONEq(t, `{"id":"r1"}`, string(msg.Data))
}

func TestTopicSubscription(t *testing.T) {
	hub, cache, srv := startHub(t)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(SubscriptionRequest{Type: "subscribe", Topics: []string{"ah:events:*"}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			return c.isSubscribed(store.ChannelSaleExecuted)
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, cache.Publish(context.Background(), store.ChannelSaleExecuted, map[string]uint64{"price": 10}))
	msg := readMessage(t, conn)
	assert.Equal(t, store.ChannelSaleExecuted, msg.Topic)
}

func TestRejectsForeignOrigin(t *testing.T) {
	_, _, srv := startHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := map[string][]string{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestIsSubscribedPatterns(t *testing.T) {
	c := &Client{topics: map[string]bool{}}
	c.subscribe([]string{"ah:events:*"}, "w1")
	assert.True(t, c.isSubscribed("ah:events:sale.executed"))
	assert.True(t, c.isSubscribed("ah:wallet:w1"))
	assert.False(t, c.isSubscribed("ah:wallet:w2"))
	assert.Equal(t, "w1", c.getAddress())
}

// connectionGauge scrapes the current value of ah_websocket_connections.
func connectionGauge(t *testing.T, handler http.Handler) int {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	for _, line := range strings.Split(string(body), "\n") {
		if !strings.HasPrefix(line, "ah_websocket_connections") || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		require.NoError(t, err)
		return int(v)
	}
	return 0
}

func waitClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("connection was not closed by the hub")
			}
			return
		}
	}
}

func TestIdleClientLeavesConnectionGauge(t *testing.T) {
	m, handler, err := metrics.Setup("ws-test")
	require.NoError(t, err)
	hub, _, srv := startHubWith(t, m, nil)

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return connectionGauge(t, handler) == 1 }, time.Second, 10*time.Millisecond)

	hub.mu.RLock()
	for c := range hub.clients {
		c.mu.Lock()
		c.lastActive = time.Now().Add(-2 * idleTimeout)
		c.mu.Unlock()
	}
	hub.mu.RUnlock()
	hub.cleanupInactiveClients()

	assert.Equal(t, 0, hub.ClientCount())
	waitClosed(t, conn)
	// the client's read loop unregisters after the hub dropped it
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, connectionGauge(t, handler))
}

func TestUnregisterLeavesConnectionGauge(t *testing.T) {
	m, handler, err := metrics.Setup("ws-test")
	require.NoError(t, err)
	hub, _, srv := startHubWith(t, m, nil)

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return connectionGauge(t, handler) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, connectionGauge(t, handler))
}

func TestClosedEventStreamDisconnectsClients(t *testing.T) {
	m, handler, err := metrics.Setup("ws-test")
	require.NoError(t, err)
	var events *store.Subscription
	subscribed := make(chan struct{})
	hub, _, srv := startHubWith(t, m, func(ctx context.Context, cache *store.Cache) *store.Subscription {
		events = cache.SubscribePrefix(ctx, "ah:")
		close(subscribed)
		return events
	})
	<-subscribed

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, events.Close())
	waitClosed(t, conn)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, connectionGauge(t, handler))
}
