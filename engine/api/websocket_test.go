package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestWebSocketGreeting(t *testing.T) {
	srv, _, router := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(router)
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, WSMessageTypeConnection, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestWebSocketBroadcastReachesClients(t *testing.T) {
	srv, _, router := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(router)
	defer ts.Close()

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dialWS(t, ts)
		defer conns[i].Close()

		conns[i].SetReadDeadline(time.Now().Add(5 * time.Second))
		var greeting WSMessage
		require.NoError(t, conns[i].ReadJSON(&greeting))
		require.Equal(t, WSMessageTypeConnection, greeting.Type)
	}

	srv.hub.Broadcast(WSMessageTypeRunDeleted, map[string]string{"id": "run-1"})

	for _, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, WSMessageTypeRunDeleted, msg.Type)

		data, err := json.Marshal(msg.Data)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"run-1"}`, string(data))
	}
}

// Broadcasts and new connections happen concurrently in practice: a
// run upload can land while a dashboard tab is still handshaking. All
// connection writes must stay serialized through the client writePump.
func TestWebSocketConcurrentBroadcastAndConnect(t *testing.T) {
	srv, _, router := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(router)
	defer ts.Close()

	done := make(chan struct{})
	var flood sync.WaitGroup
	for i := 0; i < 4; i++ {
		flood.Add(1)
		go func() {
			defer flood.Done()
			for {
				select {
				case <-done:
					return
				default:
					srv.hub.Broadcast(WSMessageTypeRunSaved, map[string]string{"id": "run-x"})
				}
			}
		}()
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	var clients sync.WaitGroup
	for i := 0; i < 8; i++ {
		clients.Add(1)
		go func() {
			defer clients.Done()
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			for j := 0; j < 20; j++ {
				var msg WSMessage
				if err := conn.ReadJSON(&msg); err != nil {
					// Slow readers may be dropped by the hub; the
					// connection closing cleanly is acceptable here.
					return
				}
				assert.Contains(t, []WSMessageType{WSMessageTypeConnection, WSMessageTypeRunSaved}, msg.Type)
			}
		}()
	}

	clients.Wait()
	close(done)
	flood.Wait()
}
