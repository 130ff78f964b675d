package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velancis-storefront/internal/events"
	"velancis-storefront/internal/service"
	"velancis-storefront/internal/testutil"
	ws "velancis-storefront/internal/websocket"
)

type streamed struct {
	Type    events.Type     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func setupEventStream(t *testing.T, allowedOrigins []string) (*harness, string) {
	t.Helper()
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	t.Cleanup(cancel)

	h := newHarness(t, nil, events.NewBus(hub))

	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, h.sf, allowedOrigins).HandleConnection))
	t.Cleanup(srv.Close)

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readEvent(t *testing.T, conn *websocket.Conn) streamed {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg streamed
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketHandler_GreetsWithSnapshot(t *testing.T) {
	h, url := setupEventStream(t, []string{"http://localhost:3000"})
	h.api.SetCart(testutil.NewTestCartLines(2))
	h.login(t)

	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	msg := readEvent(t, conn)

	assert.Equal(t, events.Snapshot, msg.Type)
	var snap service.Snapshot
	require.NoError(t, json.Unmarshal(msg.Payload, &snap))
	assert.True(t, snap.Session.IsAuthenticated)
	assert.Len(t, snap.Cart.Items, 2)
	assert.NotContains(t, string(msg.Payload), h.api.AccessToken())
}

func TestWebSocketHandler_StreamsChanges(t *testing.T) {
	h, url := setupEventStream(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, events.Snapshot, readEvent(t, conn).Type)

	h.login(t)

	seen := map[events.Type]bool{}
	for i := 0; i < 8 && !(seen[events.SessionChanged] && seen[events.CartChanged]); i++ {
		seen[readEvent(t, conn).Type] = true
	}
	assert.True(t, seen[events.SessionChanged], "session change streamed")
	assert.True(t, seen[events.CartChanged], "cart change streamed")
}

func TestWebSocketHandler_RejectsForeignOrigin(t *testing.T) {
	_, url := setupEventStream(t, []string{"http://localhost:3000"})

	header := http.Header{"Origin": []string{"http://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketHandler_HubClosed(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	h := newHarness(t, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, h.sf, nil).HandleConnection))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
