package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialPair returns a server-side Client wrapping one end of a real connection and the
// browser-side connection on the other end.
func dialPair(t *testing.T, hub *Hub) (*Client, *websocket.Conn) {
	t.Helper()

	serverConn := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConn <- conn
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	browser, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { browser.Close() })

	select {
	case conn := <-serverConn:
		return NewClient(hub, conn), browser
	case <-time.After(time.Second):
		t.Fatal("server never accepted the connection")
	}
	return nil, nil
}

func TestNewClient(t *testing.T) {
	hub := NewHub()
	client, _ := dialPair(t, hub)

	if client.ID() == "" {
		t.Error("Expected client ID to be set")
	}
	if cap(client.send) != sendBuffer {
		t.Errorf("Expected send buffer %d, got %d", sendBuffer, cap(client.send))
	}
}

func TestClient_GreetThenStream(t *testing.T) {
	hub, _ := startHub(t)
	client, browser := dialPair(t, hub)

	if err := client.Greet([]byte(`{"type":"snapshot"}`)); err != nil {
		t.Fatalf("Greet returned %v", err)
	}
	hub.Register(client)
	go client.WritePump()
	go client.ReadPump()

	if err := hub.Broadcast("cart.changed", []byte(`{"type":"cart.changed"}`)); err != nil {
		t.Fatalf("Broadcast returned %v", err)
	}

	_ = browser.SetReadDeadline(time.Now().Add(time.Second))
	for _, want := range []string{`{"type":"snapshot"}`, `{"type":"cart.changed"}`} {
		_, msg, err := browser.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(msg) != want {
			t.Errorf("Expected %s, got %s", want, msg)
		}
	}
}

func TestClient_ReadPumpUnregistersOnClose(t *testing.T) {
	hub, _ := startHub(t)
	client, browser := dialPair(t, hub)
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		client.ReadPump()
		close(done)
	}()

	// incoming messages are ignored
	_ = browser.WriteMessage(websocket.TextMessage, []byte("hello"))
	browser.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadPump did not return after the browser disconnected")
	}

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("Expected send channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("client was not unregistered")
	}
}

func TestClient_CloseConnection_Idempotent(t *testing.T) {
	client, _ := dialPair(t, NewHub())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.closeConnection()
		}()
	}
	wg.Wait()

	if err := client.writeMessage(websocket.TextMessage, []byte("x")); err != websocket.ErrCloseSent {
		t.Errorf("Expected ErrCloseSent after close, got %v", err)
	}
}

func TestClient_WritePumpExitsWhenSendCloses(t *testing.T) {
	client, browser := dialPair(t, NewHub())

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()
	close(client.send)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WritePump did not exit")
	}

	_ = browser.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := browser.ReadMessage(); err == nil {
		t.Error("Expected the connection to be closed")
	}
}
