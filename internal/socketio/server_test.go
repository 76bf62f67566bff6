package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hostpanel/internal/hub"
)

type echoHandler struct {
	mu           sync.Mutex
	disconnected []string
}

func (h *echoHandler) Authenticate(_ context.Context, remoteAddr string, raw json.RawMessage) (any, error) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Token != "good" {
		return nil, errors.New("Invalid authentication token")
	}
	return "user:" + remoteAddr, nil
}

func (h *echoHandler) HandleEvent(c *Conn, ev Event) {
	switch ev.Name {
	case "join":
		room, _ := ev.StringArg(0)
		c.Join(room)
		_ = c.Emit("joined", room)
	case "whoami":
		ev.Ack(c.Data())
	case "bye":
		_ = c.Close()
	default:
		_ = c.Emit(ev.Name, ev.Args)
	}
}

func (h *echoHandler) Disconnected(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, c.ID())
}

func waitForPrefix(t *testing.T, c *websocket.Conn, prefix string, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_ = c.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		_, data, err := c.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			t.Fatalf("ReadMessage: %v", err)
		}
		msg := string(data)
		if msg == "2" {
			_ = c.WriteMessage(websocket.TextMessage, []byte("3"))
			continue
		}
		if strings.HasPrefix(msg, prefix) {
			_ = c.SetReadDeadline(time.Time{})
			return msg
		}
	}
	t.Fatalf("timeout waiting for %q", prefix)
	return ""
}

func startServer(t *testing.T) (*Server, *echoHandler, string) {
	t.Helper()
	h := &echoHandler{}
	s := NewServer(h, hub.New(), nil)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
}

func dialRaw(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	open := waitForPrefix(t, conn, "0{", 2*time.Second)
	require.Contains(t, open, `"pingInterval"`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`40{"token":"`+token+`"}`)))
	return conn
}

func TestServer_HandshakeAckAndRooms(t *testing.T) {
	s, _, url := startServer(t)

	a := dialRaw(t, url, "good")
	_ = waitForPrefix(t, a, "40{", 2*time.Second)
	b := dialRaw(t, url, "good")
	_ = waitForPrefix(t, b, "40{", 2*time.Second)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`421["ping"]`)))
	assert.Equal(t, "431[]", waitForPrefix(t, a, "431", 2*time.Second))

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`425["whoami"]`)))
	assert.Equal(t, `435["user:127.0.0.1"]`, waitForPrefix(t, a, "435", 2*time.Second))

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`42["join","servers/AB12CD"]`)))
	_ = waitForPrefix(t, a, `42["joined"`, 2*time.Second)

	s.EmitToRoom("servers/AB12CD", "servers/status", map[string]string{"data": "online"})
	got := waitForPrefix(t, a, `42["servers/status"`, 2*time.Second)
	assert.Equal(t, `42["servers/status",{"data":"online"}]`, got)

	// b never joined, so the next thing it sees is its own echo.
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte(`42["hello"]`)))
	assert.Equal(t, `42["hello",[]]`, waitForPrefix(t, b, "42", 2*time.Second))
}

func TestServer_RefusesBadAuth(t *testing.T) {
	_, h, url := startServer(t)
	conn := dialRaw(t, url, "bad")

	refused := waitForPrefix(t, conn, "44", 2*time.Second)
	assert.Contains(t, refused, "Invalid authentication token")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.disconnected, "refused sockets never reach Disconnected")
}

func TestServer_EventsBeforeConnectAreIgnored(t *testing.T) {
	_, _, url := startServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = waitForPrefix(t, conn, "0{", 2*time.Second)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`421["ping"]`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`40{"token":"good"}`)))
	msg := waitForPrefix(t, conn, "4", 2*time.Second)
	assert.True(t, strings.HasPrefix(msg, "40{"), msg)
}

func TestClient_RoundTrip(t *testing.T) {
	s, h, url := startServer(t)

	events := make(chan string, 4)
	base := strings.TrimSuffix(url, "/socket.io/?EIO=4&transport=websocket")
	client, err := Dial(context.Background(), EndpointURL(base), map[string]string{"token": "good"}, func(event string, args []json.RawMessage) {
		events <- event
	})
	require.NoError(t, err)

	require.NoError(t, client.Emit("join", "servers/AB12CD"))
	assert.Equal(t, "joined", <-events)

	s.EmitToRoom("servers/AB12CD", "servers/logs", "line")
	assert.Equal(t, "servers/logs", <-events)

	require.NoError(t, client.Close())
	<-client.Done()
	assert.ErrorIs(t, client.Emit("x"), ErrClosed)

	assert.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.disconnected) == 1 && s.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_RefusedHandshake(t *testing.T) {
	_, _, url := startServer(t)
	_, err := Dial(context.Background(), url, map[string]string{"token": "bad"}, nil)
	assert.ErrorContains(t, err, "Invalid authentication token")
}

func TestClient_DoneWhenServerCloses(t *testing.T) {
	_, _, url := startServer(t)

	client, err := Dial(context.Background(), url, map[string]string{"token": "good"}, nil)
	require.NoError(t, err)
	require.NoError(t, client.Emit("bye"))

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the server closing the socket")
	}
}
