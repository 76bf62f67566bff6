package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"hostpanel/internal/auth"
	"hostpanel/internal/daemon"
	"hostpanel/internal/hub"
	"hostpanel/internal/lifecycle"
	"hostpanel/internal/model"
	"hostpanel/internal/permission"
	"hostpanel/internal/relay"
	"hostpanel/internal/service"
	"hostpanel/internal/socketio"
	"hostpanel/internal/store"
)

const daemonSecret = "daemon-secret"

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testPanel struct {
	url    string
	store  *store.Store
	router *gin.Engine
	admin  model.User
	owner  model.User
	node   model.Node
}

// fakeNode answers every daemon call with a success envelope.
func fakeNode(t *testing.T) (host string, port int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+daemonSecret {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"error","error":"UNAUTHORIZED"}`))
			return
		}
		switch r.URL.Path {
		case "/servers/create":
			_, _ = w.Write([]byte(`{"status":"success","data":{"id":"ctr-1","startCommand":"java -jar server.jar"}}`))
		case "/servers/status":
			_, _ = w.Write([]byte(`{"status":"success","data":"running"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"success"}`))
		}
	}))
	t.Cleanup(srv.Close)
	h, p, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(p)
	require.NoError(t, err)
	return h, port
}

func newTestPanel(t *testing.T) *testPanel {
	t.Helper()
	return newTestPanelWith(t, nil)
}

func newTestPanelWith(t *testing.T, configure func(*Deps)) *testPanel {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop().Sugar()

	st, err := store.NewWithOptions(store.Options{Path: filepath.Join(t.TempDir(), "panel.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tokens := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	resolver := auth.NewResolver(tokens, st, logger)
	evaluator := permission.NewEvaluator(st)
	gateway := daemon.NewGateway(daemon.Config{Secret: daemonSecret, Timeout: time.Second}, logger)

	rl := relay.New(resolver, evaluator, st, gateway, logger)
	sio := socketio.NewServer(rl, hub.New(), logger)
	rl.Attach(sio)

	svc := service.New(service.Deps{
		Store:     st,
		Daemon:    gateway,
		Evaluator: evaluator,
		Machine:   lifecycle.NewMachine(st, rl, nil, logger),
		Publisher: rl,
		Tokens:    tokens,
		Logger:    logger,
	})
	rl.SetCommander(svc)
	deps := Deps{
		Service:      svc,
		Resolver:     resolver,
		Socket:       sio,
		DB:           st,
		DaemonSecret: daemonSecret,
		LoginLimiter: NewLoginLimiter(3),
		Logger:       logger,
		Version:      "test",
	}
	if configure != nil {
		configure(&deps)
	}
	r := NewRouter(deps)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	p := &testPanel{url: srv.URL, store: st, router: r}
	p.admin = p.seedUser(t, "admin", true)
	p.owner = p.seedUser(t, "owner", false)
	host, port := fakeNode(t)
	p.node = model.Node{Name: "node-1", Address: host, DaemonPort: port, SFTPPort: 2022}
	require.NoError(t, st.CreateNode(context.Background(), &p.node))
	return p
}

func (p *testPanel) seedUser(t *testing.T, name string, admin bool) model.User {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	u := model.User{Name: name, Email: name + "@example.com", PasswordHash: hash, Admin: admin, Superuser: admin}
	require.NoError(t, p.store.CreateUser(context.Background(), &u))
	return u
}

func (p *testPanel) do(t *testing.T, method, path, bearer string, body any) (int, envelope) {
	t.Helper()
	return p.doWith(t, method, path, bearer, body, nil)
}

func (p *testPanel) doWith(t *testing.T, method, path, bearer string, body any, header http.Header) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	p.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (p *testPanel) login(t *testing.T, email string) string {
	t.Helper()
	code, env := p.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, code, env.Message)
	var sess struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	return sess.Token
}

func (p *testPanel) provision(t *testing.T, adminToken string) model.Server {
	t.Helper()
	code, env := p.do(t, http.MethodPost, "/api/v1/admin/servers", adminToken, map[string]any{
		"name": "survival", "ownerId": p.owner.ID, "nodeId": p.node.ID, "game": "minecraft",
		"cpu": 100, "ram": 2048, "disk": 10, "extraPorts": 1,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var srv model.Server
	require.NoError(t, json.Unmarshal(env.Data, &srv))
	return srv
}

func TestHealth(t *testing.T) {
	p := newTestPanel(t)
	code, env := p.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.EnvelopeSuccess, env.Status)
}

func TestLoginAndProfile(t *testing.T) {
	p := newTestPanel(t)

	code, env := p.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "owner@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error)

	token := p.login(t, "owner@example.com")
	code, env = p.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	var me model.User
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, p.owner.ID, me.ID)

	code, env = p.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Error)
}

func TestLoginRateLimit(t *testing.T) {
	p := newTestPanel(t)
	body := map[string]string{"email": "owner@example.com", "password": "nope"}
	for i := 0; i < 3; i++ {
		code, _ := p.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
		require.Equal(t, http.StatusUnauthorized, code)
	}
	code, env := p.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE_LIMITED", env.Error)
}

func TestProvisionAndPower(t *testing.T) {
	p := newTestPanel(t)
	adminToken := p.login(t, "admin@example.com")
	ownerToken := p.login(t, "owner@example.com")

	code, env := p.do(t, http.MethodPost, "/api/v1/admin/servers", ownerToken, map[string]any{
		"name": "nope", "ownerId": p.owner.ID, "nodeId": p.node.ID, "game": "minecraft", "cpu": 1, "ram": 1, "disk": 1,
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error)

	srv := p.provision(t, adminToken)
	assert.Equal(t, "ctr-1", srv.ContainerID)
	assert.Equal(t, 3000, srv.Port)
	assert.Equal(t, []int{3001}, srv.ExtraPorts)

	code, env = p.do(t, http.MethodPost, "/api/v1/servers/"+srv.Identifier+"/power/stop", ownerToken, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.JSONEq(t, `{"status":"stopping"}`, string(env.Data))

	code, env = p.do(t, http.MethodPost, "/api/v1/servers/"+srv.Identifier+"/power/dance", ownerToken, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ACTION", env.Error)

	code, env = p.do(t, http.MethodGet, "/api/v1/servers/"+srv.Identifier+"/permissions", ownerToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["*"]`, string(env.Data))
}

func TestAPICredentialCannotExceedGrant(t *testing.T) {
	p := newTestPanel(t)
	srv := p.provision(t, p.login(t, "admin@example.com"))
	ownerToken := p.login(t, "owner@example.com")

	code, env := p.do(t, http.MethodPost, "/api/v1/api-credentials", ownerToken, map[string]any{
		"name": "readonly", "capabilities": []string{"server.view"},
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var cred struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cred))
	require.Len(t, cred.Key, 32)

	code, _ = p.do(t, http.MethodGet, "/api/v1/servers/"+srv.Identifier, cred.Key, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = p.do(t, http.MethodPost, "/api/v1/servers/"+srv.Identifier+"/power/start", cred.Key, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error)

	code, env = p.do(t, http.MethodPost, "/api/v1/api-credentials", cred.Key, map[string]any{"name": "nested"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error)
}

func (p *testPanel) restrictedKey(t *testing.T, allow ...string) string {
	t.Helper()
	ownerToken := p.login(t, "owner@example.com")
	code, env := p.do(t, http.MethodPost, "/api/v1/api-credentials", ownerToken, map[string]any{
		"name": "pinned", "capabilities": []string{"account.profile.view"}, "ipAllowList": allow,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var cred struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cred))
	return cred.Key
}

func forwardedFor(ip string) http.Header {
	return http.Header{"X-Forwarded-For": []string{ip}}
}

func TestForwardedForIgnoredWithoutTrustedProxies(t *testing.T) {
	p := newTestPanel(t)
	key := p.restrictedKey(t, "10.9.9.9")

	code, _ := p.do(t, http.MethodGet, "/api/v1/users/me", key, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := p.doWith(t, http.MethodGet, "/api/v1/users/me", key, nil, forwardedFor("10.9.9.9"))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Error)
}

func TestForwardedForCannotDodgeLoginLimit(t *testing.T) {
	p := newTestPanel(t)
	body := map[string]string{"email": "owner@example.com", "password": "nope"}
	for i := 0; i < 3; i++ {
		code, _ := p.doWith(t, http.MethodPost, "/api/v1/auth/login", "", body, forwardedFor("10.0.0."+strconv.Itoa(i+1)))
		require.Equal(t, http.StatusUnauthorized, code)
	}
	code, env := p.doWith(t, http.MethodPost, "/api/v1/auth/login", "", body, forwardedFor("10.0.0.99"))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE_LIMITED", env.Error)
}

func TestForwardedForHonoredFromTrustedProxy(t *testing.T) {
	// httptest requests arrive from 192.0.2.1.
	p := newTestPanelWith(t, func(d *Deps) { d.TrustedProxies = []string{"192.0.2.1"} })
	key := p.restrictedKey(t, "10.9.9.9")

	code, env := p.doWith(t, http.MethodGet, "/api/v1/users/me", key, nil, forwardedFor("10.9.9.9"))
	assert.Equal(t, http.StatusOK, code, env.Message)

	code, _ = p.doWith(t, http.MethodGet, "/api/v1/users/me", key, nil, forwardedFor("10.9.9.8"))
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestDaemonCallbacksRequireSecret(t *testing.T) {
	p := newTestPanel(t)
	srv := p.provision(t, p.login(t, "admin@example.com"))

	code, env := p.do(t, http.MethodPost, "/api/v1/daemon/servers/status", "wrong", map[string]string{"containerId": srv.ContainerID, "status": "online"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Error)

	code, env = p.do(t, http.MethodPost, "/api/v1/daemon/servers/status", daemonSecret, map[string]string{"containerId": srv.ContainerID, "status": "online"})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.JSONEq(t, `{"status":"online"}`, string(env.Data))

	code, env = p.do(t, http.MethodPost, "/api/v1/daemon/sftp", daemonSecret, map[string]string{
		"username": strings.ToLower(srv.Identifier) + "_owner", "password": "password123",
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.JSONEq(t, `{"containerId":"ctr-1","owner":true,"permissions":["*"]}`, string(env.Data))

	code, env = p.do(t, http.MethodPost, "/api/v1/daemon/register", daemonSecret, map[string]any{
		"name": "node-1", "address": "10.0.0.9", "daemonPort": 8080, "sftpPort": 2022,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NODE_ALREADY_EXISTS", env.Error)
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

func TestRealtimeRoomReceivesStatusPush(t *testing.T) {
	p := newTestPanel(t)
	srv := p.provision(t, p.login(t, "admin@example.com"))
	ownerToken := p.login(t, "owner@example.com")

	wsURL := "ws" + strings.TrimPrefix(p.url, "http") + "/socket.io/?EIO=4&transport=websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = waitForPrefix(t, conn, "0{", 2*time.Second)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`40{"token":"`+ownerToken+`"}`)))
	_ = waitForPrefix(t, conn, "40{", 2*time.Second)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`42["servers/connect","`+srv.Identifier+`"]`)))
	joined := waitForPrefix(t, conn, `42["servers/connect"`, 2*time.Second)
	assert.Contains(t, joined, `"status":"success"`)

	code, _ := p.do(t, http.MethodPost, "/api/v1/daemon/servers/status", daemonSecret, map[string]string{"containerId": srv.ContainerID, "status": "online"})
	require.Equal(t, http.StatusOK, code)

	status := waitForPrefix(t, conn, `42["servers/status"`, 2*time.Second)
	assert.Contains(t, status, `"data":"online"`)
}

func TestRealtimeRefusesBadToken(t *testing.T) {
	p := newTestPanel(t)
	wsURL := "ws" + strings.TrimPrefix(p.url, "http") + "/socket.io/?EIO=4&transport=websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = waitForPrefix(t, conn, "0{", 2*time.Second)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`40{"token":"bogus"}`)))
	refused := waitForPrefix(t, conn, "44", 2*time.Second)
	assert.Contains(t, refused, "Invalid authentication token")
}

func TestRealtimePowerCommand(t *testing.T) {
	p := newTestPanel(t)
	srv := p.provision(t, p.login(t, "admin@example.com"))
	ownerToken := p.login(t, "owner@example.com")
	limitedKey := p.restrictedKey(t)

	wsURL := "ws" + strings.TrimPrefix(p.url, "http") + "/socket.io/?EIO=4&transport=websocket"
	dial := func(token string) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		_ = waitForPrefix(t, conn, "0{", 2*time.Second)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`40{"token":"`+token+`"}`)))
		_ = waitForPrefix(t, conn, "40{", 2*time.Second)
		return conn
	}

	limited := dial(limitedKey)
	require.NoError(t, limited.WriteMessage(websocket.TextMessage, []byte(`42["servers/power","`+srv.Identifier+`","stop"]`)))
	denied := waitForPrefix(t, limited, `42["servers/power"`, 2*time.Second)
	assert.Contains(t, denied, `"error":"FORBIDDEN"`)

	owner := dial(ownerToken)
	require.NoError(t, owner.WriteMessage(websocket.TextMessage, []byte(`42["servers/connect","`+srv.Identifier+`"]`)))
	_ = waitForPrefix(t, owner, `42["servers/connect"`, 2*time.Second)

	require.NoError(t, owner.WriteMessage(websocket.TextMessage, []byte(`423["servers/power","`+srv.Identifier+`","stop"]`)))
	status := waitForPrefix(t, owner, `42["servers/status"`, 2*time.Second)
	assert.Contains(t, status, `"data":"stopping"`)
	power := waitForPrefix(t, owner, `42["servers/power"`, 2*time.Second)
	assert.Contains(t, power, `"data":"stop"`)
	ack := waitForPrefix(t, owner, "433", 2*time.Second)
	assert.Contains(t, ack, `"status":"stopping"`)

	stored, err := p.store.ServerByIdentifier(context.Background(), srv.Identifier)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopping, stored.Status)
}
