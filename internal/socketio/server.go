package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"hostpanel/internal/hub"
)

const (
	maxPayload   int64         = 1000000
	writeTimeout time.Duration = 10 * time.Second
	pingInterval time.Duration = 25 * time.Second
	pingTimeout  time.Duration = 20 * time.Second
)

var ErrClosed = errors.New("socket closed")

// Handler supplies the application behaviour behind the transport.
type Handler interface {
	// Authenticate inspects the connect packet's auth object. The returned
	// value is attached to the socket; an error refuses the connection.
	Authenticate(ctx context.Context, remoteAddr string, auth json.RawMessage) (any, error)
	HandleEvent(c *Conn, ev Event)
	Disconnected(c *Conn)
}

// Event is one client emit. Ack is a no-op unless the client asked for one.
type Event struct {
	Name string
	Args []json.RawMessage

	ack func(args ...any)
}

func (e Event) Ack(args ...any) {
	if e.ack != nil {
		e.ack(args...)
	}
}

// StringArg decodes argument i as a string.
func (e Event) StringArg(i int) (string, bool) {
	if i >= len(e.Args) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e.Args[i], &s); err != nil {
		return "", false
	}
	return s, true
}

// Server speaks engine.io v4 / socket.io v5 over websocket only.
type Server struct {
	handler Handler
	hub     *hub.Hub
	logger  *zap.SugaredLogger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewServer(handler Handler, h *hub.Hub, logger *zap.SugaredLogger) *Server {
	if h == nil {
		h = hub.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		handler: handler,
		hub:     h,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.Serve(w, r, host)
}

// Serve upgrades the request and blocks until the socket closes. remoteAddr
// is the client IP used for credential allow-lists.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, remoteAddr string) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxPayload)

	c := newConn(ws, s.hub, remoteAddr)
	s.register(c)
	defer s.unregister(c)

	open := map[string]any{
		"sid":          c.sid,
		"upgrades":     []string{},
		"pingInterval": pingInterval.Milliseconds(),
		"pingTimeout":  pingTimeout.Milliseconds(),
		"maxPayload":   maxPayload,
	}
	openBytes, _ := json.Marshal(open)
	_ = c.writeText(string(engineOpen) + string(openBytes))

	go c.pingLoop()
	c.readLoop(func(msg string) {
		s.handleMessage(r.Context(), c, msg)
	})
}

func (s *Server) register(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.sid] = c
}

func (s *Server) unregister(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.sid)
	s.mu.Unlock()

	s.hub.LeaveAll(c)
	c.Close()
	if c.connected.Load() {
		s.handler.Disconnected(c)
	}
}

// EmitToRoom sends one event to every socket in room.
func (s *Server) EmitToRoom(room, event string, args ...any) {
	packet, err := buildEventPacket("/", nil, event, args...)
	if err != nil {
		s.logger.Errorw("failed to encode room event", "room", room, "event", event, "error", err)
		return
	}
	s.hub.Broadcast(room, []byte(packet))
}

func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) handleMessage(ctx context.Context, c *Conn, msg string) {
	if msg == "" {
		return
	}

	switch enginePacketType(msg[0]) {
	case enginePong:
		c.markPong()
	case engineMessage:
		s.handleSocketPayload(ctx, c, msg[1:])
	case engineClose:
		c.Close()
	}
}

func (s *Server) handleSocketPayload(ctx context.Context, c *Conn, payload string) {
	if payload == "" {
		return
	}

	switch socketPacketType(payload[0]) {
	case socketConnect:
		s.handleConnect(ctx, c, payload)
	case socketEvent:
		s.handleEvent(c, payload)
	case socketDisconnect:
		c.Close()
	}
}

func (s *Server) handleConnect(ctx context.Context, c *Conn, payload string) {
	if c.connected.Load() {
		return
	}

	_, rest := parseOptionalNamespace(payload[1:])
	if rest == "" {
		c.refuse("Missing auth")
		return
	}

	data, err := s.handler.Authenticate(ctx, c.remoteAddr, json.RawMessage(rest))
	if err != nil {
		c.refuse(err.Error())
		return
	}

	c.data = data
	c.connected.Store(true)

	packet, _ := buildConnectPacket("/", map[string]string{"sid": c.sid})
	_ = c.writeText(string(engineMessage) + packet)
}

func (s *Server) handleEvent(c *Conn, payload string) {
	if !c.connected.Load() {
		return
	}

	pkt, err := parseEventPacket(payload)
	if err != nil {
		return
	}

	ev := Event{Name: pkt.Event, Args: pkt.Args}
	if pkt.ID != nil {
		id, ns := *pkt.ID, pkt.Namespace
		ev.ack = func(args ...any) {
			packet, err := buildAckPacket(ns, id, args...)
			if err == nil {
				_ = c.writeText(string(engineMessage) + packet)
			}
		}
	}

	if ev.Name == "ping" {
		ev.Ack()
		return
	}
	s.handler.HandleEvent(c, ev)
}

// Conn is one connected client socket.
type Conn struct {
	ws         *websocket.Conn
	hub        *hub.Hub
	sid        string
	remoteAddr string

	connected atomic.Bool
	data      any

	ctx    context.Context
	cancel context.CancelFunc

	sendMu sync.Mutex

	pingMu       sync.Mutex
	awaitingPong bool
	pingSentAt   time.Time
	nextPingAt   time.Time

	closed atomic.Bool
}

func newConn(ws *websocket.Conn, h *hub.Hub, remoteAddr string) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:         ws,
		hub:        h,
		sid:        uuid.NewString(),
		remoteAddr: remoteAddr,
		ctx:        ctx,
		cancel:     cancel,
		nextPingAt: time.Now().Add(pingInterval),
	}
}

func (c *Conn) ID() string { return c.sid }

func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Data is the value returned by Handler.Authenticate.
func (c *Conn) Data() any { return c.data }

// Context is cancelled when the socket closes.
func (c *Conn) Context() context.Context { return c.ctx }

func (c *Conn) Join(room string) { c.hub.Join(room, c) }

func (c *Conn) Leave(room string) { c.hub.Leave(room, c) }

// Emit sends an event to this socket only.
func (c *Conn) Emit(event string, args ...any) error {
	packet, err := buildEventPacket("/", nil, event, args...)
	if err != nil {
		return err
	}
	return c.writeText(string(engineMessage) + packet)
}

// Write sends an already encoded socket.io packet. It lets the hub broadcast
// to the socket.
func (c *Conn) Write(packet []byte) error {
	return c.writeText(string(engineMessage) + string(packet))
}

func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()
	return c.ws.Close()
}

func (c *Conn) refuse(message string) {
	packet, err := buildConnectErrorPacket("/", message)
	if err == nil {
		_ = c.writeText(string(engineMessage) + packet)
	}
	if ev, err := buildEventPacket("/", nil, "error", map[string]string{"message": message}); err == nil {
		_ = c.writeText(string(engineMessage) + ev)
	}
	c.Close()
}

func (c *Conn) writeText(msg string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *Conn) readLoop(onMessage func(string)) {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(string(data))
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			c.pingMu.Lock()
			if c.awaitingPong && now.Sub(c.pingSentAt) > pingTimeout {
				c.pingMu.Unlock()
				c.Close()
				return
			}
			if !c.awaitingPong && !now.Before(c.nextPingAt) {
				c.awaitingPong = true
				c.pingSentAt = now
				c.nextPingAt = now.Add(pingInterval)
				c.pingMu.Unlock()
				_ = c.writeText(string(enginePing))
				continue
			}
			c.pingMu.Unlock()
		}
	}
}

func (c *Conn) markPong() {
	c.pingMu.Lock()
	c.awaitingPong = false
	c.pingMu.Unlock()
}
