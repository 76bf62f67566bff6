package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
	"hostpanel/internal/apperr"
	"hostpanel/internal/capability"
	"hostpanel/internal/daemon"
	"hostpanel/internal/model"
	"hostpanel/internal/socketio"
	"hostpanel/internal/store"
)

const (
	EventConnect = "servers/connect"
	EventLogs    = "servers/logs"
	EventBackups = "servers/backups"
	EventPower   = "servers/power"
)

// Room is the realtime room for a server identifier.
func Room(serverIdentifier string) string { return "servers/" + serverIdentifier }

type Resolver interface {
	Resolve(ctx context.Context, rawBearer, origin string) (model.Principal, bool)
}

type Authorizer interface {
	Authorize(ctx context.Context, p model.Principal, c capability.Capability, server *model.Server) error
}

type ServerLookup interface {
	ServerByIdentifier(ctx context.Context, identifier string) (model.Server, error)
	NodeByID(ctx context.Context, id uint) (model.Node, error)
}

type LogStreamer interface {
	StreamLogs(ctx context.Context, node model.Node, containerID string, onLogs func(json.RawMessage)) (daemon.LogStream, error)
}

// Commander runs a power action with the same authorization and state
// transition as the HTTP power route.
type Commander interface {
	Power(ctx context.Context, p model.Principal, identifier, action string) (model.Server, error)
}

// Relay authenticates realtime clients, admits them to server rooms and
// proxies daemon log streams to them.
type Relay struct {
	resolver Resolver
	authz    Authorizer
	servers  ServerLookup
	logs     LogStreamer
	logger   *zap.SugaredLogger

	sio *socketio.Server

	mu        sync.Mutex
	commander Commander
	proxies   map[*socketio.Conn]map[string]*proxy
}

type proxy struct {
	stream  daemon.LogStream
	stopped chan struct{}
	once    sync.Once
}

func (p *proxy) stop() {
	p.once.Do(func() {
		close(p.stopped)
		_ = p.stream.Close()
	})
}

func New(resolver Resolver, authz Authorizer, servers ServerLookup, logs LogStreamer, logger *zap.SugaredLogger) *Relay {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Relay{
		resolver: resolver,
		authz:    authz,
		servers:  servers,
		logs:     logs,
		logger:   logger,
		proxies:  make(map[*socketio.Conn]map[string]*proxy),
	}
}

// Attach binds the relay to the socket server that publishes its events.
func (r *Relay) Attach(sio *socketio.Server) { r.sio = sio }

// SetCommander enables client power commands.
func (r *Relay) SetCommander(c Commander) {
	r.mu.Lock()
	r.commander = c
	r.mu.Unlock()
}

// Publish emits an event into a server's room. Fan-out is at most once;
// sockets that join later see only later events.
func (r *Relay) Publish(serverIdentifier, event string, payload any) {
	if r.sio == nil {
		return
	}
	r.sio.EmitToRoom(Room(serverIdentifier), event, payload)
}

type connectAuth struct {
	Token string `json:"token"`
}

func (r *Relay) Authenticate(ctx context.Context, remoteAddr string, raw json.RawMessage) (any, error) {
	var body connectAuth
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.New("Invalid auth")
	}
	if body.Token == "" {
		return nil, errors.New("Missing token")
	}
	p, ok := r.resolver.Resolve(ctx, body.Token, remoteAddr)
	if !ok {
		return nil, errors.New("Invalid authentication token")
	}
	if p.Suspended {
		return nil, errors.New("Your account is suspended")
	}
	return p, nil
}

func (r *Relay) HandleEvent(c *socketio.Conn, ev socketio.Event) {
	switch ev.Name {
	case EventConnect:
		r.handleConnect(c, ev)
	case EventLogs:
		r.handleLogs(c, ev)
	case EventPower:
		r.handlePower(c, ev)
	}
}

func (r *Relay) Disconnected(c *socketio.Conn) {
	r.mu.Lock()
	proxies := r.proxies[c]
	delete(r.proxies, c)
	r.mu.Unlock()

	for _, p := range proxies {
		p.stop()
	}
}

// authorize loads the server named by the event and checks c's principal.
func (r *Relay) authorize(c *socketio.Conn, ev socketio.Event, want capability.Capability) (model.Server, error) {
	p, ok := c.Data().(model.Principal)
	if !ok {
		return model.Server{}, apperr.ErrUnauthorized()
	}
	identifier, ok := ev.StringArg(0)
	if !ok || identifier == "" {
		return model.Server{}, apperr.ErrBadRequest("Missing server id")
	}
	srv, err := r.servers.ServerByIdentifier(c.Context(), identifier)
	if errors.Is(err, store.ErrNotFound) {
		return model.Server{}, apperr.ErrServerNotFound()
	}
	if err != nil {
		return model.Server{}, apperr.ErrInternal(err)
	}
	if err := r.authz.Authorize(c.Context(), p, want, &srv); err != nil {
		return model.Server{}, err
	}
	return srv, nil
}

func (r *Relay) handleConnect(c *socketio.Conn, ev socketio.Event) {
	srv, err := r.authorize(c, ev, capability.ServerView)
	if err != nil {
		r.fail(c, EventConnect, err)
		return
	}
	c.Join(Room(srv.Identifier))
	_ = c.Emit(EventConnect, model.Success("Connected to server", map[string]string{"serverId": srv.Identifier}))
}

// handlePower answers the requester through the ack. Status and power events
// reach the server's room from the state machine.
func (r *Relay) handlePower(c *socketio.Conn, ev socketio.Event) {
	p, ok := c.Data().(model.Principal)
	if !ok {
		r.fail(c, EventPower, apperr.ErrUnauthorized())
		return
	}
	identifier, _ := ev.StringArg(0)
	action, _ := ev.StringArg(1)
	if identifier == "" || action == "" {
		r.fail(c, EventPower, apperr.ErrBadRequest("Missing server id or action"))
		return
	}
	r.mu.Lock()
	commander := r.commander
	r.mu.Unlock()
	if commander == nil {
		r.fail(c, EventPower, apperr.ErrInternal(errors.New("power commands are not enabled")))
		return
	}
	srv, err := commander.Power(c.Context(), p, identifier, action)
	if err != nil {
		r.fail(c, EventPower, err)
		return
	}
	r.logger.Infow("power command from socket", "socket", c.ID(), "server", srv.Identifier, "action", action)
	ev.Ack(model.Success("Power action sent successfully", map[string]model.ServerStatus{"status": srv.Status}))
}

func (r *Relay) handleLogs(c *socketio.Conn, ev socketio.Event) {
	srv, err := r.authorize(c, ev, capability.ConsoleRead)
	if err != nil {
		r.fail(c, EventLogs, err)
		return
	}
	node, err := r.servers.NodeByID(c.Context(), srv.NodeID)
	if err != nil {
		r.fail(c, EventLogs, apperr.ErrNodeNotFound())
		return
	}

	r.stopProxy(c, srv.Identifier)

	stream, err := r.logs.StreamLogs(c.Context(), node, srv.ContainerID, func(raw json.RawMessage) {
		_ = c.Emit(EventLogs, raw)
	})
	if err != nil {
		r.fail(c, EventLogs, apperr.Wrap(err, apperr.UpstreamUnavailable, apperr.CodeCouldNotConnect, "Could not connect to node"))
		return
	}

	p := &proxy{stream: stream, stopped: make(chan struct{})}
	if !r.addProxy(c, srv.Identifier, p) {
		p.stop()
		return
	}
	r.logger.Debugw("log proxy opened", "socket", c.ID(), "server", srv.Identifier)

	go r.watch(c, srv.Identifier, p)
}

// watch reports an upstream disconnect unless the proxy was stopped on
// purpose.
func (r *Relay) watch(c *socketio.Conn, identifier string, p *proxy) {
	select {
	case <-p.stopped:
		return
	case <-p.stream.Done():
	}

	r.mu.Lock()
	if set := r.proxies[c]; set != nil && set[identifier] == p {
		delete(set, identifier)
		if len(set) == 0 {
			delete(r.proxies, c)
		}
	}
	r.mu.Unlock()

	select {
	case <-p.stopped:
		return
	default:
	}
	r.logger.Infow("daemon log stream closed", "socket", c.ID(), "server", identifier)
	_ = c.Emit(EventLogs, model.Failure("Daemon disconnected", apperr.CodeDaemonDisconnected))
}

// addProxy registers p unless the socket already went away.
func (r *Relay) addProxy(c *socketio.Conn, identifier string, p *proxy) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Context().Err() != nil {
		return false
	}
	set := r.proxies[c]
	if set == nil {
		set = make(map[string]*proxy)
		r.proxies[c] = set
	}
	if old := set[identifier]; old != nil {
		defer old.stop()
	}
	set[identifier] = p
	return true
}

func (r *Relay) stopProxy(c *socketio.Conn, identifier string) {
	r.mu.Lock()
	var old *proxy
	if set := r.proxies[c]; set != nil {
		old = set[identifier]
		delete(set, identifier)
	}
	r.mu.Unlock()
	if old != nil {
		old.stop()
	}
}

// ActiveProxies counts open log proxies across all sockets.
func (r *Relay) ActiveProxies() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, set := range r.proxies {
		n += len(set)
	}
	return n
}

func (r *Relay) fail(c *socketio.Conn, event string, err error) {
	code := apperr.CodeOf(err)
	msg := "Internal server error"
	if ae, ok := apperr.As(err); ok && ae.Message != "" {
		msg = ae.Message
	}
	if apperr.KindOf(err) == apperr.Internal {
		r.logger.Errorw("realtime event failed", "event", event, "error", err)
	}
	_ = c.Emit(event, model.Failure(msg, code))
}
