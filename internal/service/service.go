package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"hostpanel/internal/apperr"
	"hostpanel/internal/auth"
	"hostpanel/internal/capability"
	"hostpanel/internal/daemon"
	"hostpanel/internal/lifecycle"
	"hostpanel/internal/model"
	"hostpanel/internal/permission"
	"hostpanel/internal/store"
)

// Daemon is the part of the gateway the services call.
type Daemon interface {
	CreateServer(ctx context.Context, node model.Node, req daemon.CreateServerRequest) (daemon.CreatedServer, error)
	DeleteServer(ctx context.Context, node model.Node, containerID string) error
	Power(ctx context.Context, node model.Node, srv model.Server, action string) error
	Status(ctx context.Context, node model.Node, srv model.Server) (string, error)
	Stats(ctx context.Context, node model.Node, containerID string) (daemon.Stats, error)
	CreateBackup(ctx context.Context, node model.Node, containerID, name string, ignore []string) (daemon.BackupCreated, error)
	RestoreBackup(ctx context.Context, node model.Node, containerID, name string) error
	DeleteBackup(ctx context.Context, node model.Node, containerID, name string) error
	SetJavaVersion(ctx context.Context, node model.Node, containerID, version string) error
	SetStartup(ctx context.Context, node model.Node, req daemon.StartupRequest) error
	InstallPlugin(ctx context.Context, node model.Node, req daemon.PluginRequest) error
	DeleteNode(ctx context.Context, node model.Node) error
	SystemInfo(ctx context.Context, node model.Node) (json.RawMessage, error)
	Ping(ctx context.Context, node model.Node) (time.Duration, error)
}

// Publisher emits room events to realtime clients.
type Publisher interface {
	Publish(serverIdentifier, event string, payload any)
}

type Deps struct {
	Store     *store.Store
	Daemon    Daemon
	Evaluator *permission.Evaluator
	Machine   *lifecycle.Machine
	Publisher Publisher
	Tokens    auth.TokenConfig
	Logger    *zap.SugaredLogger
}

// Service holds every panel operation. Handlers stay thin: each call here
// resolves the target, asks the evaluator, talks to the daemon and commits.
type Service struct {
	store     *store.Store
	daemon    Daemon
	evaluator *permission.Evaluator
	machine   *lifecycle.Machine
	publisher Publisher
	tokens    auth.TokenConfig
	logger    *zap.SugaredLogger

	// provisionMu serializes provisioning so allocation and insert do not
	// race inside one process.
	provisionMu sync.Mutex
}

func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:     deps.Store,
		daemon:    deps.Daemon,
		evaluator: deps.Evaluator,
		machine:   deps.Machine,
		publisher: deps.Publisher,
		tokens:    deps.Tokens,
		logger:    logger,
	}
}

// withServer is the shared path for server-scoped operations: load the server
// and its node, gate on want, then run fn. Nothing in fn runs for a principal
// that lacks the capability.
func withServer[T any](ctx context.Context, s *Service, p model.Principal, identifier string, want capability.Capability, fn func(ctx context.Context, srv model.Server, node model.Node) (T, error)) (T, error) {
	var zero T
	srv, err := s.authorizedServer(ctx, p, identifier, want)
	if err != nil {
		return zero, err
	}
	node, err := s.store.NodeByID(ctx, srv.NodeID)
	if err != nil {
		return zero, storeErr(err, apperr.ErrNodeNotFound())
	}
	return fn(ctx, srv, node)
}

func (s *Service) authorizedServer(ctx context.Context, p model.Principal, identifier string, want capability.Capability) (model.Server, error) {
	srv, err := s.store.ServerByIdentifier(ctx, identifier)
	if err != nil {
		return model.Server{}, storeErr(err, apperr.ErrServerNotFound())
	}
	if err := s.evaluator.Authorize(ctx, p, want, &srv); err != nil {
		return model.Server{}, err
	}
	return srv, nil
}

func (s *Service) publish(identifier, event string, payload any) {
	if s.publisher != nil {
		s.publisher.Publish(identifier, event, payload)
	}
}

func requireAdmin(p model.Principal) error {
	if p.Suspended {
		return apperr.ErrSuspended()
	}
	if !p.IsInteractive() || !p.Admin {
		return apperr.ErrForbidden()
	}
	return nil
}

func requireInteractive(p model.Principal) error {
	if p.Suspended {
		return apperr.ErrSuspended()
	}
	if !p.IsInteractive() {
		return apperr.ErrForbidden()
	}
	return nil
}

// storeErr maps ErrNotFound onto notFound and anything else onto Internal.
func storeErr(err error, notFound *apperr.Error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	return apperr.ErrInternal(err)
}

// daemonErr keeps the gateway's distinction between an unreachable node and a
// node that refused.
func daemonErr(err error) error {
	de, ok := daemon.AsError(err)
	if !ok {
		return apperr.ErrInternal(err)
	}
	if de.Unavailable {
		return apperr.Wrap(err, apperr.UpstreamUnavailable, apperr.CodeCouldNotConnect, "Could not connect to node")
	}
	return apperr.Wrap(err, apperr.UpstreamRejected, de.Code, de.Message)
}
