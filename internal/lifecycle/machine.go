package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"hostpanel/internal/model"
	"hostpanel/internal/notifier"
	"hostpanel/internal/store"
)

const (
	EventStatus = "servers/status"
	EventPower  = "servers/power"

	maxWriteAttempts = 5
)

type Source string

const (
	SourcePoll    Source = "poll"
	SourcePush    Source = "push"
	SourceCommand Source = "command"
)

type StatusStore interface {
	ServerByID(ctx context.Context, id uint) (model.Server, error)
	CompareAndSetStatus(ctx context.Context, id uint, expected int64, status model.ServerStatus) (int64, error)
}

// Publisher fans an event out to every client in a server's room.
type Publisher interface {
	Publish(serverIdentifier, event string, payload any)
}

// Machine is the only writer of a server's status. Writes for the same server
// are serialized in process and guarded by a version check in the store.
type Machine struct {
	store     StatusStore
	publisher Publisher
	notifier  notifier.Notifier
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu    sync.Mutex
	locks map[uint]*serverLock
}

type serverLock struct {
	mu   sync.Mutex
	refs int
}

func NewMachine(st StatusStore, publisher Publisher, n notifier.Notifier, logger *zap.SugaredLogger) *Machine {
	if n == nil {
		n = notifier.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Machine{
		store:     st,
		publisher: publisher,
		notifier:  n,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[uint]*serverLock),
	}
}

// ApplyPoll merges a raw poll report into the stored state.
func (m *Machine) ApplyPoll(ctx context.Context, serverID uint, raw string) (model.Server, error) {
	srv, changed, err := m.transition(ctx, serverID, SourcePoll, func(current model.ServerStatus) model.ServerStatus {
		return Merge(current, raw)
	})
	if err != nil {
		return model.Server{}, err
	}
	if changed {
		m.publish(srv.Identifier, EventStatus, model.Success("Server status updated successfully", srv.Status))
	}
	return srv, nil
}

// ApplyPush records a status pushed by the daemon. Pushes are explicit
// completion reports, so they overwrite transient intents, and they are
// always re-emitted to the room.
func (m *Machine) ApplyPush(ctx context.Context, serverID uint, status model.ServerStatus) (model.Server, error) {
	if !status.Valid() {
		return model.Server{}, fmt.Errorf("invalid status %q", status)
	}
	srv, _, err := m.transition(ctx, serverID, SourcePush, func(model.ServerStatus) model.ServerStatus {
		return status
	})
	if err != nil {
		return model.Server{}, err
	}
	m.publish(srv.Identifier, EventStatus, model.Success("Server status updated successfully", srv.Status))
	return srv, nil
}

// RecordCommand sets the transient intent for an action the daemon has
// already accepted.
func (m *Machine) RecordCommand(ctx context.Context, serverID uint, action Action) (model.Server, error) {
	srv, _, err := m.transition(ctx, serverID, SourceCommand, func(model.ServerStatus) model.ServerStatus {
		return action.Transient()
	})
	if err != nil {
		return model.Server{}, err
	}
	m.publish(srv.Identifier, EventStatus, model.Success(action.Message(), srv.Status))
	m.publish(srv.Identifier, EventPower, model.Success(action.Message(), action))
	return srv, nil
}

func (m *Machine) transition(ctx context.Context, serverID uint, source Source, next func(model.ServerStatus) model.ServerStatus) (model.Server, bool, error) {
	unlock := m.lock(serverID)
	defer unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		srv, err := m.store.ServerByID(ctx, serverID)
		if err != nil {
			return model.Server{}, false, err
		}
		from := srv.Status
		to := next(from)
		if to == from {
			return srv, false, nil
		}

		version, err := m.store.CompareAndSetStatus(ctx, serverID, srv.StatusVersion, to)
		if errors.Is(err, store.ErrStaleVersion) {
			m.logger.Debugw("status version moved, retrying", "server", srv.Identifier, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return model.Server{}, false, err
		}

		srv.Status = to
		srv.StatusVersion = version
		m.logger.Infow("server status changed", "server", srv.Identifier, "from", from, "to", to, "source", source)
		m.notify(ctx, srv, from, source)
		return srv, true, nil
	}
	return model.Server{}, false, fmt.Errorf("server %d: %w after %d attempts", serverID, store.ErrStaleVersion, maxWriteAttempts)
}

func (m *Machine) notify(ctx context.Context, srv model.Server, from model.ServerStatus, source Source) {
	err := m.notifier.StatusChanged(ctx, notifier.StatusChange{
		ServerID: srv.Identifier,
		From:     string(from),
		To:       string(srv.Status),
		Source:   string(source),
		Version:  srv.StatusVersion,
		At:       m.now().UTC(),
	})
	if err != nil {
		m.logger.Warnw("failed to publish status change", "server", srv.Identifier, "error", err)
	}
}

func (m *Machine) publish(identifier, event string, payload any) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(identifier, event, payload)
}

func (m *Machine) lock(serverID uint) func() {
	m.mu.Lock()
	l, ok := m.locks[serverID]
	if !ok {
		l = &serverLock{}
		m.locks[serverID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, serverID)
		}
		m.mu.Unlock()
	}
}
