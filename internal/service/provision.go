package service

import (
	"context"
	"errors"
	"strings"

	"hostpanel/internal/allocator"
	"hostpanel/internal/apperr"
	"hostpanel/internal/daemon"
	"hostpanel/internal/lifecycle"
	"hostpanel/internal/model"
	"hostpanel/internal/store"
)

const (
	maxProvisionAttempts = 3
	defaultBackupsLimit  = 3

	mib = int64(1024 * 1024)
	gib = 1024 * mib
)

type ProvisionInput struct {
	Name         string
	OwnerID      uint
	NodeID       uint
	Game         string
	CPU          int
	RAM          int64 // MiB
	Disk         int64 // GiB
	Port         int
	ExtraPorts   int
	BackupsLimit *int
}

func (in ProvisionInput) validate() error {
	name := strings.TrimSpace(in.Name)
	if len(name) < 3 || len(name) > 32 {
		return apperr.ErrBadRequest("Name must be between 3 and 32 characters")
	}
	if in.Game == "" {
		return apperr.ErrBadRequest("Game is required")
	}
	if in.CPU <= 0 || in.RAM <= 0 || in.Disk <= 0 {
		return apperr.ErrBadRequest("cpu, ram and disk must be positive")
	}
	if in.ExtraPorts < 0 || in.ExtraPorts > allocator.MaxExtraPorts {
		return apperr.ErrBadRequest("extraPorts must be between 0 and 20")
	}
	if in.BackupsLimit != nil && *in.BackupsLimit < 0 {
		return apperr.ErrBadRequest("backupsLimit must not be negative")
	}
	return nil
}

// ProvisionServer allocates an identifier and ports, creates the container on
// the node and only then inserts the record. A failed insert triggers one
// compensating delete on the node.
func (s *Service) ProvisionServer(ctx context.Context, p model.Principal, in ProvisionInput) (model.Server, error) {
	if err := requireAdmin(p); err != nil {
		return model.Server{}, err
	}
	if err := in.validate(); err != nil {
		return model.Server{}, err
	}

	owner, err := s.store.UserByID(ctx, in.OwnerID)
	if err != nil {
		return model.Server{}, storeErr(err, apperr.ErrUserNotFound())
	}
	node, err := s.store.NodeByID(ctx, in.NodeID)
	if err != nil {
		return model.Server{}, storeErr(err, apperr.ErrNodeNotFound())
	}

	backups := defaultBackupsLimit
	if in.BackupsLimit != nil {
		backups = *in.BackupsLimit
	}
	srv := model.Server{
		Name:         strings.TrimSpace(in.Name),
		OwnerID:      owner.ID,
		NodeID:       node.ID,
		Game:         in.Game,
		CPU:          in.CPU,
		RAMLimit:     in.RAM * mib,
		DiskLimit:    in.Disk * gib,
		Status:       model.StatusStarting,
		BackupsLimit: backups,
	}
	if in.Game == gameMinecraft {
		srv.JavaVersion = "21"
	}

	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()

	for attempt := 1; ; attempt++ {
		err := s.provisionOnce(ctx, &srv, node, owner, in)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			return model.Server{}, err
		}
		if attempt >= maxProvisionAttempts {
			return model.Server{}, apperr.Wrap(err, apperr.Conflict, apperr.CodePortAlreadyUsed, "Could not reserve an id and ports for this server")
		}
		s.logger.Warnw("provisioning insert conflicted, retrying", "server", srv.Identifier, "attempt", attempt, "error", err)
	}

	s.logger.Infow("server provisioned", "server", srv.Identifier, "node", node.ID, "owner", owner.ID, "port", srv.Port)
	return srv, nil
}

// provisionOnce runs allocate, remote create and insert. A unique violation on
// insert rolls the container back and comes back as store.ErrConflict so the
// caller can start over with a fresh allocation.
func (s *Service) provisionOnce(ctx context.Context, srv *model.Server, node model.Node, owner model.User, in ProvisionInput) error {
	if err := s.allocate(ctx, srv, in); err != nil {
		return err
	}

	created, err := s.daemon.CreateServer(ctx, node, daemon.CreateServerRequest{
		Name:        srv.Name,
		Owner:       owner.ID,
		Game:        srv.Game,
		ServerID:    srv.Identifier,
		Port:        srv.Port,
		ExtraPorts:  srv.ExtraPorts,
		CPU:         srv.CPU,
		RAM:         in.RAM,
		Disk:        in.Disk,
		JavaVersion: srv.JavaVersion,
	})
	if err != nil {
		return daemonErr(err)
	}
	srv.ContainerID = created.ContainerID
	srv.StartCommand = created.StartCommand

	if err := s.store.CreateServer(ctx, srv); err != nil {
		s.compensate(node, *srv)
		if errors.Is(err, store.ErrConflict) {
			return err
		}
		return apperr.ErrInternal(err)
	}
	return nil
}

// allocate fills in the identifier and ports from the allocator.
func (s *Service) allocate(ctx context.Context, srv *model.Server, in ProvisionInput) error {
	id, err := allocator.NewIdentifier(ctx, s.store.IdentifierExists)
	if errors.Is(err, allocator.ErrIdentifierExhausted) {
		return apperr.Wrap(err, apperr.Exhausted, apperr.CodeServerIDExhausted, "Could not allocate a server id")
	}
	if err != nil {
		return apperr.ErrInternal(err)
	}

	used, err := s.store.UsedPorts(ctx, srv.NodeID)
	if err != nil {
		return apperr.ErrInternal(err)
	}
	alloc, err := allocator.AllocatePorts(used, allocator.PortRequest{Port: in.Port, ExtraPorts: in.ExtraPorts})
	switch {
	case errors.Is(err, allocator.ErrPortTaken):
		return apperr.Wrap(err, apperr.Conflict, apperr.CodePortAlreadyUsed, "Port is already used on this node")
	case errors.Is(err, allocator.ErrPortsExhausted):
		return apperr.Wrap(err, apperr.Exhausted, apperr.CodeNotEnoughPorts, "Not enough free ports on this node")
	case err != nil:
		return apperr.ErrBadRequest(err.Error())
	}

	srv.Identifier = id
	srv.Port = alloc.Port
	srv.ExtraPorts = alloc.Extra
	return nil
}

// compensate removes a container whose record could not be stored. It is
// attempted once and only logged on failure.
func (s *Service) compensate(node model.Node, srv model.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), daemon.DefaultTimeout)
	defer cancel()
	if err := s.daemon.DeleteServer(ctx, node, srv.ContainerID); err != nil {
		s.logger.Errorw("compensating delete failed, container leaked", "server", srv.Identifier, "container", srv.ContainerID, "node", node.ID, "error", err)
		return
	}
	s.logger.Warnw("rolled back provisioned container", "server", srv.Identifier, "container", srv.ContainerID)
}

// DeleteServer removes the container first; the record goes only after the
// daemon confirmed.
func (s *Service) DeleteServer(ctx context.Context, p model.Principal, identifier string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	srv, err := s.store.ServerByIdentifier(ctx, identifier)
	if err != nil {
		return storeErr(err, apperr.ErrServerNotFound())
	}
	node, err := s.store.NodeByID(ctx, srv.NodeID)
	if err != nil {
		return storeErr(err, apperr.ErrNodeNotFound())
	}
	if err := s.daemon.DeleteServer(ctx, node, srv.ContainerID); err != nil {
		return daemonErr(err)
	}
	if err := s.store.DeleteServer(ctx, srv.ID); err != nil {
		return storeErr(err, apperr.ErrServerNotFound())
	}
	s.logger.Infow("server deleted", "server", srv.Identifier)
	return nil
}

// SetSuspended toggles the flag. Suspending a running server also kills it on
// a best-effort basis.
func (s *Service) SetSuspended(ctx context.Context, p model.Principal, identifier string, suspended bool) (model.Server, error) {
	if err := requireAdmin(p); err != nil {
		return model.Server{}, err
	}
	srv, err := s.store.ServerByIdentifier(ctx, identifier)
	if err != nil {
		return model.Server{}, storeErr(err, apperr.ErrServerNotFound())
	}
	if err := s.store.SetServerSuspended(ctx, srv.ID, suspended); err != nil {
		return model.Server{}, storeErr(err, apperr.ErrServerNotFound())
	}
	srv.Suspended = suspended

	if suspended && srv.Status != model.StatusOffline {
		if node, err := s.store.NodeByID(ctx, srv.NodeID); err == nil {
			if err := s.daemon.Power(ctx, node, srv, string(lifecycle.ActionKill)); err != nil {
				s.logger.Warnw("kill after suspend failed", "server", srv.Identifier, "error", err)
			} else if updated, err := s.machine.RecordCommand(ctx, srv.ID, lifecycle.ActionKill); err == nil {
				srv = updated
			}
		}
	}
	return srv, nil
}
