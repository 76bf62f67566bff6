package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"hostpanel/internal/apperr"
	"hostpanel/internal/auth"
	"hostpanel/internal/model"
	"hostpanel/internal/store"
)

type RegisterNodeInput struct {
	Name       string
	Address    string
	DaemonPort int
	SFTPPort   int
	Location   string
	SSL        bool
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

// RegisterNode is called by a daemon that presented the shared secret.
func (s *Service) RegisterNode(ctx context.Context, in RegisterNodeInput) (model.Node, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Address == "" || !validPort(in.DaemonPort) || !validPort(in.SFTPPort) {
		return model.Node{}, apperr.ErrBadRequest("name, address, daemonPort and sftpPort are required")
	}
	now := time.Now().UTC()
	n := model.Node{
		Name:       in.Name,
		Address:    auth.NormalizeOrigin(in.Address),
		DaemonPort: in.DaemonPort,
		SFTPPort:   in.SFTPPort,
		SSL:        in.SSL,
		Location:   in.Location,
		LastSeenAt: &now,
	}
	if err := s.store.CreateNode(ctx, &n); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return model.Node{}, apperr.New(apperr.Conflict, apperr.CodeNodeAlreadyExists, "A node with this name already exists")
		}
		return model.Node{}, apperr.ErrInternal(err)
	}
	s.logger.Infow("node registered", "node", n.ID, "name", n.Name, "address", n.Address)
	return n, nil
}

type ConnectNodeInput struct {
	ID       uint
	SSL      bool
	SFTPPort int
}

// ConnectNode records a heartbeat. The address comes from the connection the
// daemon called from, never from the request body.
func (s *Service) ConnectNode(ctx context.Context, in ConnectNodeInput, remoteAddr string) (model.Node, error) {
	if in.ID == 0 || !validPort(in.SFTPPort) {
		return model.Node{}, apperr.ErrBadRequest("id and sftpPort are required")
	}
	addr := auth.NormalizeOrigin(remoteAddr)
	if addr == "" {
		return model.Node{}, apperr.ErrBadRequest("Could not determine the node address")
	}
	n, err := s.store.UpdateNodeConnection(ctx, in.ID, addr, in.SSL, in.SFTPPort, time.Now().UTC())
	if err != nil {
		return model.Node{}, storeErr(err, apperr.ErrNodeNotFound())
	}
	return n, nil
}

func (s *Service) ListNodes(ctx context.Context, p model.Principal) ([]model.Node, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	nodes, err := s.store.ListNodes(ctx)
	if err != nil {
		return nil, apperr.ErrInternal(err)
	}
	return nodes, nil
}

func (s *Service) adminNode(ctx context.Context, p model.Principal, id uint) (model.Node, error) {
	if err := requireAdmin(p); err != nil {
		return model.Node{}, err
	}
	n, err := s.store.NodeByID(ctx, id)
	if err != nil {
		return model.Node{}, storeErr(err, apperr.ErrNodeNotFound())
	}
	return n, nil
}

// DeleteNode refuses while servers remain, then uninstalls the daemon and
// drops the record.
func (s *Service) DeleteNode(ctx context.Context, p model.Principal, id uint) error {
	n, err := s.adminNode(ctx, p, id)
	if err != nil {
		return err
	}
	count, err := s.store.CountServersOnNode(ctx, n.ID)
	if err != nil {
		return apperr.ErrInternal(err)
	}
	if count > 0 {
		return errNodeHasServers()
	}
	if err := s.daemon.DeleteNode(ctx, n); err != nil {
		return daemonErr(err)
	}
	if err := s.store.DeleteNode(ctx, n.ID); err != nil {
		if errors.Is(err, store.ErrNodeHasServers) {
			return errNodeHasServers()
		}
		return storeErr(err, apperr.ErrNodeNotFound())
	}
	s.logger.Infow("node deleted", "node", n.ID, "name", n.Name)
	return nil
}

func errNodeHasServers() error {
	return apperr.New(apperr.Conflict, apperr.CodeNodeHasServers, "Node still hosts servers")
}

func (s *Service) PingNode(ctx context.Context, p model.Principal, id uint) (time.Duration, error) {
	n, err := s.adminNode(ctx, p, id)
	if err != nil {
		return 0, err
	}
	rtt, err := s.daemon.Ping(ctx, n)
	if err != nil {
		return 0, daemonErr(err)
	}
	return rtt, nil
}

func (s *Service) NodeSystemInfo(ctx context.Context, p model.Principal, id uint) (json.RawMessage, error) {
	n, err := s.adminNode(ctx, p, id)
	if err != nil {
		return nil, err
	}
	info, err := s.daemon.SystemInfo(ctx, n)
	if err != nil {
		return nil, daemonErr(err)
	}
	return info, nil
}
