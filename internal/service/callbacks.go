package service

import (
	"context"
	"strings"

	"hostpanel/internal/apperr"
	"hostpanel/internal/auth"
	"hostpanel/internal/capability"
	"hostpanel/internal/model"
)

const (
	EventLogs    = "servers/logs"
	EventBackups = "servers/backups"
)

func (s *Service) serverByContainer(ctx context.Context, containerID string) (model.Server, error) {
	if containerID == "" {
		return model.Server{}, apperr.ErrBadRequest("containerId is required")
	}
	srv, err := s.store.ServerByContainerID(ctx, containerID)
	if err != nil {
		return model.Server{}, storeErr(err, apperr.ErrServerNotFound())
	}
	return srv, nil
}

// PushStatus applies a daemon status push through the state machine, which
// also relays it to the room.
func (s *Service) PushStatus(ctx context.Context, containerID string, status model.ServerStatus) (model.Server, error) {
	if !status.Valid() {
		return model.Server{}, apperr.New(apperr.Invalid, apperr.CodeInvalidStatus, "Invalid status")
	}
	srv, err := s.serverByContainer(ctx, containerID)
	if err != nil {
		return model.Server{}, err
	}
	updated, err := s.machine.ApplyPush(ctx, srv.ID, status)
	if err != nil {
		return model.Server{}, apperr.ErrInternal(err)
	}
	return updated, nil
}

// PushLogs relays a log chunk to the server's room without storing it.
func (s *Service) PushLogs(ctx context.Context, containerID, logs string) error {
	if logs == "" {
		return apperr.ErrBadRequest("logs is required")
	}
	srv, err := s.serverByContainer(ctx, containerID)
	if err != nil {
		return err
	}
	s.publish(srv.Identifier, EventLogs, model.Success("Server logs fetched successfully", logs))
	return nil
}

type BackupResult struct {
	Backup uint               `json:"backup"`
	Status model.BackupStatus `json:"status"`
}

// FinishBackup finalizes the server's in-progress backup. Without a name the
// oldest in-progress backup is used.
func (s *Service) FinishBackup(ctx context.Context, containerID, name string, status model.BackupStatus) (BackupResult, error) {
	if status != model.BackupSuccess && status != model.BackupError {
		return BackupResult{}, apperr.New(apperr.Invalid, apperr.CodeInvalidStatus, "status must be success or error")
	}
	srv, err := s.serverByContainer(ctx, containerID)
	if err != nil {
		return BackupResult{}, err
	}
	b, err := s.store.FinalizeBackup(ctx, srv.ID, name, status)
	if err != nil {
		return BackupResult{}, storeErr(err, errBackupNotFound())
	}
	res := BackupResult{Backup: b.ID, Status: b.Status}
	s.publish(srv.Identifier, EventBackups, model.Success("Backup status updated successfully", res))
	return res, nil
}

type SFTPGrant struct {
	ContainerID string   `json:"containerId"`
	Owner       bool     `json:"owner"`
	Permissions []string `json:"permissions"`
}

// AuthenticateSFTP checks a "<SERVERID>_<user name>" login for the daemon's
// SFTP server.
func (s *Service) AuthenticateSFTP(ctx context.Context, username, password string) (SFTPGrant, error) {
	serverID, name, ok := strings.Cut(username, "_")
	if !ok || serverID == "" || name == "" || password == "" {
		return SFTPGrant{}, apperr.ErrBadRequest("Missing parameters")
	}
	srv, err := s.store.ServerByIdentifier(ctx, strings.ToUpper(serverID))
	if err != nil {
		return SFTPGrant{}, storeErr(err, apperr.ErrServerNotFound())
	}

	invalid := apperr.New(apperr.Unauthorized, apperr.CodeInvalidCredentials, "Invalid username or password")
	user, err := s.store.UserByName(ctx, name)
	if err != nil {
		return SFTPGrant{}, storeErr(err, invalid)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return SFTPGrant{}, invalid
	}

	p := model.Principal{
		Kind:      model.PrincipalInteractive,
		UserID:    user.ID,
		Name:      user.Name,
		Admin:     user.Admin,
		Superuser: user.Superuser,
		Suspended: user.Suspended,
	}
	if err := s.evaluator.Authorize(ctx, p, capability.FilesSFTP, &srv); err != nil {
		return SFTPGrant{}, err
	}
	caps, err := s.evaluator.Effective(ctx, p, &srv)
	if err != nil {
		return SFTPGrant{}, apperr.ErrInternal(err)
	}
	return SFTPGrant{
		ContainerID: srv.ContainerID,
		Owner:       user.ID == srv.OwnerID,
		Permissions: caps.Strings(),
	}, nil
}
