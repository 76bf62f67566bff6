package service

import (
	"context"
	"errors"
	"regexp"

	"hostpanel/internal/apperr"
	"hostpanel/internal/capability"
	"hostpanel/internal/model"
	"hostpanel/internal/store"
)

var backupNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _.-]{1,64}$`)

func errMaxBackups() error {
	return apperr.New(apperr.Conflict, apperr.CodeMaxBackups, "Maximum number of backups reached")
}

func errBackupInProgress() error {
	return apperr.New(apperr.Conflict, apperr.CodeBackupInProgress, "A backup is already in progress")
}

func backupSlotErr(err error) error {
	switch {
	case errors.Is(err, store.ErrLimitReached):
		return errMaxBackups()
	case errors.Is(err, store.ErrBusy):
		return errBackupInProgress()
	case errors.Is(err, store.ErrConflict):
		return apperr.New(apperr.Conflict, apperr.CodeBackupExists, "A backup with this name already exists")
	default:
		return apperr.ErrInternal(err)
	}
}

func (s *Service) ListBackups(ctx context.Context, p model.Principal, identifier string) ([]model.Backup, error) {
	srv, err := s.authorizedServer(ctx, p, identifier, capability.FilesBackups)
	if err != nil {
		return nil, err
	}
	backups, err := s.store.ListBackups(ctx, srv.ID)
	if err != nil {
		return nil, apperr.ErrInternal(err)
	}
	return backups, nil
}

type BackupInput struct {
	Name   string
	Ignore []string
}

// CreateBackup asks the daemon first and records the backup as in progress
// once the daemon accepted it. The daemon callback finalizes it.
func (s *Service) CreateBackup(ctx context.Context, p model.Principal, identifier string, in BackupInput) (model.Backup, error) {
	if !backupNamePattern.MatchString(in.Name) {
		return model.Backup{}, apperr.ErrBadRequest("Backup name must be 1-64 letters, digits, spaces, dots, dashes or underscores")
	}
	return withServer(ctx, s, p, identifier, capability.FilesBackups, func(ctx context.Context, srv model.Server, node model.Node) (model.Backup, error) {
		if err := s.store.CheckBackupSlot(ctx, srv.ID, srv.BackupsLimit); err != nil {
			return model.Backup{}, backupSlotErr(err)
		}
		created, err := s.daemon.CreateBackup(ctx, node, srv.ContainerID, in.Name, in.Ignore)
		if err != nil {
			return model.Backup{}, daemonErr(err)
		}
		b := model.Backup{ServerID: srv.ID, Name: in.Name, Size: created.Size, Status: model.BackupInProgress}
		if err := s.store.CreateBackup(ctx, &b, srv.BackupsLimit); err != nil {
			s.logger.Errorw("daemon started a backup that could not be recorded", "server", srv.Identifier, "backup", in.Name, "error", err)
			return model.Backup{}, backupSlotErr(err)
		}
		return b, nil
	})
}

func (s *Service) RestoreBackup(ctx context.Context, p model.Principal, identifier string, backupID uint) error {
	_, err := withServer(ctx, s, p, identifier, capability.FilesBackups, func(ctx context.Context, srv model.Server, node model.Node) (struct{}, error) {
		b, err := s.backup(ctx, srv.ID, backupID)
		if err != nil {
			return struct{}{}, err
		}
		if b.Status != model.BackupSuccess {
			return struct{}{}, errBackupInProgress()
		}
		if err := s.daemon.RestoreBackup(ctx, node, srv.ContainerID, b.Name); err != nil {
			return struct{}{}, daemonErr(err)
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Service) DeleteBackup(ctx context.Context, p model.Principal, identifier string, backupID uint) error {
	_, err := withServer(ctx, s, p, identifier, capability.FilesBackups, func(ctx context.Context, srv model.Server, node model.Node) (struct{}, error) {
		b, err := s.backup(ctx, srv.ID, backupID)
		if err != nil {
			return struct{}{}, err
		}
		if b.Status == model.BackupInProgress {
			return struct{}{}, errBackupInProgress()
		}
		if err := s.daemon.DeleteBackup(ctx, node, srv.ContainerID, b.Name); err != nil {
			return struct{}{}, daemonErr(err)
		}
		if err := s.store.DeleteBackup(ctx, srv.ID, b.ID); err != nil {
			return struct{}{}, storeErr(err, errBackupNotFound())
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Service) backup(ctx context.Context, serverID, id uint) (model.Backup, error) {
	b, err := s.store.BackupByID(ctx, serverID, id)
	if err != nil {
		return model.Backup{}, storeErr(err, errBackupNotFound())
	}
	return b, nil
}

func errBackupNotFound() *apperr.Error {
	return apperr.New(apperr.NotFound, apperr.CodeBackupNotFound, "Backup not found")
}
