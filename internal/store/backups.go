package store

import (
	"context"

	"gorm.io/gorm"
	"hostpanel/internal/model"
)

func backupFromRow(r backupRow) model.Backup {
	return model.Backup{
		ID:        r.ID,
		ServerID:  r.ServerID,
		Name:      r.Name,
		Size:      r.Size,
		Status:    model.BackupStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// CheckBackupSlot reports ErrLimitReached when the server already has limit
// backups and ErrBusy while another backup is still in progress.
func (s *Store) CheckBackupSlot(ctx context.Context, serverID uint, limit int) error {
	return checkBackupSlot(s.db.WithContext(ctx), serverID, limit)
}

func checkBackupSlot(db *gorm.DB, serverID uint, limit int) error {
	var total, running int64
	if err := db.Model(&backupRow{}).Where("server_id = ?", serverID).Count(&total).Error; err != nil {
		return err
	}
	if total >= int64(limit) {
		return ErrLimitReached
	}
	err := db.Model(&backupRow{}).
		Where("server_id = ? AND status = ?", serverID, string(model.BackupInProgress)).
		Count(&running).Error
	if err != nil {
		return err
	}
	if running > 0 {
		return ErrBusy
	}
	return nil
}

// CreateBackup re-checks the slot inside the insert transaction.
func (s *Store) CreateBackup(ctx context.Context, b *model.Backup, limit int) error {
	t := now()
	row := backupRow{
		ServerID:  b.ServerID,
		Name:      b.Name,
		Size:      b.Size,
		Status:    string(b.Status),
		CreatedAt: t,
		UpdatedAt: t,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkBackupSlot(tx, b.ServerID, limit); err != nil {
			return err
		}
		return translate(tx.Create(&row).Error)
	})
	if err != nil {
		return err
	}
	*b = backupFromRow(row)
	return nil
}

func (s *Store) ListBackups(ctx context.Context, serverID uint) ([]model.Backup, error) {
	var rows []backupRow
	if err := s.db.WithContext(ctx).Where("server_id = ?", serverID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Backup, 0, len(rows))
	for _, r := range rows {
		out = append(out, backupFromRow(r))
	}
	return out, nil
}

func (s *Store) BackupByID(ctx context.Context, serverID, id uint) (model.Backup, error) {
	var row backupRow
	if err := s.db.WithContext(ctx).Where("id = ? AND server_id = ?", id, serverID).First(&row).Error; err != nil {
		return model.Backup{}, translate(err)
	}
	return backupFromRow(row), nil
}

// FinalizeBackup moves the server's in-progress backup to status. When name is
// empty the oldest in-progress backup is used.
func (s *Store) FinalizeBackup(ctx context.Context, serverID uint, name string, status model.BackupStatus) (model.Backup, error) {
	var out model.Backup
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("server_id = ? AND status = ?", serverID, string(model.BackupInProgress))
		if name != "" {
			q = q.Where("name = ?", name)
		}
		var row backupRow
		if err := q.Order("id").First(&row).Error; err != nil {
			return translate(err)
		}
		row.Status = string(status)
		row.UpdatedAt = now()
		if err := tx.Model(&backupRow{}).Where("id = ?", row.ID).
			Updates(map[string]interface{}{"status": row.Status, "updated_at": row.UpdatedAt}).Error; err != nil {
			return err
		}
		out = backupFromRow(row)
		return nil
	})
	return out, err
}

func (s *Store) DeleteBackup(ctx context.Context, serverID, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND server_id = ?", id, serverID).Delete(&backupRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
