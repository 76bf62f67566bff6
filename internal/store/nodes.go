package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"hostpanel/internal/model"
)

func nodeFromRow(r nodeRow) model.Node {
	return model.Node{
		ID:         r.ID,
		Name:       r.Name,
		Address:    r.Address,
		DaemonPort: r.DaemonPort,
		SFTPPort:   r.SFTPPort,
		SSL:        r.SSL,
		Location:   r.Location,
		LastSeenAt: r.LastSeenAt,
		CreatedAt:  r.CreatedAt,
	}
}

func (s *Store) CreateNode(ctx context.Context, n *model.Node) error {
	row := nodeRow{
		Name:       n.Name,
		Address:    n.Address,
		DaemonPort: n.DaemonPort,
		SFTPPort:   n.SFTPPort,
		SSL:        n.SSL,
		Location:   n.Location,
		LastSeenAt: n.LastSeenAt,
		CreatedAt:  now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	*n = nodeFromRow(row)
	return nil
}

func (s *Store) NodeByID(ctx context.Context, id uint) (model.Node, error) {
	var row nodeRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return model.Node{}, translate(err)
	}
	return nodeFromRow(row), nil
}

func (s *Store) ListNodes(ctx context.Context) ([]model.Node, error) {
	var rows []nodeRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Node, 0, len(rows))
	for _, r := range rows {
		out = append(out, nodeFromRow(r))
	}
	return out, nil
}

// UpdateNodeConnection records a daemon heartbeat. Only callers that verified
// the daemon secret may use it.
func (s *Store) UpdateNodeConnection(ctx context.Context, id uint, address string, ssl bool, sftpPort int, seenAt time.Time) (model.Node, error) {
	var out model.Node
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&nodeRow{}).Where("id = ?", id).Updates(map[string]interface{}{
			"address":      address,
			"ssl":          ssl,
			"sftp_port":    sftpPort,
			"last_seen_at": seenAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var row nodeRow
		if err := tx.First(&row, id).Error; err != nil {
			return translate(err)
		}
		out = nodeFromRow(row)
		return nil
	})
	return out, err
}

func (s *Store) DeleteNode(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&serverRow{}).Where("node_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrNodeHasServers
		}
		res := tx.Delete(&nodeRow{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) CountServersOnNode(ctx context.Context, nodeID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&serverRow{}).Where("node_id = ?", nodeID).Count(&n).Error
	return n, err
}
