package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"hostpanel/internal/model"
)

func serverFromRow(r serverRow) model.Server {
	return model.Server{
		ID:            r.ID,
		Identifier:    r.Identifier,
		Name:          r.Name,
		OwnerID:       r.OwnerID,
		NodeID:        r.NodeID,
		ContainerID:   r.ContainerID,
		Game:          r.Game,
		CPU:           r.CPU,
		RAMLimit:      r.RAMLimit,
		DiskLimit:     r.DiskLimit,
		Port:          r.Port,
		ExtraPorts:    splitPorts(r.ExtraPorts),
		Status:        model.ServerStatus(r.Status),
		StatusVersion: r.StatusVersion,
		Suspended:     r.Suspended,
		StartCommand:  r.StartCommand,
		JavaVersion:   r.JavaVersion,
		BackupsLimit:  r.BackupsLimit,
		Usage: model.Usage{
			CPU:       r.CPUUsage,
			RAM:       r.RAMUsage,
			Disk:      r.DiskUsage,
			NetworkRx: r.NetworkRx,
			NetworkTx: r.NetworkTx,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// CreateServer inserts the server and one port row per allocated port in a
// single transaction. A taken identifier or port yields ErrConflict.
func (s *Store) CreateServer(ctx context.Context, srv *model.Server) error {
	t := now()
	row := serverRow{
		Identifier:   srv.Identifier,
		Name:         srv.Name,
		OwnerID:      srv.OwnerID,
		NodeID:       srv.NodeID,
		ContainerID:  srv.ContainerID,
		Game:         srv.Game,
		CPU:          srv.CPU,
		RAMLimit:     srv.RAMLimit,
		DiskLimit:    srv.DiskLimit,
		Port:         srv.Port,
		ExtraPorts:   joinPorts(srv.ExtraPorts),
		Status:       string(srv.Status),
		Suspended:    srv.Suspended,
		StartCommand: srv.StartCommand,
		JavaVersion:  srv.JavaVersion,
		BackupsLimit: srv.BackupsLimit,
		CreatedAt:    t,
		UpdatedAt:    t,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return translate(err)
		}
		ports := make([]portRow, 0, 1+len(srv.ExtraPorts))
		for _, p := range srv.Ports() {
			ports = append(ports, portRow{NodeID: srv.NodeID, Port: p, ServerID: row.ID})
		}
		if err := tx.Create(&ports).Error; err != nil {
			return translate(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	*srv = serverFromRow(row)
	return nil
}

func (s *Store) ServerByIdentifier(ctx context.Context, identifier string) (model.Server, error) {
	return s.findServer(ctx, "identifier = ?", identifier)
}

func (s *Store) ServerByID(ctx context.Context, id uint) (model.Server, error) {
	return s.findServer(ctx, "id = ?", id)
}

func (s *Store) ServerByContainerID(ctx context.Context, containerID string) (model.Server, error) {
	if containerID == "" {
		return model.Server{}, ErrNotFound
	}
	return s.findServer(ctx, "container_id = ?", containerID)
}

func (s *Store) findServer(ctx context.Context, query string, arg interface{}) (model.Server, error) {
	var row serverRow
	if err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error; err != nil {
		return model.Server{}, translate(err)
	}
	return serverFromRow(row), nil
}

func (s *Store) IdentifierExists(ctx context.Context, identifier string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&serverRow{}).Where("identifier = ?", identifier).Count(&n).Error
	return n > 0, err
}

func (s *Store) ListServers(ctx context.Context) ([]model.Server, error) {
	return s.listServers(s.db.WithContext(ctx))
}

// ListServersForUser returns servers the user owns or holds a subuser grant on.
func (s *Store) ListServersForUser(ctx context.Context, userID uint) ([]model.Server, error) {
	granted := s.db.Model(&subuserRow{}).Select("server_id").Where("user_id = ?", userID)
	q := s.db.WithContext(ctx).Where("owner_id = ? OR id IN (?)", userID, granted)
	return s.listServers(q)
}

func (s *Store) listServers(q *gorm.DB) ([]model.Server, error) {
	var rows []serverRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Server, 0, len(rows))
	for _, r := range rows {
		out = append(out, serverFromRow(r))
	}
	return out, nil
}

// UsedPorts lists every primary and extra port taken on the node.
func (s *Store) UsedPorts(ctx context.Context, nodeID uint) ([]int, error) {
	var ports []int
	err := s.db.WithContext(ctx).Model(&portRow{}).Where("node_id = ?", nodeID).Order("port").Pluck("port", &ports).Error
	return ports, err
}

// CompareAndSetStatus writes status only if the stored version still equals
// expected, and returns the new version.
func (s *Store) CompareAndSetStatus(ctx context.Context, id uint, expected int64, status model.ServerStatus) (int64, error) {
	res := s.db.WithContext(ctx).Model(&serverRow{}).
		Where("id = ? AND status_version = ?", id, expected).
		Updates(map[string]interface{}{
			"status":         string(status),
			"status_version": gorm.Expr("status_version + 1"),
			"updated_at":     now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.ServerByID(ctx, id); errors.Is(err, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, ErrStaleVersion
	}
	return expected + 1, nil
}

func (s *Store) UpdateServerUsage(ctx context.Context, id uint, usage model.Usage, ramLimit, diskLimit int64) error {
	return s.updateServer(ctx, id, map[string]interface{}{
		"cpu_usage":  usage.CPU,
		"ram_usage":  usage.RAM,
		"disk_usage": usage.Disk,
		"network_rx": usage.NetworkRx,
		"network_tx": usage.NetworkTx,
		"ram_limit":  ramLimit,
		"disk_limit": diskLimit,
	})
}

func (s *Store) UpdateServerJavaVersion(ctx context.Context, id uint, version string) error {
	return s.updateServer(ctx, id, map[string]interface{}{"java_version": version})
}

func (s *Store) SetServerSuspended(ctx context.Context, id uint, suspended bool) error {
	return s.updateServer(ctx, id, map[string]interface{}{"suspended": suspended})
}

func (s *Store) updateServer(ctx context.Context, id uint, updates map[string]interface{}) error {
	updates["updated_at"] = now()
	res := s.db.WithContext(ctx).Model(&serverRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteServer removes the server along with its ports, grants and backups.
func (s *Store) DeleteServer(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&portRow{}, &subuserRow{}, &backupRow{}} {
			if err := tx.Where("server_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&serverRow{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
