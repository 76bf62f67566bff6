package store

import (
	"context"
	"errors"
	"fmt"

	"hostpanel/internal/capability"
	"hostpanel/internal/model"
)

func subuserFromRow(r subuserRow) (model.Subuser, error) {
	entries, err := decodeStrings(r.Capabilities)
	if err != nil {
		return model.Subuser{}, fmt.Errorf("subuser %d capabilities: %w", r.ID, err)
	}
	caps, err := capability.ParseSet(entries)
	if err != nil {
		return model.Subuser{}, fmt.Errorf("subuser %d capabilities: %w", r.ID, err)
	}
	return model.Subuser{
		ID:           r.ID,
		UserID:       r.UserID,
		ServerID:     r.ServerID,
		Capabilities: caps,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func (s *Store) SubuserGrant(ctx context.Context, userID, serverID uint) (capability.Set, bool, error) {
	sub, err := s.Subuser(ctx, serverID, userID)
	if errors.Is(err, ErrNotFound) {
		return capability.Set{}, false, nil
	}
	if err != nil {
		return capability.Set{}, false, err
	}
	return sub.Capabilities, true, nil
}

func (s *Store) Subuser(ctx context.Context, serverID, userID uint) (model.Subuser, error) {
	var row subuserRow
	err := s.db.WithContext(ctx).Where("server_id = ? AND user_id = ?", serverID, userID).First(&row).Error
	if err != nil {
		return model.Subuser{}, translate(err)
	}
	return subuserFromRow(row)
}

func (s *Store) ListSubusers(ctx context.Context, serverID uint) ([]model.Subuser, error) {
	var rows []subuserRow
	if err := s.db.WithContext(ctx).Where("server_id = ?", serverID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Subuser, 0, len(rows))
	for _, r := range rows {
		sub, err := subuserFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *Store) CreateSubuser(ctx context.Context, sub *model.Subuser) error {
	row := subuserRow{
		UserID:       sub.UserID,
		ServerID:     sub.ServerID,
		Capabilities: encodeStrings(sub.Capabilities.Strings()),
		CreatedAt:    now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	sub.ID = row.ID
	sub.CreatedAt = row.CreatedAt
	return nil
}

func (s *Store) UpdateSubuser(ctx context.Context, serverID, userID uint, caps capability.Set) error {
	res := s.db.WithContext(ctx).Model(&subuserRow{}).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Update("capabilities", encodeStrings(caps.Strings()))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSubuser(ctx context.Context, serverID, userID uint) error {
	res := s.db.WithContext(ctx).Where("server_id = ? AND user_id = ?", serverID, userID).Delete(&subuserRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
