package store

import (
	"context"
	"fmt"

	"hostpanel/internal/capability"
	"hostpanel/internal/model"
)

func credentialFromRow(r credentialRow) (model.APICredential, error) {
	entries, err := decodeStrings(r.Capabilities)
	if err != nil {
		return model.APICredential{}, fmt.Errorf("credential %d capabilities: %w", r.ID, err)
	}
	caps, err := capability.ParseSet(entries)
	if err != nil {
		return model.APICredential{}, fmt.Errorf("credential %d capabilities: %w", r.ID, err)
	}
	allow, err := decodeStrings(r.IPAllowList)
	if err != nil {
		return model.APICredential{}, fmt.Errorf("credential %d allow list: %w", r.ID, err)
	}
	return model.APICredential{
		ID:           r.ID,
		UserID:       r.UserID,
		Name:         r.Name,
		KeyHash:      r.KeyHash,
		KeyPrefix:    r.KeyPrefix,
		Capabilities: caps,
		IPAllowList:  allow,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func (s *Store) CreateAPICredential(ctx context.Context, c *model.APICredential) error {
	row := credentialRow{
		UserID:       c.UserID,
		Name:         c.Name,
		KeyHash:      c.KeyHash,
		KeyPrefix:    c.KeyPrefix,
		Capabilities: encodeStrings(c.Capabilities.Strings()),
		IPAllowList:  encodeStrings(c.IPAllowList),
		CreatedAt:    now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	c.ID = row.ID
	c.CreatedAt = row.CreatedAt
	return nil
}

func (s *Store) APICredentialByHash(ctx context.Context, hash string) (model.APICredential, error) {
	var row credentialRow
	if err := s.db.WithContext(ctx).Where("key_hash = ?", hash).First(&row).Error; err != nil {
		return model.APICredential{}, translate(err)
	}
	return credentialFromRow(row)
}

func (s *Store) ListAPICredentials(ctx context.Context, userID uint) ([]model.APICredential, error) {
	var rows []credentialRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.APICredential, 0, len(rows))
	for _, r := range rows {
		c, err := credentialFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// DeleteAPICredential only deletes credentials owned by userID.
func (s *Store) DeleteAPICredential(ctx context.Context, userID, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&credentialRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
