package store

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"hostpanel/internal/model"
)

func userFromRow(r userRow) model.User {
	return model.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Admin:        r.Admin,
		Superuser:    r.Superuser,
		Suspended:    r.Suspended,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	row := userRow{
		Name:         u.Name,
		NameKey:      strings.ToLower(u.Name),
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		PasswordHash: u.PasswordHash,
		Admin:        u.Admin || u.Superuser,
		Superuser:    u.Superuser,
		Suspended:    u.Suspended,
		CreatedAt:    now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	*u = userFromRow(row)
	return nil
}

func (s *Store) UserByID(ctx context.Context, id uint) (model.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return model.User{}, translate(err)
	}
	return userFromRow(row), nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&row).Error
	if err != nil {
		return model.User{}, translate(err)
	}
	return userFromRow(row), nil
}

// UserByName matches case-insensitively.
func (s *Store) UserByName(ctx context.Context, name string) (model.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("name_key = ?", strings.ToLower(name)).First(&row).Error; err != nil {
		return model.User{}, translate(err)
	}
	return userFromRow(row), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, userFromRow(r))
	}
	return out, nil
}

// UserUpdate holds optional account changes. Nil fields are left alone.
type UserUpdate struct {
	Name  *string
	Email *string
	Admin *bool
}

// UpdateUser applies upd and returns the stored result. Names compare
// case-insensitively and emails are stored lower-cased.
func (s *Store) UpdateUser(ctx context.Context, id uint, upd UserUpdate) (model.User, error) {
	var out model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		if err := tx.First(&row, id).Error; err != nil {
			return translate(err)
		}
		updates := map[string]interface{}{}
		if upd.Name != nil {
			key := strings.ToLower(*upd.Name)
			if err := ensureFree(tx, "name_key = ? AND id <> ?", key, id, ErrNameTaken); err != nil {
				return err
			}
			row.Name, row.NameKey = *upd.Name, key
			updates["name"], updates["name_key"] = row.Name, row.NameKey
		}
		if upd.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*upd.Email))
			if err := ensureFree(tx, "email = ? AND id <> ?", email, id, ErrEmailTaken); err != nil {
				return err
			}
			row.Email = email
			updates["email"] = email
		}
		if upd.Admin != nil {
			row.Admin = *upd.Admin || row.Superuser
			updates["admin"] = row.Admin
		}
		if len(updates) > 0 {
			if err := tx.Model(&userRow{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return translate(err)
			}
		}
		out = userFromRow(row)
		return nil
	})
	return out, err
}

func ensureFree(tx *gorm.DB, query string, value interface{}, id uint, taken error) error {
	var n int64
	if err := tx.Model(&userRow{}).Where(query, value, id).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return taken
	}
	return nil
}

// SetUserSuspended refuses to suspend the last active superuser.
func (s *Store) SetUserSuspended(ctx context.Context, id uint, suspended bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		if err := tx.First(&row, id).Error; err != nil {
			return translate(err)
		}
		if suspended && row.Superuser && !row.Suspended {
			if err := ensureAnotherSuperuser(tx, id); err != nil {
				return err
			}
		}
		return tx.Model(&userRow{}).Where("id = ?", id).Update("suspended", suspended).Error
	})
}

// DeleteUser removes the user with their credentials and subuser grants.
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		if err := tx.First(&row, id).Error; err != nil {
			return translate(err)
		}
		if row.Superuser {
			if err := ensureAnotherSuperuser(tx, id); err != nil {
				return err
			}
		}
		var owned int64
		if err := tx.Model(&serverRow{}).Where("owner_id = ?", id).Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return ErrUserHasServers
		}
		if err := tx.Where("user_id = ?", id).Delete(&credentialRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&subuserRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&userRow{}, id).Error
	})
}

func ensureAnotherSuperuser(tx *gorm.DB, excluding uint) error {
	var n int64
	err := tx.Model(&userRow{}).
		Where("superuser = ? AND suspended = ? AND id <> ?", true, false, excluding).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLastSuperuser
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&userRow{}).Count(&n).Error
	return n, err
}
