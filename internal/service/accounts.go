package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"hostpanel/internal/apperr"
	"hostpanel/internal/auth"
	"hostpanel/internal/capability"
	"hostpanel/internal/model"
	"hostpanel/internal/store"
)

type Session struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	invalid := apperr.New(apperr.Unauthorized, apperr.CodeInvalidCredentials, "Invalid email or password")
	if email == "" || password == "" {
		return Session{}, invalid
	}
	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return Session{}, storeErr(err, invalid)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return Session{}, invalid
	}
	return s.issue(u)
}

// Refresh issues a new token for an interactive principal after re-reading
// the account.
func (s *Service) Refresh(ctx context.Context, p model.Principal) (Session, error) {
	if !p.IsInteractive() {
		return Session{}, apperr.ErrForbidden()
	}
	u, err := s.store.UserByID(ctx, p.UserID)
	if err != nil {
		return Session{}, storeErr(err, apperr.ErrUnauthorized())
	}
	return s.issue(u)
}

func (s *Service) issue(u model.User) (Session, error) {
	if u.Suspended {
		return Session{}, apperr.ErrSuspended()
	}
	token, err := auth.CreateToken(u, s.tokens)
	if err != nil {
		return Session{}, apperr.ErrInternal(err)
	}
	return Session{Token: token, User: u}, nil
}

func (s *Service) Me(ctx context.Context, p model.Principal) (model.User, error) {
	if err := s.evaluator.Authorize(ctx, p, capability.ProfileView, nil); err != nil {
		return model.User{}, err
	}
	u, err := s.store.UserByID(ctx, p.UserID)
	if err != nil {
		return model.User{}, storeErr(err, apperr.ErrUserNotFound())
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, p model.Principal) ([]model.User, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, apperr.ErrInternal(err)
	}
	return users, nil
}

type CreateUserInput struct {
	Name      string
	Email     string
	Password  string
	Admin     bool
	Superuser bool
}

// CreateUser is the admin endpoint. Only superusers may create superusers.
func (s *Service) CreateUser(ctx context.Context, p model.Principal, in CreateUserInput) (model.User, error) {
	if err := requireAdmin(p); err != nil {
		return model.User{}, err
	}
	if in.Superuser && !p.Superuser {
		return model.User{}, apperr.ErrForbidden()
	}
	return s.Bootstrap(ctx, in)
}

// Bootstrap creates a user without a principal. It backs the CLI.
func (s *Service) Bootstrap(ctx context.Context, in CreateUserInput) (model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if !validUserName(in.Name) {
		return model.User{}, apperr.ErrBadRequest("Name must be 3-32 characters without underscores")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return model.User{}, apperr.ErrBadRequest("Invalid email address")
	}
	hash, err := auth.HashPassword(in.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return model.User{}, apperr.ErrBadRequest(err.Error())
	}
	if err != nil {
		return model.User{}, apperr.ErrInternal(err)
	}

	u := model.User{Name: in.Name, Email: in.Email, PasswordHash: hash, Admin: in.Admin, Superuser: in.Superuser}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return model.User{}, apperr.New(apperr.Conflict, apperr.CodeEmailExists, "A user with this email or name already exists")
		}
		return model.User{}, apperr.ErrInternal(err)
	}
	s.logger.Infow("user created", "user", u.ID, "admin", u.Admin, "superuser", u.Superuser)
	return u, nil
}

// Usernames are also the SFTP login suffix, which is split on the first
// underscore.
func validUserName(name string) bool {
	return len(name) >= 3 && len(name) <= 32 && !strings.Contains(name, "_")
}

// ProfileUpdate carries self-service changes. Nil fields are left alone.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// UserEdit carries admin changes to another account.
type UserEdit struct {
	Name  *string
	Email *string
	Admin *bool
}

func normalizeUserUpdate(name, email *string) (store.UserUpdate, error) {
	var upd store.UserUpdate
	if name == nil && email == nil {
		return upd, apperr.ErrBadRequest("Nothing to update")
	}
	if name != nil {
		n := strings.TrimSpace(*name)
		if !validUserName(n) {
			return upd, apperr.New(apperr.Invalid, apperr.CodeInvalidName, "Name must be 3-32 characters without underscores")
		}
		upd.Name = &n
	}
	if email != nil {
		addr, err := mail.ParseAddress(strings.TrimSpace(*email))
		if err != nil {
			return upd, apperr.New(apperr.Invalid, apperr.CodeInvalidEmail, "Invalid email")
		}
		upd.Email = &addr.Address
	}
	return upd, nil
}

func userUpdateErr(err error, nameTaken *apperr.Error) error {
	switch {
	case errors.Is(err, store.ErrNameTaken):
		return nameTaken
	case errors.Is(err, store.ErrEmailTaken):
		return apperr.New(apperr.Conflict, apperr.CodeEmailExists, "A user with this email already exists")
	default:
		return storeErr(err, apperr.ErrUserNotFound())
	}
}

// UpdateProfile changes the caller's own name or email.
func (s *Service) UpdateProfile(ctx context.Context, p model.Principal, in ProfileUpdate) (model.User, error) {
	if err := s.evaluator.Authorize(ctx, p, capability.ProfileEdit, nil); err != nil {
		return model.User{}, err
	}
	upd, err := normalizeUserUpdate(in.Name, in.Email)
	if err != nil {
		return model.User{}, err
	}
	u, err := s.store.UpdateUser(ctx, p.UserID, upd)
	if err != nil {
		return model.User{}, userUpdateErr(err, apperr.New(apperr.Conflict, apperr.CodeNameExists, "A user with this name already exists"))
	}
	s.logger.Infow("profile updated", "user", u.ID)
	return u, nil
}

// EditUser is the admin edit. The admin flag of a superuser cannot change.
func (s *Service) EditUser(ctx context.Context, p model.Principal, id uint, in UserEdit) (model.User, error) {
	target, err := s.guardUserChange(ctx, p, id)
	if err != nil {
		return model.User{}, err
	}
	if in.Admin != nil && target.Superuser {
		return model.User{}, apperr.New(apperr.Invalid, apperr.CodeCannotChangeSuper, "Cannot change superuser status")
	}
	var upd store.UserUpdate
	if in.Name != nil || in.Email != nil {
		if upd, err = normalizeUserUpdate(in.Name, in.Email); err != nil {
			return model.User{}, err
		}
	} else if in.Admin == nil {
		return model.User{}, apperr.ErrBadRequest("Nothing to update")
	}
	upd.Admin = in.Admin

	u, err := s.store.UpdateUser(ctx, id, upd)
	if err != nil {
		return model.User{}, userUpdateErr(err, apperr.New(apperr.Conflict, apperr.CodeUsernameExists, "Username already exists"))
	}
	s.logger.Infow("user edited", "user", u.ID, "by", p.UserID, "admin", u.Admin)
	return u, nil
}

func userGuardErr(err error) error {
	switch {
	case errors.Is(err, store.ErrLastSuperuser):
		return apperr.New(apperr.Conflict, apperr.CodeCannotDeleteSuper, "At least one superuser must remain")
	case errors.Is(err, store.ErrUserHasServers):
		return apperr.New(apperr.Conflict, apperr.CodeUserHasServers, "User still owns servers")
	default:
		return storeErr(err, apperr.ErrUserNotFound())
	}
}

func (s *Service) DeleteUser(ctx context.Context, p model.Principal, id uint) error {
	if _, err := s.guardUserChange(ctx, p, id); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return userGuardErr(err)
	}
	return nil
}

func (s *Service) SetUserSuspended(ctx context.Context, p model.Principal, id uint, suspended bool) error {
	if _, err := s.guardUserChange(ctx, p, id); err != nil {
		return err
	}
	if err := s.store.SetUserSuspended(ctx, id, suspended); err != nil {
		return userGuardErr(err)
	}
	return nil
}

// guardUserChange lets admins change users, but only superusers touch
// superusers.
func (s *Service) guardUserChange(ctx context.Context, p model.Principal, id uint) (model.User, error) {
	if err := requireAdmin(p); err != nil {
		return model.User{}, err
	}
	target, err := s.store.UserByID(ctx, id)
	if err != nil {
		return model.User{}, storeErr(err, apperr.ErrUserNotFound())
	}
	if target.Superuser && !p.Superuser {
		return model.User{}, apperr.ErrForbidden()
	}
	return target, nil
}
