package service

import (
	"context"
	"errors"

	"hostpanel/internal/apperr"
	"hostpanel/internal/capability"
	"hostpanel/internal/model"
	"hostpanel/internal/store"
)

// SubuserView is a grant joined with the grantee's public identity.
type SubuserView struct {
	model.Subuser
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Service) ListSubusers(ctx context.Context, p model.Principal, identifier string) ([]SubuserView, error) {
	srv, err := s.authorizedServer(ctx, p, identifier, capability.SubusersView)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListSubusers(ctx, srv.ID)
	if err != nil {
		return nil, apperr.ErrInternal(err)
	}
	out := make([]SubuserView, 0, len(subs))
	for _, sub := range subs {
		u, err := s.store.UserByID(ctx, sub.UserID)
		if err != nil {
			return nil, apperr.ErrInternal(err)
		}
		out = append(out, SubuserView{Subuser: sub, Name: u.Name, Email: u.Email})
	}
	return out, nil
}

// grantable parses entries and checks the manager could hand them out. Owners
// and admins may grant anything; other managers only what they hold.
func (s *Service) grantable(ctx context.Context, p model.Principal, srv model.Server, entries []string) (capability.Set, error) {
	caps, err := capability.ParseSet(entries)
	if err != nil {
		return capability.Set{}, apperr.Wrap(err, apperr.Invalid, apperr.CodeInvalidCapability, err.Error())
	}
	held, err := s.evaluator.Effective(ctx, p, &srv)
	if err != nil {
		return capability.Set{}, apperr.ErrInternal(err)
	}
	if !held.Covers(caps) {
		return capability.Set{}, apperr.New(apperr.Forbidden, apperr.CodeCapabilityNotHeld, "You cannot grant capabilities you do not hold")
	}
	return caps, nil
}

func (s *Service) AddSubuser(ctx context.Context, p model.Principal, identifier, email string, entries []string) (model.Subuser, error) {
	srv, err := s.authorizedServer(ctx, p, identifier, capability.SubusersManage)
	if err != nil {
		return model.Subuser{}, err
	}
	caps, err := s.grantable(ctx, p, srv, entries)
	if err != nil {
		return model.Subuser{}, err
	}
	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return model.Subuser{}, storeErr(err, apperr.ErrUserNotFound())
	}
	if u.ID == srv.OwnerID {
		return model.Subuser{}, apperr.ErrBadRequest("The owner cannot be added as a subuser")
	}

	sub := model.Subuser{UserID: u.ID, ServerID: srv.ID, Capabilities: caps}
	if err := s.store.CreateSubuser(ctx, &sub); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return model.Subuser{}, apperr.New(apperr.Conflict, apperr.CodeSubuserExists, "This user is already a subuser")
		}
		return model.Subuser{}, apperr.ErrInternal(err)
	}
	return sub, nil
}

func (s *Service) UpdateSubuser(ctx context.Context, p model.Principal, identifier string, userID uint, entries []string) (model.Subuser, error) {
	srv, err := s.authorizedServer(ctx, p, identifier, capability.SubusersManage)
	if err != nil {
		return model.Subuser{}, err
	}
	caps, err := s.grantable(ctx, p, srv, entries)
	if err != nil {
		return model.Subuser{}, err
	}
	if err := s.store.UpdateSubuser(ctx, srv.ID, userID, caps); err != nil {
		return model.Subuser{}, storeErr(err, errSubuserNotFound())
	}
	sub, err := s.store.Subuser(ctx, srv.ID, userID)
	if err != nil {
		return model.Subuser{}, storeErr(err, errSubuserNotFound())
	}
	return sub, nil
}

func (s *Service) RemoveSubuser(ctx context.Context, p model.Principal, identifier string, userID uint) error {
	srv, err := s.authorizedServer(ctx, p, identifier, capability.SubusersManage)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSubuser(ctx, srv.ID, userID); err != nil {
		return storeErr(err, errSubuserNotFound())
	}
	return nil
}

func errSubuserNotFound() *apperr.Error {
	return apperr.New(apperr.NotFound, apperr.CodeSubuserNotFound, "Subuser not found")
}
