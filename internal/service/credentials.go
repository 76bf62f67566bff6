package service

import (
	"context"
	"errors"
	"net"
	"strings"

	"hostpanel/internal/apperr"
	"hostpanel/internal/auth"
	"hostpanel/internal/capability"
	"hostpanel/internal/model"
	"hostpanel/internal/store"
)

// CreatedCredential carries the raw key. It is only ever returned once.
type CreatedCredential struct {
	model.APICredential
	Key string `json:"key"`
}

func (s *Service) ListCredentials(ctx context.Context, p model.Principal) ([]model.APICredential, error) {
	if err := requireInteractive(p); err != nil {
		return nil, err
	}
	creds, err := s.store.ListAPICredentials(ctx, p.UserID)
	if err != nil {
		return nil, apperr.ErrInternal(err)
	}
	return creds, nil
}

type CredentialInput struct {
	Name         string
	Capabilities []string
	IPAllowList  []string
}

func (s *Service) CreateCredential(ctx context.Context, p model.Principal, in CredentialInput) (CreatedCredential, error) {
	if err := requireInteractive(p); err != nil {
		return CreatedCredential{}, err
	}
	name := strings.TrimSpace(in.Name)
	if len(name) < 3 || len(name) > 32 {
		return CreatedCredential{}, apperr.New(apperr.Invalid, apperr.CodeInvalidKeyName, "Key name must be between 3 and 32 characters")
	}
	caps, err := capability.ParseSet(in.Capabilities)
	if err != nil {
		return CreatedCredential{}, apperr.Wrap(err, apperr.Invalid, apperr.CodeInvalidCapability, err.Error())
	}
	allow := make([]string, 0, len(in.IPAllowList))
	for _, raw := range in.IPAllowList {
		ip := auth.NormalizeOrigin(raw)
		if net.ParseIP(ip) == nil {
			return CreatedCredential{}, apperr.ErrBadRequest("Invalid IP address " + raw)
		}
		allow = append(allow, ip)
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return CreatedCredential{}, apperr.ErrInternal(err)
	}
	c := model.APICredential{
		UserID:       p.UserID,
		Name:         name,
		KeyHash:      key.Hash,
		KeyPrefix:    key.Prefix,
		Capabilities: caps,
		IPAllowList:  allow,
	}
	if err := s.store.CreateAPICredential(ctx, &c); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return CreatedCredential{}, apperr.New(apperr.Conflict, apperr.CodeKeyNameExists, "A key with this name already exists")
		}
		return CreatedCredential{}, apperr.ErrInternal(err)
	}
	return CreatedCredential{APICredential: c, Key: key.Key}, nil
}

func (s *Service) DeleteCredential(ctx context.Context, p model.Principal, id uint) error {
	if err := requireInteractive(p); err != nil {
		return err
	}
	if err := s.store.DeleteAPICredential(ctx, p.UserID, id); err != nil {
		return storeErr(err, apperr.New(apperr.NotFound, apperr.CodeCredentialNotFound, "API credential not found"))
	}
	return nil
}
