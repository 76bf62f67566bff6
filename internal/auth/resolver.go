package auth

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"hostpanel/internal/model"
)

type CredentialStore interface {
	APICredentialByHash(ctx context.Context, hash string) (model.APICredential, error)
	UserByID(ctx context.Context, id uint) (model.User, error)
}

// Resolver turns a raw bearer string into a Principal. It never returns an
// error: absence of a principal is the only failure signal.
type Resolver struct {
	tokens TokenConfig
	store  CredentialStore
	logger *zap.SugaredLogger
}

func NewResolver(tokens TokenConfig, store CredentialStore, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{tokens: tokens, store: store, logger: logger}
}

func (r *Resolver) Tokens() TokenConfig { return r.tokens }

func (r *Resolver) Resolve(ctx context.Context, rawBearer, origin string) (model.Principal, bool) {
	rawBearer = strings.TrimSpace(rawBearer)
	if rawBearer == "" {
		return model.Principal{}, false
	}

	if looksLikeJWT(rawBearer) {
		claims, err := VerifyToken(rawBearer, r.tokens)
		if err != nil {
			return model.Principal{}, false
		}
		p, err := claims.Principal()
		if err != nil {
			return model.Principal{}, false
		}
		return r.refresh(ctx, p)
	}
	return r.resolveAPIKey(ctx, rawBearer, origin)
}

// refresh re-reads the account flags so suspension, demotion and deletion
// apply before the token expires.
func (r *Resolver) refresh(ctx context.Context, p model.Principal) (model.Principal, bool) {
	user, err := r.store.UserByID(ctx, p.UserID)
	if err != nil {
		r.logger.Debugw("session user lookup failed", "userId", p.UserID, "error", err)
		return model.Principal{}, false
	}
	p.Name = user.Name
	p.Email = user.Email
	p.Admin = user.Admin
	p.Superuser = user.Superuser
	p.Suspended = user.Suspended
	return p, true
}

func (r *Resolver) resolveAPIKey(ctx context.Context, key, origin string) (model.Principal, bool) {
	cred, err := r.store.APICredentialByHash(ctx, HashAPIKey(key))
	if err != nil {
		return model.Principal{}, false
	}
	if !originAllowed(cred.IPAllowList, origin) {
		r.logger.Infow("api credential used from disallowed origin", "credentialId", cred.ID, "origin", origin)
		return model.Principal{}, false
	}
	user, err := r.store.UserByID(ctx, cred.UserID)
	if err != nil {
		r.logger.Warnw("api credential owner lookup failed", "credentialId", cred.ID, "error", err)
		return model.Principal{}, false
	}
	return model.Principal{
		Kind:         model.PrincipalAPI,
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Admin:        user.Admin,
		Superuser:    user.Superuser,
		Suspended:    user.Suspended,
		CredentialID: cred.ID,
		Capabilities: cred.Capabilities,
	}, true
}

func looksLikeJWT(s string) bool {
	return strings.Count(s, ".") == 2
}

func originAllowed(allow []string, origin string) bool {
	if len(allow) == 0 {
		return true
	}
	origin = NormalizeOrigin(origin)
	if origin == "" {
		return false
	}
	for _, entry := range allow {
		if NormalizeOrigin(entry) == origin {
			return true
		}
	}
	return false
}
