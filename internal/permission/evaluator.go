package permission

import (
	"context"

	"hostpanel/internal/apperr"
	"hostpanel/internal/capability"
	"hostpanel/internal/model"
)

type GrantStore interface {
	// SubuserGrant returns the grant for (userID, serverID); ok is false when none exists.
	SubuserGrant(ctx context.Context, userID, serverID uint) (grant capability.Set, ok bool, err error)
}

// Evaluator is the single gate for every state-changing or data-revealing
// operation.
type Evaluator struct {
	grants GrantStore
}

func NewEvaluator(grants GrantStore) *Evaluator {
	return &Evaluator{grants: grants}
}

// CanPerform decides whether p holds c on server. server may be nil for
// account-level capabilities.
//
// API principals need c in their own credential list and the owning user must
// hold c interactively on the same scope, so a credential never outgrows its
// owner.
func (e *Evaluator) CanPerform(ctx context.Context, p model.Principal, c capability.Capability, server *model.Server) (bool, error) {
	if p.IsAPI() && !p.Capabilities.Has(c) {
		return false, nil
	}
	grant, err := e.userGrant(ctx, p, server)
	if err != nil {
		return false, err
	}
	return grant.Has(c), nil
}

// Authorize is CanPerform mapped onto the error taxonomy, with suspension
// checked first.
func (e *Evaluator) Authorize(ctx context.Context, p model.Principal, c capability.Capability, server *model.Server) error {
	if p.Suspended {
		return apperr.ErrSuspended()
	}
	ok, err := e.CanPerform(ctx, p, c, server)
	if err != nil {
		return apperr.ErrInternal(err)
	}
	if !ok {
		return apperr.ErrForbidden()
	}
	return nil
}

// Effective lists what p may do on server. Owners and admins get the full
// grant; API principals get the exact capabilities both they and their owner hold.
func (e *Evaluator) Effective(ctx context.Context, p model.Principal, server *model.Server) (capability.Set, error) {
	grant, err := e.userGrant(ctx, p, server)
	if err != nil {
		return capability.Set{}, err
	}
	if !p.IsAPI() {
		return grant, nil
	}
	var held []capability.Capability
	for _, c := range p.Capabilities.Expand() {
		if grant.Has(c) {
			held = append(held, c)
		}
	}
	return capability.Of(held...), nil
}

// userGrant is what the principal's user holds interactively.
func (e *Evaluator) userGrant(ctx context.Context, p model.Principal, server *model.Server) (capability.Set, error) {
	if p.Admin || server == nil || server.OwnerID == p.UserID {
		return capability.Full(), nil
	}
	grant, ok, err := e.grants.SubuserGrant(ctx, p.UserID, server.ID)
	if err != nil || !ok {
		return capability.Set{}, err
	}
	return grant, nil
}
