package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hostpanel/internal/apperr"
	"hostpanel/internal/capability"
	"hostpanel/internal/model"
)

type grantKey struct{ userID, serverID uint }

type fakeGrants struct {
	grants map[grantKey]capability.Set
	err    error
}

func (f *fakeGrants) SubuserGrant(_ context.Context, userID, serverID uint) (capability.Set, bool, error) {
	if f.err != nil {
		return capability.Set{}, false, f.err
	}
	g, ok := f.grants[grantKey{userID, serverID}]
	return g, ok, nil
}

var srv = &model.Server{ID: 10, Identifier: "ABC123", OwnerID: 1}

func interactive(userID uint) model.Principal {
	return model.Principal{Kind: model.PrincipalInteractive, UserID: userID}
}

func api(userID uint, caps ...string) model.Principal {
	return model.Principal{Kind: model.PrincipalAPI, UserID: userID, CredentialID: 99, Capabilities: capability.MustParseSet(caps...)}
}

func newEvaluator() *Evaluator {
	return NewEvaluator(&fakeGrants{grants: map[grantKey]capability.Set{
		{2, 10}: capability.MustParseSet("server.files.*", "server.view"),
		{3, 10}: capability.MustParseSet("server.power.on"),
	}})
}

func TestCanPerform(t *testing.T) {
	e := newEvaluator()
	admin := interactive(7)
	admin.Admin = true

	tests := []struct {
		name   string
		p      model.Principal
		c      capability.Capability
		server *model.Server
		want   bool
	}{
		{name: "owner has everything", p: interactive(1), c: capability.PowerKill, server: srv, want: true},
		{name: "admin has everything", p: admin, c: capability.SubusersManage, server: srv, want: true},
		{name: "subuser wildcard read", p: interactive(2), c: capability.FilesRead, server: srv, want: true},
		{name: "subuser wildcard write", p: interactive(2), c: capability.FilesWrite, server: srv, want: true},
		{name: "subuser wildcard backups", p: interactive(2), c: capability.FilesBackups, server: srv, want: true},
		{name: "subuser wildcard not power", p: interactive(2), c: capability.PowerOn, server: srv, want: false},
		{name: "subuser exact", p: interactive(3), c: capability.PowerOn, server: srv, want: true},
		{name: "subuser exact other", p: interactive(3), c: capability.PowerOff, server: srv, want: false},
		{name: "stranger", p: interactive(4), c: capability.ServerView, server: srv, want: false},
		{name: "interactive account scope", p: interactive(4), c: capability.ProfileView, want: true},
		{name: "api account scope needs capability", p: api(4), c: capability.ProfileView, want: false},
		{name: "api account scope with capability", p: api(4, "account.profile.view"), c: capability.ProfileView, want: true},
		{name: "api owner with capability", p: api(1, "server.power.on"), c: capability.PowerOn, server: srv, want: true},
		{name: "api owner without capability", p: api(1, "server.power.on"), c: capability.PowerOff, server: srv, want: false},
		{name: "api stranger with capability", p: api(4, "server.power.on"), c: capability.PowerOn, server: srv, want: false},
		{name: "api subuser bounded by grant", p: api(3, "server.power.*"), c: capability.PowerKill, server: srv, want: false},
		{name: "api subuser within grant", p: api(3, "server.power.*"), c: capability.PowerOn, server: srv, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CanPerform(context.Background(), tt.p, tt.c, tt.server)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanPerform_AdminIsMonotonic(t *testing.T) {
	e := newEvaluator()
	principals := []model.Principal{interactive(1), interactive(2), interactive(4), api(2, "server.files.*"), api(4, "server.view")}
	scopes := []*model.Server{nil, srv}

	for _, p := range principals {
		for _, c := range capability.All() {
			for _, scope := range scopes {
				before, err := e.CanPerform(context.Background(), p, c, scope)
				require.NoError(t, err)
				promoted := p
				promoted.Admin = true
				after, err := e.CanPerform(context.Background(), promoted, c, scope)
				require.NoError(t, err)
				if before {
					assert.True(t, after, "user %d lost %s after promotion", p.UserID, c)
				}
			}
		}
	}
}

func TestAuthorize(t *testing.T) {
	e := newEvaluator()

	suspended := interactive(1)
	suspended.Suspended = true
	err := e.Authorize(context.Background(), suspended, capability.ServerView, srv)
	assert.Equal(t, apperr.CodeAccountSuspended, apperr.CodeOf(err))

	err = e.Authorize(context.Background(), api(4, "server.power.on"), capability.PowerOn, srv)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	assert.NoError(t, e.Authorize(context.Background(), interactive(1), capability.PowerOn, srv))
}

func TestAuthorize_StoreFailureIsInternal(t *testing.T) {
	e := NewEvaluator(&fakeGrants{err: errors.New("db down")})
	err := e.Authorize(context.Background(), interactive(2), capability.ServerView, srv)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func TestEffective(t *testing.T) {
	e := newEvaluator()
	ctx := context.Background()

	got, err := e.Effective(ctx, interactive(1), srv)
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, got.Strings())

	got, err = e.Effective(ctx, interactive(2), srv)
	require.NoError(t, err)
	assert.Equal(t, []string{"server.files.*", "server.view"}, got.Strings())

	got, err = e.Effective(ctx, api(2, "server.files.read", "server.power.on"), srv)
	require.NoError(t, err)
	assert.Equal(t, []string{"server.files.read"}, got.Strings())
}
