package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"hostpanel/internal/capability"
	"hostpanel/internal/model"
)

type memCredentials struct {
	users map[uint]model.User
	creds map[string]model.APICredential
}

func (m *memCredentials) APICredentialByHash(_ context.Context, hash string) (model.APICredential, error) {
	c, ok := m.creds[hash]
	if !ok {
		return model.APICredential{}, errors.New("not found")
	}
	return c, nil
}

func (m *memCredentials) UserByID(_ context.Context, id uint) (model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return model.User{}, errors.New("not found")
	}
	return u, nil
}

func newResolverFixture(t *testing.T) (*Resolver, *memCredentials, TokenConfig) {
	t.Helper()
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	st := &memCredentials{
		users: map[uint]model.User{
			1: {ID: 1, Name: "alice", Email: "alice@example.com"},
			2: {ID: 2, Name: "bob", Email: "bob@example.com", Suspended: true},
		},
		creds: map[string]model.APICredential{},
	}
	return NewResolver(cfg, st, zap.NewNop().Sugar()), st, cfg
}

func TestResolve_SessionToken(t *testing.T) {
	r, _, cfg := newResolverFixture(t)
	tok, err := CreateToken(model.User{ID: 1, Name: "alice", Admin: true}, cfg)
	require.NoError(t, err)

	p, ok := r.Resolve(context.Background(), tok, "10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, model.PrincipalInteractive, p.Kind)
	assert.Equal(t, uint(1), p.UserID)
	// flags come from the store, not the stale claim
	assert.False(t, p.Admin)
}

func TestResolve_SessionTokenForSuspendedUser(t *testing.T) {
	r, _, cfg := newResolverFixture(t)
	tok, err := CreateToken(model.User{ID: 2, Name: "bob"}, cfg)
	require.NoError(t, err)

	p, ok := r.Resolve(context.Background(), tok, "")
	require.True(t, ok)
	assert.True(t, p.Suspended)
}

func TestResolve_DeletedUser(t *testing.T) {
	r, _, cfg := newResolverFixture(t)
	tok, err := CreateToken(model.User{ID: 77}, cfg)
	require.NoError(t, err)

	_, ok := r.Resolve(context.Background(), tok, "")
	assert.False(t, ok)
}

func TestResolve_APIKey(t *testing.T) {
	r, st, _ := newResolverFixture(t)
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	st.creds[key.Hash] = model.APICredential{
		ID:           5,
		UserID:       1,
		Capabilities: capability.MustParseSet("server.power.on"),
		IPAllowList:  []string{"203.0.113.7"},
	}

	p, ok := r.Resolve(context.Background(), key.Key, "::ffff:203.0.113.7")
	require.True(t, ok)
	assert.Equal(t, model.PrincipalAPI, p.Kind)
	assert.Equal(t, uint(5), p.CredentialID)
	assert.True(t, p.Capabilities.Has(capability.PowerOn))

	_, ok = r.Resolve(context.Background(), key.Key, "203.0.113.8")
	assert.False(t, ok)
}

func TestResolve_APIKeyWithoutAllowList(t *testing.T) {
	r, st, _ := newResolverFixture(t)
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	st.creds[key.Hash] = model.APICredential{ID: 6, UserID: 1}

	_, ok := r.Resolve(context.Background(), key.Key, "198.51.100.1")
	assert.True(t, ok)
}

func TestResolve_Failures(t *testing.T) {
	r, _, _ := newResolverFixture(t)
	forged, err := CreateToken(model.User{ID: 1}, TokenConfig{Secret: "other", Expiry: time.Hour, Issuer: "test"})
	require.NoError(t, err)

	for _, raw := range []string{"", "   ", "deadbeef", forged, "a.b.c"} {
		_, ok := r.Resolve(context.Background(), raw, "127.0.0.1")
		assert.False(t, ok, raw)
	}
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}

func TestSecretsEqual(t *testing.T) {
	assert.True(t, SecretsEqual("s3cret", "s3cret"))
	assert.False(t, SecretsEqual("s3cret", "s3creT"))
	assert.False(t, SecretsEqual("", ""))
}

func TestNormalizeOrigin(t *testing.T) {
	assert.Equal(t, "10.1.2.3", NormalizeOrigin("::ffff:10.1.2.3"))
	assert.Equal(t, "10.1.2.3", NormalizeOrigin("[::FFFF:10.1.2.3]"))
	assert.Equal(t, "2001:db8::1", NormalizeOrigin("2001:db8::1"))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestGenerateAPIKey(t *testing.T) {
	k, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.Len(t, k.Key, 32)
	assert.Equal(t, k.Key[:8], k.Prefix)
	assert.Equal(t, HashAPIKey(k.Key), k.Hash)
	assert.NotEqual(t, k.Key, k.Hash)
}
