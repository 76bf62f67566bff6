package auth

import (
	"testing"
	"time"

	"hostpanel/internal/model"
)

var testUser = model.User{ID: 42, Name: "steve", Email: "steve@example.com", Admin: true}

func TestCreateAndVerifyToken(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	tok, err := CreateToken(testUser, cfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	claims, err := VerifyToken(tok, cfg)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	p, err := claims.Principal()
	if err != nil {
		t.Fatalf("Principal: %v", err)
	}
	if p.UserID != 42 || !p.Admin || p.Kind != model.PrincipalInteractive {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	tok, err := CreateToken(testUser, cfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	_, err = VerifyToken(tok, TokenConfig{Secret: "wrong", Expiry: time.Hour, Issuer: "test"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestVerifyToken_WrongIssuer(t *testing.T) {
	tok, err := CreateToken(testUser, TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "other"})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if _, err := VerifyToken(tok, TokenConfig{Secret: "secret", Issuer: "test"}); err == nil {
		t.Fatalf("expected issuer mismatch")
	}
}

func TestCreateToken_InvalidExpiry(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: -time.Second, Issuer: "test"}
	if _, err := CreateToken(testUser, cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCreateToken_MissingUser(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour}
	if _, err := CreateToken(model.User{}, cfg); err == nil {
		t.Fatalf("expected error")
	}
}
