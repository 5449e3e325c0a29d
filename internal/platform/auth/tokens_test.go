package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(now time.Time) *TokenIssuer {
	i := NewTokenIssuer(TokenConfig{
		SigningKey:      testSigningKey,
		Issuer:          "medeasy",
		Audiences:       []string{"patients", "agenda"},
		AccessTokenTTL:  10 * time.Minute,
		RefreshTokenTTL: 20 * time.Minute,
	})
	i.now = func() time.Time { return now }
	return i
}

func TestTokenIssuer_Issue(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(now)

	pair, err := issuer.Issue(Subject{ID: "42", Username: "bruce", Email: "bruce@wayne.com", Roles: []string{"doctor"}})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.AccessToken == pair.RefreshToken {
		t.Fatalf("unexpected token pair: %+v", pair)
	}
	if !pair.AccessTokenExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Errorf("unexpected access expiry %s", pair.AccessTokenExpiresAt)
	}
	if !pair.RefreshTokenExpiresAt.Equal(now.Add(20 * time.Minute)) {
		t.Errorf("unexpected refresh expiry %s", pair.RefreshTokenExpiresAt)
	}

	claims, err := issuer.ParseRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefreshToken() error: %v", err)
	}
	if claims.Name != "bruce" || claims.Subject != "42" {
		t.Errorf("unexpected refresh claims: %+v", claims)
	}

	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "medeasy", Audience: "agenda"}
	if _, _, err := runJWT(t, cfg, "Bearer "+pair.AccessToken); err != nil {
		t.Errorf("access token rejected by middleware: %v", err)
	}
}

func TestTokenIssuer_ParseRefreshToken_Rejects(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(now)
	pair, err := issuer.Issue(Subject{ID: "42", Username: "bruce"})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	if _, err := issuer.ParseRefreshToken(pair.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("access token accepted as refresh token: %v", err)
	}

	later := newTestIssuer(now.Add(time.Hour))
	if _, err := later.ParseRefreshToken(pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("expired refresh token accepted: %v", err)
	}

	if _, err := issuer.ParseRefreshToken("garbage"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("garbage accepted: %v", err)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("thebatman")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash == "thebatman" {
		t.Fatal("password stored in clear")
	}
	if !CheckPassword("thebatman", hash) {
		t.Error("expected password to match")
	}
	if CheckPassword("joker", hash) {
		t.Error("expected wrong password to fail")
	}
}
