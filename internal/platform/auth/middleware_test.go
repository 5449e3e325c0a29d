package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func accessClaims(name string, issuedAt time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7b3c1f4e-0c1a-4a4b-9d65-0c1f1b2a3c4d",
			Issuer:    "medeasy",
			Audience:  jwt.ClaimStrings{"patients"},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(10 * time.Minute)),
		},
		Name:     name,
		Roles:    []string{"doctor"},
		TokenUse: tokenUseAccess,
	}
}

func runJWT(t *testing.T, cfg JWTConfig, header string) (*httptest.ResponseRecorder, echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var seen echo.Context
	err := JWTMiddleware(cfg)(func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	})(c)
	return rec, seen, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, _, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, accessClaims("bruce", time.Now()), testSigningKey)

	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "medeasy", Audience: "patients"}
	rec, c, err := runJWT(t, cfg, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	ctx := c.Request().Context()
	if UserNameFromContext(ctx) != "bruce" {
		t.Errorf("expected user name bruce, got %q", UserNameFromContext(ctx))
	}
	if UserIDFromContext(ctx) != "7b3c1f4e-0c1a-4a4b-9d65-0c1f1b2a3c4d" {
		t.Errorf("unexpected user id %q", UserIDFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != "doctor" {
		t.Errorf("unexpected roles %v", roles)
	}
	if c.Get("user_id") != "7b3c1f4e-0c1a-4a4b-9d65-0c1f1b2a3c4d" {
		t.Errorf("expected user_id on echo context, got %v", c.Get("user_id"))
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	now := time.Now()
	expired := accessClaims("bruce", now.Add(-time.Hour))
	wrongAudience := accessClaims("bruce", now)
	wrongAudience.Audience = jwt.ClaimStrings{"agenda"}
	refresh := accessClaims("bruce", now)
	refresh.TokenUse = tokenUseRefresh
	noIssuedAt := accessClaims("bruce", now)
	noIssuedAt.IssuedAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"expired", createTestToken(t, expired, testSigningKey)},
		{"wrong audience", createTestToken(t, wrongAudience, testSigningKey)},
		{"refresh token used as access token", createTestToken(t, refresh, testSigningKey)},
		{"wrong key", createTestToken(t, accessClaims("bruce", now), []byte("another-key"))},
		{"missing issued at", createTestToken(t, noIssuedAt, testSigningKey)},
	}
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "medeasy", Audience: "patients"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runJWT(t, cfg, "Bearer "+tt.token)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_RevokedToken(t *testing.T) {
	store := NewMemoryRevocationStore(time.Hour)
	defer store.Close()

	issued := time.Now().Add(-time.Minute)
	token := createTestToken(t, accessClaims("bruce", issued), testSigningKey)
	cfg := JWTConfig{SigningKey: testSigningKey, Revocations: store}

	if _, _, err := runJWT(t, cfg, "Bearer "+token); err != nil {
		t.Fatalf("expected token to be accepted before revocation, got %v", err)
	}

	_ = store.RevokeUser(context.Background(), "bruce", time.Now())
	_, _, err := runJWT(t, cfg, "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_MissingIssuedAtWithRevocations(t *testing.T) {
	store := NewMemoryRevocationStore(time.Hour)
	defer store.Close()

	claims := accessClaims("bruce", time.Now())
	claims.IssuedAt = nil
	cfg := JWTConfig{SigningKey: testSigningKey, Revocations: store}
	_, _, err := runJWT(t, cfg, "Bearer "+createTestToken(t, claims, testSigningKey))
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Skipper: func(echo.Context) bool { return true }}
	if _, _, err := runJWT(t, cfg, ""); err != nil {
		t.Fatalf("expected skipped request to pass, got %v", err)
	}
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	strict := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	err := DevAuthMiddleware(strict)(func(c echo.Context) error {
		if !IsAdmin(c.Request().Context()) {
			t.Error("expected dev principal to be admin")
		}
		if Actor(c.Request().Context()) != "dev" {
			t.Errorf("expected actor dev, got %s", Actor(c.Request().Context()))
		}
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_ValidatesProvidedToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	c := e.NewContext(req, httptest.NewRecorder())

	strict := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	err := DevAuthMiddleware(strict)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestActor_DefaultsToSystem(t *testing.T) {
	if got := Actor(context.Background()); got != "system" {
		t.Errorf("expected system, got %s", got)
	}
}
