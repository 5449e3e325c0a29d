package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidRefreshToken is returned for refresh tokens that are malformed,
// expired, or not refresh tokens at all.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// Subject is the identity a token pair is issued for.
type Subject struct {
	ID       string
	Username string
	Email    string
	TenantID string
	Roles    []string
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	AccessToken           string    `json:"accessToken" xml:"accessToken"`
	RefreshToken          string    `json:"refreshToken" xml:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt" xml:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt" xml:"refreshTokenExpiresAt"`
}

type TokenConfig struct {
	SigningKey      []byte
	Issuer          string
	Audiences       []string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// TokenIssuer signs HS256 access and refresh tokens.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// Issue creates a fresh access/refresh token pair.
func (i *TokenIssuer) Issue(s Subject) (*TokenPair, error) {
	now := i.now()
	access, accessExp, err := i.sign(s, tokenUseAccess, now, i.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := i.sign(s, tokenUseRefresh, now, i.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

// AccessToken issues a single access token, used on refresh.
func (i *TokenIssuer) AccessToken(s Subject) (string, time.Time, error) {
	return i.sign(s, tokenUseAccess, i.now(), i.cfg.AccessTokenTTL)
}

func (i *TokenIssuer) sign(s Subject, use string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   s.ID,
			Issuer:    i.cfg.Issuer,
			Audience:  i.cfg.Audiences,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Name:     s.Username,
		Email:    s.Email,
		TenantID: s.TenantID,
		Roles:    s.Roles,
		TokenUse: use,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, exp, nil
}

// ParseRefreshToken validates a refresh token and returns its claims.
func (i *TokenIssuer) ParseRefreshToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid || claims.TokenUse != tokenUseRefresh {
		return nil, ErrInvalidRefreshToken
	}
	return claims, nil
}
