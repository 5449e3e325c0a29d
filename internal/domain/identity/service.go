package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medeasy/medeasy/internal/platform/auth"
	"github.com/medeasy/medeasy/internal/platform/cqrs"
	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/jsonpatch"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

// ErrInvalidCredentials covers every failed login or refresh so callers
// cannot tell which accounts exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	repo        Repository
	uow         db.UnitOfWork
	tokens      *auth.TokenIssuer
	revocations auth.RevocationStore
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, uow db.UnitOfWork, tokens *auth.TokenIssuer, revocations auth.RevocationStore, logger zerolog.Logger) *Service {
	return &Service{repo: repo, uow: uow, tokens: tokens, revocations: revocations, logger: logger, now: time.Now}
}

// CreateAccount registers an active account without any role. Only an
// administrator may place the account in a tenant.
func (s *Service) CreateAccount(ctx context.Context, info NewAccountInfo) (*Account, []validation.Failure, error) {
	info.Username = strings.TrimSpace(info.Username)
	info.Email = strings.TrimSpace(info.Email)
	if !auth.IsAdmin(ctx) {
		info.TenantID = nil
	}
	result := newAccountValidator.Validate(info)
	if err := result.Err(); err != nil {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(info.Password)
	if err != nil {
		return nil, nil, err
	}
	a := &Account{
		ID:           uuid.New(),
		Username:     info.Username,
		Name:         strings.TrimSpace(info.Name),
		Email:        info.Email,
		PasswordHash: hash,
		IsActive:     true,
		TenantID:     info.TenantID,
		Roles:        []string{},
		Claims:       []AccountClaim{},
	}
	a.Created(auth.Actor(ctx), s.now())

	if err := s.uow.Do(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, a)
	}); err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("account_id", a.ID.String()).Str("username", a.Username).Msg("account created")
	return a, result.Warnings(), nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListAccounts(ctx context.Context, sorts []search.Sort, limit, offset int) ([]*Account, int, error) {
	return s.SearchAccounts(ctx, nil, sorts, limit, offset)
}

func (s *Service) SearchAccounts(ctx context.Context, f search.Filter, sorts []search.Sort, limit, offset int) ([]*Account, int, error) {
	if err := search.Validate(f, sorts, columns); err != nil {
		return nil, 0, err
	}
	return s.repo.Search(ctx, f, sorts, limit, offset)
}

// owns reports whether the caller may act on a.
func owns(ctx context.Context, a *Account) bool {
	return auth.IsAdmin(ctx) || strings.EqualFold(auth.UserNameFromContext(ctx), a.Username)
}

func touchesPrivileged(ops []jsonpatch.Operation) bool {
	for _, op := range ops {
		for _, p := range []string{op.Path, op.From} {
			field, _, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
			if privileged[field] {
				return true
			}
		}
	}
	return false
}

// PatchAccount applies a JSON Patch. Account owners may edit their profile.
// The privileged fields are reserved to administrators.
func (s *Service) PatchAccount(ctx context.Context, id uuid.UUID, ops []jsonpatch.Operation, expected *int) (*Account, []validation.Failure, cqrs.ModifyCommandResult, error) {
	if err := jsonpatch.Restrict(ops, patchable...); err != nil {
		return nil, nil, 0, err
	}

	var patched *Account
	var warnings []validation.Failure
	result := cqrs.ModifyDone
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.ModifyFailedNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if !owns(ctx, a) || (touchesPrivileged(ops) && !auth.IsAdmin(ctx)) {
			result = cqrs.ModifyFailedUnauthorized
			return nil
		}
		if expected != nil && *expected != a.Version {
			result = cqrs.ModifyFailedConflict
			return nil
		}

		info, err := jsonpatch.Apply(a.Info(), ops)
		if errors.Is(err, jsonpatch.ErrTestFailed) {
			result = cqrs.ModifyFailedConflict
			return nil
		}
		if err != nil {
			return err
		}
		checked := infoValidator.Validate(info)
		if err := checked.Err(); err != nil {
			return err
		}
		warnings = checked.Warnings()

		a.apply(info)
		a.Updated(auth.Actor(ctx), s.now())
		switch err := s.repo.Update(ctx, a); {
		case errors.Is(err, db.ErrVersionMismatch):
			result = cqrs.ModifyFailedConflict
			return nil
		case errors.Is(err, db.ErrNotFound):
			result = cqrs.ModifyFailedNotFound
			return nil
		case err != nil:
			return err
		}
		patched = a
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return patched, warnings, result, nil
}

// DeleteAccount removes an account and revokes its tokens.
func (s *Service) DeleteAccount(ctx context.Context, id uuid.UUID) (cqrs.DeleteCommandResult, error) {
	result := cqrs.DeleteDone
	var username string
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.DeleteFailedNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if !owns(ctx, a) {
			result = cqrs.DeleteFailedUnauthorized
			return nil
		}
		username = a.Username
		err = s.repo.Delete(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			result = cqrs.DeleteFailedNotFound
			return nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	if result == cqrs.DeleteDone {
		if err := s.revocations.RevokeUser(ctx, username, s.now()); err != nil {
			s.logger.Error().Err(err).Str("username", username).Msg("cannot revoke tokens of deleted account")
		}
	}
	return result, nil
}

// Login checks the credentials and issues a token pair. The refresh token
// becomes the only one accepted for the account.
func (s *Service) Login(ctx context.Context, info LoginInfo) (*auth.TokenPair, error) {
	a, err := s.repo.FindByUsername(ctx, strings.TrimSpace(info.Username))
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(info.Password, a.PasswordHash) || !a.CanLogin() {
		s.logger.Warn().Str("username", a.Username).Bool("active", a.IsActive).Bool("locked", a.Locked).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(a.subject())
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetRefreshToken(ctx, a.ID, pair.RefreshToken); err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh issues a new access token when refreshToken is the current
// refresh token of username and is still valid.
func (s *Service) Refresh(ctx context.Context, username, refreshToken string) (*BearerToken, error) {
	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil || !strings.EqualFold(claims.Name, username) {
		return nil, ErrInvalidCredentials
	}
	a, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if a.RefreshToken == "" || a.RefreshToken != refreshToken || !a.CanLogin() {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.AccessToken(a.subject())
	if err != nil {
		return nil, err
	}
	return &BearerToken{AccessToken: token, ExpiresAt: exp}, nil
}

// Invalidate clears the refresh token of username and revokes every access
// token issued so far. Only the account itself or an administrator may do so.
func (s *Service) Invalidate(ctx context.Context, username string) (cqrs.InvalidateAccessCommandResult, error) {
	a, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, db.ErrNotFound) {
		return cqrs.InvalidateFailedNotFound, nil
	}
	if err != nil {
		return 0, err
	}
	if !owns(ctx, a) {
		return cqrs.InvalidateFailedUnauthorized, nil
	}

	if err := s.repo.SetRefreshToken(ctx, a.ID, ""); err != nil {
		return 0, err
	}
	if err := s.revocations.RevokeUser(ctx, a.Username, s.now()); err != nil {
		return 0, err
	}
	s.logger.Info().Str("username", a.Username).Str("by", auth.Actor(ctx)).Msg("access invalidated")
	return cqrs.InvalidateDone, nil
}
