package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/cryptox"
	"github.com/artelie/backend/internal/dbx"
	"github.com/artelie/backend/internal/logging"
	"github.com/artelie/backend/internal/server/auth"
	"github.com/artelie/backend/internal/server/config"
	"github.com/artelie/backend/internal/server/models"
	"github.com/artelie/backend/internal/server/repositories/repomanager"
)

// TokenPair is the result of a login or refresh. RefreshToken is empty when
// a refresh did not rotate.
type TokenPair struct {
	AccessToken      string
	AccessExpiresIn  time.Duration
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenService handles login, refresh-token rotation and logout.
type TokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	issuer      *auth.Issuer
	hasher      *cryptox.Hasher
	lockout     LockoutGuard
	rotate      bool
	logger      logging.Logger
	now         func() time.Time
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	issuer *auth.Issuer, hasher *cryptox.Hasher, l logging.Logger) *TokenService {
	return &TokenService{
		db:          db,
		repomanager: m,
		issuer:      issuer,
		hasher:      hasher,
		lockout:     NewLockoutGuard(cfg.LockoutThreshold, cfg.LockoutDuration),
		rotate:      cfg.RotateRefreshTokens,
		logger:      l.With("module", "tokens"),
		now:         time.Now,
	}
}

// Login checks, in order, the lock, the password and the active flag. The
// account row stays locked for the whole decision so concurrent failures are
// all counted. Unknown emails get the same ErrInvalidCredentials after a
// dummy hash comparison.
func (s *TokenService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)

	var (
		account *models.Account
		outcome error
	)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		a, err := repo.GetByEmailForUpdate(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				s.hasher.VerifyDummy(password)
				outcome = common.ErrInvalidCredentials
				return nil
			}
			return err
		}

		now := s.now()
		if s.lockout.IsLocked(a, now) {
			outcome = common.ErrAccountLocked
			return nil
		}

		ok, err := s.hasher.Verify(password, a.PasswordHash)
		if err != nil {
			return err
		}
		if !ok {
			s.lockout.OnFailure(a, now)
			if err := repo.SaveLoginState(ctx, a.ID, a.FailedLoginAttempts, a.LockedUntil); err != nil {
				return err
			}
			if s.lockout.IsLocked(a, now) {
				s.logger.Warn(ctx, "account locked", "user_id", a.ID, "until", *a.LockedUntil)
			}
			outcome = common.ErrInvalidCredentials
			return nil
		}

		if !a.IsActive {
			outcome = common.ErrAccountInactive
			return nil
		}

		if s.lockout.dirty(a) {
			s.lockout.OnSuccess(a)
			if err := repo.SaveLoginState(ctx, a.ID, 0, nil); err != nil {
				return err
			}
		}
		account = a
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "login", "error", err)
		return nil, internal(err)
	}
	if outcome != nil {
		return nil, outcome
	}

	pair, err := s.issuePair(account)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "login succeeded", "user_id", account.ID)
	return pair, nil
}

func (s *TokenService) issuePair(a *models.Account) (*TokenPair, error) {
	access, _, err := s.issuer.IssueAccess(a)
	if err != nil {
		return nil, internal(err)
	}
	refresh, rc, err := s.issuer.IssueRefresh(a.ID)
	if err != nil {
		return nil, internal(err)
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresIn:  s.issuer.AccessTTL(),
		RefreshToken:     refresh,
		RefreshExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

// Refresh exchanges a refresh token for a new access token. With rotation on,
// the presented token is revoked first and a new refresh token is returned;
// of several concurrent rotations of one token only the caller whose
// revocation was inserted succeeds.
func (s *TokenService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	if raw == "" {
		return nil, common.ErrMissingToken
	}

	claims, err := s.issuer.Parse(raw, auth.TokenTypeRefresh)
	if err != nil {
		s.logger.Debug(ctx, "refresh token rejected", "error", err)
		return nil, err
	}

	revocations := s.repomanager.Revocations(s.db)
	revoked, err := revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, internal(err)
	}
	if revoked {
		s.logger.Warn(ctx, "revoked refresh token presented", "user_id", claims.Subject, "jti", claims.ID)
		return nil, common.ErrInvalidOrRevokedToken
	}

	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidOrRevokedToken
		}
		return nil, internal(err)
	}
	if !a.IsActive {
		return nil, common.ErrInvalidOrRevokedToken
	}

	pair := &TokenPair{}
	if s.rotate {
		won, err := revocations.Revoke(ctx, s.revocation(claims))
		if err != nil {
			return nil, internal(err)
		}
		if !won {
			return nil, common.ErrInvalidOrRevokedToken
		}

		refresh, rc, err := s.issuer.IssueRefresh(a.ID)
		if err != nil {
			return nil, internal(err)
		}
		pair.RefreshToken = refresh
		pair.RefreshExpiresAt = rc.ExpiresAt.Time
	}

	access, _, err := s.issuer.IssueAccess(a)
	if err != nil {
		return nil, internal(err)
	}
	pair.AccessToken = access
	pair.AccessExpiresIn = s.issuer.AccessTTL()

	return pair, nil
}

// Logout revokes raw if it is a valid refresh token. It never fails: the
// client has already discarded its tokens.
func (s *TokenService) Logout(ctx context.Context, raw string) {
	if raw == "" {
		return
	}

	claims, err := s.issuer.Parse(raw, auth.TokenTypeRefresh)
	if err != nil {
		s.logger.Debug(ctx, "logout with unusable token", "error", err)
		return
	}

	if _, err := s.repomanager.Revocations(s.db).Revoke(ctx, s.revocation(claims)); err != nil {
		s.logger.Error(ctx, "revoke on logout", "user_id", claims.Subject, "jti", claims.ID, "error", err)
		return
	}
	s.logger.Info(ctx, "logged out", "user_id", claims.Subject)
}

// Authenticate validates an access token.
func (s *TokenService) Authenticate(raw string) (*auth.Claims, error) {
	if raw == "" {
		return nil, common.ErrMissingToken
	}
	return s.issuer.Parse(raw, auth.TokenTypeAccess)
}

func (s *TokenService) revocation(c *auth.Claims) models.Revocation {
	return models.Revocation{
		JTI:       c.ID,
		UserID:    c.Subject,
		ExpiresAt: c.ExpiresAt.Time,
		RevokedAt: s.now(),
	}
}
