package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/logging"
	"github.com/artelie/backend/internal/server/config"
	"github.com/artelie/backend/internal/server/mail"
	"github.com/artelie/backend/internal/server/models"
	"github.com/artelie/backend/internal/server/repositories/repomanager"
)

// verificationTokenBytes is the amount of randomness behind a verification
// token; the hex form is twice as long.
const verificationTokenBytes = 32

// VerificationService issues and consumes single-use email verification
// tokens.
type VerificationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	mailer      Mailer
	renderer    *mail.Renderer
	logger      logging.Logger
	ttl         time.Duration
	baseURL     string
	now         func() time.Time
}

func NewVerificationService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	mailer Mailer, renderer *mail.Renderer, l logging.Logger) *VerificationService {
	return &VerificationService{
		db:          db,
		repomanager: m,
		mailer:      mailer,
		renderer:    renderer,
		logger:      l.With("module", "verification"),
		ttl:         cfg.VerificationTokenTTL,
		baseURL:     strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:         time.Now,
	}
}

// Issue stores a fresh token for a, replacing any pending one, and queues the
// verification email. Mail problems are logged only; the stored token stays
// valid so a resend is always possible.
func (s *VerificationService) Issue(ctx context.Context, a *models.Account) (string, error) {
	token, err := common.MakeRandHexString(verificationTokenBytes)
	if err != nil {
		return "", internal(err)
	}
	issuedAt := s.now()

	if err := s.repomanager.Accounts(s.db).SetVerificationToken(ctx, a.ID, token, issuedAt); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", err
		}
		return "", internal(err)
	}
	a.VerificationToken = &token
	a.VerificationTokenCreatedAt = &issuedAt

	s.logger.Info(ctx, "verification token issued",
		"user_id", a.ID, "token", logging.TokenPrefix(token))

	msg, err := s.renderer.Verification(a.Email, mail.VerificationData{
		Username: a.Username,
		Link:     s.baseURL + "/api/verify-email/" + token,
		TTLHours: int(s.ttl.Hours()),
	})
	if err != nil {
		s.logger.Error(ctx, "render verification email", "user_id", a.ID, "error", err)
		return token, nil
	}
	s.mailer.Dispatch(ctx, MailKindVerification, msg)

	return token, nil
}

// Consume activates the account owning token. An unknown token yields
// ErrTokenNotFound, one older than the validity window ErrTokenExpired; the
// expired token is left in place.
func (s *VerificationService) Consume(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, common.ErrTokenNotFound
	}

	repo := s.repomanager.Accounts(s.db)
	now := s.now()

	a, err := repo.ActivateByToken(ctx, token, now.Add(-s.ttl))
	if err == nil {
		s.logger.Info(ctx, "email verified", "user_id", a.ID)
		return a, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, internal(err)
	}

	pending, err := repo.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrTokenNotFound
		}
		return nil, internal(err)
	}
	if pending.VerificationExpired(now, s.ttl) {
		s.logger.Info(ctx, "verification token expired",
			"user_id", pending.ID, "token", logging.TokenPrefix(token))
		return nil, common.ErrTokenExpired
	}
	return nil, common.ErrTokenNotFound
}

// Resend re-issues a token for an unverified account. It never reports
// whether email belongs to an account.
func (s *VerificationService) Resend(ctx context.Context, email string) {
	email = normalizeEmail(email)

	a, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "resend verification lookup", "error", err)
		}
		return
	}
	if a.IsVerified {
		return
	}

	if _, err := s.Issue(ctx, a); err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Error(ctx, "resend verification", "user_id", a.ID, "error", err)
	}
}
