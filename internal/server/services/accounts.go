package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/cryptox"
	"github.com/artelie/backend/internal/logging"
	"github.com/artelie/backend/internal/server/mail"
	"github.com/artelie/backend/internal/server/models"
	"github.com/artelie/backend/internal/server/password"
	"github.com/artelie/backend/internal/server/repositories/accounts"
	"github.com/artelie/backend/internal/server/repositories/repomanager"
	"github.com/go-playground/validator/v10"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 50
	emailMaxLen    = 254
	fullNameMaxLen = 150
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

var reservedUsernames = map[string]struct{}{
	"admin": {}, "root": {}, "superuser": {}, "administrator": {},
	"system": {}, "support": {}, "help": {}, "api": {}, "www": {},
}

// RegisterInput is a registration request as submitted by the client.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	PasswordConfirm string
	FullName        string
}

// AccountService manages account lifecycle: registration, password changes,
// profile reads and deactivation.
type AccountService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	hasher       *cryptox.Hasher
	policy       *password.Policy
	verification *VerificationService
	mailer       Mailer
	renderer     *mail.Renderer
	validate     *validator.Validate
	logger       logging.Logger
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, hasher *cryptox.Hasher,
	policy *password.Policy, verification *VerificationService,
	mailer Mailer, renderer *mail.Renderer, l logging.Logger) *AccountService {
	return &AccountService{
		db:           db,
		repomanager:  m,
		hasher:       hasher,
		policy:       policy,
		verification: verification,
		mailer:       mailer,
		renderer:     renderer,
		validate:     validator.New(),
		logger:       l.With("module", "accounts"),
	}
}

// Register creates an inactive, unverified account and sends the
// verification email. Every field problem is reported in one
// *common.ValidationError.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	a, err := s.create(ctx, in, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "account registered", "user_id", a.ID)

	if _, err := s.verification.Issue(ctx, a); err != nil {
		s.logger.Error(ctx, "issue verification token", "user_id", a.ID, "error", err)
	}
	return a, nil
}

// CreateSuperuser creates an active, verified staff account with superuser
// rights. Input is validated exactly like a registration.
func (s *AccountService) CreateSuperuser(ctx context.Context, in RegisterInput) (*models.Account, error) {
	a, err := s.create(ctx, in, true)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "superuser created", "user_id", a.ID)
	return a, nil
}

func (s *AccountService) create(ctx context.Context, in RegisterInput, superuser bool) (*models.Account, error) {
	in.Username = normalizeUsername(in.Username)
	in.Email = normalizeEmail(in.Email)

	repo := s.repomanager.Accounts(s.db)
	if err := s.validateRegistration(ctx, repo, in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internal(err)
	}

	a, err := repo.Create(ctx, &models.Account{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		IsActive:     superuser,
		IsVerified:   superuser,
		IsStaff:      superuser,
		IsSuperuser:  superuser,
	})
	if err != nil {
		var verr *common.ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, internal(err)
	}
	return a, nil
}

func (s *AccountService) validateRegistration(ctx context.Context, repo accounts.Repository, in RegisterInput) error {
	v := common.NewValidationError()

	usernameOK := false
	switch n := utf8.RuneCountInString(in.Username); {
	case n == 0:
		v.Add("username", "this field is required")
	case n < usernameMinLen || n > usernameMaxLen:
		v.Add("username", fmt.Sprintf("username must be between %d and %d characters", usernameMinLen, usernameMaxLen))
	case !usernamePattern.MatchString(in.Username):
		v.Add("username", "username may contain only letters, digits and underscores")
	default:
		if _, reserved := reservedUsernames[in.Username]; reserved {
			v.Add("username", "this username is reserved")
		} else {
			usernameOK = true
		}
	}

	emailOK := false
	switch {
	case in.Email == "":
		v.Add("email", "this field is required")
	case len(in.Email) > emailMaxLen || s.validate.Var(in.Email, "email") != nil:
		v.Add("email", "enter a valid email address")
	default:
		emailOK = true
	}

	if utf8.RuneCountInString(in.FullName) > fullNameMaxLen {
		v.Add("full_name", fmt.Sprintf("full name must be at most %d characters", fullNameMaxLen))
	}

	if in.Password == "" {
		v.Add("password", "this field is required")
	} else {
		err := s.policy.Validate(in.Password, password.Context{Username: in.Username, Email: in.Email})
		var weak *common.WeakPasswordError
		if errors.As(err, &weak) {
			for _, r := range weak.Reasons {
				v.Add("password", r)
			}
		}
	}
	if in.Password != in.PasswordConfirm {
		v.Add("password_confirm", "passwords do not match")
	}

	if usernameOK {
		taken, err := repo.ExistsByUsername(ctx, in.Username)
		if err != nil {
			return internal(err)
		}
		if taken {
			v.Add("username", "this username is already taken")
		}
	}
	if emailOK {
		taken, err := repo.ExistsByEmail(ctx, in.Email)
		if err != nil {
			return internal(err)
		}
		if taken {
			v.Add("email", "a user with this email already exists")
		}
	}

	return v.ErrOrNil()
}

// ChangePassword replaces the password hash after re-checking oldPassword. Nothing
// else about the account changes.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	repo := s.repomanager.Accounts(s.db)

	a, err := repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return internal(err)
	}

	ok, err := s.hasher.Verify(oldPassword, a.PasswordHash)
	if err != nil {
		return internal(err)
	}
	if !ok {
		return common.ErrWrongOldPassword
	}
	if oldPassword == newPassword {
		return common.ErrSameAsOld
	}
	if err := s.policy.Validate(newPassword, password.Context{Username: a.Username, Email: a.Email}); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internal(err)
	}
	if err := repo.UpdatePasswordHash(ctx, a.ID, a.PasswordHash, hash); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// changed concurrently; oldPassword no longer matches
			return common.ErrWrongOldPassword
		}
		return internal(err)
	}
	s.logger.Info(ctx, "password changed", "user_id", a.ID)

	msg, err := s.renderer.PasswordChanged(a.Email, mail.PasswordChangedData{Username: a.Username})
	if err != nil {
		s.logger.Error(ctx, "render password changed email", "user_id", a.ID, "error", err)
		return nil
	}
	s.mailer.Dispatch(ctx, MailKindPasswordChanged, msg)
	return nil
}

// Profile returns the account with the given id.
func (s *AccountService) Profile(ctx context.Context, accountID string) (*models.Account, error) {
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, internal(err)
	}
	return a, nil
}

// UpdateFullName changes the display name. An empty name clears it.
func (s *AccountService) UpdateFullName(ctx context.Context, accountID, fullName string) (*models.Account, error) {
	fullName = strings.TrimSpace(fullName)
	if utf8.RuneCountInString(fullName) > fullNameMaxLen {
		v := common.NewValidationError()
		v.Add("full_name", fmt.Sprintf("full name must be at most %d characters", fullNameMaxLen))
		return nil, v
	}

	a, err := s.repomanager.Accounts(s.db).UpdateFullName(ctx, accountID, fullName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, internal(err)
	}
	return a, nil
}

// Deactivate disables the account for good. Verification cannot bring it
// back.
func (s *AccountService) Deactivate(ctx context.Context, accountID string) error {
	if err := s.repomanager.Accounts(s.db).Deactivate(ctx, accountID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return internal(err)
	}
	s.logger.Info(ctx, "account deactivated", "user_id", accountID)
	return nil
}
