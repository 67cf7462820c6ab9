// Package accounts declares and implements persistence for user accounts:
// credentials, verification state and lockout counters.
package accounts

import (
	"context"
	"time"

	"github.com/artelie/backend/internal/server/models"
)

// Repository is the credential store. Lookups return common.ErrorNotFound
// when no row matches; guarded updates return it when their guard fails.
type Repository interface {
	// Create inserts a and fills in ID and CreatedAt. Unique-constraint
	// conflicts surface as *common.ValidationError.
	Create(ctx context.Context, a *models.Account) (*models.Account, error)

	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByVerificationToken(ctx context.Context, token string) (*models.Account, error)

	// GetByEmailForUpdate locks the row until the surrounding transaction ends.
	GetByEmailForUpdate(ctx context.Context, email string) (*models.Account, error)

	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// SetVerificationToken overwrites any pending token of an unverified,
	// never deactivated account.
	SetVerificationToken(ctx context.Context, id, token string, issuedAt time.Time) error

	// ActivateByToken verifies and activates the account owning token,
	// provided the token was issued at or after notBefore, and clears it.
	ActivateByToken(ctx context.Context, token string, notBefore time.Time) (*models.Account, error)

	// SaveLoginState persists the failed-attempt counter and lock together.
	SaveLoginState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error

	// UpdatePasswordHash replaces the hash only while it still equals oldHash.
	UpdatePasswordHash(ctx context.Context, id, oldHash, newHash string) error

	// UpdateFullName sets the display name and returns the updated account.
	UpdateFullName(ctx context.Context, id, fullName string) (*models.Account, error)

	// Deactivate clears is_active and any pending verification token and
	// stamps deactivated_at, which blocks further verification.
	Deactivate(ctx context.Context, id string) error
}
