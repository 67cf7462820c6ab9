package models

import "time"

// Account is a registered user. PasswordHash and VerificationToken are
// secrets and carry no JSON tags on purpose.
type Account struct {
	ID       string
	Username string
	Email    string
	FullName string

	PasswordHash string

	IsActive    bool
	IsVerified  bool
	IsStaff     bool
	IsSuperuser bool

	VerificationToken          *string
	VerificationTokenCreatedAt *time.Time

	FailedLoginAttempts int
	LockedUntil         *time.Time

	CreatedAt time.Time
}

// IsLocked reports whether a lock is in force at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// VerificationExpired reports whether the pending verification token was
// issued more than ttl before now. An account without a token timestamp is
// treated as expired.
func (a *Account) VerificationExpired(now time.Time, ttl time.Duration) bool {
	if a.VerificationTokenCreatedAt == nil {
		return true
	}
	return now.After(a.VerificationTokenCreatedAt.Add(ttl))
}
