package services

import (
	"time"

	"github.com/artelie/backend/internal/server/models"
)

// LockoutGuard is the state transition over an account's failed-attempt
// counter and lock. It mutates the account in memory; callers persist both
// fields together with SaveLoginState.
type LockoutGuard struct {
	threshold int
	duration  time.Duration
}

func NewLockoutGuard(threshold int, duration time.Duration) LockoutGuard {
	return LockoutGuard{threshold: threshold, duration: duration}
}

func (g LockoutGuard) IsLocked(a *models.Account, now time.Time) bool {
	return a.IsLocked(now)
}

// OnFailure counts a failed attempt and locks the account once the threshold
// is reached. A counter left over from an expired lock starts from zero.
func (g LockoutGuard) OnFailure(a *models.Account, now time.Time) {
	if a.LockedUntil != nil && !now.Before(*a.LockedUntil) {
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
	}

	a.FailedLoginAttempts++
	if a.FailedLoginAttempts >= g.threshold {
		until := now.Add(g.duration)
		a.LockedUntil = &until
	}
}

// OnSuccess clears the counter and any lock.
func (g LockoutGuard) OnSuccess(a *models.Account) {
	a.FailedLoginAttempts = 0
	a.LockedUntil = nil
}

func (g LockoutGuard) dirty(a *models.Account) bool {
	return a.FailedLoginAttempts != 0 || a.LockedUntil != nil
}
