package models

import "time"

// Revocation marks a refresh token (by its jti) as no longer honoured.
type Revocation struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	RevokedAt time.Time
}
