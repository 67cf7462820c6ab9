// Package revocations stores the set of refresh-token ids (jti) that must no
// longer be honoured, either in PostgreSQL or in Redis.
package revocations

import (
	"context"

	"github.com/artelie/backend/internal/server/models"
)

// Repository is the revocation set.
type Repository interface {
	// Revoke adds r.JTI to the set. It reports true only for the caller that
	// actually inserted the entry; a jti that was already present yields false.
	Revoke(ctx context.Context, r models.Revocation) (bool, error)

	// IsRevoked reports whether jti is in the set.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
