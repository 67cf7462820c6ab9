// Package services contains server-side business logic: registration and
// email verification, login/refresh/logout with failed-login lockout, and
// password changes. Services run repositories either directly on the pool or
// inside a dbx transaction.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/server/mail"
)

// Mailer queues an outbound message. Delivery failures never reach the caller.
type Mailer interface {
	Dispatch(ctx context.Context, kind string, msg mail.Message)
}

const (
	MailKindVerification    = "verification"
	MailKindPasswordChanged = "password_changed"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func internal(err error) error {
	return fmt.Errorf("%w: %w", common.ErrorInternal, err)
}
