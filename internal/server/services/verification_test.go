package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) seedUnverified(t *testing.T, email string) *models.Account {
	t.Helper()
	hash, err := e.hasher.Hash("Str0ng!Pass")
	require.NoError(t, err)
	return e.repos.accounts.put(&models.Account{Username: "bob", Email: email, PasswordHash: hash})
}

func TestVerification_IssueThenConsume(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.seedUnverified(t, "bob@x.com")

	token, err := e.verification.Issue(ctx, a)
	require.NoError(t, err)
	assert.Len(t, token, 64)

	sent := e.mailer.all()
	require.Len(t, sent, 1)
	assert.Equal(t, MailKindVerification, sent[0].kind)
	assert.Equal(t, "bob@x.com", sent[0].msg.To)
	assert.Contains(t, sent[0].msg.Text, "http://localhost:8080/api/verify-email/"+token)

	got, err := e.verification.Consume(ctx, token)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.True(t, got.IsVerified)
	assert.Nil(t, got.VerificationToken)

	_, err = e.verification.Consume(ctx, token)
	assert.ErrorIs(t, err, common.ErrTokenNotFound, "tokens are single-use")
}

func TestVerification_ConsumeExpired(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.seedUnverified(t, "bob@x.com")

	issued := time.Now()
	e.verification.now = func() time.Time { return issued }
	token, err := e.verification.Issue(ctx, a)
	require.NoError(t, err)

	e.verification.now = func() time.Time { return issued.Add(24*time.Hour + time.Second) }
	_, err = e.verification.Consume(ctx, token)
	assert.ErrorIs(t, err, common.ErrTokenExpired)

	stored := e.repos.accounts.get(a.ID)
	assert.False(t, stored.IsVerified)
	assert.False(t, stored.IsActive)
	require.NotNil(t, stored.VerificationToken, "expired token stays in place")
	assert.Equal(t, token, *stored.VerificationToken)
}

func TestVerification_ConsumeAtWindowEdge(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.seedUnverified(t, "bob@x.com")

	issued := time.Now()
	e.verification.now = func() time.Time { return issued }
	token, err := e.verification.Issue(ctx, a)
	require.NoError(t, err)

	e.verification.now = func() time.Time { return issued.Add(24 * time.Hour) }
	_, err = e.verification.Consume(ctx, token)
	assert.NoError(t, err)
}

func TestVerification_ConsumeUnknown(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.verification.Consume(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrTokenNotFound)
	_, err = e.verification.Consume(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrTokenNotFound)
}

func TestVerification_ReissueReplacesToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.seedUnverified(t, "bob@x.com")

	first, err := e.verification.Issue(ctx, a)
	require.NoError(t, err)
	second, err := e.verification.Issue(ctx, a)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = e.verification.Consume(ctx, first)
	assert.ErrorIs(t, err, common.ErrTokenNotFound)
	_, err = e.verification.Consume(ctx, second)
	assert.NoError(t, err)
}

func TestVerification_Resend(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.seedUnverified(t, "bob@x.com")
	e.seedActive(t, "verified@x.com", "Str0ng!Pass")

	e.verification.Resend(ctx, "nobody@x.com")
	e.verification.Resend(ctx, "verified@x.com")
	assert.Empty(t, e.mailer.all(), "unknown and verified emails are silent no-ops")

	e.verification.Resend(ctx, "  BOB@X.com ")
	sent := e.mailer.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "bob@x.com", sent[0].msg.To)

	stored := e.repos.accounts.get(a.ID)
	require.NotNil(t, stored.VerificationToken)
	assert.True(t, strings.Contains(sent[0].msg.Text, *stored.VerificationToken))
}

func TestVerification_DeactivatedAccountCannotBeVerified(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.seedUnverified(t, "bob@x.com")

	token, err := e.verification.Issue(ctx, a)
	require.NoError(t, err)
	require.NoError(t, e.accounts.Deactivate(ctx, a.ID))

	_, err = e.verification.Consume(ctx, token)
	assert.ErrorIs(t, err, common.ErrTokenNotFound)

	before := len(e.mailer.all())
	e.verification.Resend(ctx, "bob@x.com")
	assert.Len(t, e.mailer.all(), before)
	assert.Nil(t, e.repos.accounts.get(a.ID).VerificationToken)
}
