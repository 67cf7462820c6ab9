// Package auth mints and parses the service's HS256 JWTs.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are carried by both token kinds. Profile fields are only set on
// access tokens.
type Claims struct {
	jwt.RegisteredClaims
	TokenType  TokenType `json:"token_type"`
	Username   string    `json:"username,omitempty"`
	Email      string    `json:"email,omitempty"`
	IsVerified bool      `json:"is_verified,omitempty"`
	IsStaff    bool      `json:"is_staff,omitempty"`
}

// Issuer signs and verifies tokens with a shared secret.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// WithClock returns a copy of i that reads time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	c := *i
	c.now = now
	return &c
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) sign(c *Claims, ttl time.Duration) (string, *Claims, error) {
	now := i.now()
	c.ID = uuid.NewString()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return s, c, nil
}

// IssueAccess mints a short-lived access token for a.
func (i *Issuer) IssueAccess(a *models.Account) (string, *Claims, error) {
	return i.sign(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: a.ID},
		TokenType:        TokenTypeAccess,
		Username:         a.Username,
		Email:            a.Email,
		IsVerified:       a.IsVerified,
		IsStaff:          a.IsStaff,
	}, i.accessTTL)
}

// IssueRefresh mints a refresh token with a fresh jti for accountID.
func (i *Issuer) IssueRefresh(accountID string) (string, *Claims, error) {
	return i.sign(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: accountID},
		TokenType:        TokenTypeRefresh,
	}, i.refreshTTL)
}

// Parse verifies signature, expiry and token type. Every failure maps to
// common.ErrInvalidOrRevokedToken; the jwt cause stays wrapped for logs.
func (i *Issuer) Parse(token string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidOrRevokedToken, err)
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: token type %q", common.ErrInvalidOrRevokedToken, claims.TokenType)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidOrRevokedToken, errors.New("missing sub or jti"))
	}
	return claims, nil
}
