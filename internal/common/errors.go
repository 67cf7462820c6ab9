package common

import "errors"

var (

	// repository specific errors
	ErrorNotFound = errors.New("not found")

	// service specific errors
	ErrorInternal = errors.New("internal error")

	// credential errors
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is inactive")

	// verification token errors
	ErrTokenNotFound = errors.New("verification token not found")
	ErrTokenExpired  = errors.New("verification token expired")

	// session token errors
	ErrMissingToken          = errors.New("refresh token missing")
	ErrInvalidOrRevokedToken = errors.New("token is invalid or revoked")

	// password change errors
	ErrWrongOldPassword = errors.New("old password is incorrect")
	ErrSameAsOld        = errors.New("new password must differ from the old one")

	// authorization errors
	ErrForbidden   = errors.New("forbidden")
	ErrRateLimited = errors.New("too many requests")
)
