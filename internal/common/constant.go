// Package common contains shared constants, sentinel errors and small helpers
// used across the Artelie account service.
package common

// AuthorizationHeaderName carries the bearer access token on inbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// RefreshCookieName is the cookie holding the refresh token.
const RefreshCookieName = "refresh_token"
