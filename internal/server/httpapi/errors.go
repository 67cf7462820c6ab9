package httpapi

import (
	"errors"
	"net/http"

	"github.com/artelie/backend/internal/common"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

type errorKind struct {
	target  error
	status  int
	code    string
	message string
}

var errorKinds = []errorKind{
	{common.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"},
	{common.ErrAccountLocked, http.StatusLocked, "ACCOUNT_LOCKED", "too many failed login attempts, try again later"},
	{common.ErrAccountInactive, http.StatusForbidden, "ACCOUNT_INACTIVE", "account is not active, verify your email first"},
	{common.ErrTokenExpired, http.StatusBadRequest, "TOKEN_EXPIRED", "verification link has expired, request a new one"},
	{common.ErrTokenNotFound, http.StatusNotFound, "TOKEN_NOT_FOUND", "invalid verification link"},
	{common.ErrMissingToken, http.StatusUnauthorized, "MISSING_TOKEN", "authentication credentials were not provided"},
	{common.ErrInvalidOrRevokedToken, http.StatusUnauthorized, "INVALID_OR_REVOKED_TOKEN", "token is invalid or has been revoked"},
	{common.ErrWrongOldPassword, http.StatusBadRequest, "WRONG_OLD_PASSWORD", "old password is incorrect"},
	{common.ErrSameAsOld, http.StatusBadRequest, "SAME_AS_OLD", "new password must differ from the old one"},
	{common.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "you do not have permission to perform this action"},
	{common.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later"},
	{common.ErrorNotFound, http.StatusNotFound, "NOT_FOUND", "not found"},
}

const codeInternal = "INTERNAL_ERROR"

// classify maps a service error to its HTTP status and response body.
func classify(err error) (int, errorResponse) {
	var verr *common.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "invalid input", Fields: verr.Fields}
	}
	var weak *common.WeakPasswordError
	if errors.As(err, &weak) {
		return http.StatusBadRequest, errorResponse{
			Code:    "WEAK_PASSWORD",
			Message: "password does not meet the requirements",
			Fields:  map[string][]string{"new_password": weak.Reasons},
		}
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, errorResponse{Code: k.code, Message: k.message}
		}
	}
	return http.StatusInternalServerError, errorResponse{Code: codeInternal, Message: "internal server error"}
}

// fail writes err as the response and aborts the chain. Unexpected errors are
// logged with op; the client only sees a generic message.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	if status := abortWithError(c, err); status == http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed", "op", op, "error", err, "request_id", c.GetString(requestIDKey))
	}
}

// abortWithError is the single place an error becomes a response body.
func abortWithError(c *gin.Context, err error) int {
	status, body := classify(err)
	c.AbortWithStatusJSON(status, body)
	return status
}

// outcome is the metrics label for err.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	_, body := classify(err)
	return body.Code
}
