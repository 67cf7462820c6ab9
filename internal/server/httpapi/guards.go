package httpapi

import (
	"strings"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// RequireAuth accepts a Bearer access token and stores its claims on the
// context.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		raw, ok := strings.CutPrefix(header, common.BearerPrefix)
		if !ok {
			raw = ""
		}

		claims, err := h.tokens.Authenticate(strings.TrimSpace(raw))
		if err != nil {
			h.fail(c, "authenticate", err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireVerified admits only callers whose email is verified. It must run
// after RequireAuth.
func (h *Handler) RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !claimsFrom(c).IsVerified {
			h.fail(c, "require_verified", common.ErrForbidden)
			return
		}
		c.Next()
	}
}

// RequireOwnerOrStaff admits the account named by the :id path parameter and
// staff. It must run after RequireAuth.
func (h *Handler) RequireOwnerOrStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims.Subject != c.Param("id") && !claims.IsStaff {
			h.fail(c, "require_owner", common.ErrForbidden)
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return &auth.Claims{}
}
