package httpapi

import (
	"net/http"
	"time"

	"github.com/artelie/backend/internal/common"
	"github.com/gin-gonic/gin"
)

// refreshCookiePath scopes the refresh cookie to the refresh and logout
// endpoints.
const refreshCookiePath = "/api/token/"

func (h *Handler) setRefreshCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int(h.refreshTTL.Seconds())
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     common.RefreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   maxAge,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     common.RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func refreshCookie(c *gin.Context) string {
	v, err := c.Cookie(common.RefreshCookieName)
	if err != nil {
		return ""
	}
	return v
}
