// Package httpapi is the HTTP surface of the account service: gin handlers,
// guards, middleware and error rendering.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/logging"
	"github.com/artelie/backend/internal/server/auth"
	"github.com/artelie/backend/internal/server/media"
	"github.com/artelie/backend/internal/server/metrics"
	"github.com/artelie/backend/internal/server/models"
	"github.com/artelie/backend/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.Account, error)
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	Profile(ctx context.Context, accountID string) (*models.Account, error)
	UpdateFullName(ctx context.Context, accountID, fullName string) (*models.Account, error)
	Deactivate(ctx context.Context, accountID string) error
}

type VerificationService interface {
	Consume(ctx context.Context, token string) (*models.Account, error)
	Resend(ctx context.Context, email string)
}

type TokenService interface {
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, raw string) (*services.TokenPair, error)
	Logout(ctx context.Context, raw string)
	Authenticate(raw string) (*auth.Claims, error)
}

type MediaService interface {
	PresignUpload(ctx context.Context, accountID string) (*media.Upload, error)
	PresignDownload(ctx context.Context, accountID string, isStaff bool, key string) (string, error)
}

// Handler serves the /api routes.
type Handler struct {
	accounts      AccountService
	verification  VerificationService
	tokens        TokenService
	media         MediaService
	logger        logging.Logger
	secureCookies bool
	refreshTTL    time.Duration
}

func NewHandler(a AccountService, v VerificationService, t TokenService, m MediaService,
	l logging.Logger, secureCookies bool, refreshTTL time.Duration) *Handler {
	return &Handler{
		accounts:      a,
		verification:  v,
		tokens:        t,
		media:         m,
		logger:        l.With("module", "httpapi"),
		secureCookies: secureCookies,
		refreshTTL:    refreshTTL,
	}
}

type accountResponse struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	IsStaff    bool      `json:"is_staff"`
	CreatedAt  time.Time `json:"created_at"`
}

func toAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		FullName:   a.FullName,
		IsActive:   a.IsActive,
		IsVerified: a.IsVerified,
		IsStaff:    a.IsStaff,
		CreatedAt:  a.CreatedAt,
	}
}

var registerTagNames sync.Once

// useJSONFieldNames makes binding errors report JSON field names.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(f reflect.StructField) string {
				name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
				if name == "-" {
					return ""
				}
				return name
			})
		}
	})
}

// bind decodes the JSON body into req. Failures come back as a
// *common.ValidationError.
func bind(c *gin.Context, req any) error {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return nil
	}

	v := common.NewValidationError()
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch fe.Tag() {
			case "required":
				v.Add(fe.Field(), "this field is required")
			case "email":
				v.Add(fe.Field(), "enter a valid email address")
			default:
				v.Add(fe.Field(), "invalid value")
			}
		}
		return v
	}
	v.Add("non_field_errors", "invalid request body")
	return v
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FullName        string `json:"full_name"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, "register", err)
		return
	}

	a, err := h.accounts.Register(c.Request.Context(), services.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		FullName:        req.FullName,
	})
	metrics.AuthEvents.WithLabelValues("register", outcome(err)).Inc()
	if err != nil {
		h.fail(c, "register", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":          a.ID,
		"username":    a.Username,
		"email":       a.Email,
		"is_active":   a.IsActive,
		"is_verified": a.IsVerified,
		"message":     "Registration successful. Check your email to verify your account.",
	})
}

func (h *Handler) VerifyEmail(c *gin.Context) {
	a, err := h.verification.Consume(c.Request.Context(), c.Param("token"))
	metrics.AuthEvents.WithLabelValues("verify_email", outcome(err)).Inc()
	if err != nil {
		h.fail(c, "verify_email", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Email verified successfully. You can now log in.",
		"user_id": a.ID,
		"email":   a.Email,
	})
}

type resendRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *Handler) ResendVerification(c *gin.Context) {
	var req resendRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, "resend_verification", err)
		return
	}

	h.verification.Resend(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, gin.H{
		"message": "If the account exists and is not yet verified, a new verification email has been sent.",
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type accessResponse struct {
	Access    string `json:"access"`
	ExpiresIn int64  `json:"expires_in"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, "login", err)
		return
	}

	pair, err := h.tokens.Login(c.Request.Context(), req.Email, req.Password)
	metrics.AuthEvents.WithLabelValues("login", outcome(err)).Inc()
	if err != nil {
		h.fail(c, "login", err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)
	c.JSON(http.StatusOK, accessResponse{Access: pair.AccessToken, ExpiresIn: int64(pair.AccessExpiresIn.Seconds())})
}

func (h *Handler) Refresh(c *gin.Context) {
	pair, err := h.tokens.Refresh(c.Request.Context(), refreshCookie(c))
	metrics.AuthEvents.WithLabelValues("refresh", outcome(err)).Inc()
	if err != nil {
		h.fail(c, "refresh", err)
		return
	}

	if pair.RefreshToken != "" {
		h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)
	}
	c.JSON(http.StatusOK, accessResponse{Access: pair.AccessToken, ExpiresIn: int64(pair.AccessExpiresIn.Seconds())})
}

func (h *Handler) Logout(c *gin.Context) {
	h.tokens.Logout(c.Request.Context(), refreshCookie(c))
	metrics.AuthEvents.WithLabelValues("logout", "ok").Inc()

	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) Profile(c *gin.Context) {
	a, err := h.accounts.Profile(c.Request.Context(), claimsFrom(c).Subject)
	if err != nil {
		h.fail(c, "profile", err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(a))
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, "change_password", err)
		return
	}

	err := h.accounts.ChangePassword(c.Request.Context(), c.Param("id"), req.OldPassword, req.NewPassword)
	metrics.AuthEvents.WithLabelValues("change_password", outcome(err)).Inc()
	if err != nil {
		h.fail(c, "change_password", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updateAccountRequest struct {
	FullName *string `json:"full_name" binding:"required"`
}

func (h *Handler) UpdateAccount(c *gin.Context) {
	var req updateAccountRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, "update_account", err)
		return
	}

	a, err := h.accounts.UpdateFullName(c.Request.Context(), c.Param("id"), *req.FullName)
	if err != nil {
		h.fail(c, "update_account", err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(a))
}

func (h *Handler) Deactivate(c *gin.Context) {
	err := h.accounts.Deactivate(c.Request.Context(), c.Param("id"))
	metrics.AuthEvents.WithLabelValues("deactivate", outcome(err)).Inc()
	if err != nil {
		h.fail(c, "deactivate", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) PresignUpload(c *gin.Context) {
	up, err := h.media.PresignUpload(c.Request.Context(), claimsFrom(c).Subject)
	if err != nil {
		h.fail(c, "media_upload", err)
		return
	}
	c.JSON(http.StatusCreated, up)
}

func (h *Handler) MediaRedirect(c *gin.Context) {
	claims := claimsFrom(c)
	url, err := h.media.PresignDownload(c.Request.Context(), claims.Subject, claims.IsStaff, c.Param("key"))
	if err != nil {
		h.fail(c, "media_download", err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}
