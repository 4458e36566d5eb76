package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hobbystash/account-service/internal/dto"
	"github.com/hobbystash/account-service/internal/service"
)

const (
	refreshCookieName = "refresh_token"

	// The refresh secret only ever travels back to the auth endpoints,
	// never to general application routes.
	refreshCookiePath = "/api/v1/auth"
)

// Responses for the enumeration-sensitive flows. Byte-identical no matter
// whether the account exists.
const (
	msgResetRequested        = "If an account with this email exists, a password reset link has been sent"
	msgVerificationRequested = "If an account with this email exists, a verification link has been sent"
	msgRegistered            = "Account created. Check your email to verify your address"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register handles user registration. No auto-login: the response is a
// generic message and the verification email does the rest.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.authService.Register(c.Request.Context(), &req); err != nil {
		if errors.Is(err, service.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, dto.ErrorResponse{
				Error:   "Conflict",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, dto.SuccessResponse{Message: msgRegistered})
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req, clientUserAgent(c), clientIP(c))
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, service.ErrAccountDeactivated) {
			status = http.StatusForbidden
		}
		c.JSON(status, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: err.Error(),
		})
		return
	}

	h.setRefreshCookie(c, result)
	c.JSON(http.StatusOK, result.AuthResponse)
}

// Refresh rotates the refresh session presented in the cookie
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshSecret, err := c.Cookie(refreshCookieName)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "Refresh token not found in cookie",
		})
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), refreshSecret, clientUserAgent(c), clientIP(c))
	if err != nil {
		// A dead secret is a dead cookie, whichever way it died.
		h.clearRefreshCookie(c)

		status := http.StatusUnauthorized
		if errors.Is(err, service.ErrAccountDeactivated) {
			status = http.StatusForbidden
		}
		c.JSON(status, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: err.Error(),
		})
		return
	}

	h.setRefreshCookie(c, result)
	c.JSON(http.StatusOK, result.AuthResponse)
}

// Logout revokes the session behind the presented refresh cookie
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	refreshSecret, _ := c.Cookie(refreshCookieName)

	if err := h.authService.Logout(c.Request.Context(), userID, refreshSecret); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Logged out successfully",
	})
}

// LogoutAll revokes every session of the authenticated user
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.authService.LogoutAll(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Logged out from all devices",
	})
}

// ListSessions lists the user's active sessions, flagging the one backed
// by the presented refresh cookie
func (h *AuthHandler) ListSessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	refreshSecret, _ := c.Cookie(refreshCookieName)

	sessions, err := h.authService.ListSessions(c.Request.Context(), userID, refreshSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ForgotPassword queues a password reset email. The response is identical
// whether or not the account exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	h.authService.ForgotPassword(c.Request.Context(), req.Email)

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: msgResetRequested})
}

// ResendVerification queues a fresh verification email with the same
// enumeration-safe response contract
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req dto.ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	h.authService.ResendVerification(c.Request.Context(), req.Email)

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: msgVerificationRequested})
}

// ResetPassword consumes a reset token and sets the new password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		h.respondTokenError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Password has been reset. Please log in with your new password",
	})
}

// VerifyEmail consumes a verification token
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req dto.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.authService.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		h.respondTokenError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Email verified successfully",
	})
}

// ChangePassword replaces the password of the authenticated user and logs
// out every other device
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	err := h.authService.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrIncorrectPassword) {
			c.JSON(http.StatusForbidden, dto.ErrorResponse{
				Error:   "Forbidden",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: err.Error(),
		})
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Password changed. Please log in again",
	})
}

// DeleteAccount deletes the authenticated user after re-verifying the password
func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.DeleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.authService.DeleteAccount(c.Request.Context(), userID, req.Password); err != nil {
		if errors.Is(err, service.ErrIncorrectPassword) {
			c.JSON(http.StatusForbidden, dto.ErrorResponse{
				Error:   "Forbidden",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Account deleted",
	})
}

// GetMe handles getting current user profile
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) respondTokenError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrTokenExpired) {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "Bad request",
		Message: err.Error(),
	})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, result *service.AuthResult) {
	c.SetCookie(refreshCookieName, result.RefreshSecret, int(result.RefreshTTL.Seconds()), refreshCookiePath, "", true, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", true, true)
}

func currentUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: "User ID not found in context",
		})
		return "", false
	}
	return userID.(string), true
}

func clientUserAgent(c *gin.Context) *string {
	ua := c.Request.UserAgent()
	if ua == "" {
		return nil
	}
	return &ua
}

func clientIP(c *gin.Context) *string {
	ip := c.ClientIP()
	if ip == "" {
		return nil
	}
	return &ip
}
