package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/viewtube/viewtube/internal/apperrors"
	"github.com/viewtube/viewtube/internal/handlers/render"
	"github.com/viewtube/viewtube/internal/handlers/userctx"
	"github.com/viewtube/viewtube/internal/logger"
	"github.com/viewtube/viewtube/internal/models"
	"github.com/viewtube/viewtube/internal/service/auth"
)

type AuthService interface {
	Register(ctx context.Context, arg auth.RegisterParams) (models.User, models.TokenPair, error)
	Login(ctx context.Context, identifier string, password string) (models.User, models.TokenPair, error)
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error

	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)
	ClearTokensFromResponse(w http.ResponseWriter)
	ReadRefreshToken(r *http.Request) (string, error)
}

type AuthHandler struct {
	auth   AuthService
	logger logger.Logger
}

func NewAuth(auth AuthService, l logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: l}
}

// Handler returns the public auth endpoints
// Protected ones (logout, change-password) are mounted by the router behind
// the auth middleware
func (h *AuthHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.register)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /refresh", h.refresh)

	return mux
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		FullName string `json:"fullName" validate:"required,max=100"`
		Email    string `json:"email" validate:"required,email"`
		Username string `json:"username" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	user, pair, err := h.auth.Register(r.Context(), auth.RegisterParams{
		FullName: data.FullName,
		Email:    data.Email,
		Username: data.Username,
		Password: data.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User with email or username already exists", http.StatusConflict)
		case isUnavailable(err):
			render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
		default:
			h.logger.Error("register failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.auth.SetTokenPairToResponse(w, pair)
	render.JSONWithStatus(w, "User registered successfully", user.Profile(), http.StatusCreated)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Username string `json:"username" validate:"required_without=Email"`
		Email    string `json:"email" validate:"omitempty,email"`
		Password string `json:"password" validate:"required"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	identifier := data.Username
	if identifier == "" {
		identifier = data.Email
	}

	user, pair, err := h.auth.Login(r.Context(), identifier, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		case isUnavailable(err):
			render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
		default:
			h.logger.Error("login failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.auth.SetTokenPairToResponse(w, pair)
	render.JSON(w, "User logged in successfully", user.Profile())
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshRequest struct {
		RefreshToken string `json:"refreshToken"`
	}
	type RefreshSuccessResponse struct {
		Message string `json:"message"`
	}

	// Cookie first, JSON body as fallback for cookieless clients
	refresh, err := h.auth.ReadRefreshToken(r)
	if err != nil {
		if data, err := render.BindAndValidate[RefreshRequest](w, r); err == nil {
			refresh = data.RefreshToken
		} else {
			return
		}
	}

	pair, err := h.auth.RefreshPair(r.Context(), refresh)
	if err != nil {
		switch {
		case isUnavailable(err):
			render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
		case isTokenRejected(err):
			render.ServiceError(w, "Refresh token expired or already used", http.StatusUnauthorized)
		default:
			h.logger.Error("refresh failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.auth.SetTokenPairToResponse(w, pair)
	render.JSON(w, "Tokens refreshed successfully", nil)
}

// Authenticated endpoints, mounted behind the auth middleware

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.FromContext(r.Context())

	err := h.auth.Logout(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		case isUnavailable(err):
			render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
		default:
			h.logger.Error("logout failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.auth.ClearTokensFromResponse(w)
	render.JSON(w, "User logged out successfully", nil)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	type ChangePasswordRequest struct {
		OldPassword     string `json:"oldPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required,min=8"`
		ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
	}

	data, err := render.BindAndValidate[ChangePasswordRequest](w, r)
	if err != nil {
		return
	}

	userID, _ := userctx.FromContext(r.Context())

	err = h.auth.ChangePassword(r.Context(), userID, data.OldPassword, data.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid old password", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		case isUnavailable(err):
			render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
		default:
			h.logger.Error("change password failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, "Password changed successfully", nil)
}

func isTokenRejected(err error) bool {
	return errors.Is(err, apperrors.ErrTokenMalformed) ||
		errors.Is(err, apperrors.ErrTokenBadSignature) ||
		errors.Is(err, apperrors.ErrTokenExpired) ||
		errors.Is(err, apperrors.ErrRefreshTokenRotated)
}

// A store or hasher that didn't answer in time is an outage, not an auth
// failure: it must surface as retryable 5xx, never as 401
func isUnavailable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
