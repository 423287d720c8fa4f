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
	"github.com/viewtube/viewtube/internal/service/user"
)

// Uploaded images are buffered up to this many bytes before hitting the
// media store
const maxImageSize = 16 << 20

type UserService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, upload user.ImageUpload) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, upload user.ImageUpload) (models.User, error)
}

type UserHandler struct {
	users  UserService
	logger logger.Logger
}

func NewUser(users UserService, l logger.Logger) *UserHandler {
	return &UserHandler{users: users, logger: l}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := userctx.FromContext(r.Context())

	u, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.renderUserError(w, err, "fetching user failed")
		return
	}

	render.JSON(w, "Current user fetched successfully", u.Profile())
}

func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.users.UpdateAvatar)
}

func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.users.UpdateCoverImage)
}

type updateImageFunc func(ctx context.Context, userID uuid.UUID, upload user.ImageUpload) (models.User, error)

func (h *UserHandler) updateImage(w http.ResponseWriter, r *http.Request, field string, update updateImageFunc) {
	userID, _ := userctx.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize)
	file, header, err := r.FormFile(field)
	if err != nil {
		render.ServiceError(w, "Image file '"+field+"' is required", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	u, err := update(r.Context(), userID, user.ImageUpload{
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		h.renderUserError(w, err, "image update failed")
		return
	}

	render.JSON(w, "Image updated successfully", u.Profile())
}

func (h *UserHandler) renderUserError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ServiceError(w, "User not found", http.StatusNotFound)
	case isUnavailable(err):
		render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error(logMsg, "error", err.Error())
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
