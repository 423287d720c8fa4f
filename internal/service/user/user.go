package user

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/viewtube/viewtube/internal/media"
	"github.com/viewtube/viewtube/internal/models"
	"github.com/viewtube/viewtube/internal/repository"
)

// ImageUpload is a single uploaded image as it arrives from the HTTP layer
type ImageUpload struct {
	ContentType string
	Body        io.Reader
}

// UserService covers profile reads and media updates
// Credential and session mutations belong to the auth service, not here
type UserService struct {
	userRepo repository.UserRepo
	media    media.Store
}

func NewService(userRepo repository.UserRepo, mediaStore media.Store) *UserService {
	return &UserService{
		userRepo: userRepo,
		media:    mediaStore,
	}
}

func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.userRepo.GetUserByID(ctx, userID)
}

// UpdateAvatar pushes the image to the media store and persists the public
// URL it reports, never a local path or storage key
func (s *UserService) UpdateAvatar(ctx context.Context, userID uuid.UUID, upload ImageUpload) (models.User, error) {
	url, err := s.uploadImage(ctx, userID, "avatars", upload)
	if err != nil {
		return models.User{}, err
	}

	return s.userRepo.UpdateAvatarURL(ctx, userID, url)
}

func (s *UserService) UpdateCoverImage(ctx context.Context, userID uuid.UUID, upload ImageUpload) (models.User, error) {
	url, err := s.uploadImage(ctx, userID, "covers", upload)
	if err != nil {
		return models.User{}, err
	}

	return s.userRepo.UpdateCoverImageURL(ctx, userID, url)
}

func (s *UserService) uploadImage(ctx context.Context, userID uuid.UUID, prefix string, upload ImageUpload) (string, error) {
	key := fmt.Sprintf("%s/%s/%s", prefix, userID, uuid.New())

	url, err := s.media.Upload(ctx, key, upload.ContentType, upload.Body)
	if err != nil {
		return "", fmt.Errorf("error while uploading image. Err: %w", err)
	}

	return url, nil
}
