package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/viewtube/viewtube/internal/models"
)

type CreateUserParams struct {
	Username      string
	Email         string
	FullName      string
	AvatarURL     string
	CoverImageURL string
	PasswordHash  string
}

// User repository interface
// The store owns the account record; session state (the refresh token hash)
// is mutated only through the dedicated methods below
type UserRepo interface {
	// Create user
	// Has to return apperrors.ErrUserAlreadyExists if username or email is taken
	// Uniqueness must be enforced by the store itself, not by a prior lookup
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by id, or by username or email (case insensitive)
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (models.User, error)

	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error

	// Set or clear (nil) the stored refresh token hash
	// Clearing an already clear hash is a no-op success
	SetRefreshTokenHash(ctx context.Context, userID uuid.UUID, hash *string) error

	// Replace the stored refresh token hash only if it still equals oldHash
	// Single conditional update: two rotations racing on the same token must
	// not both succeed. Returns apperrors.ErrRefreshTokenRotated on mismatch
	RotateRefreshTokenHash(ctx context.Context, userID uuid.UUID, oldHash string, newHash string) error

	UpdateAvatarURL(ctx context.Context, userID uuid.UUID, url string) (models.User, error)
	UpdateCoverImageURL(ctx context.Context, userID uuid.UUID, url string) (models.User, error)
}
