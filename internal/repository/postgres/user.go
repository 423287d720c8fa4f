package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/viewtube/viewtube/internal/apperrors"
	"github.com/viewtube/viewtube/internal/models"
	"github.com/viewtube/viewtube/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const createUser = `-- name: CreateUser
INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, password_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token_hash
`

func (r *UserRepo) CreateUser(ctx context.Context, arg repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser,
		uuid.New(), arg.Username, arg.Email, arg.FullName, arg.AvatarURL, arg.CoverImageURL, arg.PasswordHash)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT id, created_at, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token_hash
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, userID)
	return collectUser(rows)
}

const getUserByIdentifier = `-- name: GetUserByIdentifier
SELECT id, created_at, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token_hash
FROM users
WHERE lower(username) = lower($1) OR lower(email) = lower($1)
`

func (r *UserRepo) GetUserByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByIdentifier, identifier)
	return collectUser(rows)
}

const updatePasswordHash = `-- name: UpdatePasswordHash
UPDATE users
SET password_hash = $2
WHERE id = $1
RETURNING id
`

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	rows, _ := r.DB.Query(ctx, updatePasswordHash, userID, passwordHash)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const setRefreshTokenHash = `-- name: SetRefreshTokenHash
UPDATE users
SET refresh_token_hash = $2
WHERE id = $1
RETURNING id
`

func (r *UserRepo) SetRefreshTokenHash(ctx context.Context, userID uuid.UUID, hash *string) error {
	rows, _ := r.DB.Query(ctx, setRefreshTokenHash, userID, hash)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const rotateRefreshTokenHash = `-- name: RotateRefreshTokenHash
UPDATE users
SET refresh_token_hash = $3
WHERE id = $1 AND refresh_token_hash = $2
RETURNING id
`

// Rotate the stored hash with compare-and-set semantics
// The WHERE clause is the whole point: of two concurrent rotations presenting
// the same token exactly one may win, the other gets ErrRefreshTokenRotated
func (r *UserRepo) RotateRefreshTokenHash(ctx context.Context, userID uuid.UUID, oldHash string, newHash string) error {
	rows, _ := r.DB.Query(ctx, rotateRefreshTokenHash, userID, oldHash, newHash)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrRefreshTokenRotated
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const updateAvatarURL = `-- name: UpdateAvatarURL
UPDATE users
SET avatar_url = $2
WHERE id = $1
RETURNING id, created_at, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token_hash
`

func (r *UserRepo) UpdateAvatarURL(ctx context.Context, userID uuid.UUID, url string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateAvatarURL, userID, url)
	return collectUser(rows)
}

const updateCoverImageURL = `-- name: UpdateCoverImageURL
UPDATE users
SET cover_image_url = $2
WHERE id = $1
RETURNING id, created_at, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token_hash
`

func (r *UserRepo) UpdateCoverImageURL(ctx context.Context, userID uuid.UUID, url string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateCoverImageURL, userID, url)
	return collectUser(rows)
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Username, &u.Email, &u.FullName,
		&u.AvatarURL, &u.CoverImageURL, &u.HashedPassword, &u.RefreshTokenHash)
	return u, err
}
