package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Wrong identifier or password. Callers must not reveal which one
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrTokenMalformed    = errors.New("token is malformed")
	ErrTokenBadSignature = errors.New("token signature is invalid")
	ErrTokenExpired      = errors.New("token is expired")

	// Presented refresh token is not the account's current one:
	// rotated out already, revoked on logout or never issued
	ErrRefreshTokenRotated = errors.New("refresh token expired or already used")
)
