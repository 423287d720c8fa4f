package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID
	CreatedAt     time.Time
	Username      string
	Email         string
	FullName      string
	AvatarURL     string
	CoverImageURL string

	HashedPassword string

	// Hash of the account's current refresh token
	// nil means no active session
	RefreshTokenHash *string
}

// Profile is the client-visible projection of a user
// It never carries the password hash or the refresh token hash
type Profile struct {
	ID            uuid.UUID `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		CreatedAt:     u.CreatedAt,
		Username:      u.Username,
		Email:         u.Email,
		FullName:      u.FullName,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
	}
}
