package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/viewtube/viewtube/internal/apperrors"
	"github.com/viewtube/viewtube/internal/models"
	"github.com/viewtube/viewtube/internal/repository"
	"github.com/viewtube/viewtube/internal/service/auth/tokencodec"
)

const (
	defaultAccessCookieName  = "accesstoken"
	defaultRefreshCookieName = "refreshtoken"
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Hasher to use during registration, login or password change
	// Defaults to BcryptHasher
	Hasher PasswordHasher

	// Cookie and header names, defaults used if empty
	AccessCookieName  string
	RefreshCookieName string
}

type RegisterParams struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// AuthService orchestrates the session lifecycle: login, refresh rotation,
// logout and password change. All session state lives in the user repository
// (a single refresh token hash per account), so any instance may serve any
// request
type AuthService struct {
	codec    *tokencodec.Codec
	hasher   PasswordHasher
	userRepo repository.UserRepo

	accessCookieName  string
	refreshCookieName string
	accessHeaderName  string
	accessAuthScheme  string
}

func NewService(cfg Config, codec *tokencodec.Codec, userRepo repository.UserRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	if codec == nil || userRepo == nil {
		return nil, errors.New("token codec and user repo must not be nil")
	}

	setDefaultString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefaultString(&cfg.AccessCookieName, defaultAccessCookieName)
	setDefaultString(&cfg.RefreshCookieName, defaultRefreshCookieName)

	return &AuthService{
		codec:             codec,
		hasher:            hasher,
		userRepo:          userRepo,
		accessCookieName:  cfg.AccessCookieName,
		refreshCookieName: cfg.RefreshCookieName,
		accessHeaderName:  defaultAccessHeaderName,
		accessAuthScheme:  defaultAccessAuthScheme,
	}, nil
}

// Register creates the account and opens its first session
// Username is stored lowercased, the repo enforces uniqueness atomically
func (s *AuthService) Register(ctx context.Context, arg RegisterParams) (models.User, models.TokenPair, error) {
	hash, err := s.hasher.Hash(arg.Password)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Username:      strings.ToLower(arg.Username),
		Email:         arg.Email,
		FullName:      arg.FullName,
		AvatarURL:     arg.AvatarURL,
		CoverImageURL: arg.CoverImageURL,
		PasswordHash:  hash,
	})
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	pair, err := s.openSession(ctx, user.ID)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	return user, pair, nil
}

// Login verifies the password and opens a fresh session, superseding any
// previous one. Unknown identifier and wrong password are indistinguishable
// to the caller
func (s *AuthService) Login(ctx context.Context, identifier string, password string) (models.User, models.TokenPair, error) {
	user, err := s.userRepo.GetUserByIdentifier(ctx, identifier)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Burn a compare anyway so a missing account costs the same as a wrong password
		_ = s.hasher.Compare(dummyHash, password)
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, models.TokenPair{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	pair, err := s.openSession(ctx, user.ID)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	return user, pair, nil
}

// RefreshPair exchanges a valid refresh token for a new token pair
// The stored hash is overwritten before the new pair is returned, so the
// presented token is permanently unusable even if the response is lost
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	claims, err := s.codec.Verify(refresh, tokencodec.KindRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.issuePair(claims.UserID)
	if err != nil {
		return models.TokenPair{}, err
	}

	// Compare-and-set against the presented token's hash: a rotated-out or
	// revoked token (or a deleted account) matches no row and is rejected
	err = s.userRepo.RotateRefreshTokenHash(ctx, claims.UserID, hashToken(refresh), hashToken(pair.Refresh.Value))
	if err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// Logout revokes the account's session
// Idempotent: logging out an already anonymous account succeeds
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.userRepo.SetRefreshTokenHash(ctx, userID, nil)
}

// ChangePassword verifies the old password and stores the hash of the new one
// The active session deliberately survives a password change
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.HashedPassword, oldPassword); err != nil {
		return apperrors.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, Err: %w", err)
	}

	return s.userRepo.UpdatePasswordHash(ctx, userID, hash)
}

// Authenticate resolves the request's access token to a user id
// Purely signature based: no store lookup happens here, a deleted account is
// trusted until the token expires
func (s *AuthService) Authenticate(r *http.Request) (uuid.UUID, error) {
	access, err := s.readAccessToken(r)
	if err != nil {
		return uuid.Nil, err
	}

	claims, err := s.codec.Verify(access, tokencodec.KindAccess)
	if err != nil {
		return uuid.Nil, err
	}

	return claims.UserID, nil
}

// ReadRefreshToken returns the refresh token from the request cookie
func (s *AuthService) ReadRefreshToken(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", apperrors.ErrTokenMalformed
	}
	return cookie.Value, nil
}

// SetTokenPairToResponse delivers both tokens as httpOnly secure cookies
// and mirrors the access token in the Authorization header
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.accessCookieName,
		Value:    pair.Access.Value,
		Path:     "/",
		MaxAge:   int(s.codec.AccessTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     "/",
		MaxAge:   int(s.codec.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
}

// ClearTokensFromResponse expires both token cookies
func (s *AuthService) ClearTokensFromResponse(w http.ResponseWriter) {
	for _, name := range []string{s.accessCookieName, s.refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// openSession issues a pair and persists the refresh token hash
// Last writer wins: each login legitimately supersedes the previous session
func (s *AuthService) openSession(ctx context.Context, userID uuid.UUID) (models.TokenPair, error) {
	pair, err := s.issuePair(userID)
	if err != nil {
		return models.TokenPair{}, err
	}

	hash := hashToken(pair.Refresh.Value)
	if err := s.userRepo.SetRefreshTokenHash(ctx, userID, &hash); err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

func (s *AuthService) issuePair(userID uuid.UUID) (models.TokenPair, error) {
	access, err := s.codec.IssueAccess(userID)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := s.codec.IssueRefresh(userID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *AuthService) readAccessToken(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(s.accessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	header := r.Header.Get(s.accessHeaderName)
	if value, ok := strings.CutPrefix(header, s.accessAuthScheme+" "); ok && value != "" {
		return value, nil
	}

	return "", apperrors.ErrTokenMalformed
}

// The store keeps a hash of the refresh token, never the token itself:
// a leaked users table does not yield usable sessions. The token is a signed
// high entropy value, so a fast hash is the right tool here
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Valid bcrypt hash of an unknowable password, compared against on login
// for accounts that don't exist
var dummyHash = func() string {
	hash, err := BcryptHasher{}.Hash(uuid.NewString())
	if err != nil {
		panic(err)
	}
	return hash
}()
