package tokencodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/viewtube/viewtube/internal/apperrors"
	"github.com/viewtube/viewtube/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 10 * 24 * time.Hour
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Kind   Kind      `json:"knd"`
}

// Codec config with sensible defaults
type Config struct {
	// Secret keys to sign tokens, one per kind
	// Both required to be set and must differ
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Codec issues and verifies self-contained signed tokens
// Access and refresh tokens are signed with distinct secrets and additionally
// carry a kind claim, so one kind can never be accepted in place of the other
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte

	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(cfg Config) (*Codec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("both token secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &Codec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		alg:           jwt.GetSigningMethod(cfg.Alg),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *Codec) IssueAccess(userID uuid.UUID) (models.IssuedToken, error) {
	return c.issue(userID, KindAccess, c.accessSecret, c.accessTTL)
}

func (c *Codec) IssueRefresh(userID uuid.UUID) (models.IssuedToken, error) {
	return c.issue(userID, KindRefresh, c.refreshSecret, c.refreshTTL)
}

func (c *Codec) issue(userID uuid.UUID, kind Kind, secret []byte, ttl time.Duration) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(
		c.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: userID,
			Kind:   kind,
		},
	)
	signed, err := token.SignedString(secret)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing %s token. Err: %w", kind, err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify parses the token, checks the signature and expiry and makes sure
// it was issued for the expected kind
// Expected failures are reported as apperrors sentinels: callers reject on
// any of them but may tell an expired token apart for client retry logic
func (c *Codec) Verify(token string, kind Kind) (Claims, error) {
	secret := c.accessSecret
	if kind == KindRefresh {
		secret = c.refreshSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)

	switch {
	case err == nil && claims.Kind != kind:
		return Claims{}, apperrors.ErrTokenBadSignature
	case err == nil:
		return *claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, apperrors.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, apperrors.ErrTokenBadSignature
	default:
		return Claims{}, apperrors.ErrTokenMalformed
	}
}
