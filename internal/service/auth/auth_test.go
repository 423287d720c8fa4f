package auth

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/viewtube/viewtube/internal/apperrors"
	"github.com/viewtube/viewtube/internal/repository/postgres"
	"github.com/viewtube/viewtube/internal/service/auth/tokencodec"
	"github.com/viewtube/viewtube/internal/testutil"
)

func registerParams(username string) RegisterParams {
	return RegisterParams{
		Username: username,
		Email:    username + "@example.com",
		FullName: "Test User",
		Password: "Secret123",
	}
}

func Test_AuthService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Begin new db transaction and create new AuthService
	// Rollback transaction when test stops
	withTx := func(dbpool *pgxpool.Pool, accessTTL time.Duration, refreshTTL time.Duration, t *testing.T, fn func(s *AuthService, r *postgres.UserRepo)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			userRepo := &postgres.UserRepo{DB: tx}

			codec, err := tokencodec.New(tokencodec.Config{
				AccessSecret:  "test-access-secret",
				RefreshSecret: "test-refresh-secret",
				AccessTTL:     accessTTL,
				RefreshTTL:    refreshTTL,
			})
			require.NoError(t, err, "token codec should be created without errors")

			s, err := NewService(Config{}, codec, userRepo)
			require.NoError(t, err, "auth service couldn't be started", err)

			fn(s, userRepo)
		})
	}

	t.Run("new service defaults", func(t *testing.T) {
		codec, err := tokencodec.New(tokencodec.Config{AccessSecret: "a", RefreshSecret: "r"})
		require.NoError(t, err)

		s, err := NewService(Config{}, codec, &postgres.UserRepo{DB: pg.Pool})
		require.NoError(t, err, "auth service should be created without errors")

		require.Equal(t, defaultAccessCookieName, s.accessCookieName, "default access cookie name should be set")
		require.Equal(t, defaultRefreshCookieName, s.refreshCookieName, "default refresh cookie name should be set")
		require.Equal(t, defaultAccessAuthScheme, s.accessAuthScheme, "default access auth scheme should be set")
		require.Equal(t, BcryptHasher{}, s.hasher, "default hasher should be set to BcryptHasher")
	})

	t.Run("Register", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				user, pair, err := s.Register(t.Context(), registerParams("Alice"))

				require.NoError(t, err, "registering new user should be ok")
				require.Equal(t, "alice", user.Username, "username should be stored lowercased")
				require.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				require.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")

				// Exactly one refresh hash is stored and it matches the issued token
				stored, err := r.GetUserByID(t.Context(), user.ID)
				require.NoError(t, err)
				require.NotNil(t, stored.RefreshTokenHash)
				require.Equal(t, hashToken(pair.Refresh.Value), *stored.RefreshTokenHash)
			})
		})

		t.Run("fail if user exists", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				_, _, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				_, _, err = s.Register(t.Context(), registerParams("alice"))

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("existing user ok", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				_, _, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				user, pair, err := s.Login(t.Context(), "alice", "Secret123")

				require.NoError(t, err)
				require.Equal(t, "alice", user.Username)
				require.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				require.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")

				stored, err := r.GetUserByID(t.Context(), user.ID)
				require.NoError(t, err)
				require.Equal(t, hashToken(pair.Refresh.Value), *stored.RefreshTokenHash)
			})
		})

		t.Run("login by email ok", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				_, _, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				_, _, err = s.Login(t.Context(), "alice@example.com", "Secret123")
				require.NoError(t, err)
			})
		})

		t.Run("login supersedes previous session", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				_, firstPair, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				_, _, err = s.Login(t.Context(), "alice", "Secret123")
				require.NoError(t, err)

				// The pre-login refresh token was rotated out by the new login
				_, err = s.RefreshPair(t.Context(), firstPair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRotated)
			})
		})

		tests := []struct {
			name       string
			identifier string
			password   string
		}{
			{name: "fail if wrong password", identifier: "alice", password: "wrong"},
			{name: "fail if user not exists", identifier: "nobody", password: "Secret123"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
					_, _, err := s.Register(t.Context(), registerParams("alice"))
					require.NoError(t, err)

					_, _, err = s.Login(t.Context(), tt.identifier, tt.password)

					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials,
						"both cases must be the same generic error")
				})
			})
		}
	})

	t.Run("RefreshPair", func(t *testing.T) {
		t.Run("refresh once ok", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				user, initialPair, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				newPair, err := s.RefreshPair(t.Context(), initialPair.Refresh.Value)

				require.NoError(t, err)
				require.NotEqual(t, initialPair.Access.Value, newPair.Access.Value, "new access token should be different")
				require.NotEqual(t, initialPair.Refresh.Value, newPair.Refresh.Value, "new refresh token should be different")

				stored, err := r.GetUserByID(t.Context(), user.ID)
				require.NoError(t, err)
				require.Equal(t, hashToken(newPair.Refresh.Value), *stored.RefreshTokenHash,
					"stored hash should be the new token's hash")
			})
		})

		t.Run("replayed token fails after rotation", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				_, initialPair, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				_, err = s.RefreshPair(t.Context(), initialPair.Refresh.Value)
				require.NoError(t, err)

				_, err = s.RefreshPair(t.Context(), initialPair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRotated,
					"rotated out token must stay dead forever")
			})
		})

		t.Run("fail if expired", func(t *testing.T) {
			withTx(pg.Pool, time.Second, time.Second, t, func(s *AuthService, r *postgres.UserRepo) {
				_, initialPair, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				time.Sleep(time.Second)

				_, err = s.RefreshPair(t.Context(), initialPair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrTokenExpired)
			})
		})

		t.Run("fail on access token", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				_, pair, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				_, err = s.RefreshPair(t.Context(), pair.Access.Value)
				require.Error(t, err, "access token must never be accepted as refresh")
			})
		})

		t.Run("fail on garbage", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				_, err := s.RefreshPair(t.Context(), "definitely not a token")
				require.ErrorIs(t, err, apperrors.ErrTokenMalformed)
			})
		})
	})

	t.Run("Logout", func(t *testing.T) {
		t.Run("revokes the refresh token", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				user, pair, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				require.NoError(t, s.Logout(t.Context(), user.ID))

				_, err = s.RefreshPair(t.Context(), pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRotated)
			})
		})

		t.Run("idempotent", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				user, _, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				require.NoError(t, s.Logout(t.Context(), user.ID))
				require.NoError(t, s.Logout(t.Context(), user.ID), "second logout is a no-op success")
			})
		})
	})

	t.Run("ChangePassword", func(t *testing.T) {
		t.Run("ok and old password stops working", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				user, _, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				err = s.ChangePassword(t.Context(), user.ID, "Secret123", "NewSecret456")
				require.NoError(t, err)

				_, _, err = s.Login(t.Context(), "alice", "Secret123")
				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

				_, _, err = s.Login(t.Context(), "alice", "NewSecret456")
				require.NoError(t, err)
			})
		})

		t.Run("wrong old password leaves hash unchanged", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				user, _, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				err = s.ChangePassword(t.Context(), user.ID, "wrong", "NewSecret456")
				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

				_, _, err = s.Login(t.Context(), "alice", "Secret123")
				require.NoError(t, err, "original password must still authenticate")
			})
		})

		t.Run("active session survives", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService, r *postgres.UserRepo) {
				user, pair, err := s.Register(t.Context(), registerParams("alice"))
				require.NoError(t, err)

				err = s.ChangePassword(t.Context(), user.ID, "Secret123", "NewSecret456")
				require.NoError(t, err)

				_, err = s.RefreshPair(t.Context(), pair.Refresh.Value)
				require.NoError(t, err, "password change does not revoke the session")
			})
		})
	})
}
