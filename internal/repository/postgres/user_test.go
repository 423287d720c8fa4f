package postgres

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/viewtube/viewtube/internal/apperrors"
	"github.com/viewtube/viewtube/internal/models"
	"github.com/viewtube/viewtube/internal/repository"
	"github.com/viewtube/viewtube/internal/testutil"
)

func createUserParams(username string) repository.CreateUserParams {
	return repository.CreateUserParams{
		Username:     username,
		Email:        username + "@example.com",
		FullName:     "Test User",
		PasswordHash: "hashed-password",
	}
}

func Test_UserRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withRepo := func(t *testing.T, fn func(r *UserRepo)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(&UserRepo{DB: tx})
		})
	}

	t.Run("CreateUser", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			withRepo(t, func(r *UserRepo) {
				user, err := r.CreateUser(t.Context(), createUserParams("alice"))

				require.NoError(t, err)
				require.NotEqual(t, uuid.Nil, user.ID)
				require.Equal(t, "alice", user.Username)
				require.Equal(t, "alice@example.com", user.Email)
				require.Nil(t, user.RefreshTokenHash, "fresh account has no session")
				require.False(t, user.CreatedAt.IsZero())
			})
		})

		t.Run("conflict on same username", func(t *testing.T) {
			withRepo(t, func(r *UserRepo) {
				_, err := r.CreateUser(t.Context(), createUserParams("alice"))
				require.NoError(t, err)

				arg := createUserParams("alice")
				arg.Email = "other@example.com"
				_, err = r.CreateUser(t.Context(), arg)

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})

		t.Run("conflict on same email different case", func(t *testing.T) {
			withRepo(t, func(r *UserRepo) {
				_, err := r.CreateUser(t.Context(), createUserParams("alice"))
				require.NoError(t, err)

				arg := createUserParams("bob")
				arg.Email = "ALICE@example.com"
				_, err = r.CreateUser(t.Context(), arg)

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	// Two racing inserts must hit the unique index, not an application check,
	// so they run on the pool (transactions would serialize them)
	t.Run("concurrent registration: one wins one conflicts", func(t *testing.T) {
		repo := &UserRepo{DB: pg.Pool}
		t.Cleanup(func() {
			_, err := pg.Pool.Exec(t.Context(), "DELETE FROM users WHERE username = 'racer'")
			require.NoError(t, err)
		})

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = repo.CreateUser(t.Context(), createUserParams("racer"))
			}()
		}
		wg.Wait()

		var conflicts, successes int
		for _, err := range errs {
			switch {
			case err == nil:
				successes++
			default:
				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
				conflicts++
			}
		}
		require.Equal(t, 1, successes, "exactly one registration should win")
		require.Equal(t, 1, conflicts, "the loser should get a conflict, not a duplicate account")
	})

	t.Run("GetUserByIdentifier", func(t *testing.T) {
		tests := []struct {
			name       string
			identifier string
			wantErr    error
		}{
			{name: "by username", identifier: "alice"},
			{name: "by username case insensitive", identifier: "ALICE"},
			{name: "by email", identifier: "alice@example.com"},
			{name: "by email case insensitive", identifier: "Alice@Example.com"},
			{name: "unknown", identifier: "nobody", wantErr: apperrors.ErrUserNotFound},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withRepo(t, func(r *UserRepo) {
					created, err := r.CreateUser(t.Context(), createUserParams("alice"))
					require.NoError(t, err)

					user, err := r.GetUserByIdentifier(t.Context(), tt.identifier)

					if tt.wantErr != nil {
						require.ErrorIs(t, err, tt.wantErr)
						return
					}
					require.NoError(t, err)
					require.Equal(t, created.ID, user.ID)
				})
			})
		}
	})

	t.Run("GetUserByID", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), createUserParams("alice"))
			require.NoError(t, err)

			user, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, created.ID, user.ID)

			_, err = r.GetUserByID(t.Context(), uuid.New())
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("SetRefreshTokenHash", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), createUserParams("alice"))
			require.NoError(t, err)

			hash := "refresh-hash"
			require.NoError(t, r.SetRefreshTokenHash(t.Context(), created.ID, &hash))

			user, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.NotNil(t, user.RefreshTokenHash)
			require.Equal(t, hash, *user.RefreshTokenHash)

			// Clearing twice stays a success
			require.NoError(t, r.SetRefreshTokenHash(t.Context(), created.ID, nil))
			require.NoError(t, r.SetRefreshTokenHash(t.Context(), created.ID, nil))

			user, err = r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.Nil(t, user.RefreshTokenHash)

			err = r.SetRefreshTokenHash(t.Context(), uuid.New(), &hash)
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("RotateRefreshTokenHash", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), createUserParams("alice"))
			require.NoError(t, err)

			first := "first-hash"
			require.NoError(t, r.SetRefreshTokenHash(t.Context(), created.ID, &first))

			// Rotation against the current hash wins
			err = r.RotateRefreshTokenHash(t.Context(), created.ID, "first-hash", "second-hash")
			require.NoError(t, err)

			// Same rotation replayed loses: the compared hash is gone
			err = r.RotateRefreshTokenHash(t.Context(), created.ID, "first-hash", "third-hash")
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenRotated)

			user, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, "second-hash", *user.RefreshTokenHash)

			// Cleared hash (logged out) matches nothing
			require.NoError(t, r.SetRefreshTokenHash(t.Context(), created.ID, nil))
			err = r.RotateRefreshTokenHash(t.Context(), created.ID, "second-hash", "fourth-hash")
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenRotated)
		})
	})

	t.Run("UpdatePasswordHash", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), createUserParams("alice"))
			require.NoError(t, err)

			require.NoError(t, r.UpdatePasswordHash(t.Context(), created.ID, "new-hash"))

			user, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, "new-hash", user.HashedPassword)

			err = r.UpdatePasswordHash(t.Context(), uuid.New(), "new-hash")
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("update media urls", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), createUserParams("alice"))
			require.NoError(t, err)

			var user models.User
			user, err = r.UpdateAvatarURL(t.Context(), created.ID, "https://cdn.example.com/a.png")
			require.NoError(t, err)
			require.Equal(t, "https://cdn.example.com/a.png", user.AvatarURL)

			user, err = r.UpdateCoverImageURL(t.Context(), created.ID, "https://cdn.example.com/c.png")
			require.NoError(t, err)
			require.Equal(t, "https://cdn.example.com/c.png", user.CoverImageURL)
		})
	})
}
