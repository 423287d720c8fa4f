package middleware

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/viewtube/viewtube/internal/apperrors"
	"github.com/viewtube/viewtube/internal/handlers/render"
	"github.com/viewtube/viewtube/internal/handlers/userctx"
)

type authService interface {
	Authenticate(r *http.Request) (uuid.UUID, error)
}

// AuthMiddleware gates protected handlers behind a valid access token
// Expired tokens get their own message so clients know a refresh is worth
// trying; any other failure is just unauthorized
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := as.Authenticate(r)
			if err != nil {
				switch {
				case errors.Is(err, apperrors.ErrTokenExpired):
					render.ServiceError(w, "Access token expired", http.StatusUnauthorized)
				default:
					render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			ctx := userctx.New(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
