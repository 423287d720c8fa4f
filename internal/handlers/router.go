package handlers

import (
	"net/http"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authHandler *AuthHandler,
	userHandler *UserHandler,
	authMiddleware func(http.Handler) http.Handler,
	mds ...func(http.Handler) http.Handler,
) http.Handler {
	withAuth := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}

	apiusers := http.NewServeMux()
	apiusers.Handle("/", authHandler.Handler())

	apiusers.Handle("POST /logout", withAuth(authHandler.Logout))
	apiusers.Handle("POST /change-password", withAuth(authHandler.ChangePassword))
	apiusers.Handle("GET /me", withAuth(userHandler.Me))
	apiusers.Handle("PATCH /avatar", withAuth(userHandler.UpdateAvatar))
	apiusers.Handle("PATCH /cover-image", withAuth(userHandler.UpdateCoverImage))

	root := http.NewServeMux()
	root.Handle("/api/v1/users/", http.StripPrefix("/api/v1/users", apiusers))

	return chain(root, mds...)
}
