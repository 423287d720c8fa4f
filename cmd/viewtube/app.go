package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/viewtube/viewtube/internal/db"
	"github.com/viewtube/viewtube/internal/handlers"
	"github.com/viewtube/viewtube/internal/handlers/middleware"
	"github.com/viewtube/viewtube/internal/logger"
	"github.com/viewtube/viewtube/internal/media"
	"github.com/viewtube/viewtube/internal/repository/postgres"
	"github.com/viewtube/viewtube/internal/service/auth"
	"github.com/viewtube/viewtube/internal/service/auth/tokencodec"
	"github.com/viewtube/viewtube/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	userRepo := &postgres.UserRepo{DB: pool}

	// Initialize media storage
	mediaStore, err := media.NewS3Store(ctx, media.S3Config{
		Region:        c.S3Region,
		Bucket:        c.S3Bucket,
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		BaseEndpoint:  c.S3BaseEndpoint,
		PublicBaseURL: c.MediaPublicURL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating media store. Err: %w", err)
	}

	// Initialize services
	codec, err := tokencodec.New(tokencodec.Config{
		AccessSecret:  c.AccessTokenSecret,
		RefreshSecret: c.RefreshTokenSecret,
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token codec. Err: %w", err)
	}
	authService, err := auth.NewService(auth.Config{}, codec, userRepo)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	userService := user.NewService(userRepo, mediaStore)

	// Initialize handlers
	authHandler := handlers.NewAuth(authService, logger)
	userHandler := handlers.NewUser(userService, logger)

	mux := handlers.NewRouter(
		authHandler,
		userHandler,
		middleware.AuthMiddleware(authService),
		middleware.LoggerMiddleware(logger),
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server")
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
