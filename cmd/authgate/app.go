package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authgate/internal/db"
	"github.com/nkiryanov/authgate/internal/handlers"
	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
	"github.com/nkiryanov/authgate/internal/repository/memory"
	"github.com/nkiryanov/authgate/internal/repository/postgres"
	"github.com/nkiryanov/authgate/internal/service/auth"
	"github.com/nkiryanov/authgate/internal/service/auth/issuer"
	"github.com/nkiryanov/authgate/internal/service/auth/session"
	"github.com/nkiryanov/authgate/internal/service/purger"
	"github.com/nkiryanov/authgate/internal/service/throttle"
	"github.com/nkiryanov/authgate/internal/service/user"
)

const adminUsername = "admin"

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
	purger *purger.Purger

	// Released on Close
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	app := &ServerApp{ListenAddr: c.ListenAddr}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}
	app.logger = log

	storage, err := app.connectStorage(ctx, c)
	if err != nil {
		return nil, err
	}

	// Initialize services
	access, err := issuer.New(issuer.Config{SecretKey: c.SecretKey, AccessTTL: c.AccessTokenTTL})
	if err != nil {
		return nil, fmt.Errorf("error while creating access issuer. Err: %w", err)
	}
	sessions, err := session.New(session.Config{
		RefreshTTL:         c.RefreshTokenTTL,
		RevokeChainOnReuse: c.RevokeChainOnReuse,
	}, storage, log.With("component", "session"))
	if err != nil {
		return nil, fmt.Errorf("error while creating session engine. Err: %w", err)
	}
	userService := user.NewService(user.DefaultHasher, storage.User())

	authCfg := auth.Config{}
	if c.RedisAddr != "" {
		limiter, err := app.connectLimiter(ctx, c)
		if err != nil {
			return nil, err
		}
		authCfg.Limiter = limiter
	}
	authService, err := auth.NewService(authCfg, userService, access, sessions, log.With("component", "auth"))
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	if c.AdminPassword != "" {
		created, err := userService.EnsureUser(ctx, adminUsername, c.AdminPassword, []string{models.RoleAdmin, models.RoleUser})
		if err != nil {
			return nil, fmt.Errorf("error while creating admin user. Err: %w", err)
		}
		if created {
			log.Info("admin user created", "username", adminUsername)
		}
	}

	app.purger, err = purger.New(purger.Config{Interval: c.PurgeInterval}, storage, log.With("component", "purger"))
	if err != nil {
		return nil, fmt.Errorf("error while creating purger. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(authService, userService, log)

	return app, nil
}

func (s *ServerApp) connectStorage(ctx context.Context, c *Config) (repository.Storage, error) {
	if c.DatabaseDSN == "" {
		s.logger.Warn("database is not set, users and tokens are kept in memory and lost on restart")
		return memory.NewStorage(), nil
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	s.closers = append(s.closers, pool.Close)

	return postgres.NewStorage(pool), nil
}

func (s *ServerApp) connectLimiter(ctx context.Context, c *Config) (*throttle.Limiter, error) {
	client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	s.closers = append(s.closers, func() { _ = client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
	}

	limiter, err := throttle.New(throttle.Config{MaxAttempts: c.LoginMaxAttempts, Lockout: c.LoginLockout}, client)
	if err != nil {
		return nil, fmt.Errorf("error while creating login limiter. Err: %w", err)
	}
	return limiter, nil
}

// Run starts http server and purger, closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	purgerStopped := s.purger.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-purgerStopped

	return err
}

// Close releases connections in reverse order
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
