package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Skufu/heartrisk/internal/auth"
	"github.com/Skufu/heartrisk/internal/config"
	"github.com/Skufu/heartrisk/internal/httpapi"
	"github.com/Skufu/heartrisk/internal/logging"
	"github.com/Skufu/heartrisk/internal/migrations"
	"github.com/Skufu/heartrisk/internal/model"
	"github.com/Skufu/heartrisk/internal/predict"
	"github.com/Skufu/heartrisk/internal/session"
	"github.com/Skufu/heartrisk/internal/users"
)

const (
	serviceName          = "heartrisk"
	sessionSweepInterval = time.Minute
	dialTimeout          = 5 * time.Second
	shutdownGrace        = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	gin.SetMode(cfg.GinMode)
	logger := logging.New(serviceName, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clf, err := model.Load(ctx, cfg.ModelPath, model.S3Options{
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("source", cfg.ModelPath).Msg("model load failed")
	}
	if err := clf.RequireFeatures(predict.NumFeatures); err != nil {
		logger.Fatal().Err(err).Str("source", cfg.ModelPath).Msg("model rejected")
	}

	accounts, closeAccounts, err := openUserStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("user store unavailable")
	}
	defer closeAccounts()

	revocations, closeSessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.SessionStore).Msg("session store unavailable")
	}
	defer closeSessions()

	secret, generated, err := sessionSecret(cfg.SessionSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("session secret")
	}
	if generated {
		logger.Warn().Msg("SESSION_SECRET not set, using a random secret; sessions will not survive a restart")
	}

	router, err := httpapi.NewRouter(httpapi.Deps{
		Logger:       logger,
		Auth:         auth.New(accounts, logger),
		Sessions:     session.NewManager(secret, cfg.SessionTTL, revocations),
		Predictor:    predict.NewService(clf),
		Health:       accounts,
		CookieSecure: cfg.CookieSecure,
		CORSOrigins:  cfg.CORSOrigins,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("router setup failed")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().
		Str("port", cfg.Port).
		Str("model", clf.String()).
		Bool("db", cfg.EnableDB).
		Str("sessions", cfg.SessionStore).
		Msg("server listening")
	if err := serve(ctx, server, logger); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
}

// serve runs server until it fails or the process receives SIGINT/SIGTERM,
// then drains in-flight requests for up to shutdownGrace.
func serve(ctx context.Context, server *http.Server, logger zerolog.Logger) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
	}

	logger.Info().Dur("grace", shutdownGrace).Msg("draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// openUserStore returns the account store selected by cfg and a func that
// releases it.
func openUserStore(ctx context.Context, cfg *config.Config) (users.Store, func(), error) {
	if !cfg.EnableDB {
		return users.NewFileStore(cfg.UsersFile), func() {}, nil
	}

	pool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	db := stdlib.OpenDBFromPool(pool)
	if err := migrations.Up(ctx, db); err != nil {
		db.Close()
		pool.Close()
		return nil, nil, err
	}
	return users.NewPostgresStore(db), func() {
		db.Close()
		pool.Close()
	}, nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pingWithin(ctx, dialTimeout, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// pingWithin calls ping with a context bounded by d.
func pingWithin(ctx context.Context, d time.Duration, ping func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return ping(ctx)
}

func openSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		store := session.NewMemoryStore()
		go store.RunCleanup(ctx, sessionSweepInterval)
		return store, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	err := pingWithin(ctx, dialTimeout, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return session.NewRedisStore(client), func() { client.Close() }, nil
}

// sessionSecret returns the configured signing key, or a random one when
// none is set. generated reports the latter.
func sessionSecret(configured string) (secret []byte, generated bool, err error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	secret = make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, false, fmt.Errorf("generate session secret: %w", err)
	}
	return secret, true, nil
}
