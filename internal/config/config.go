// Package config reads runtime settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string

	UsersFile   string
	EnableDB    bool
	DatabaseURL string

	ModelPath   string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	SessionSecret string
	SessionTTL    time.Duration
	SessionStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CookieSecure  bool

	CORSOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:          envOr("PORT", "5000"),
		GinMode:       envOr("GIN_MODE", "release"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		UsersFile:     envOr("USERS_FILE", "/tmp/users.json"),
		EnableDB:      strings.EqualFold(envOr("ENABLE_DB", "false"), "true"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		ModelPath:     envOr("MODEL_PATH", "models/heart_disease_rf.json"),
		S3Region:      envOr("S3_REGION", "us-east-1"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3AccessKey:   os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("S3_SECRET_KEY"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionStore:  strings.ToLower(envOr("SESSION_STORE", SessionStoreMemory)),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		CookieSecure:  strings.EqualFold(envOr("COOKIE_SECURE", "false"), "true"),
		CORSOrigins:   splitList(envOr("CORS_ORIGINS", "*")),
	}

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}

	ttl, err := time.ParseDuration(envOr("SESSION_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("parse SESSION_TTL: %w", err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", ttl)
	}
	cfg.SessionTTL = ttl

	switch cfg.SessionStore {
	case SessionStoreMemory, SessionStoreRedis:
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
	}

	redisDB, err := strconv.Atoi(envOr("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	return cfg, nil
}

// envOr returns the trimmed value of key, or fallback when it is unset or
// blank.
func envOr(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
