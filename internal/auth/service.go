// Package auth verifies credentials and registers new accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skufu/heartrisk/internal/session"
	"github.com/Skufu/heartrisk/internal/users"
)

// maxPasswordBytes is the bcrypt input limit. Longer passwords are rejected
// rather than silently truncated.
const maxPasswordBytes = 72

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already exists")
	ErrMissingCredentials = errors.New("email and password are required")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
)

type Service struct {
	users  users.Store
	cost   int
	logger zerolog.Logger

	// dummy is compared against when the email is unknown so that a miss
	// costs the same bcrypt work as a wrong password.
	dummy []byte
}

func New(store users.Store, logger zerolog.Logger) *Service {
	s := &Service{users: store, logger: logger}
	return s.WithCost(bcrypt.DefaultCost)
}

// WithCost overrides the bcrypt cost and rebuilds the dummy hash at that
// cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	dummy, err := bcrypt.GenerateFromPassword([]byte("heartrisk-placeholder"), cost)
	if err != nil {
		s.logger.Error().Err(err).Int("cost", cost).Msg("generate dummy hash")
	}
	s.dummy = dummy
	return s
}

func (s *Service) Login(ctx context.Context, email, password string) (session.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" || len(password) > maxPasswordBytes {
		return session.Identity{}, ErrInvalidCredentials
	}

	rec, err := s.users.Get(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		s.logger.Info().Msg("login failed")
		return session.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return session.Identity{}, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		s.logger.Info().Msg("login failed")
		return session.Identity{}, ErrInvalidCredentials
	}

	s.logger.Info().Str("email", rec.Email).Msg("user logged in")
	return session.Identity{Email: rec.Email, Name: rec.Name}, nil
}

func (s *Service) Signup(ctx context.Context, email, password, name string) (session.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return session.Identity{}, ErrMissingCredentials
	}

	if _, err := s.users.Get(ctx, email); err == nil {
		return session.Identity{}, ErrEmailExists
	} else if !errors.Is(err, users.ErrNotFound) {
		return session.Identity{}, fmt.Errorf("load user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return session.Identity{}, ErrPasswordTooLong
	}
	if err != nil {
		return session.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	rec := users.Record{Email: email, Name: name, PasswordHash: string(hash)}
	if err := s.users.Create(ctx, rec); err != nil {
		if errors.Is(err, users.ErrExists) {
			return session.Identity{}, ErrEmailExists
		}
		return session.Identity{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info().Str("email", email).Msg("user registered")
	return session.Identity{Email: email, Name: name}, nil
}
