// Package session issues and verifies login sessions.
//
// A session is an HS256-signed token carrying the user's email and display
// name plus an expiry. Every token also has an id that must be present in a
// Store for the token to be accepted, which is how logout revokes a token
// before it expires.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "heartrisk"

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrRevoked      = errors.New("session revoked")
)

// Identity is the authenticated user a session belongs to.
type Identity struct {
	Email string
	Name  string
}

type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwtlib.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	store  Store
	now    func() time.Time
}

func NewManager(secret []byte, ttl time.Duration, store Store) *Manager {
	return &Manager{secret: secret, ttl: ttl, store: store, now: time.Now}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) Issue(ctx context.Context, id Identity) (Token, error) {
	now := m.now()
	expires := now.Add(m.ttl)
	jti := uuid.NewString()

	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        jti,
			Issuer:    issuer,
			Subject:   id.Email,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expires),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign session token: %w", err)
	}

	if err := m.store.Put(ctx, jti, m.ttl); err != nil {
		return Token{}, fmt.Errorf("register session: %w", err)
	}

	return Token{Value: signed, ExpiresAt: expires}, nil
}

// Resolve returns the identity behind a valid, unrevoked token.
func (m *Manager) Resolve(ctx context.Context, token string) (Identity, error) {
	claims, err := m.parse(token)
	if err != nil {
		return Identity{}, err
	}

	active, err := m.store.Exists(ctx, claims.ID)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}
	if !active {
		return Identity{}, ErrRevoked
	}

	return Identity{Email: claims.Email, Name: claims.Name}, nil
}

// Revoke invalidates token. Tokens that fail verification are ignored since
// they can no longer authenticate anyway.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims, err := m.parse(token)
	if err != nil {
		return nil
	}
	if err := m.store.Delete(ctx, claims.ID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (m *Manager) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
