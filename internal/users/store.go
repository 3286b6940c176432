// Package users persists registered accounts keyed by email.
package users

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("user not found")
	ErrExists   = errors.New("user already exists")
)

// Record is a registered account. Records are never updated after creation.
type Record struct {
	Email        string `json:"-"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
}

type Store interface {
	Get(ctx context.Context, email string) (Record, error)
	// Create stores rec unless its email is taken, in which case it returns
	// ErrExists and leaves the existing record untouched.
	Create(ctx context.Context, rec Record) error
	Ping(ctx context.Context) error
}
