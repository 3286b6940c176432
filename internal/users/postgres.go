package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is the subset of database/sql the Postgres store needs. Both *sql.DB
// and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type pinger interface {
	PingContext(ctx context.Context) error
}

type PostgresStore struct {
	db DBTX
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, email string) (Record, error) {
	query :=
		`SELECT email, name, password_hash FROM users
		 WHERE email = $1
		 `

	var rec Record
	err := s.db.QueryRowContext(ctx, query, email).Scan(&rec.Email, &rec.Name, &rec.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	query :=
		`INSERT INTO users (email, name, password_hash)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (email) DO NOTHING
		 `

	res, err := s.db.ExecContext(ctx, query, rec.Email, rec.Name, rec.PasswordHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	p, ok := s.db.(pinger)
	if !ok {
		return nil
	}
	return p.PingContext(ctx)
}
