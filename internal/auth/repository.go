// Package auth handles email sign-in codes and session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twofold/corner/internal/db"
)

// loginCode is a one-time sign-in code row.
type loginCode struct {
	ID        string     `db:"id"`
	Email     string     `db:"email"`
	Code      string     `db:"code"`
	ExpiresAt time.Time  `db:"expires_at"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// ErrCodeNotFound is returned when no pending code exists for the email, or
// the code was redeemed by a concurrent request.
var ErrCodeNotFound = errors.New("login code not found or expired")

// Repository handles login code persistence.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new auth Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Issue stores a fresh code for email. Earlier unused codes stop working.
func (r *Repository) Issue(ctx context.Context, email, code string, expiresAt time.Time) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE login_codes SET used_at = NOW() WHERE email = $1 AND used_at IS NULL`,
			email,
		); err != nil {
			return fmt.Errorf("retire codes: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO login_codes (email, code, expires_at) VALUES ($1, $2, $3)`,
			email, code, expiresAt,
		); err != nil {
			return fmt.Errorf("insert code: %w", err)
		}
		return nil
	})
}

// Pending returns the newest unused, unexpired code for email.
func (r *Repository) Pending(ctx context.Context, email string) (*loginCode, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, email, code, expires_at, used_at, created_at
		 FROM login_codes
		 WHERE email = $1 AND used_at IS NULL AND expires_at > NOW()
		 ORDER BY created_at DESC
		 LIMIT 1`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending code: %w", err)
	}
	c, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[loginCode])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pending code: %w", err)
	}
	return c, nil
}

// Redeem consumes the code. Only one caller can redeem a given code.
func (r *Repository) Redeem(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE login_codes SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("redeem code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCodeNotFound
	}
	return nil
}
