package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// UserRepository resolves owner identities to notification recipient
// addresses. The users table itself is owned by the identity provider; this
// repository only reads from it.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// EmailForUser returns the email address for an owner identity.
// A missing user is a data error, not a transient one: the notification
// handler treats it as a skip, so it is surfaced as (empty, nil).
func (r *UserRepository) EmailForUser(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1`,
		userID,
	).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", storeError("failed to resolve user email", err)
	}
	return email, nil
}
