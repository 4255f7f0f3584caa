package users

import (
	"context"
	"time"
)

// Repository defines account persistence.
type Repository interface {
	// Create inserts a new account and fills in its generated id. A duplicate
	// email yields common.ErrLoginAlreadyExists.
	Create(ctx context.Context, user *User) (*User, error)

	// GetByEmail looks an account up by email, common.ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Get looks an account up by id, common.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*User, error)
}

// RefreshTokenRepository defines refresh token persistence. Implementations
// are constructed per database handle so rotation can run inside a
// transaction.
type RefreshTokenRepository interface {
	// Create stores a new refresh token for userID with an expiry of now+validity.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Find looks a refresh token up by its opaque string and returns its
	// metadata, common.ErrNotFound when absent.
	Find(ctx context.Context, token string) (*RefreshToken, error)

	// Delete removes a refresh token. Deleting an absent token is not an error.
	Delete(ctx context.Context, token string) error
}
