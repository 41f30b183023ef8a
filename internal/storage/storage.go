// Package storage persists users and relay result records. Two drivers are
// provided: a JSON file datastore for local development and a Postgres
// repository for production deployments. Both satisfy Repository.
package storage

import (
	"context"
	"errors"

	"seolens/internal/models"
)

var (
	// ErrDuplicateUsername indicates a signup against an existing username.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrUserNotFound indicates a credential lookup for an unknown username.
	// HTTP handlers collapse it with ErrInvalidCredentials before responding
	// so usernames cannot be enumerated; it exists for server-side logging.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials indicates a password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrStoreUnavailable indicates the datastore connection was never
	// established or has been lost.
	ErrStoreUnavailable = errors.New("datastore unavailable")
)

// Repository exposes the datastore operations required by the API handlers.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, username, password string) (models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, bool, error)

	InsertResultRecord(ctx context.Context, record models.ResultRecord) error
	ListResultRecords(ctx context.Context, userID string) ([]models.ResultRecord, error)
}
