// Package store defines the contract every primary transaction backend
// implements. Backends live in internal/store/inmemory and internal/infra.
package store

import (
	"context"

	"github.com/dvloznov/openfinance/internal/domain"
)

// Store is the authoritative transaction store.
//
// Backend failures are returned as *domain.StorageError. FindByID reports
// absence with found=false and a nil error. Update returns
// *domain.NotFoundError when the record is gone after the write. Delete of an
// absent record is not an error.
type Store interface {
	// Create assigns id and created_at, defaults month_year, and persists the draft.
	Create(ctx context.Context, draft domain.Draft) (domain.Transaction, error)

	// FindMany returns matching transactions, newest first.
	FindMany(ctx context.Context, filters domain.Filters) ([]domain.Transaction, error)

	// FindByID returns the transaction with the given id, if any.
	FindByID(ctx context.Context, id string) (domain.Transaction, bool, error)

	// Update applies a partial update and returns the stored result.
	Update(ctx context.Context, id string, patch domain.Patch) (domain.Transaction, error)

	// Delete removes the transaction with the given id.
	Delete(ctx context.Context, id string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's connections.
	Close() error
}
