package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/poiesic/engram/core"
)

// MemoryRepository is the persistence boundary for the Memory aggregate.
// Implementations must be thread-safe and support concurrent access.
type MemoryRepository interface {
	// Save persists a memory idempotently. A duplicate (tenant, content hash)
	// is a successful no-op: no error, no child rows written. Otherwise the
	// root row, the optional embedding and source, and all tags, entities and
	// actions are written atomically inside one transaction.
	Save(ctx context.Context, tenantID uuid.UUID, mem *core.Memory) error

	// FindByID hydrates a full aggregate in a single round trip.
	// Returns ErrNotFound when no row matches within the tenant.
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*core.Memory, error)

	// FindByContentHash resolves a content hash to an id, then hydrates it.
	// Returns ErrNotFound when no row matches within the tenant.
	FindByContentHash(ctx context.Context, tenantID uuid.UUID, hash string) (*core.Memory, error)

	// FindSimilar runs a nearest-neighbor query over embeddings of the same
	// dimensionality as vector, using the given metric's distance operator
	// and a metric-appropriate threshold. Results are ordered by distance
	// ascending and capped at limit; each hit is a fully hydrated aggregate.
	FindSimilar(ctx context.Context, tenantID uuid.UUID, vector []float32, threshold float32, limit int, metric core.Metric) ([]*core.SearchResult, error)

	// Search runs a full-text query against memory content, ranked by
	// relevance, each hit fully hydrated.
	Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]*core.SearchResult, error)

	// FindAll lists memories ordered by creation time descending.
	FindAll(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*core.Memory, error)

	// Delete removes a memory and cascades its children.
	// Reports whether a row was removed.
	Delete(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
}

// UnitOfWork coordinates multi-step writes that need cross-repository
// atomicity.
type UnitOfWork interface {
	// Execute opens one transaction, binds the tenant to it, and runs fn
	// with the transaction ambient in ctx. It commits on nil return and
	// rolls back on any error, re-raising the original error.
	Execute(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error

	// ExecuteReadOnly is Execute for queries spanning multiple repositories
	// that need no write atomicity. The transaction is opened read-only;
	// one is still required because the tenant binding is transaction-scoped.
	ExecuteReadOnly(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error
}
