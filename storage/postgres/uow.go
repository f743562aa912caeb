package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/poiesic/engram/storage"
)

// UnitOfWork groups repository operations into one tenant-bound transaction.
//
// Execute binds the tenant and stores the transaction in the context it
// passes to fn; repository operations invoked with that context join the
// ambient transaction instead of opening their own, so a mid-sequence error
// rolls the whole group back.
type UnitOfWork struct {
	backend *Backend
}

var _ storage.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork creates a unit of work on top of the backend.
func NewUnitOfWork(backend *Backend) *UnitOfWork {
	return &UnitOfWork{backend: backend}
}

// Execute runs fn inside a single read-write transaction bound to tenantID.
func (u *UnitOfWork) Execute(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	return u.backend.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := BindTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// ExecuteReadOnly runs fn inside a read-only transaction bound to tenantID.
// A transaction is still required: the tenant binding is transaction-scoped,
// so reads outside one would see no rows.
func (u *UnitOfWork) ExecuteReadOnly(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	return u.backend.WithTxOptions(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx pgx.Tx) error {
		if err := BindTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		return fn(ctx)
	})
}
