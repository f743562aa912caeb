package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/poiesic/engram/core"
	"github.com/poiesic/engram/storage"
)

// The tenant identifier is carried as a transaction-local server setting
// (app.tenant_id) that every row-level policy compares against. Binding is
// done through the set_current_tenant function installed by the migrations,
// which rejects a NULL argument, and the setting is local to the current
// transaction so it cannot leak across pooled-connection reuse.

// ValidateTenantID rejects a nil tenant identifier.
func ValidateTenantID(tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return core.ErrInvalidTenantID
	}
	return nil
}

// ParseTenantID validates a textual tenant identifier.
func ParseTenantID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", core.ErrInvalidTenantID, s)
	}
	if id == uuid.Nil {
		return uuid.Nil, core.ErrInvalidTenantID
	}
	return id, nil
}

// BindTenant binds the tenant identifier to the transaction. It must run
// before any data statement; without it every row-level policy evaluates to
// false and reads and writes see no rows at all.
func BindTenant(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) error {
	if err := ValidateTenantID(tenantID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "SELECT set_current_tenant($1)", tenantID); err != nil {
		return fmt.Errorf("binding tenant: %w", err)
	}
	return nil
}

// CurrentTenant returns the tenant identifier bound to the transaction, or
// storage.ErrTenantUnbound when none is set.
func CurrentTenant(ctx context.Context, tx pgx.Tx) (uuid.UUID, error) {
	var bound *string
	row := tx.QueryRow(ctx, "SELECT nullif(current_setting('app.tenant_id', true), '')")
	if err := row.Scan(&bound); err != nil {
		return uuid.Nil, fmt.Errorf("reading tenant binding: %w", err)
	}
	if bound == nil {
		return uuid.Nil, storage.ErrTenantUnbound
	}
	id, err := uuid.Parse(*bound)
	if err != nil {
		return uuid.Nil, errors.Join(storage.ErrTenantUnbound, err)
	}
	return id, nil
}
