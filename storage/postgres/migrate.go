package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/poiesic/engram/storage"
)

//go:embed migrations/*.sql
var defaultMigrationsFS embed.FS

// DefaultMigrations returns the schema shipped with engram: the memory
// tables, their constraints and the tenant-isolation policies.
func DefaultMigrations() fs.FS {
	sub, err := fs.Sub(defaultMigrationsFS, "migrations")
	if err != nil {
		// The embedded tree always contains the migrations directory.
		panic(err)
	}
	return sub
}

// migrationLockKey is the well-known advisory lock key that serializes
// migration runs across all engine instances talking to the same database.
// Advisory locks are session-scoped, so a crashed runner releases the lock
// with its connection.
const migrationLockKey int64 = 0x656e6772616d // "engram"

const ledgerDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     bigint PRIMARY KEY,
    name        text NOT NULL,
    executed_at timestamptz NOT NULL DEFAULT now()
)`

// Migrator applies and rolls back versioned schema migrations. Each
// forward or backward execution runs in its own transaction together with
// its ledger row, so a mid-batch failure leaves all prior versions committed
// and the failing version untouched.
type Migrator struct {
	backend    *Backend
	migrations []Migration
	logger     *slog.Logger
}

// MigrationStatus describes one migration unit's ledger state.
type MigrationStatus struct {
	Version    int64
	Name       string
	Applied    bool
	ExecutedAt time.Time
}

// NewMigrator creates a migrator from the migration files in fsys.
func NewMigrator(backend *Backend, fsys fs.FS) (*Migrator, error) {
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}
	return &Migrator{
		backend:    backend,
		migrations: migrations,
		logger:     slog.Default().With("component", "migrator"),
	}, nil
}

// Up applies all pending migrations in ascending version order and returns
// how many were applied. Re-running is a no-op for already-applied versions.
// Concurrent invocations serialize on the advisory lock; the second runner
// re-reads the ledger inside the lock and skips whatever the first applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	applied := 0
	err := m.backend.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		unlock, err := m.acquireLock(ctx, conn)
		if err != nil {
			return err
		}
		defer unlock()

		if _, err := conn.Exec(ctx, ledgerDDL); err != nil {
			return fmt.Errorf("ensuring migration ledger: %w", err)
		}
		recorded, err := m.recordedVersions(ctx, conn)
		if err != nil {
			return err
		}

		for _, mig := range m.migrations {
			if recorded[mig.Version] {
				continue
			}
			if err := m.applyOne(ctx, conn, mig); err != nil {
				return err
			}
			applied++
		}
		return nil
	})
	return applied, err
}

// Down rolls back every applied version greater than target, executing each
// version's backward SQL in descending order. A missing backward definition
// for any affected version aborts before any state is mutated.
func (m *Migrator) Down(ctx context.Context, target int64) (int, error) {
	reverted := 0
	err := m.backend.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		unlock, err := m.acquireLock(ctx, conn)
		if err != nil {
			return err
		}
		defer unlock()

		if _, err := conn.Exec(ctx, ledgerDDL); err != nil {
			return fmt.Errorf("ensuring migration ledger: %w", err)
		}

		rows, err := conn.Query(ctx,
			"SELECT version FROM schema_migrations WHERE version > $1 ORDER BY version DESC", target)
		if err != nil {
			return fmt.Errorf("reading migration ledger: %w", err)
		}
		var affected []int64
		for rows.Next() {
			var v int64
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return err
			}
			affected = append(affected, v)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		// Validate the whole plan before touching anything.
		byVersion := make(map[int64]Migration, len(m.migrations))
		for _, mig := range m.migrations {
			byVersion[mig.Version] = mig
		}
		plan := make([]Migration, 0, len(affected))
		for _, v := range affected {
			mig, ok := byVersion[v]
			if !ok {
				return fmt.Errorf("recorded migration version %d has no definition", v)
			}
			if !mig.HasDown() {
				return fmt.Errorf("migration version %d (%s): %w", mig.Version, mig.Name, storage.ErrNoBackwardSQL)
			}
			plan = append(plan, mig)
		}

		for _, mig := range plan {
			if err := m.revertOne(ctx, conn, mig); err != nil {
				return err
			}
			reverted++
		}
		return nil
	})
	return reverted, err
}

// Status returns the ledger state of every known migration, ascending.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	var statuses []MigrationStatus
	err := m.backend.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, ledgerDDL); err != nil {
			return fmt.Errorf("ensuring migration ledger: %w", err)
		}

		rows, err := conn.Query(ctx, "SELECT version, executed_at FROM schema_migrations")
		if err != nil {
			return fmt.Errorf("reading migration ledger: %w", err)
		}
		executed := make(map[int64]time.Time)
		for rows.Next() {
			var v int64
			var at time.Time
			if err := rows.Scan(&v, &at); err != nil {
				rows.Close()
				return err
			}
			executed[v] = at
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		statuses = make([]MigrationStatus, 0, len(m.migrations))
		for _, mig := range m.migrations {
			at, ok := executed[mig.Version]
			statuses = append(statuses, MigrationStatus{
				Version:    mig.Version,
				Name:       mig.Name,
				Applied:    ok,
				ExecutedAt: at,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return statuses, nil
}

// acquireLock takes the global migration advisory lock on conn, blocking
// until it is available, and returns the matching unlock function. The lock
// must be taken before the ledger is consulted and held until the run ends.
func (m *Migrator) acquireLock(ctx context.Context, conn *pgx.Conn) (func(), error) {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return nil, fmt.Errorf("acquiring migration lock: %w", err)
	}
	return func() {
		if _, err := conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			m.logger.Error("error releasing migration lock", "err", err)
		}
	}, nil
}

func (m *Migrator) recordedVersions(ctx context.Context, conn *pgx.Conn) (map[int64]bool, error) {
	rows, err := conn.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migration ledger: %w", err)
	}
	defer rows.Close()

	recorded := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		recorded[v] = true
	}
	return recorded, rows.Err()
}

// applyOne runs the forward SQL and records the ledger row in one
// transaction; both succeed or both roll back.
func (m *Migrator) applyOne(ctx context.Context, conn *pgx.Conn, mig Migration) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
		return fmt.Errorf("applying migration %d (%s): %w", mig.Version, mig.Name, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		mig.Version, mig.Name); err != nil {
		return fmt.Errorf("recording migration %d: %w", mig.Version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing migration %d: %w", mig.Version, err)
	}

	m.logger.Info("migration applied", "version", mig.Version, "name", mig.Name)
	return nil
}

// revertOne runs the backward SQL and deletes the ledger row in one
// transaction.
func (m *Migrator) revertOne(ctx context.Context, conn *pgx.Conn, mig Migration) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning rollback transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
		return fmt.Errorf("rolling back migration %d (%s): %w", mig.Version, mig.Name, err)
	}
	if _, err := tx.Exec(ctx,
		"DELETE FROM schema_migrations WHERE version = $1", mig.Version); err != nil {
		return fmt.Errorf("unrecording migration %d: %w", mig.Version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing rollback of migration %d: %w", mig.Version, err)
	}

	m.logger.Info("migration rolled back", "version", mig.Version, "name", mig.Name)
	return nil
}
