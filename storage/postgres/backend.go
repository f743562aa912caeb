package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/poiesic/engram/storage"
)

// Backend owns the connection to PostgreSQL and provides scoped-acquisition
// execution for connections and transactions. Depending on configuration it
// manages either a connection pool or a single reused connection; both modes
// guarantee release on every exit path.
type Backend struct {
	cfg    *Config
	logger *slog.Logger

	mu     sync.Mutex // guards lazy init and closed
	pool   *pgxpool.Pool
	single *pgx.Conn
	closed bool

	singleMu sync.Mutex // serializes use of the single connection
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) BackendOption {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBackend creates a backend for the given configuration. No connection is
// made until first use.
func NewBackend(cfg *Config, opts ...BackendOption) (*Backend, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{
		cfg:    cfg,
		logger: slog.Default().With("component", "postgres-backend"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// txKey carries an ambient transaction through a context.
type txKey struct{}

// txFromContext returns the ambient transaction, if any.
func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

func withTxContext(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func (b *Backend) ensurePool(ctx context.Context) (*pgxpool.Pool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, storage.ErrStorageClosed
	}
	if b.pool != nil {
		return b.pool, nil
	}

	poolCfg, err := pgxpool.ParseConfig(b.cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = int32(b.cfg.PoolSize)
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	b.pool = pool
	b.logger.Debug("connection pool created", "max_conns", b.cfg.PoolSize)
	return pool, nil
}

func (b *Backend) ensureSingle(ctx context.Context) (*pgx.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, storage.ErrStorageClosed
	}
	if b.single != nil {
		return b.single, nil
	}

	conn, err := pgx.Connect(ctx, b.cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	if err := pgxvec.RegisterTypes(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("registering vector types: %w", err)
	}
	b.single = conn
	b.logger.Debug("single connection established")
	return conn, nil
}

// WithConn acquires a connection, runs fn, and releases the connection on
// every exit path. The pool or single client is created lazily on first use.
func (b *Backend) WithConn(ctx context.Context, fn func(ctx context.Context, conn *pgx.Conn) error) error {
	if b.cfg.Mode == ModeSingle {
		conn, err := b.ensureSingle(ctx)
		if err != nil {
			return err
		}
		// One logical operation at a time on the shared connection.
		b.singleMu.Lock()
		defer b.singleMu.Unlock()
		return fn(ctx, conn)
	}

	pool, err := b.ensurePool(ctx)
	if err != nil {
		return err
	}
	c, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer c.Release()
	return fn(ctx, c.Conn())
}

// WithTx runs fn inside a transaction, committing on nil return and rolling
// back on any error or failed commit, re-raising the original error. If an
// ambient transaction is already present in ctx, fn joins it and the outer
// owner remains responsible for commit or rollback.
func (b *Backend) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return b.WithTxOptions(ctx, pgx.TxOptions{}, fn)
}

// WithTxOptions is WithTx with explicit transaction options.
func (b *Backend) WithTxOptions(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if tx, ok := txFromContext(ctx); ok {
		return fn(ctx, tx)
	}

	return b.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		tx, err := conn.BeginTx(ctx, opts)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer func() {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				b.logger.Error("transaction rollback failed", "err", rbErr)
			}
		}()

		if err := fn(withTxContext(ctx, tx), tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	})
}

// Health performs a trivial round-trip query using whichever resource is
// already initialized. If none exists it dials a throwaway probe connection
// and closes it before returning, never leaving a persistent resource behind.
func (b *Backend) Health(ctx context.Context) error {
	b.mu.Lock()
	pool, single, closed := b.pool, b.single, b.closed
	b.mu.Unlock()

	if closed {
		return storage.ErrStorageClosed
	}
	if pool != nil {
		return pool.Ping(ctx)
	}
	if single != nil {
		b.singleMu.Lock()
		defer b.singleMu.Unlock()
		return single.Ping(ctx)
	}

	probe, err := pgx.Connect(ctx, b.cfg.ConnString())
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	defer probe.Close(ctx)
	return probe.Ping(ctx)
}

// Close closes the pool or single connection. The backend cannot be used
// afterwards.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
	if b.single != nil {
		if err := b.single.Close(context.Background()); err != nil {
			return err
		}
		b.single = nil
	}
	return nil
}
