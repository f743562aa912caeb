// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package engram

import (
	"context"
	"log/slog"

	"github.com/poiesic/engram/ai"
	"github.com/poiesic/engram/ai/openai"
	"github.com/poiesic/engram/ingest"
	"github.com/poiesic/engram/search"
	"github.com/poiesic/engram/storage"
	"github.com/poiesic/engram/storage/postgres"
)

// Database is the top-level entry point. It wires the PostgreSQL backend,
// the memory repository, the unit of work and the AI provider together.
// Connections are established lazily, so constructing a Database does not
// require the server to be reachable.
type Database struct {
	backend  *postgres.Backend
	repo     storage.MemoryRepository
	uow      storage.UnitOfWork
	migrator *postgres.Migrator
	provider ai.Provider
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.Provider
}

// WithAIConfig sets the configuration used to build the default OpenAI-compatible
// AI provider.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if cfg != nil {
			o.aiConfig = cfg
		}
	}
}

// WithProvider supplies a pre-built AI provider, bypassing the default
// OpenAI-compatible one. Useful for tests and custom integrations.
func WithProvider(provider ai.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// NewDatabase creates a Database on the given PostgreSQL configuration.
// Pass nil to use postgres.DefaultConfig.
func NewDatabase(cfg *postgres.Config, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := postgres.NewBackend(cfg)
	if err != nil {
		return nil, err
	}

	migrator, err := postgres.NewMigrator(backend, postgres.DefaultMigrations())
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:  backend,
		repo:     postgres.NewMemoryRepository(backend),
		uow:      postgres.NewUnitOfWork(backend),
		migrator: migrator,
		provider: provider,
		logger:   slog.Default(),
	}, nil
}

// Close releases the AI provider and the database connections.
func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// MemoryRepository returns the memory repository.
func (db *Database) MemoryRepository() storage.MemoryRepository {
	return db.repo
}

// UnitOfWork returns the transactional unit of work.
func (db *Database) UnitOfWork() storage.UnitOfWork {
	return db.uow
}

// Migrator returns the schema migrator.
func (db *Database) Migrator() *postgres.Migrator {
	return db.migrator
}

// MigrateUp applies all pending schema migrations and returns how many ran.
func (db *Database) MigrateUp(ctx context.Context) (int, error) {
	return db.migrator.Up(ctx)
}

// Health checks connectivity to the database server.
func (db *Database) Health(ctx context.Context) error {
	return db.backend.Health(ctx)
}

// NewPipeline creates an ingestion pipeline backed by this database.
func (db *Database) NewPipeline(opts ...ingest.Option) (*ingest.Pipeline, error) {
	return ingest.NewPipeline(db.repo, db.uow, db.provider, opts...)
}

// NewSearcher creates a searcher backed by this database.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(db.repo, db.uow, db.provider, opts...)
}
