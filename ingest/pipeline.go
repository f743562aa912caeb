package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/engram/ai"
	"github.com/poiesic/engram/core"
	"github.com/poiesic/engram/storage"
)

// Pipeline turns raw content into fully-enriched stored memories.
// Enrichment (embedding and annotation extraction) runs concurrently per
// item on a worker pool; the resulting aggregates are then saved together
// in one tenant-bound transaction.
type Pipeline struct {
	repository     storage.MemoryRepository
	uow            storage.UnitOfWork
	provider       ai.Provider
	embeddingModel string
	pool           *ants.Pool
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent enrichment.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithEmbeddingModel records which model produced the embeddings. The name
// is persisted alongside each vector so deployments can tell vectors from
// different models apart.
func WithEmbeddingModel(model string) Option {
	return func(p *Pipeline) error {
		if model != "" {
			p.embeddingModel = model
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	repository storage.MemoryRepository,
	uow storage.UnitOfWork,
	provider ai.Provider,
	opts ...Option,
) (*Pipeline, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if uow == nil {
		return nil, ErrUnitOfWorkRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		repository:     repository,
		uow:            uow,
		provider:       provider,
		embeddingModel: ai.DefaultConfig().EmbeddingModel,
		pool:           pool,
		logger:         slog.Default().With("component", "ingest-pipeline"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// RememberOptions holds optional parameters for an ingestion batch.
type RememberOptions struct {
	// SourceType records where the content came from.
	// Default: core.SourceManual.
	SourceType core.SourceType

	// SourceContext is free-text provenance detail, e.g. a session or
	// conversation identifier.
	SourceContext string
}

// Remember enriches each content string into a full memory aggregate and
// persists the batch in one transaction. Enrichment runs concurrently; if
// any item fails to enrich or validate, nothing is saved and the combined
// errors are returned. Duplicate content within the tenant is silently
// skipped by the repository.
func (p *Pipeline) Remember(ctx context.Context, tenantID uuid.UUID, contents []string, opts *RememberOptions) ([]*core.Memory, error) {
	if len(contents) == 0 {
		return nil, ErrNoContent
	}
	if opts == nil {
		opts = &RememberOptions{}
	}
	sourceType := opts.SourceType
	if sourceType == "" {
		sourceType = core.SourceManual
	}

	memories := make([]*core.Memory, len(contents))
	errs := make([]error, len(contents))

	var wg sync.WaitGroup
	for i, content := range contents {
		i, content := i, content
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			mem, err := p.enrich(ctx, tenantID, content, sourceType, opts.SourceContext)
			if err != nil {
				errs[i] = fmt.Errorf("item %d: %w", i, err)
				return
			}
			memories[i] = mem
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = submitErr
		}
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	err := p.uow.Execute(ctx, tenantID, func(ctx context.Context) error {
		for _, mem := range memories {
			if err := p.repository.Save(ctx, tenantID, mem); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("batch ingested", "tenant", tenantID, "count", len(memories))
	return memories, nil
}

// enrich builds one stored memory aggregate from raw content.
func (p *Pipeline) enrich(ctx context.Context, tenantID uuid.UUID, content string, sourceType core.SourceType, sourceContext string) (*core.Memory, error) {
	mem, err := core.NewMemory(tenantID, content)
	if err != nil {
		return nil, err
	}

	vector, err := p.provider.Embedder().EmbedText(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embedding content: %w", err)
	}
	embedding, err := core.NewEmbedding(vector, p.embeddingModel)
	if err != nil {
		return nil, err
	}
	if mem, err = mem.WithEmbedding(embedding); err != nil {
		return nil, err
	}

	extraction, err := p.provider.Extractor().Extract(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("extracting annotations: %w", err)
	}
	if mem, err = p.annotate(mem, extraction); err != nil {
		return nil, err
	}

	source, err := core.NewSource(sourceType, sourceContext)
	if err != nil {
		return nil, err
	}
	if mem, err = mem.WithSource(source); err != nil {
		return nil, err
	}

	return mem.MarkStored(), nil
}

// annotate attaches the extraction results to the memory. Items the domain
// rejects, like blank tags, are dropped rather than failing the batch.
func (p *Pipeline) annotate(mem *core.Memory, extraction *ai.Extraction) (*core.Memory, error) {
	tags := make([]core.Tag, 0, len(extraction.Tags))
	for _, raw := range extraction.Tags {
		tag, err := core.NewTag(raw)
		if err != nil {
			p.logger.Debug("dropping invalid tag", "tag", raw, "err", err)
			continue
		}
		tags = append(tags, tag)
	}

	entities := make([]core.Entity, 0, len(extraction.Entities))
	for _, e := range extraction.Entities {
		entity, err := core.NewEntity(e.Text, e.Type)
		if err != nil {
			p.logger.Debug("dropping invalid entity", "text", e.Text, "err", err)
			continue
		}
		entities = append(entities, entity)
	}

	actions := make([]core.Action, 0, len(extraction.Actions))
	for _, raw := range extraction.Actions {
		action, err := core.NewAction(raw)
		if err != nil {
			p.logger.Debug("dropping invalid action", "action", raw, "err", err)
			continue
		}
		actions = append(actions, action)
	}

	mem, err := mem.WithTags(tags...)
	if err != nil {
		return nil, err
	}
	if mem, err = mem.WithEntities(entities...); err != nil {
		return nil, err
	}
	return mem.WithActions(actions...)
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
