package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/poiesic/engram/core"
	"github.com/poiesic/engram/storage"
)

// MemoryRepository implements storage.MemoryRepository for PostgreSQL.
//
// Every operation binds the tenant identifier to its transaction before any
// data statement runs; the row-level policies installed by the migrations do
// the actual filtering, so a well-formed id belonging to another tenant is
// indistinguishable from a missing one.
type MemoryRepository struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.MemoryRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a repository on top of the backend.
func NewMemoryRepository(backend *Backend) *MemoryRepository {
	return &MemoryRepository{
		backend: backend,
		logger:  slog.Default().With("component", "memory-repository"),
	}
}

// Save persists the aggregate idempotently. The root insert skips on a
// duplicate (tenant, content hash); when it skips, the save is a successful
// no-op and no child rows are written. Children are written with
// set-oriented statements, each with its own conflict-skip policy.
func (r *MemoryRepository) Save(ctx context.Context, tenantID uuid.UUID, mem *core.Memory) error {
	if mem == nil {
		return fmt.Errorf("%w: memory is nil", storage.ErrInvalidQuery)
	}
	return r.backend.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := BindTenant(ctx, tx, tenantID); err != nil {
			return err
		}

		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO memories (id, tenant_id, content, content_hash, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, content_hash) DO NOTHING
			RETURNING id`,
			mem.ID(), tenantID, mem.Content(), mem.ContentHash(), mem.Status().String(), mem.CreatedAt(),
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("duplicate content hash, save is a no-op",
				"tenant", tenantID, "hash", mem.ContentHash())
			return nil
		}
		if err != nil {
			return fmt.Errorf("inserting memory: %w", err)
		}

		if emb := mem.Embedding(); emb != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO embeddings (memory_id, vector, dimensions, model)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (memory_id) DO NOTHING`,
				id, pgvector.NewVector(emb.Vector()), emb.Dimensions(), emb.Model(),
			); err != nil {
				return fmt.Errorf("inserting embedding: %w", err)
			}
		}

		if src := mem.Source(); src != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO sources (memory_id, type, context, hash, created_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT DO NOTHING`,
				id, string(src.Type()), src.Context(), src.Hash(), src.CreatedAt(),
			); err != nil {
				return fmt.Errorf("inserting source: %w", err)
			}
		}

		if err := r.insertTags(ctx, tx, id, mem.Tags()); err != nil {
			return err
		}
		if err := r.insertEntities(ctx, tx, id, mem.Entities()); err != nil {
			return err
		}
		if err := r.insertActions(ctx, tx, id, mem.Actions()); err != nil {
			return err
		}
		return nil
	})
}

func (r *MemoryRepository) insertTags(ctx context.Context, tx pgx.Tx, memoryID uuid.UUID, tags []core.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	raw := make([]string, len(tags))
	normalized := make([]string, len(tags))
	slugs := make([]string, len(tags))
	for i, t := range tags {
		raw[i], normalized[i], slugs[i] = t.Raw, t.Normalized, t.Slug
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO tags (memory_id, raw, normalized, slug)
		SELECT $1, * FROM unnest($2::text[], $3::text[], $4::text[])
		ON CONFLICT (memory_id, slug) DO NOTHING`,
		memoryID, raw, normalized, slugs,
	); err != nil {
		return fmt.Errorf("inserting tags: %w", err)
	}
	return nil
}

func (r *MemoryRepository) insertEntities(ctx context.Context, tx pgx.Tx, memoryID uuid.UUID, entities []core.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	texts := make([]string, len(entities))
	types := make([]string, len(entities))
	for i, e := range entities {
		texts[i], types[i] = e.Text, e.Type
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO entities (memory_id, text, type)
		SELECT $1, * FROM unnest($2::text[], $3::text[])
		ON CONFLICT (memory_id, text, type) DO NOTHING`,
		memoryID, texts, types,
	); err != nil {
		return fmt.Errorf("inserting entities: %w", err)
	}
	return nil
}

func (r *MemoryRepository) insertActions(ctx context.Context, tx pgx.Tx, memoryID uuid.UUID, actions []core.Action) error {
	if len(actions) == 0 {
		return nil
	}
	texts := make([]string, len(actions))
	slugs := make([]string, len(actions))
	for i, a := range actions {
		texts[i], slugs[i] = a.Action, a.Slug
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO actions (memory_id, action, slug)
		SELECT $1, * FROM unnest($2::text[], $3::text[])
		ON CONFLICT (memory_id, slug) DO NOTHING`,
		memoryID, texts, slugs,
	); err != nil {
		return fmt.Errorf("inserting actions: %w", err)
	}
	return nil
}

// FindByID hydrates a full aggregate in one round trip.
func (r *MemoryRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*core.Memory, error) {
	var mem *core.Memory
	err := r.backend.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := BindTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		var err error
		mem, err = r.findByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mem, nil
}

// hydrationQuery joins the root to its at-most-one children and aggregates
// the collections as JSON so the result stays a single row.
const hydrationQuery = `
SELECT m.id, m.tenant_id, m.content, m.content_hash, m.status, m.created_at,
       e.vector, e.dimensions, e.model,
       s.type, s.context, s.hash, s.created_at,
       (SELECT coalesce(json_agg(json_build_object('raw', t.raw, 'normalized', t.normalized, 'slug', t.slug) ORDER BY t.slug), '[]')
          FROM tags t WHERE t.memory_id = m.id),
       (SELECT coalesce(json_agg(json_build_object('text', x.text, 'type', x.type) ORDER BY x.text, x.type), '[]')
          FROM entities x WHERE x.memory_id = m.id),
       (SELECT coalesce(json_agg(json_build_object('action', a.action, 'slug', a.slug) ORDER BY a.slug), '[]')
          FROM actions a WHERE a.memory_id = m.id)
FROM memories m
LEFT JOIN embeddings e ON e.memory_id = m.id
LEFT JOIN sources s ON s.memory_id = m.id
WHERE m.id = $1`

// findByID runs the hydration query inside an already tenant-bound
// transaction so search operations can reuse the binding.
func (r *MemoryRepository) findByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*core.Memory, error) {
	row := tx.QueryRow(ctx, hydrationQuery, id)
	return scanMemory(row)
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type tagRow struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	Slug       string `json:"slug"`
}

type entityRow struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type actionRow struct {
	Action string `json:"action"`
	Slug   string `json:"slug"`
}

// scanMemory reconstructs a full aggregate from one hydration row.
func scanMemory(row rowScanner) (*core.Memory, error) {
	var p core.ReconstructedMemory
	var statusText string

	var vec *pgvector.Vector
	var dims *int32
	var model *string

	var srcType, srcContext, srcHash *string
	var srcCreatedAt *time.Time

	var tagsJSON, entitiesJSON, actionsJSON []byte

	err := row.Scan(
		&p.ID, &p.TenantID, &p.Content, &p.ContentHash, &statusText, &p.CreatedAt,
		&vec, &dims, &model,
		&srcType, &srcContext, &srcHash, &srcCreatedAt,
		&tagsJSON, &entitiesJSON, &actionsJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning memory: %w", err)
	}

	p.Status, err = core.ParseStatus(statusText)
	if err != nil {
		return nil, fmt.Errorf("memory %s: %w", p.ID, err)
	}

	if vec != nil && dims != nil && model != nil {
		p.Embedding, err = core.ReconstructEmbedding(vec.Slice(), int(*dims), *model)
		if err != nil {
			return nil, fmt.Errorf("memory %s: %w", p.ID, err)
		}
	}
	if srcType != nil && srcHash != nil && srcCreatedAt != nil {
		context := ""
		if srcContext != nil {
			context = *srcContext
		}
		p.Source, err = core.ReconstructSource(core.SourceType(*srcType), context, *srcHash, *srcCreatedAt)
		if err != nil {
			return nil, fmt.Errorf("memory %s: %w", p.ID, err)
		}
	}

	var tagRows []tagRow
	if err := json.Unmarshal(tagsJSON, &tagRows); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	for _, t := range tagRows {
		p.Tags = append(p.Tags, core.Tag{Raw: t.Raw, Normalized: t.Normalized, Slug: t.Slug})
	}

	var entityRows []entityRow
	if err := json.Unmarshal(entitiesJSON, &entityRows); err != nil {
		return nil, fmt.Errorf("decoding entities: %w", err)
	}
	for _, e := range entityRows {
		p.Entities = append(p.Entities, core.Entity{Text: e.Text, Type: e.Type})
	}

	var actionRows []actionRow
	if err := json.Unmarshal(actionsJSON, &actionRows); err != nil {
		return nil, fmt.Errorf("decoding actions: %w", err)
	}
	for _, a := range actionRows {
		p.Actions = append(p.Actions, core.Action{Action: a.Action, Slug: a.Slug})
	}

	return core.ReconstructMemory(p)
}

// FindByContentHash resolves a content hash to an id, then hydrates it.
func (r *MemoryRepository) FindByContentHash(ctx context.Context, tenantID uuid.UUID, hash string) (*core.Memory, error) {
	var mem *core.Memory
	err := r.backend.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := BindTenant(ctx, tx, tenantID); err != nil {
			return err
		}

		var id uuid.UUID
		err := tx.QueryRow(ctx,
			"SELECT id FROM memories WHERE content_hash = $1", hash).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("resolving content hash: %w", err)
		}

		mem, err = r.findByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mem, nil
}

// FindSimilar issues a nearest-neighbor query filtered to embeddings of the
// query vector's dimensionality and a metric-appropriate distance ceiling,
// ordered by distance ascending. Each hit is rehydrated through the
// single-round-trip hydration query; the distance-ascending order from the
// index scan is preserved.
func (r *MemoryRepository) FindSimilar(ctx context.Context, tenantID uuid.UUID, vector []float32, threshold float32, limit int, metric core.Metric) ([]*core.SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if err := metric.Validate(); err != nil {
		return nil, err
	}

	// The operator comes from a fixed metric table, never from caller input.
	op := metricOperator(metric)
	query := fmt.Sprintf(`
		SELECT m.id, e.vector %s $1 AS distance
		FROM embeddings e
		JOIN memories m ON m.id = e.memory_id
		WHERE e.dimensions = $2 AND e.vector %s $1 <= $3
		ORDER BY distance ASC
		LIMIT $4`, op, op)

	var results []*core.SearchResult
	err := r.backend.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := BindTenant(ctx, tx, tenantID); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, query,
			pgvector.NewVector(vector), len(vector), metricDistanceCeiling(metric, threshold), limit)
		if err != nil {
			return fmt.Errorf("similarity query: %w", err)
		}
		type match struct {
			id       uuid.UUID
			distance float64
		}
		var matches []match
		for rows.Next() {
			var m match
			if err := rows.Scan(&m.id, &m.distance); err != nil {
				rows.Close()
				return err
			}
			matches = append(matches, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		results = make([]*core.SearchResult, 0, len(matches))
		for _, m := range matches {
			mem, err := r.findByID(ctx, tx, m.id)
			if err != nil {
				return err
			}
			results = append(results, &core.SearchResult{
				Memory: mem,
				Score:  metricSimilarity(metric, m.distance),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Search runs a full-text query against memory content ranked by relevance.
func (r *MemoryRepository) Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var results []*core.SearchResult
	err := r.backend.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := BindTenant(ctx, tx, tenantID); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT m.id,
			       ts_rank(to_tsvector('english', m.content), plainto_tsquery('english', $1)) AS rank
			FROM memories m
			WHERE to_tsvector('english', m.content) @@ plainto_tsquery('english', $1)
			ORDER BY rank DESC
			LIMIT $2`, query, limit)
		if err != nil {
			return fmt.Errorf("full-text query: %w", err)
		}
		type hit struct {
			id   uuid.UUID
			rank float32
		}
		var hits []hit
		for rows.Next() {
			var h hit
			if err := rows.Scan(&h.id, &h.rank); err != nil {
				rows.Close()
				return err
			}
			hits = append(hits, h)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		results = make([]*core.SearchResult, 0, len(hits))
		for _, h := range hits {
			mem, err := r.findByID(ctx, tx, h.id)
			if err != nil {
				return err
			}
			results = append(results, &core.SearchResult{Memory: mem, Score: h.rank})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FindAll lists memories ordered by creation time descending.
func (r *MemoryRepository) FindAll(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*core.Memory, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("%w: invalid pagination", storage.ErrInvalidQuery)
	}

	var memories []*core.Memory
	err := r.backend.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := BindTenant(ctx, tx, tenantID); err != nil {
			return err
		}

		rows, err := tx.Query(ctx,
			"SELECT id FROM memories ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
		if err != nil {
			return fmt.Errorf("listing memories: %w", err)
		}
		var ids []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		memories = make([]*core.Memory, 0, len(ids))
		for _, id := range ids {
			mem, err := r.findByID(ctx, tx, id)
			if err != nil {
				return err
			}
			memories = append(memories, mem)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return memories, nil
}

// Delete removes a memory; children cascade at the schema level.
// Reports whether a row was removed.
func (r *MemoryRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	deleted := false
	err := r.backend.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := BindTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, "DELETE FROM memories WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("deleting memory: %w", err)
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
