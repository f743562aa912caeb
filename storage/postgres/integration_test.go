package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/engram/core"
	"github.com/poiesic/engram/storage"
)

// These tests need a live PostgreSQL instance with the vector extension
// available and skip unless ENGRAM_TEST_DATABASE_URL is set.

func buildMemory(t *testing.T, tenant uuid.UUID, content string) *core.Memory {
	t.Helper()

	mem, err := core.NewMemory(tenant, content)
	require.NoError(t, err)

	emb, err := core.NewEmbedding([]float32{0.1, 0.2, 0.3}, "test-model")
	require.NoError(t, err)
	mem, err = mem.WithEmbedding(emb)
	require.NoError(t, err)

	src, err := core.NewSource(core.SourceManual, "integration test")
	require.NoError(t, err)
	mem, err = mem.WithSource(src)
	require.NoError(t, err)

	tag, err := core.NewTag("Integration")
	require.NoError(t, err)
	mem, err = mem.WithTags(tag)
	require.NoError(t, err)

	return mem.MarkStored()
}

func TestRepositorySaveAndFindByID(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	mem := buildMemory(t, tenant, "the quick brown fox jumps over the lazy dog")
	require.NoError(t, repo.Save(ctx, tenant, mem))

	got, err := repo.FindByID(ctx, tenant, mem.ID())
	require.NoError(t, err)

	assert.Equal(t, mem.ID(), got.ID())
	assert.Equal(t, mem.Content(), got.Content())
	assert.Equal(t, mem.ContentHash(), got.ContentHash())
	assert.Equal(t, core.StatusStored, got.Status())

	require.NotNil(t, got.Embedding())
	assert.Equal(t, 3, got.Embedding().Dimensions())
	assert.Equal(t, "test-model", got.Embedding().Model())

	require.NotNil(t, got.Source())
	assert.Equal(t, core.SourceManual, got.Source().Type())

	require.Len(t, got.Tags(), 1)
	assert.Equal(t, "integration", got.Tags()[0].Slug)
}

func TestRepositoryHydratesAllCollections(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	mem, err := core.NewMemory(tenant, "priya renewed the tls certificates before the deploy")
	require.NoError(t, err)

	emb, err := core.NewEmbedding([]float32{0.4, 0.5, 0.6}, "test-model")
	require.NoError(t, err)
	mem, err = mem.WithEmbedding(emb)
	require.NoError(t, err)

	src, err := core.NewSource(core.SourceImport, "ops log")
	require.NoError(t, err)
	mem, err = mem.WithSource(src)
	require.NoError(t, err)

	var tags []core.Tag
	for _, raw := range []string{"Ops", "TLS", "Deploys"} {
		tag, err := core.NewTag(raw)
		require.NoError(t, err)
		tags = append(tags, tag)
	}
	mem, err = mem.WithTags(tags...)
	require.NoError(t, err)

	person, err := core.NewEntity("priya", "person")
	require.NoError(t, err)
	thing, err := core.NewEntity("tls certificates", "thing")
	require.NoError(t, err)
	mem, err = mem.WithEntities(person, thing)
	require.NoError(t, err)

	action, err := core.NewAction("renew certificates")
	require.NoError(t, err)
	mem, err = mem.WithActions(action)
	require.NoError(t, err)

	mem = mem.MarkStored()
	require.NoError(t, repo.Save(ctx, tenant, mem))

	got, err := repo.FindByID(ctx, tenant, mem.ID())
	require.NoError(t, err)

	require.NotNil(t, got.Embedding())
	assert.Equal(t, emb.Vector(), got.Embedding().Vector())
	assert.Equal(t, "test-model", got.Embedding().Model())

	require.NotNil(t, got.Source())
	assert.Equal(t, core.SourceImport, got.Source().Type())
	assert.Equal(t, "ops log", got.Source().Context())

	gotTags := got.Tags()
	require.Len(t, gotTags, 3)
	slugs := make([]string, len(gotTags))
	for i, tag := range gotTags {
		slugs[i] = tag.Slug
	}
	assert.ElementsMatch(t, []string{"ops", "tls", "deploys"}, slugs)

	assert.ElementsMatch(t, []core.Entity{person, thing}, got.Entities())

	gotActions := got.Actions()
	require.Len(t, gotActions, 1)
	assert.Equal(t, "renew certificates", gotActions[0].Action)
	assert.Equal(t, "renew-certificates", gotActions[0].Slug)
}

func TestRepositorySaveIsIdempotent(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	first := buildMemory(t, tenant, "duplicate content")
	require.NoError(t, repo.Save(ctx, tenant, first))

	// Same content, new aggregate: the save is a silent no-op.
	second := buildMemory(t, tenant, "duplicate content")
	require.NoError(t, repo.Save(ctx, tenant, second))

	all, err := repo.FindAll(ctx, tenant, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first.ID(), all[0].ID())
}

func TestRepositoryFindByContentHash(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	mem := buildMemory(t, tenant, "findable by hash")
	require.NoError(t, repo.Save(ctx, tenant, mem))

	got, err := repo.FindByContentHash(ctx, tenant, mem.ContentHash())
	require.NoError(t, err)
	assert.Equal(t, mem.ID(), got.ID())

	_, err = repo.FindByContentHash(ctx, tenant, core.HashContent("never saved"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRepositoryTenantIsolation(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()

	mem := buildMemory(t, tenantA, "tenant A's private memory")
	require.NoError(t, repo.Save(ctx, tenantA, mem))

	// A well-formed id belonging to another tenant reads as not found.
	_, err := repo.FindByID(ctx, tenantB, mem.ID())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := repo.FindAll(ctx, tenantB, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, all)

	// Nor can the other tenant delete it.
	deleted, err := repo.Delete(ctx, tenantB, mem.ID())
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := repo.FindByID(ctx, tenantA, mem.ID())
	require.NoError(t, err)
	assert.Equal(t, mem.ID(), got.ID())
}

func TestRepositorySameContentAcrossTenants(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()

	// Deduplication is per tenant; both copies persist.
	require.NoError(t, repo.Save(ctx, tenantA, buildMemory(t, tenantA, "shared wording")))
	require.NoError(t, repo.Save(ctx, tenantB, buildMemory(t, tenantB, "shared wording")))

	forA, err := repo.FindAll(ctx, tenantA, 10, 0)
	require.NoError(t, err)
	forB, err := repo.FindAll(ctx, tenantB, 10, 0)
	require.NoError(t, err)
	assert.Len(t, forA, 1)
	assert.Len(t, forB, 1)
}

func saveWithVector(t *testing.T, repo *MemoryRepository, tenant uuid.UUID, content string, vector []float32) *core.Memory {
	t.Helper()

	mem, err := core.NewMemory(tenant, content)
	require.NoError(t, err)
	emb, err := core.NewEmbedding(vector, "test-model")
	require.NoError(t, err)
	mem, err = mem.WithEmbedding(emb)
	require.NoError(t, err)
	mem = mem.MarkStored()

	require.NoError(t, repo.Save(context.Background(), tenant, mem))
	return mem
}

func TestRepositoryFindSimilarCosine(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	near := saveWithVector(t, repo, tenant, "nearly aligned", []float32{1, 0, 0})
	saveWithVector(t, repo, tenant, "orthogonal", []float32{0, 1, 0})

	results, err := repo.FindSimilar(ctx, tenant, []float32{1, 0.01, 0}, 0.9, 10, core.MetricCosine)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, near.ID(), results[0].Memory.ID())
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.01)
}

func TestRepositoryFindSimilarOrdering(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	closest := saveWithVector(t, repo, tenant, "closest", []float32{1, 0, 0})
	closer := saveWithVector(t, repo, tenant, "closer", []float32{0.9, 0.3, 0})
	saveWithVector(t, repo, tenant, "far", []float32{-1, 0, 0})

	results, err := repo.FindSimilar(ctx, tenant, []float32{1, 0, 0}, 0.5, 10, core.MetricCosine)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, closest.ID(), results[0].Memory.ID())
	assert.Equal(t, closer.ID(), results[1].Memory.ID())
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestRepositoryFindSimilarSkipsOtherDimensions(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	saveWithVector(t, repo, tenant, "two dimensional", []float32{1, 0})
	match := saveWithVector(t, repo, tenant, "three dimensional", []float32{1, 0, 0})

	results, err := repo.FindSimilar(ctx, tenant, []float32{1, 0, 0}, 0.5, 10, core.MetricCosine)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, match.ID(), results[0].Memory.ID())
}

func TestRepositoryFindSimilarValidation(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	_, err := repo.FindSimilar(ctx, tenant, nil, 0.5, 10, core.MetricCosine)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = repo.FindSimilar(ctx, tenant, []float32{1}, 0.5, 0, core.MetricCosine)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = repo.FindSimilar(ctx, tenant, []float32{1}, 0.5, 10, core.Metric(0))
	assert.ErrorIs(t, err, core.ErrInvalidMetric)
}

func TestRepositorySearchFullText(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	match := buildMemory(t, tenant, "the database migration finished without errors")
	require.NoError(t, repo.Save(ctx, tenant, match))
	other := buildMemory(t, tenant, "lunch is at noon on fridays")
	require.NoError(t, repo.Save(ctx, tenant, other))

	results, err := repo.Search(ctx, tenant, "database migration", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, match.ID(), results[0].Memory.ID())
	assert.Greater(t, results[0].Score, float32(0))
}

func TestRepositoryFindAllPagination(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	for _, content := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Save(ctx, tenant, buildMemory(t, tenant, content)))
	}

	page, err := repo.FindAll(ctx, tenant, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := repo.FindAll(ctx, tenant, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	_, err = repo.FindAll(ctx, tenant, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestRepositoryDeleteCascades(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	ctx := context.Background()
	tenant := uuid.New()

	mem := buildMemory(t, tenant, "short-lived memory")
	require.NoError(t, repo.Save(ctx, tenant, mem))

	deleted, err := repo.Delete(ctx, tenant, mem.ID())
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.FindByID(ctx, tenant, mem.ID())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Second delete reports nothing removed.
	deleted, err = repo.Delete(ctx, tenant, mem.ID())
	require.NoError(t, err)
	assert.False(t, deleted)

	// Child rows are gone with the root.
	err = backend.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		require.NoError(t, BindTenant(ctx, tx, tenant))
		var n int
		require.NoError(t, tx.QueryRow(ctx,
			"SELECT count(*) FROM tags WHERE memory_id = $1", mem.ID()).Scan(&n))
		assert.Zero(t, n)
		return nil
	})
	require.NoError(t, err)
}

func TestUnitOfWorkRollsBackOnError(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	uow := NewUnitOfWork(backend)
	ctx := context.Background()
	tenant := uuid.New()

	mem := buildMemory(t, tenant, "will be rolled back")
	sentinel := errors.New("abort")

	err := uow.Execute(ctx, tenant, func(ctx context.Context) error {
		if err := repo.Save(ctx, tenant, mem); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = repo.FindByID(ctx, tenant, mem.ID())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUnitOfWorkCommits(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	uow := NewUnitOfWork(backend)
	ctx := context.Background()
	tenant := uuid.New()

	a := buildMemory(t, tenant, "first of the pair")
	b := buildMemory(t, tenant, "second of the pair")

	err := uow.Execute(ctx, tenant, func(ctx context.Context) error {
		if err := repo.Save(ctx, tenant, a); err != nil {
			return err
		}
		return repo.Save(ctx, tenant, b)
	})
	require.NoError(t, err)

	all, err := repo.FindAll(ctx, tenant, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUnitOfWorkReadOnlyRejectsWrites(t *testing.T) {
	backend := NewTestBackend(t)
	repo := NewMemoryRepository(backend)
	uow := NewUnitOfWork(backend)
	ctx := context.Background()
	tenant := uuid.New()

	mem := buildMemory(t, tenant, "read-only transactions cannot write")
	err := uow.ExecuteReadOnly(ctx, tenant, func(ctx context.Context) error {
		return repo.Save(ctx, tenant, mem)
	})
	assert.Error(t, err)
}

func TestCurrentTenant(t *testing.T) {
	backend := NewTestBackend(t)
	ctx := context.Background()
	tenant := uuid.New()

	err := backend.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := CurrentTenant(ctx, tx)
		assert.ErrorIs(t, err, storage.ErrTenantUnbound)

		require.NoError(t, BindTenant(ctx, tx, tenant))

		bound, err := CurrentTenant(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, tenant, bound)
		return nil
	})
	require.NoError(t, err)
}

func TestMigratorUpIsIdempotent(t *testing.T) {
	backend := NewTestBackend(t)
	ctx := context.Background()

	migrator, err := NewMigrator(backend, DefaultMigrations())
	require.NoError(t, err)

	// NewTestBackend already migrated; a second run applies nothing.
	applied, err := migrator.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestMigratorStatus(t *testing.T) {
	backend := NewTestBackend(t)
	ctx := context.Background()

	migrator, err := NewMigrator(backend, DefaultMigrations())
	require.NoError(t, err)

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.True(t, s.Applied, "version %d should be applied", s.Version)
		assert.False(t, s.ExecutedAt.IsZero())
	}
}

func TestMigratorDownAbortsOnForwardOnly(t *testing.T) {
	backend := NewTestBackend(t)
	ctx := context.Background()

	migrator, err := NewMigrator(backend, DefaultMigrations())
	require.NoError(t, err)

	before, err := migrator.Status(ctx)
	require.NoError(t, err)

	// The first version is forward-only, so a full rollback must refuse
	// to run.
	reverted, err := migrator.Down(ctx, 0)
	assert.ErrorIs(t, err, storage.ErrNoBackwardSQL)
	assert.Zero(t, reverted)

	// The aborted plan left the ledger untouched.
	after, err := migrator.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMigratorConcurrentUp(t *testing.T) {
	backend := NewTestBackend(t)
	ctx := context.Background()

	migrator, err := NewMigrator(backend, DefaultMigrations())
	require.NoError(t, err)

	// Leave everything above the baseline pending again.
	reverted, err := migrator.Down(ctx, 1)
	require.NoError(t, err)
	require.Greater(t, reverted, 0)

	var wg sync.WaitGroup
	counts := make([]int, 2)
	errs := make([]error, 2)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := NewMigrator(backend, DefaultMigrations())
			if err != nil {
				errs[i] = err
				return
			}
			counts[i], errs[i] = m.Up(ctx)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// The runners split the pending versions between them; none ran twice.
	assert.Equal(t, reverted, counts[0]+counts[1])

	err = backend.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		var total, distinct int
		if err := conn.QueryRow(ctx,
			"SELECT count(*), count(DISTINCT version) FROM schema_migrations").Scan(&total, &distinct); err != nil {
			return err
		}
		assert.Equal(t, distinct, total)
		return nil
	})
	require.NoError(t, err)
}

func TestBackendHealth(t *testing.T) {
	backend := NewTestBackend(t)
	require.NoError(t, backend.Health(context.Background()))

	require.NoError(t, backend.Close())
	assert.ErrorIs(t, backend.Health(context.Background()), storage.ErrStorageClosed)
}
