package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/engram/ai"
	"github.com/poiesic/engram/ai/mock"
	"github.com/poiesic/engram/core"
	"github.com/poiesic/engram/storage"
)

// fakeRepository records saves in memory.
type fakeRepository struct {
	mu      sync.Mutex
	saved   []*core.Memory
	saveErr error
}

func (f *fakeRepository) Save(ctx context.Context, tenantID uuid.UUID, mem *core.Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, mem)
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*core.Memory, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeRepository) FindByContentHash(ctx context.Context, tenantID uuid.UUID, hash string) (*core.Memory, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeRepository) FindSimilar(ctx context.Context, tenantID uuid.UUID, vector []float32, threshold float32, limit int, metric core.Metric) ([]*core.SearchResult, error) {
	return nil, nil
}

func (f *fakeRepository) Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]*core.SearchResult, error) {
	return nil, nil
}

func (f *fakeRepository) FindAll(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*core.Memory, error) {
	return nil, nil
}

func (f *fakeRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	return false, nil
}

// fakeUnitOfWork passes the context straight through.
type fakeUnitOfWork struct {
	executions int
}

func (f *fakeUnitOfWork) Execute(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	f.executions++
	return fn(ctx)
}

func (f *fakeUnitOfWork) ExecuteReadOnly(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestPipeline(t *testing.T, repo *fakeRepository, uow *fakeUnitOfWork) *Pipeline {
	t.Helper()
	p, err := NewPipeline(repo, uow, mock.NewMockProvider(), WithEmbeddingModel("test-model"))
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestNewPipelineValidation(t *testing.T) {
	provider := mock.NewMockProvider()

	_, err := NewPipeline(nil, &fakeUnitOfWork{}, provider)
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	_, err = NewPipeline(&fakeRepository{}, nil, provider)
	assert.ErrorIs(t, err, ErrUnitOfWorkRequired)

	_, err = NewPipeline(&fakeRepository{}, &fakeUnitOfWork{}, nil)
	assert.ErrorIs(t, err, ErrProviderRequired)
}

func TestRememberEnrichesAndSaves(t *testing.T) {
	repo := &fakeRepository{}
	uow := &fakeUnitOfWork{}
	p := newTestPipeline(t, repo, uow)
	tenant := uuid.New()

	memories, err := p.Remember(context.Background(), tenant,
		[]string{"remind Priya about the certificate renewal"}, nil)
	require.NoError(t, err)
	require.Len(t, memories, 1)

	mem := memories[0]
	assert.Equal(t, core.StatusStored, mem.Status())
	assert.Equal(t, tenant, mem.TenantID())

	require.NotNil(t, mem.Embedding())
	assert.Equal(t, "test-model", mem.Embedding().Model())
	assert.Equal(t, 384, mem.Embedding().Dimensions())

	require.NotNil(t, mem.Source())
	assert.Equal(t, core.SourceManual, mem.Source().Type())

	assert.NotEmpty(t, mem.Tags())

	require.Len(t, repo.saved, 1)
	assert.Equal(t, 1, uow.executions)
}

func TestRememberBatchOrderPreserved(t *testing.T) {
	repo := &fakeRepository{}
	p := newTestPipeline(t, repo, &fakeUnitOfWork{})
	tenant := uuid.New()

	contents := []string{"first memory", "second memory", "third memory"}
	memories, err := p.Remember(context.Background(), tenant, contents, nil)
	require.NoError(t, err)
	require.Len(t, memories, 3)

	for i, mem := range memories {
		assert.Equal(t, contents[i], mem.Content())
	}
}

func TestRememberSourceOptions(t *testing.T) {
	repo := &fakeRepository{}
	p := newTestPipeline(t, repo, &fakeUnitOfWork{})
	tenant := uuid.New()

	memories, err := p.Remember(context.Background(), tenant, []string{"imported note"}, &RememberOptions{
		SourceType:    core.SourceImport,
		SourceContext: "bulk import 2026-08",
	})
	require.NoError(t, err)
	require.Len(t, memories, 1)

	src := memories[0].Source()
	require.NotNil(t, src)
	assert.Equal(t, core.SourceImport, src.Type())
	assert.Equal(t, "bulk import 2026-08", src.Context())
}

func TestRememberEmptyBatch(t *testing.T) {
	p := newTestPipeline(t, &fakeRepository{}, &fakeUnitOfWork{})

	_, err := p.Remember(context.Background(), uuid.New(), nil, nil)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestRememberEnrichmentFailureSavesNothing(t *testing.T) {
	repo := &fakeRepository{}
	uow := &fakeUnitOfWork{}

	embedder := mock.NewMockEmbedder()
	boom := errors.New("embedding service down")
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, boom
	}
	provider := mock.NewMockProviderWithServices(embedder, mock.NewMockExtractor())

	p, err := NewPipeline(repo, uow, provider)
	require.NoError(t, err)
	defer p.Release()

	_, err = p.Remember(context.Background(), uuid.New(), []string{"a", "b"}, nil)
	require.ErrorIs(t, err, boom)

	assert.Empty(t, repo.saved)
	assert.Zero(t, uow.executions)
}

func TestRememberInvalidContentFailsBatch(t *testing.T) {
	repo := &fakeRepository{}
	p := newTestPipeline(t, repo, &fakeUnitOfWork{})

	_, err := p.Remember(context.Background(), uuid.New(), []string{"fine", ""}, nil)
	require.ErrorIs(t, err, core.ErrEmptyContent)
	assert.Empty(t, repo.saved)
}

func TestRememberSaveErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	repo := &fakeRepository{saveErr: boom}
	p := newTestPipeline(t, repo, &fakeUnitOfWork{})

	_, err := p.Remember(context.Background(), uuid.New(), []string{"content"}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestRememberDropsInvalidAnnotations(t *testing.T) {
	repo := &fakeRepository{}

	extractor := mock.NewMockExtractor()
	extractor.ExtractFunc = func(ctx context.Context, text string) (*ai.Extraction, error) {
		return &ai.Extraction{
			Entities: []ai.ExtractedEntity{
				{Text: "Priya", Type: "person"},
				{Text: "", Type: "person"}, // dropped
			},
			Actions: []string{"renew certificates", "  "}, // blank dropped
			Tags:    []string{"Security", "security", ""}, // dup and blank dropped
		}, nil
	}
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), extractor)

	p, err := NewPipeline(repo, &fakeUnitOfWork{}, provider)
	require.NoError(t, err)
	defer p.Release()

	memories, err := p.Remember(context.Background(), uuid.New(), []string{"plain text"}, nil)
	require.NoError(t, err)
	require.Len(t, memories, 1)

	mem := memories[0]
	assert.Len(t, mem.Entities(), 1)
	assert.Len(t, mem.Actions(), 1)
	assert.Len(t, mem.Tags(), 1)
}
