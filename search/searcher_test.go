package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/engram/ai/mock"
	"github.com/poiesic/engram/core"
	"github.com/poiesic/engram/storage"
)

// fakeRepository returns canned results for the two search paths.
type fakeRepository struct {
	similar    []*core.SearchResult
	similarErr error
	text       []*core.SearchResult
	textErr    error
}

func (f *fakeRepository) Save(ctx context.Context, tenantID uuid.UUID, mem *core.Memory) error {
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*core.Memory, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeRepository) FindByContentHash(ctx context.Context, tenantID uuid.UUID, hash string) (*core.Memory, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeRepository) FindSimilar(ctx context.Context, tenantID uuid.UUID, vector []float32, threshold float32, limit int, metric core.Metric) ([]*core.SearchResult, error) {
	if f.similarErr != nil {
		return nil, f.similarErr
	}
	return f.similar, nil
}

func (f *fakeRepository) Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]*core.SearchResult, error) {
	if f.textErr != nil {
		return nil, f.textErr
	}
	return f.text, nil
}

func (f *fakeRepository) FindAll(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*core.Memory, error) {
	return nil, nil
}

func (f *fakeRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	return false, nil
}

type fakeUnitOfWork struct{}

func (f *fakeUnitOfWork) Execute(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeUnitOfWork) ExecuteReadOnly(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func storedMemory(t *testing.T, content string) *core.Memory {
	t.Helper()
	mem, err := core.NewMemory(uuid.New(), content)
	require.NoError(t, err)
	return mem.MarkStored()
}

func newSearcher(t *testing.T, repo *fakeRepository) *Searcher {
	t.Helper()
	s, err := NewSearcher(repo, &fakeUnitOfWork{}, mock.NewMockProvider())
	require.NoError(t, err)
	return s
}

func TestNewSearcherValidation(t *testing.T) {
	provider := mock.NewMockProvider()

	_, err := NewSearcher(nil, &fakeUnitOfWork{}, provider)
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	_, err = NewSearcher(&fakeRepository{}, nil, provider)
	assert.ErrorIs(t, err, ErrUnitOfWorkRequired)

	_, err = NewSearcher(&fakeRepository{}, &fakeUnitOfWork{}, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)
}

func TestRecallEmptyQuery(t *testing.T) {
	s := newSearcher(t, &fakeRepository{})

	_, err := s.Recall(context.Background(), uuid.New(), "   ", 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRecallNoMatches(t *testing.T) {
	s := newSearcher(t, &fakeRepository{})

	results, err := s.Recall(context.Background(), uuid.New(), "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRecallVectorOnlyScoring(t *testing.T) {
	mem := storedMemory(t, "completely unrelated wording")
	repo := &fakeRepository{
		similar: []*core.SearchResult{{Memory: mem, Score: 0.8}},
	}
	s := newSearcher(t, repo)

	results, err := s.Recall(context.Background(), uuid.New(), "deploy schedule", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.8, float64(results[0].Score), 1e-6)
}

func TestRecallTextOnlyScoring(t *testing.T) {
	mem := storedMemory(t, "notes about something else entirely")
	repo := &fakeRepository{
		text: []*core.SearchResult{{Memory: mem, Score: 0.05}},
	}
	s := newSearcher(t, repo)

	results, err := s.Recall(context.Background(), uuid.New(), "deploy schedule", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.2, float64(results[0].Score), 1e-6)
}

func TestRecallCombinedScoring(t *testing.T) {
	mem := storedMemory(t, "words that appear nowhere near the request")
	repo := &fakeRepository{
		similar: []*core.SearchResult{{Memory: mem, Score: 0.8}},
		text:    []*core.SearchResult{{Memory: mem, Score: 0.1}},
	}
	s := newSearcher(t, repo)

	results, err := s.Recall(context.Background(), uuid.New(), "deploy schedule", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	// In both result sets: 1.5 x similarity.
	assert.InDelta(t, 1.2, float64(results[0].Score), 1e-6)
}

func TestRecallVerbatimBoost(t *testing.T) {
	mem := storedMemory(t, "the deploy schedule moved to friday")
	repo := &fakeRepository{
		similar: []*core.SearchResult{{Memory: mem, Score: 0.7}},
	}
	s := newSearcher(t, repo)

	results, err := s.Recall(context.Background(), uuid.New(), "deploy schedule", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6)
}

func TestRecallRankingAndLimit(t *testing.T) {
	both := storedMemory(t, "irrelevant alpha")
	textOnly := storedMemory(t, "irrelevant beta")
	vectorHigh := storedMemory(t, "irrelevant gamma")
	vectorLow := storedMemory(t, "irrelevant delta")

	repo := &fakeRepository{
		similar: []*core.SearchResult{
			{Memory: both, Score: 0.9},
			{Memory: vectorHigh, Score: 0.85},
			{Memory: vectorLow, Score: 0.62},
		},
		text: []*core.SearchResult{
			{Memory: both, Score: 0.2},
			{Memory: textOnly, Score: 0.1},
		},
	}
	s := newSearcher(t, repo)

	results, err := s.Recall(context.Background(), uuid.New(), "release planning", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// both: 1.5*0.9 = 1.35; textOnly: 1.2; vectorHigh: 0.85; vectorLow dropped.
	assert.Equal(t, both.ID(), results[0].Memory.ID())
	assert.Equal(t, textOnly.ID(), results[1].Memory.ID())
	assert.Equal(t, vectorHigh.ID(), results[2].Memory.ID())
}

func TestRecallPropagatesErrors(t *testing.T) {
	boom := errors.New("index unavailable")

	s := newSearcher(t, &fakeRepository{similarErr: boom})
	_, err := s.Recall(context.Background(), uuid.New(), "query", 10)
	assert.ErrorIs(t, err, boom)

	s = newSearcher(t, &fakeRepository{textErr: boom})
	_, err = s.Recall(context.Background(), uuid.New(), "query", 10)
	assert.ErrorIs(t, err, boom)
}

func TestRecallEmbedderError(t *testing.T) {
	boom := errors.New("embedding service down")
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, boom
	}
	provider := mock.NewMockProviderWithServices(embedder, mock.NewMockExtractor())

	s, err := NewSearcher(&fakeRepository{}, &fakeUnitOfWork{}, provider)
	require.NoError(t, err)

	_, err = s.Recall(context.Background(), uuid.New(), "query", 10)
	assert.ErrorIs(t, err, boom)
}

// recordingMonitor captures monitor callbacks for assertions.
type recordingMonitor struct {
	started     bool
	vectorIds   []uuid.UUID
	textIds     []uuid.UUID
	finished    bool
	finalCount  int
	hitsByClass map[string]int
}

func newRecordingMonitor() *recordingMonitor {
	return &recordingMonitor{hitsByClass: make(map[string]int)}
}

func (m *recordingMonitor) Start(_ string)                    { m.started = true }
func (m *recordingMonitor) AfterVectorSearch(ids []uuid.UUID) { m.vectorIds = ids }
func (m *recordingMonitor) AfterTextSearch(ids []uuid.UUID)   { m.textIds = ids }
func (m *recordingMonitor) VectorAndTextHit(_ *core.Memory)   { m.hitsByClass["both"]++ }
func (m *recordingMonitor) VectorHit(_ *core.Memory)          { m.hitsByClass["vector"]++ }
func (m *recordingMonitor) TextHit(_ *core.Memory)            { m.hitsByClass["text"]++ }
func (m *recordingMonitor) Finish(results []*core.SearchResult) {
	m.finished = true
	m.finalCount = len(results)
}

func TestRecallWithMonitor(t *testing.T) {
	both := storedMemory(t, "irrelevant alpha")
	vectorOnly := storedMemory(t, "irrelevant beta")

	repo := &fakeRepository{
		similar: []*core.SearchResult{
			{Memory: both, Score: 0.9},
			{Memory: vectorOnly, Score: 0.7},
		},
		text: []*core.SearchResult{{Memory: both, Score: 0.2}},
	}
	s := newSearcher(t, repo)

	monitor := newRecordingMonitor()
	results, err := s.RecallWithMonitor(context.Background(), uuid.New(), "release planning", 10, monitor)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, monitor.started)
	assert.True(t, monitor.finished)
	assert.Len(t, monitor.vectorIds, 2)
	assert.Len(t, monitor.textIds, 1)
	assert.Equal(t, 1, monitor.hitsByClass["both"])
	assert.Equal(t, 1, monitor.hitsByClass["vector"])
	assert.Equal(t, 2, monitor.finalCount)
}

func TestContainsAllQueryWords(t *testing.T) {
	tests := []struct {
		name     string
		document string
		query    string
		want     bool
	}{
		{"all present", "the deploy schedule moved to friday", "deploy schedule", true},
		{"missing word", "the deploy moved to friday", "deploy schedule", false},
		{"stop words ignored", "deploy schedule", "the deploy schedule", true},
		{"case insensitive", "Deploy Schedule changed", "deploy schedule", true},
		{"punctuation trimmed", "deploy, schedule!", "deploy schedule", true},
		{"query all stop words", "anything", "the a an", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containsAllQueryWords(tt.document, tt.query))
		})
	}
}
