package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/poiesic/engram/ai"
	"github.com/poiesic/engram/core"
	"github.com/poiesic/engram/storage"
)

// similarityThreshold is the minimum cosine similarity for a vector match.
const similarityThreshold = 0.60

// Searcher provides hybrid semantic and full-text search over memories.
type Searcher struct {
	repository storage.MemoryRepository
	uow        storage.UnitOfWork
	embedder   ai.Embedder
	logger     *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	repository storage.MemoryRepository,
	uow storage.UnitOfWork,
	provider ai.Provider,
	opts ...Option,
) (*Searcher, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if uow == nil {
		return nil, ErrUnitOfWorkRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		repository: repository,
		uow:        uow,
		embedder:   provider.Embedder(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Recall searches for memories relevant to the query.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) Recall(ctx context.Context, tenantID uuid.UUID, query string, maxHits int) ([]*core.SearchResult, error) {
	return s.RecallWithMonitor(ctx, tenantID, query, maxHits, nil)
}

// RecallWithMonitor searches for memories relevant to the query with monitoring.
// The monitor receives callbacks at each stage of the search process.
//
// The search combines two signals inside one read-only tenant-bound
// transaction: cosine-similarity over embeddings and full-text relevance
// over content. A memory found by both ranks highest, then text-only hits,
// then vector-only hits weighted by their similarity. Verbatim matches get
// a flat boost on top.
func (s *Searcher) RecallWithMonitor(ctx context.Context, tenantID uuid.UUID, query string, maxHits int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxHits < 1 {
		maxHits = 10
	}

	monitor.Start(query)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	var vectorMatches, textMatches []*core.SearchResult
	err = s.uow.ExecuteReadOnly(ctx, tenantID, func(ctx context.Context) error {
		var err error
		vectorMatches, err = s.repository.FindSimilar(ctx, tenantID, embedding, similarityThreshold, maxHits, core.MetricCosine)
		if err != nil {
			return err
		}
		textMatches, err = s.repository.Search(ctx, tenantID, query, maxHits)
		return err
	})
	if err != nil {
		s.logger.Error("error querying for matches", "err", err)
		return nil, err
	}

	vectorScores := make(map[uuid.UUID]float32, len(vectorMatches))
	memories := make(map[uuid.UUID]*core.Memory, len(vectorMatches)+len(textMatches))
	vectorIds := make([]uuid.UUID, 0, len(vectorMatches))
	for _, match := range vectorMatches {
		id := match.Memory.ID()
		vectorScores[id] = match.Score
		memories[id] = match.Memory
		vectorIds = append(vectorIds, id)
	}
	monitor.AfterVectorSearch(vectorIds)

	textSet := make(map[uuid.UUID]bool, len(textMatches))
	textIds := make([]uuid.UUID, 0, len(textMatches))
	for _, match := range textMatches {
		id := match.Memory.ID()
		textSet[id] = true
		memories[id] = match.Memory
		textIds = append(textIds, id)
	}
	monitor.AfterTextSearch(textIds)

	results := make([]*core.SearchResult, 0, len(memories))
	for id, mem := range memories {
		similarity, inVector := vectorScores[id]
		inText := textSet[id]

		var score float32
		switch {
		case inVector && inText:
			score = 1.5 * similarity
			monitor.VectorAndTextHit(mem)
		case inText:
			score = 1.2
			monitor.TextHit(mem)
		default:
			score = similarity
			monitor.VectorHit(mem)
		}

		// Verbatim match boost
		if containsAllQueryWords(mem.Content(), query) {
			score += 0.3
		}

		results = append(results, &core.SearchResult{
			Memory: mem,
			Score:  score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	return results, nil
}
