package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor analyzes text and pulls out its semantic annotations.
// Implementations must be thread-safe for concurrent use.
type Extractor interface {
	// Extract analyzes text and returns the named entities, actionable items
	// and topical tags found in it. Empty slices are valid results.
	// Returns an error if extraction fails.
	Extract(ctx context.Context, text string) (*Extraction, error)
}

// ExtractedEntity is a named entity identified in text.
type ExtractedEntity struct {
	// Text is the entity as it appears, e.g. "Ada Lovelace".
	Text string

	// Type categorizes the entity, e.g. "person", "place", "organization".
	Type string
}

// Extraction is the full annotation set pulled from one text.
type Extraction struct {
	// Entities are the named entities mentioned in the text.
	Entities []ExtractedEntity

	// Actions are actionable items the text implies, phrased as short
	// imperatives, e.g. "rotate the api keys".
	Actions []string

	// Tags are lowercase topical labels, 1-3 words each.
	Tags []string
}

// Provider aggregates AI services for convenient initialization and lifecycle
// management. A provider creates and manages Embedder and Extractor instances,
// ensuring they share configuration and resources appropriately.
type Provider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Extractor returns the annotation extraction service.
	// The returned Extractor is safe for concurrent use.
	Extractor() Extractor

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
