package mock

import (
	"context"
	"strings"

	"github.com/poiesic/engram/ai"
)

// MockExtractor is a test double for ai.Extractor.
// It allows custom behavior injection via function fields.
type MockExtractor struct {
	// ExtractFunc is called by Extract if set.
	// If nil, uses default simple word extraction.
	ExtractFunc func(ctx context.Context, text string) (*ai.Extraction, error)

	callCount int
}

// NewMockExtractor creates a mock extractor with default behavior.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// Extract produces simple mock annotations from text.
// Default behavior: capitalized words become entities, the first few words
// become tags, and no actions are extracted.
func (m *MockExtractor) Extract(ctx context.Context, text string) (*ai.Extraction, error) {
	m.callCount++

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, text)
	}

	extraction := &ai.Extraction{}
	words := strings.Fields(text)

	for i, word := range words {
		cleaned := strings.Trim(word, ".,!?;:\"'()[]{}")
		if cleaned == "" {
			continue
		}

		// Mid-sentence capitalized words read as named entities.
		if i > 0 && cleaned[0] >= 'A' && cleaned[0] <= 'Z' {
			extraction.Entities = append(extraction.Entities, ai.ExtractedEntity{
				Text: cleaned,
				Type: "thing",
			})
		}

		if len(extraction.Tags) < 3 {
			extraction.Tags = append(extraction.Tags, strings.ToLower(cleaned))
		}
	}

	return extraction, nil
}

// CallCount returns the number of times Extract was called.
func (m *MockExtractor) CallCount() int {
	return m.callCount
}

// Reset clears the call count and custom functions.
func (m *MockExtractor) Reset() {
	m.callCount = 0
	m.ExtractFunc = nil
}
