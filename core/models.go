package core

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

const (
	// MaxContentLength is the maximum number of characters a memory may hold.
	MaxContentLength = 7500

	// MaxSourceContextLength is the maximum length of a source's free-text context.
	MaxSourceContextLength = 1000
)

// HashContent returns the deterministic BLAKE2b-256 hex digest of text.
// Identical content always produces identical hashes, which is what makes
// duplicate saves idempotent.
func HashContent(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Status is the lifecycle state of a memory.
type Status int

const (
	// StatusDraft marks a memory that has not been persisted yet.
	StatusDraft Status = iota + 1
	// StatusStored marks a memory in its terminal, immutable state.
	StatusStored
)

// String returns the persisted column representation of the status.
func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "DRAFT"
	case StatusStored:
		return "STORED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus converts a persisted status column value back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "DRAFT":
		return StatusDraft, nil
	case "STORED":
		return StatusStored, nil
	default:
		return 0, ErrInvalidStatus
	}
}

// SourceType enumerates where a memory's content came from.
type SourceType string

const (
	SourceExternalAgent SourceType = "external-agent"
	SourceManual        SourceType = "manual"
	SourceImport        SourceType = "import"
	SourceAPI           SourceType = "api"
)

// Embedding is a fixed-length semantic vector together with the model that
// produced it. One embedding per memory.
type Embedding struct {
	vector     []float32
	dimensions int
	model      string
}

// NewEmbedding creates a validated embedding. The dimensionality is derived
// from the vector length.
func NewEmbedding(vector []float32, model string) (*Embedding, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if model == "" {
		return nil, ErrEmptyModel
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	return &Embedding{vector: v, dimensions: len(v), model: model}, nil
}

// ReconstructEmbedding rebuilds an embedding from persisted values.
// The dimensions column is trusted but must still agree with the vector.
func ReconstructEmbedding(vector []float32, dimensions int, model string) (*Embedding, error) {
	if dimensions != len(vector) {
		return nil, ErrDimensionMismatch
	}
	return NewEmbedding(vector, model)
}

// Vector returns a copy of the embedding vector.
func (e *Embedding) Vector() []float32 {
	v := make([]float32, len(e.vector))
	copy(v, e.vector)
	return v
}

func (e *Embedding) Dimensions() int { return e.dimensions }
func (e *Embedding) Model() string   { return e.model }

// Source records the provenance of a memory's content.
type Source struct {
	kind      SourceType
	context   string
	hash      string
	createdAt time.Time
}

// NewSource creates a validated source. The hash is derived from the
// provenance tuple so identical provenance dedups at the storage layer.
func NewSource(kind SourceType, context string) (*Source, error) {
	if err := ValidateSourceType(kind); err != nil {
		return nil, err
	}
	if len(context) > MaxSourceContextLength {
		return nil, ErrSourceContextTooLong
	}
	return &Source{
		kind:      kind,
		context:   context,
		hash:      HashContent(string(kind) + "\x00" + context),
		createdAt: time.Now().UTC(),
	}, nil
}

// ReconstructSource rebuilds a source from persisted values.
func ReconstructSource(kind SourceType, context, hash string, createdAt time.Time) (*Source, error) {
	if err := ValidateSourceType(kind); err != nil {
		return nil, err
	}
	return &Source{kind: kind, context: context, hash: hash, createdAt: createdAt}, nil
}

func (s *Source) Type() SourceType     { return s.kind }
func (s *Source) Context() string      { return s.context }
func (s *Source) Hash() string         { return s.hash }
func (s *Source) CreatedAt() time.Time { return s.createdAt }

// Tag is a denormalized label attached to a memory, unique per slug.
type Tag struct {
	Raw        string
	Normalized string
	Slug       string
}

// NewTag derives the normalized and slug forms from the raw label.
func NewTag(raw string) (Tag, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return Tag{}, ErrEmptyTag
	}
	return Tag{Raw: raw, Normalized: normalized, Slug: Slugify(normalized)}, nil
}

// Entity is a named entity extracted from the content, unique per (text, type).
type Entity struct {
	Text string
	Type string
}

// NewEntity creates a validated entity.
func NewEntity(text, entityType string) (Entity, error) {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(entityType) == "" {
		return Entity{}, ErrInvalidEntity
	}
	return Entity{Text: text, Type: entityType}, nil
}

// Action is an actionable item extracted from the content, unique per slug.
type Action struct {
	Action string
	Slug   string
}

// NewAction creates a validated action.
func NewAction(action string) (Action, error) {
	if strings.TrimSpace(action) == "" {
		return Action{}, ErrEmptyAction
	}
	return Action{Action: action, Slug: Slugify(action)}, nil
}

// Slugify lowercases s and collapses whitespace and underscores into hyphens.
func Slugify(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '_' || r == '-'
	})
	return strings.Join(fields, "-")
}

// SearchResult pairs a hydrated memory with a relevance score.
type SearchResult struct {
	Memory *Memory
	Score  float32
}
