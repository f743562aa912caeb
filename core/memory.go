package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Memory is the aggregate root: content plus derived semantic vectors,
// provenance, tags, entities and actions, owned by a single tenant.
//
// Memory values are immutable. Every With* method returns a new value and
// leaves the receiver untouched; once a memory reaches StatusStored no
// further mutation is permitted.
type Memory struct {
	id          uuid.UUID
	tenantID    uuid.UUID
	content     string
	contentHash string
	status      Status
	createdAt   time.Time
	embedding   *Embedding
	source      *Source
	tags        []Tag
	entities    []Entity
	actions     []Action
}

// NewMemory creates a draft memory for the given tenant.
func NewMemory(tenantID uuid.UUID, content string) (*Memory, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMemory, ErrInvalidTenantID)
	}
	if err := ValidateContent(content); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMemory, err)
	}
	return &Memory{
		id:          uuid.New(),
		tenantID:    tenantID,
		content:     content,
		contentHash: HashContent(content),
		status:      StatusDraft,
		createdAt:   time.Now().UTC(),
	}, nil
}

// ReconstructedMemory carries already-validated persisted values into
// ReconstructMemory. It exists so hydration never bypasses the constructor.
type ReconstructedMemory struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Content     string
	ContentHash string
	Status      Status
	CreatedAt   time.Time
	Embedding   *Embedding
	Source      *Source
	Tags        []Tag
	Entities    []Entity
	Actions     []Action
}

// ReconstructMemory rebuilds a fully-formed memory from persisted state,
// including its terminal DRAFT-vs-STORED status.
func ReconstructMemory(p ReconstructedMemory) (*Memory, error) {
	if p.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: id is nil", ErrInvalidMemory)
	}
	if p.TenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMemory, ErrInvalidTenantID)
	}
	if p.Status != StatusDraft && p.Status != StatusStored {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMemory, ErrInvalidStatus)
	}
	m := &Memory{
		id:          p.ID,
		tenantID:    p.TenantID,
		content:     p.Content,
		contentHash: p.ContentHash,
		status:      p.Status,
		createdAt:   p.CreatedAt,
		embedding:   p.Embedding,
		source:      p.Source,
	}
	m.tags = append(m.tags, p.Tags...)
	m.entities = append(m.entities, p.Entities...)
	m.actions = append(m.actions, p.Actions...)
	return m, nil
}

// ValidateContent checks the memory content length rules.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if len([]rune(content)) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// ValidateSourceType checks that kind is one of the enumerated provenance types.
func ValidateSourceType(kind SourceType) error {
	switch kind {
	case SourceExternalAgent, SourceManual, SourceImport, SourceAPI:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSourceType, kind)
	}
}

func (m *Memory) ID() uuid.UUID         { return m.id }
func (m *Memory) TenantID() uuid.UUID   { return m.tenantID }
func (m *Memory) Content() string       { return m.content }
func (m *Memory) ContentHash() string   { return m.contentHash }
func (m *Memory) Status() Status        { return m.status }
func (m *Memory) CreatedAt() time.Time  { return m.createdAt }
func (m *Memory) Embedding() *Embedding { return m.embedding }
func (m *Memory) Source() *Source       { return m.source }

// Tags returns a copy of the memory's tags.
func (m *Memory) Tags() []Tag {
	out := make([]Tag, len(m.tags))
	copy(out, m.tags)
	return out
}

// Entities returns a copy of the memory's entities.
func (m *Memory) Entities() []Entity {
	out := make([]Entity, len(m.entities))
	copy(out, m.entities)
	return out
}

// Actions returns a copy of the memory's actions.
func (m *Memory) Actions() []Action {
	out := make([]Action, len(m.actions))
	copy(out, m.actions)
	return out
}

func (m *Memory) clone() *Memory {
	c := *m
	c.tags = m.Tags()
	c.entities = m.Entities()
	c.actions = m.Actions()
	return &c
}

func (m *Memory) mutable() error {
	if m.status == StatusStored {
		return ErrMemoryStored
	}
	return nil
}

// WithEmbedding returns a copy of the memory carrying the embedding.
func (m *Memory) WithEmbedding(e *Embedding) (*Memory, error) {
	if err := m.mutable(); err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrInvalidEmbedding
	}
	c := m.clone()
	c.embedding = e
	return c, nil
}

// WithSource returns a copy of the memory carrying the provenance source.
func (m *Memory) WithSource(s *Source) (*Memory, error) {
	if err := m.mutable(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrInvalidSource
	}
	c := m.clone()
	c.source = s
	return c, nil
}

// WithTags returns a copy with the tags appended, deduplicated by slug.
func (m *Memory) WithTags(tags ...Tag) (*Memory, error) {
	if err := m.mutable(); err != nil {
		return nil, err
	}
	c := m.clone()
	seen := make(map[string]bool, len(c.tags))
	for _, t := range c.tags {
		seen[t.Slug] = true
	}
	for _, t := range tags {
		if t.Slug == "" {
			return nil, ErrEmptyTag
		}
		if seen[t.Slug] {
			continue
		}
		seen[t.Slug] = true
		c.tags = append(c.tags, t)
	}
	return c, nil
}

// WithEntities returns a copy with the entities appended, deduplicated by
// (text, type).
func (m *Memory) WithEntities(entities ...Entity) (*Memory, error) {
	if err := m.mutable(); err != nil {
		return nil, err
	}
	c := m.clone()
	seen := make(map[Entity]bool, len(c.entities))
	for _, e := range c.entities {
		seen[e] = true
	}
	for _, e := range entities {
		if e.Text == "" || e.Type == "" {
			return nil, ErrInvalidEntity
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		c.entities = append(c.entities, e)
	}
	return c, nil
}

// WithActions returns a copy with the actions appended, deduplicated by slug.
func (m *Memory) WithActions(actions ...Action) (*Memory, error) {
	if err := m.mutable(); err != nil {
		return nil, err
	}
	c := m.clone()
	seen := make(map[string]bool, len(c.actions))
	for _, a := range c.actions {
		seen[a.Slug] = true
	}
	for _, a := range actions {
		if a.Slug == "" {
			return nil, ErrEmptyAction
		}
		if seen[a.Slug] {
			continue
		}
		seen[a.Slug] = true
		c.actions = append(c.actions, a)
	}
	return c, nil
}

// MarkStored transitions the memory to its terminal STORED state.
// Marking an already stored memory is a no-op.
func (m *Memory) MarkStored() *Memory {
	if m.status == StatusStored {
		return m
	}
	c := m.clone()
	c.status = StatusStored
	return c
}
