package search

import (
	"github.com/google/uuid"

	"github.com/poiesic/engram/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterVectorSearch(ids []uuid.UUID)
	AfterTextSearch(ids []uuid.UUID)
	VectorAndTextHit(mem *core.Memory)
	VectorHit(mem *core.Memory)
	TextHit(mem *core.Memory)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                  {}
func (n *noopMonitor) AfterVectorSearch(_ []uuid.UUID) {}
func (n *noopMonitor) AfterTextSearch(_ []uuid.UUID)   {}
func (n *noopMonitor) VectorAndTextHit(_ *core.Memory) {}
func (n *noopMonitor) VectorHit(_ *core.Memory)        {}
func (n *noopMonitor) TextHit(_ *core.Memory)          {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)   {}
