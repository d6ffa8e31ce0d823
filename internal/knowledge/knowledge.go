// Package knowledge provides the learning store consumed by the cooldown
// session and the reflection analyzers. Learnings are soft-archived only:
// archival appends a reason and a citation-graph edge, never deletes.
package knowledge

import (
	"github.com/boshu2/cadence/internal/types"
)

// Filter narrows a learning query. Zero-value fields match everything.
type Filter struct {
	// Category matches the learning category exactly.
	Category string

	// Tier matches the learning tier exactly.
	Tier types.LearningTier

	// IncludeArchived includes soft-archived learnings.
	IncludeArchived bool
}

// Store is the capability interface the core consumes. Implementations
// are injected at construction, never instantiated by the core.
type Store interface {
	// Capture persists a new learning.
	Capture(l *types.Learning) error

	// Query returns learnings matching the filter.
	Query(f Filter) ([]types.Learning, error)

	// ArchiveLearning soft-archives a learning with a reason.
	ArchiveLearning(id, reason string) error

	// Get resolves a learning by id.
	Get(id string) (*types.Learning, error)
}

// Memory is an in-process Store for tests and dry runs.
type Memory struct {
	learnings map[string]*types.Learning
	order     []string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{learnings: make(map[string]*types.Learning)}
}

// Capture stores a copy of the learning.
func (m *Memory) Capture(l *types.Learning) error {
	if err := l.Validate(); err != nil {
		return err
	}
	cp := *l
	if _, exists := m.learnings[l.ID]; !exists {
		m.order = append(m.order, l.ID)
	}
	m.learnings[l.ID] = &cp
	return nil
}

// Query returns matching learnings in capture order.
func (m *Memory) Query(f Filter) ([]types.Learning, error) {
	var out []types.Learning
	for _, id := range m.order {
		l := m.learnings[id]
		if !f.IncludeArchived && l.Archived {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.Tier != "" && l.Tier != f.Tier {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

// ArchiveLearning soft-archives a stored learning.
func (m *Memory) ArchiveLearning(id, reason string) error {
	l, ok := m.learnings[id]
	if !ok {
		return &types.NotFoundError{Kind: "learning", ID: id}
	}
	l.Archived = true
	l.ArchiveReason = reason
	return nil
}

// Get resolves a learning by id.
func (m *Memory) Get(id string) (*types.Learning, error) {
	l, ok := m.learnings[id]
	if !ok {
		return nil, &types.NotFoundError{Kind: "learning", ID: id}
	}
	cp := *l
	return &cp, nil
}
