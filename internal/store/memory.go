package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/kamilpajak/testintel/pkg/models"
)

type memoryEntity struct {
	entityType string
	data       []byte
}

// Memory is an in-process Store. Entities are kept serialized so callers
// never share mutable state with the store.
type Memory struct {
	mu            sync.RWMutex
	entities      map[string]memoryEntity
	relationships map[string]models.Relationship
	relOrder      []string
	suites        []*models.TestSuiteResult
	analyses      []models.FlakyTestAnalysis
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entities:      make(map[string]memoryEntity),
		relationships: make(map[string]models.Relationship),
	}
}

// GetEntity implements GraphStore.
func (m *Memory) GetEntity(_ context.Context, id string) (models.Entity, error) {
	m.mu.RLock()
	e, ok := m.entities[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return DecodeEntity(id, e.entityType, e.data)
}

// CreateOrUpdateEntity implements GraphStore.
func (m *Memory) CreateOrUpdateEntity(_ context.Context, entity models.Entity) error {
	if entity == nil || entity.EntityID() == "" {
		return fmt.Errorf("entity id is required")
	}
	data, err := EncodeEntity(entity)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[entity.EntityID()] = memoryEntity{entityType: entity.EntityType(), data: data}
	return nil
}

// CreateRelationship implements GraphStore.
func (m *Memory) CreateRelationship(_ context.Context, rel models.Relationship) error {
	if rel.ID == "" {
		return fmt.Errorf("relationship id is required")
	}
	rel.Metadata = maps.Clone(rel.Metadata)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.relationships[rel.ID]; !exists {
		m.relOrder = append(m.relOrder, rel.ID)
	}
	m.relationships[rel.ID] = rel
	return nil
}

// QueryRelationships implements GraphStore. Results keep creation order.
func (m *Memory) QueryRelationships(_ context.Context, query models.RelationshipQuery) ([]models.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Relationship, 0)
	for _, id := range m.relOrder {
		rel := m.relationships[id]
		if query.Matches(rel) {
			rel.Metadata = maps.Clone(rel.Metadata)
			out = append(out, rel)
		}
	}
	return out, nil
}

// StoreTestSuiteResult implements SuiteStore.
func (m *Memory) StoreTestSuiteResult(_ context.Context, suite *models.TestSuiteResult) error {
	if suite == nil {
		return fmt.Errorf("suite is required")
	}
	clone := *suite
	clone.Results = append([]models.TestResult(nil), suite.Results...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.suites = append(m.suites, &clone)
	return nil
}

// StoreFlakyTestAnalyses implements SuiteStore.
func (m *Memory) StoreFlakyTestAnalyses(_ context.Context, analyses []models.FlakyTestAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, analyses...)
	return nil
}

// ListFlakyTestAnalyses implements AnalysisHistory. Reports stored later
// count as newer when their analysis times are equal.
func (m *Memory) ListFlakyTestAnalyses(_ context.Context, testID string, limit int) ([]models.FlakyTestAnalysis, error) {
	if limit <= 0 {
		limit = DefaultAnalysisLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.FlakyTestAnalysis, 0)
	for i := len(m.analyses) - 1; i >= 0; i-- {
		if m.analyses[i].TestID == testID {
			out = append(out, m.analyses[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AnalyzedAt.After(out[j].AnalyzedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Suites returns the stored suite results in storage order.
func (m *Memory) Suites() []*models.TestSuiteResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*models.TestSuiteResult(nil), m.suites...)
}

// Analyses returns every stored flakiness report in storage order.
func (m *Memory) Analyses() []models.FlakyTestAnalysis {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.FlakyTestAnalysis(nil), m.analyses...)
}
