// Package store defines the persistence contracts the recorder writes to and
// provides an in-process implementation of them.
package store

import (
	"context"
	"errors"

	"github.com/kamilpajak/testintel/pkg/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// GraphStore holds entities and the typed relationships between them.
type GraphStore interface {
	// GetEntity returns ErrNotFound when no entity has the id.
	GetEntity(ctx context.Context, id string) (models.Entity, error)
	CreateOrUpdateEntity(ctx context.Context, entity models.Entity) error
	// CreateRelationship upserts on the relationship id.
	CreateRelationship(ctx context.Context, rel models.Relationship) error
	QueryRelationships(ctx context.Context, query models.RelationshipQuery) ([]models.Relationship, error)
}

// SuiteStore receives whole suite results and flakiness reports.
type SuiteStore interface {
	StoreTestSuiteResult(ctx context.Context, suite *models.TestSuiteResult) error
	StoreFlakyTestAnalyses(ctx context.Context, analyses []models.FlakyTestAnalysis) error
}

// AnalysisHistory lists stored flakiness reports of one test, newest first.
// A non-positive limit selects the backend default.
type AnalysisHistory interface {
	ListFlakyTestAnalyses(ctx context.Context, testID string, limit int) ([]models.FlakyTestAnalysis, error)
}

// Store is a backend that serves both contracts.
type Store interface {
	GraphStore
	SuiteStore
	AnalysisHistory
}

// DefaultAnalysisLimit is the number of reports listed when no limit is given.
const DefaultAnalysisLimit = 50
