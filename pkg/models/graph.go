package models

import (
	"fmt"
	"time"
)

// RelationshipCoverageProvides links a test to the code symbol it covers.
const RelationshipCoverageProvides = "COVERAGE_PROVIDES"

// Entity is anything stored in the knowledge graph.
type Entity interface {
	EntityID() string
	EntityType() string
}

// GenericEntity is a graph entity of a type this module does not model.
type GenericEntity struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// EntityID implements Entity.
func (e *GenericEntity) EntityID() string { return e.ID }

// EntityType implements Entity.
func (e *GenericEntity) EntityType() string { return e.Type }

// Relationship is a directed, typed graph edge.
type Relationship struct {
	ID           string         `json:"id"`
	FromEntityID string         `json:"fromEntityId"`
	ToEntityID   string         `json:"toEntityId"`
	Type         string         `json:"type"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created"`
}

// RelationshipQuery filters relationships by target and type. Empty fields match anything.
type RelationshipQuery struct {
	ToEntityID string
	Type       string
}

// Matches reports whether rel satisfies the query.
func (q RelationshipQuery) Matches(rel Relationship) bool {
	if q.ToEntityID != "" && rel.ToEntityID != q.ToEntityID {
		return false
	}
	if q.Type != "" && rel.Type != q.Type {
		return false
	}
	return true
}

// CoverageRelationshipID returns the deterministic id of a coverage edge.
func CoverageRelationshipID(testID, symbolID string) string {
	return fmt.Sprintf("%s_covers_%s", testID, symbolID)
}
