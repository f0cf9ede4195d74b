// Package graph stores test entities and their relationships in Neo4j.
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/kamilpajak/testintel/internal/store"
	"github.com/kamilpajak/testintel/pkg/models"
)

// DefaultDatabase is used when Config.Database is empty.
const DefaultDatabase = "neo4j"

// timeLayout is fixed-width so created_at strings order chronologically in
// Cypher. time.RFC3339Nano parses it back, along with older trimmed values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Config holds Neo4j connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// Neo4jStore implements store.GraphStore. Entities are (:Entity) nodes
// carrying the encoded document; relationships are typed edges between them.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

var _ store.GraphStore = (*Neo4jStore)(nil)

// NewNeo4jStore connects to Neo4j and ensures the id constraint exists.
func NewNeo4jStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Neo4jStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j uri is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	auth := neo4j.NoAuth()
	if cfg.User != "" || cfg.Password != "" {
		auth = neo4j.BasicAuth(cfg.User, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = DefaultDatabase
	}
	s := &Neo4jStore{driver: driver, database: database, logger: logger}

	if err := s.write(ctx, "CREATE CONSTRAINT testintel_entity_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE", nil); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to ensure neo4j schema: %w", err)
	}
	logger.Info("neo4j graph store ready", zap.String("uri", cfg.URI), zap.String("database", database))
	return s, nil
}

// Close closes the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: mode})
}

func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]any) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return records.([]*neo4j.Record), nil
}

// GetEntity implements store.GraphStore. Nodes created only as relationship
// endpoints have no type and count as missing.
func (s *Neo4jStore) GetEntity(ctx context.Context, id string) (models.Entity, error) {
	records, err := s.read(ctx,
		"MATCH (n:Entity {id: $id}) WHERE n.type IS NOT NULL RETURN n.type AS type, n.data AS data",
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %s: %w", id, err)
	}
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}
	return store.DecodeEntity(id, stringValue(records[0], "type"), []byte(stringValue(records[0], "data")))
}

// CreateOrUpdateEntity implements store.GraphStore.
func (s *Neo4jStore) CreateOrUpdateEntity(ctx context.Context, entity models.Entity) error {
	if entity == nil || entity.EntityID() == "" {
		return fmt.Errorf("entity id is required")
	}
	data, err := store.EncodeEntity(entity)
	if err != nil {
		return err
	}

	params := map[string]any{
		"id":   entity.EntityID(),
		"type": entity.EntityType(),
		"data": string(data),
		"now":  formatTime(time.Now()),
	}
	// Promote the fields worth querying in Cypher.
	if t, ok := entity.(*models.Test); ok {
		params["status"] = string(t.Status)
		params["flaky_score"] = t.FlakyScore
	}

	err = s.write(ctx, `
MERGE (n:Entity {id: $id})
ON CREATE SET n.created_at = $now
SET n.type = $type,
    n.data = $data,
    n.status = $status,
    n.flaky_score = $flaky_score,
    n.updated_at = $now`, withDefaults(params, "status", "flaky_score"))
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", entity.EntityID(), err)
	}
	return nil
}

// CreateRelationship implements store.GraphStore. Missing endpoints are
// created as untyped placeholder nodes.
func (s *Neo4jStore) CreateRelationship(ctx context.Context, rel models.Relationship) error {
	if rel.ID == "" {
		return fmt.Errorf("relationship id is required")
	}
	metadata, err := store.EncodeMetadata(rel.Metadata)
	if err != nil {
		return err
	}
	createdAt := rel.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := fmt.Sprintf(`
MERGE (from:Entity {id: $from})
MERGE (to:Entity {id: $to})
MERGE (from)-[r:%s {id: $id}]->(to)
ON CREATE SET r.created_at = $created_at
SET r.type = $type,
    r.metadata = $metadata`, sanitizeRelType(rel.Type))

	err = s.write(ctx, query, map[string]any{
		"id":         rel.ID,
		"from":       rel.FromEntityID,
		"to":         rel.ToEntityID,
		"type":       rel.Type,
		"metadata":   string(metadata),
		"created_at": formatTime(createdAt),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert relationship %s: %w", rel.ID, err)
	}
	return nil
}

// QueryRelationships implements store.GraphStore. Results are ordered by
// creation time, then id.
func (s *Neo4jStore) QueryRelationships(ctx context.Context, query models.RelationshipQuery) ([]models.Relationship, error) {
	records, err := s.read(ctx, `
MATCH (from:Entity)-[r]->(to:Entity)
WHERE r.id IS NOT NULL
  AND ($to = '' OR to.id = $to)
  AND ($type = '' OR r.type = $type)
RETURN r.id AS id, from.id AS from, to.id AS to, r.type AS type,
       r.metadata AS metadata, r.created_at AS created_at
ORDER BY r.created_at, r.id`, map[string]any{"to": query.ToEntityID, "type": query.Type})
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}

	rels := make([]models.Relationship, 0, len(records))
	for _, record := range records {
		rel := models.Relationship{
			ID:           stringValue(record, "id"),
			FromEntityID: stringValue(record, "from"),
			ToEntityID:   stringValue(record, "to"),
			Type:         stringValue(record, "type"),
		}
		if rel.Metadata, err = store.DecodeMetadata([]byte(stringValue(record, "metadata"))); err != nil {
			return nil, err
		}
		if ts := stringValue(record, "created_at"); ts != "" {
			if rel.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
				s.logger.Warn("invalid relationship timestamp", zap.String("relationship_id", rel.ID), zap.Error(err))
			}
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// withDefaults sets missing keys to nil so Cypher parameters always resolve.
func withDefaults(params map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			params[k] = nil
		}
	}
	return params
}

func stringValue(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// sanitizeRelType turns a relationship type into a valid Cypher label,
// falling back to RELATED_TO.
func sanitizeRelType(value string) string {
	clean := strings.TrimSpace(strings.ToUpper(value))
	if clean == "" {
		return "RELATED_TO"
	}
	for _, r := range clean {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return "RELATED_TO"
	}
	return clean
}
