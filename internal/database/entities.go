package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kamilpajak/testintel/internal/store"
	"github.com/kamilpajak/testintel/pkg/models"
)

// GetEntity retrieves an entity by id. Unknown ids return store.ErrNotFound.
func (db *DB) GetEntity(ctx context.Context, id string) (models.Entity, error) {
	var entityType string
	var data []byte
	err := db.pool.QueryRow(ctx,
		`SELECT type, data FROM entities WHERE id = $1`,
		id,
	).Scan(&entityType, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %s: %w", id, err)
	}
	return store.DecodeEntity(id, entityType, data)
}

// CreateOrUpdateEntity upserts an entity document.
func (db *DB) CreateOrUpdateEntity(ctx context.Context, entity models.Entity) error {
	if entity == nil || entity.EntityID() == "" {
		return fmt.Errorf("entity id is required")
	}
	data, err := store.EncodeEntity(entity)
	if err != nil {
		return err
	}

	err = WithRetry(ctx, maxRetries, retryBaseDelay, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO entities (id, type, data)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE
			 SET type = EXCLUDED.type, data = EXCLUDED.data, updated_at = now()`,
			entity.EntityID(), entity.EntityType(), data,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", entity.EntityID(), err)
	}
	return nil
}

// CreateRelationship upserts a relationship on its id. The original creation
// order is kept on update.
func (db *DB) CreateRelationship(ctx context.Context, rel models.Relationship) error {
	if rel.ID == "" {
		return fmt.Errorf("relationship id is required")
	}
	metadata, err := store.EncodeMetadata(rel.Metadata)
	if err != nil {
		return err
	}
	createdAt := rel.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err = WithRetry(ctx, maxRetries, retryBaseDelay, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO relationships (id, from_entity_id, to_entity_id, type, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE
			 SET from_entity_id = EXCLUDED.from_entity_id,
			     to_entity_id = EXCLUDED.to_entity_id,
			     type = EXCLUDED.type,
			     metadata = EXCLUDED.metadata`,
			rel.ID, rel.FromEntityID, rel.ToEntityID, rel.Type, metadata, createdAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert relationship %s: %w", rel.ID, err)
	}
	return nil
}

// QueryRelationships returns the relationships matching query in creation order.
func (db *DB) QueryRelationships(ctx context.Context, query models.RelationshipQuery) ([]models.Relationship, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, from_entity_id, to_entity_id, type, metadata, created_at
		 FROM relationships
		 WHERE ($1 = '' OR to_entity_id = $1) AND ($2 = '' OR type = $2)
		 ORDER BY seq`,
		query.ToEntityID, query.Type,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	rels := make([]models.Relationship, 0)
	for rows.Next() {
		var rel models.Relationship
		var metadata []byte
		if err := rows.Scan(&rel.ID, &rel.FromEntityID, &rel.ToEntityID, &rel.Type, &metadata, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		if rel.Metadata, err = store.DecodeMetadata(metadata); err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}
