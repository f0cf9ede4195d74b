package store

import (
	"encoding/json"
	"fmt"

	"github.com/kamilpajak/testintel/pkg/models"
)

// EncodeEntity serializes an entity for a document column. *models.Test is
// stored whole; other entities store their properties.
func EncodeEntity(entity models.Entity) ([]byte, error) {
	var payload any = entity
	if g, ok := entity.(*models.GenericEntity); ok {
		payload = g.Properties
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity %s: %w", entity.EntityID(), err)
	}
	return data, nil
}

// DecodeEntity is the inverse of EncodeEntity.
func DecodeEntity(id, entityType string, data []byte) (models.Entity, error) {
	if entityType == models.EntityTypeTest {
		var t models.Test
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to decode test %s: %w", id, err)
		}
		t.ID, t.Type = id, entityType
		return &t, nil
	}

	g := &models.GenericEntity{ID: id, Type: entityType}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &g.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode entity %s: %w", id, err)
		}
	}
	return g, nil
}

// EncodeMetadata serializes relationship metadata; nil becomes an empty object.
func EncodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode relationship metadata: %w", err)
	}
	return data, nil
}

// DecodeMetadata is the inverse of EncodeMetadata.
func DecodeMetadata(data []byte) (map[string]any, error) {
	metadata := make(map[string]any)
	if len(data) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode relationship metadata: %w", err)
	}
	return metadata, nil
}
