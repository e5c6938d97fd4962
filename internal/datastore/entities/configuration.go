package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResourceConfiguration is a configuration snapshot. The newest row per resource is current.
type ResourceConfiguration struct {
	ID         uint      `gorm:"primaryKey"`
	ResourceID uint      `gorm:"not null;index"`
	Properties string    `gorm:"type:text;not null"` // JSON object of string properties
	CreatedAt  time.Time `gorm:"autoCreateTime;index"`
}

// TableName returns the table name for GORM.
func (ResourceConfiguration) TableName() string {
	return "resource_configurations"
}

// PropertyMap decodes Properties. An empty column decodes to an empty map.
func (c *ResourceConfiguration) PropertyMap() (map[string]string, error) {
	props := map[string]string{}
	if c.Properties == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(c.Properties), &props); err != nil {
		return nil, fmt.Errorf("failed to decode configuration %d: %w", c.ID, err)
	}
	return props, nil
}

// SetPropertyMap encodes props into Properties.
func (c *ResourceConfiguration) SetPropertyMap(props map[string]string) error {
	b, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	c.Properties = string(b)
	return nil
}
