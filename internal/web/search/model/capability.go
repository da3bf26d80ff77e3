// Package model holds the persisted records of the capability catalog.
package model

import (
	"time"

	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Item type discriminators stored in the unified item collection.
const (
	ItemTypeTool     = "tool"
	ItemTypePrompt   = "prompt"
	ItemTypeResource = "resource"
)

const (
	TableSkills      = "capability_skills"
	TableItems       = "capability_items"
	TableItemSchemas = "capability_item_schemas"
)

// Skill is a named semantic cluster that groups related items for
// coarse-grained retrieval.
type Skill struct {
	ID          int64
	SkillID     string `gorm:"uniqueIndex"`
	Name        string
	Description string
	ToolCount   int
	IsActive    bool
	Embedding   pgvector.Vector `gorm:"type:vector(1536)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name.
func (*Skill) TableName() string {
	return TableSkills
}

// Item is a single entry of the unified item collection: a tool, prompt or
// resource. SkillIDs holds the external IDs of the skills it belongs to as a
// JSONB array so the intersect filter can be pushed into the query.
type Item struct {
	ID          int64
	ItemID      string `gorm:"uniqueIndex"`
	Name        string
	Description string
	Type        string `gorm:"index"`
	IsActive    bool
	SkillIDs    datatypes.JSON
	Embedding   pgvector.Vector `gorm:"type:vector(1536)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name.
func (*Item) TableName() string {
	return TableItems
}

// ItemSchema stores the relational input/output/annotation schemas for an
// item, joined by the numeric item ID.
type ItemSchema struct {
	ItemID       int64 `gorm:"primaryKey"`
	InputSchema  datatypes.JSON
	OutputSchema datatypes.JSON
	Annotations  datatypes.JSON
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name.
func (*ItemSchema) TableName() string {
	return TableItemSchemas
}

// SkillHit is one ranked row returned by the skill collection search.
type SkillHit struct {
	SkillID     string
	Name        string
	Description string
	ToolCount   int
	Score       float64
}

// ItemHit is one ranked row returned by the item collection search.
type ItemHit struct {
	ID          int64
	ItemID      string
	Name        string
	Description string
	Type        string
	SkillIDs    []string
	Score       float64
}

// SchemaRow carries the schema payloads loaded for a single item.
type SchemaRow struct {
	ItemID       int64
	InputSchema  datatypes.JSON
	OutputSchema datatypes.JSON
	Annotations  datatypes.JSON
}
