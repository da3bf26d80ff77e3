// Package dao implements the vector index and schema store against
// PostgreSQL with the pgvector extension.
package dao

import (
	"context"
	"encoding/json"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Laisky/capability-search/internal/web/search/model"
	"github.com/Laisky/capability-search/library/db/postgres"
	"github.com/Laisky/capability-search/library/log"
)

// ItemFilter narrows the item collection search. Zero values mean "no
// filter" for the respective condition; IsActive is always enforced.
type ItemFilter struct {
	SkillIDs []string
	ItemType string
}

// Index queries the capability collections by vector similarity and loads
// item schemas. All access is read-only except the ingestion upserts.
type Index struct {
	db     *gorm.DB
	logger logSDK.Logger
}

// NewIndex wires the index against the given database handle and runs the
// required schema migrations.
func NewIndex(db *gorm.DB, logger logSDK.Logger) (*Index, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("search_dao")
	}

	if err := postgres.EnsureVectorExtension(context.Background(), db, logger); err != nil {
		return nil, errors.Wrap(err, "ensure pgvector extension")
	}
	if err := db.AutoMigrate(&model.Skill{}, &model.Item{}, &model.ItemSchema{}); err != nil {
		return nil, errors.Wrap(err, "auto migrate capability tables")
	}

	return &Index{db: db, logger: logger}, nil
}

type skillRow struct {
	SkillID     string  `gorm:"column:skill_id"`
	Name        string  `gorm:"column:name"`
	Description string  `gorm:"column:description"`
	ToolCount   int     `gorm:"column:tool_count"`
	Score       float64 `gorm:"column:score"`
}

// SearchSkills returns the top active skills ranked by cosine similarity to
// the query vector. Scores are normalized into [0, 1]; tie order is whatever
// the index returns.
func (d *Index) SearchSkills(ctx context.Context, vec pgvector.Vector, limit int) ([]model.SkillHit, error) {
	rows := make([]skillRow, 0, limit)
	err := d.db.WithContext(ctx).
		Raw(`
            SELECT skill_id, name, description, tool_count,
                   1 - (embedding <=> ?) AS score
            FROM capability_skills
            WHERE is_active = TRUE
            ORDER BY embedding <=> ? ASC
            LIMIT ?
        `, vec, vec, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query skill collection")
	}

	hits := make([]model.SkillHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, model.SkillHit{
			SkillID:     row.SkillID,
			Name:        row.Name,
			Description: row.Description,
			ToolCount:   row.ToolCount,
			Score:       d.normalizeScore(row.Score, row.SkillID),
		})
	}
	return hits, nil
}

type itemRow struct {
	ID          int64          `gorm:"column:id"`
	ItemID      string         `gorm:"column:item_id"`
	Name        string         `gorm:"column:name"`
	Description string         `gorm:"column:description"`
	Type        string         `gorm:"column:type"`
	SkillIDs    datatypes.JSON `gorm:"column:skill_ids"`
	Score       float64        `gorm:"column:score"`
}

func (r itemRow) skillIDs() []string {
	if len(r.SkillIDs) == 0 {
		return nil
	}
	var ids []string
	_ = json.Unmarshal(r.SkillIDs, &ids)
	return ids
}

// SearchItems returns the top active items ranked by cosine similarity. The
// skill-intersect and item-type conditions are pushed into the query so
// filtered-out items never consume result slots.
func (d *Index) SearchItems(ctx context.Context, vec pgvector.Vector, filter ItemFilter, limit int) ([]model.ItemHit, error) {
	query := `
        SELECT id, item_id, name, description, type, skill_ids,
               1 - (embedding <=> ?) AS score
        FROM capability_items
        WHERE is_active = TRUE`
	args := []any{vec}

	if len(filter.SkillIDs) > 0 {
		// jsonb ?| written as its function form to keep gorm's
		// placeholder rewriting out of the operator.
		query += `
          AND jsonb_exists_any(skill_ids, ?)`
		args = append(args, skillIDArray(filter.SkillIDs))
	}
	if filter.ItemType != "" {
		query += `
          AND type = ?`
		args = append(args, filter.ItemType)
	}

	query += `
        ORDER BY embedding <=> ? ASC
        LIMIT ?`
	args = append(args, vec, limit)

	rows := make([]itemRow, 0, limit)
	if err := d.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query item collection")
	}

	hits := make([]model.ItemHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, model.ItemHit{
			ID:          row.ID,
			ItemID:      row.ItemID,
			Name:        row.Name,
			Description: row.Description,
			Type:        row.Type,
			SkillIDs:    row.skillIDs(),
			Score:       d.normalizeScore(row.Score, row.ItemID),
		})
	}
	return hits, nil
}

// LoadSchemas batch-loads schema rows for the given item IDs. IDs without a
// stored schema are simply absent from the result.
func (d *Index) LoadSchemas(ctx context.Context, ids []int64) ([]model.SchemaRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows := make([]model.SchemaRow, 0, len(ids))
	err := d.db.WithContext(ctx).
		Raw(`
            SELECT item_id, input_schema, output_schema, annotations
            FROM capability_item_schemas
            WHERE item_id IN ?
        `, ids).
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query item schemas")
	}
	return rows, nil
}

// normalizeScore clamps a similarity score into [0, 1]. An out-of-range
// score usually means a distance-metric misconfiguration upstream, so it is
// logged loudly rather than silently corrected.
func (d *Index) normalizeScore(score float64, id string) float64 {
	switch {
	case score < 0:
		d.logger.Warn("similarity score out of range, check index distance metric",
			zap.Float64("score", score), zap.String("id", id))
		return 0
	case score > 1:
		d.logger.Warn("similarity score out of range, check index distance metric",
			zap.Float64("score", score), zap.String("id", id))
		return 1
	default:
		return score
	}
}

// skillIDArray renders skill IDs as a postgres text[] literal accepted by
// jsonb_exists_any.
func skillIDArray(ids []string) string {
	encoded, _ := json.Marshal(ids)
	// ["a","b"] -> {"a","b"}
	encoded[0] = '{'
	encoded[len(encoded)-1] = '}'
	return string(encoded)
}
