package dao

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm/clause"

	"github.com/Laisky/capability-search/internal/web/search/model"
)

// UpsertSkills inserts or refreshes skill rows keyed by their external ID.
func (d *Index) UpsertSkills(ctx context.Context, skills []model.Skill) error {
	if len(skills) == 0 {
		return nil
	}

	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "skill_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "tool_count", "is_active", "embedding", "updated_at",
			}),
		}).
		Create(&skills).Error
	if err != nil {
		return errors.Wrap(err, "upsert skills")
	}

	d.logger.Info("skills upserted", zap.Int("count", len(skills)))
	return nil
}

// UpsertItems inserts or refreshes item rows keyed by their external ID and
// stores the provided schemas under the items' numeric IDs.
func (d *Index) UpsertItems(ctx context.Context, items []model.Item, schemas map[string]model.ItemSchema) error {
	if len(items) == 0 {
		return nil
	}

	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "type", "is_active", "skill_ids", "embedding", "updated_at",
			}),
		}).
		Create(&items).Error
	if err != nil {
		return errors.Wrap(err, "upsert items")
	}

	if len(schemas) > 0 {
		// resolve numeric IDs for items that were updated rather than created
		rows := make([]model.ItemSchema, 0, len(schemas))
		for _, item := range items {
			schema, ok := schemas[item.ItemID]
			if !ok {
				continue
			}
			dbID := item.ID
			if dbID == 0 {
				var existing model.Item
				if err := d.db.WithContext(ctx).
					Select("id").
					Where("item_id = ?", item.ItemID).
					First(&existing).Error; err != nil {
					return errors.Wrapf(err, "resolve item id for `%s`", item.ItemID)
				}
				dbID = existing.ID
			}
			schema.ItemID = dbID
			rows = append(rows, schema)
		}

		if len(rows) > 0 {
			err := d.db.WithContext(ctx).
				Clauses(clause.OnConflict{
					Columns: []clause.Column{{Name: "item_id"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"input_schema", "output_schema", "annotations", "updated_at",
					}),
				}).
				Create(&rows).Error
			if err != nil {
				return errors.Wrap(err, "upsert item schemas")
			}
		}
	}

	d.logger.Info("items upserted",
		zap.Int("items", len(items)),
		zap.Int("schemas", len(schemas)),
	)
	return nil
}
