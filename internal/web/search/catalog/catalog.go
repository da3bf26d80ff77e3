// Package catalog loads capability definitions from a YAML file and ingests
// them into the vector index.
package catalog

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/Laisky/capability-search/internal/web/search/dao"
	"github.com/Laisky/capability-search/internal/web/search/dto"
	"github.com/Laisky/capability-search/internal/web/search/model"
	"github.com/Laisky/capability-search/library/embeddings"
	"github.com/Laisky/capability-search/library/log"
)

// SkillDef is one skill entry of the catalog file.
type SkillDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Active      *bool  `yaml:"active"`
}

// ItemDef is one item entry of the catalog file.
type ItemDef struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Type         string         `yaml:"type"`
	Active       *bool          `yaml:"active"`
	SkillIDs     []string       `yaml:"skill_ids"`
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema"`
	Annotations  map[string]any `yaml:"annotations"`
}

// Catalog is the full parsed catalog file.
type Catalog struct {
	Skills []SkillDef `yaml:"skills"`
	Items  []ItemDef  `yaml:"items"`
}

// Load parses and validates a catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog `%s`", path)
	}

	catalog := new(Catalog)
	if err := yaml.Unmarshal(raw, catalog); err != nil {
		return nil, errors.Wrap(err, "parse catalog yaml")
	}
	if err := catalog.validate(); err != nil {
		return nil, errors.WithStack(err)
	}
	return catalog, nil
}

func (c *Catalog) validate() error {
	skillIDs := make(map[string]struct{}, len(c.Skills))
	for i := range c.Skills {
		skill := &c.Skills[i]
		skill.ID = strings.TrimSpace(skill.ID)
		if skill.ID == "" {
			return errors.Errorf("skill #%d has no id", i)
		}
		if strings.TrimSpace(skill.Name) == "" {
			return errors.Errorf("skill `%s` has no name", skill.ID)
		}
		if _, ok := skillIDs[skill.ID]; ok {
			return errors.Errorf("duplicate skill id `%s`", skill.ID)
		}
		skillIDs[skill.ID] = struct{}{}
	}

	itemIDs := make(map[string]struct{}, len(c.Items))
	for i := range c.Items {
		item := &c.Items[i]
		item.ID = strings.TrimSpace(item.ID)
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if strings.TrimSpace(item.Name) == "" {
			return errors.Errorf("item `%s` has no name", item.ID)
		}
		if _, err := dto.SanitizeItemType(item.Type); err != nil || strings.TrimSpace(item.Type) == "" {
			return errors.Errorf("item `%s` has invalid type `%s`", item.ID, item.Type)
		}
		if _, ok := itemIDs[item.ID]; ok {
			return errors.Errorf("duplicate item id `%s`", item.ID)
		}
		itemIDs[item.ID] = struct{}{}
		for _, skillID := range item.SkillIDs {
			if _, ok := skillIDs[skillID]; !ok {
				return errors.Errorf("item `%s` references unknown skill `%s`", item.ID, skillID)
			}
		}
	}

	return nil
}

// Ingest embeds every skill and item of the catalog and upserts them into
// the index. Embedding batches run with bounded concurrency.
func Ingest(ctx context.Context, cat *Catalog, embedder embeddings.Embedder, index *dao.Index, logger logSDK.Logger) error {
	if cat == nil {
		return errors.New("catalog is nil")
	}
	if logger == nil {
		logger = log.Logger.Named("catalog_ingest")
	}

	texts := make([]string, 0, len(cat.Skills)+len(cat.Items))
	for _, skill := range cat.Skills {
		texts = append(texts, embeddingText(skill.Name, skill.Description))
	}
	for _, item := range cat.Items {
		texts = append(texts, embeddingText(item.Name, item.Description))
	}

	vectors, err := embedAll(ctx, embedder, texts)
	if err != nil {
		return errors.Wrap(err, "embed catalog")
	}

	toolCounts := make(map[string]int, len(cat.Skills))
	for _, item := range cat.Items {
		for _, skillID := range item.SkillIDs {
			toolCounts[skillID]++
		}
	}

	now := time.Now().UTC()
	skills := make([]model.Skill, 0, len(cat.Skills))
	for i, def := range cat.Skills {
		skills = append(skills, model.Skill{
			SkillID:     def.ID,
			Name:        def.Name,
			Description: def.Description,
			ToolCount:   toolCounts[def.ID],
			IsActive:    def.Active == nil || *def.Active,
			Embedding:   vectors[i],
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	items := make([]model.Item, 0, len(cat.Items))
	schemas := make(map[string]model.ItemSchema, len(cat.Items))
	for i, def := range cat.Items {
		skillIDs, err := json.Marshal(orEmpty(def.SkillIDs))
		if err != nil {
			return errors.Wrapf(err, "encode skill ids of `%s`", def.ID)
		}

		items = append(items, model.Item{
			ItemID:      def.ID,
			Name:        def.Name,
			Description: def.Description,
			Type:        strings.ToLower(strings.TrimSpace(def.Type)),
			IsActive:    def.Active == nil || *def.Active,
			SkillIDs:    datatypes.JSON(skillIDs),
			Embedding:   vectors[len(cat.Skills)+i],
			CreatedAt:   now,
			UpdatedAt:   now,
		})

		if def.InputSchema != nil || def.OutputSchema != nil || def.Annotations != nil {
			schema := model.ItemSchema{CreatedAt: now, UpdatedAt: now}
			if schema.InputSchema, err = marshalSchema(def.InputSchema); err != nil {
				return errors.Wrapf(err, "encode input schema of `%s`", def.ID)
			}
			if schema.OutputSchema, err = marshalSchema(def.OutputSchema); err != nil {
				return errors.Wrapf(err, "encode output schema of `%s`", def.ID)
			}
			if schema.Annotations, err = marshalSchema(def.Annotations); err != nil {
				return errors.Wrapf(err, "encode annotations of `%s`", def.ID)
			}
			schemas[def.ID] = schema
		}
	}

	if err := index.UpsertSkills(ctx, skills); err != nil {
		return errors.WithStack(err)
	}
	if err := index.UpsertItems(ctx, items, schemas); err != nil {
		return errors.WithStack(err)
	}

	logger.Info("catalog ingested",
		zap.Int("skills", len(skills)),
		zap.Int("items", len(items)),
	)
	return nil
}

const embedBatchSize = 32

// embedAll embeds the texts in concurrent batches while keeping result
// order aligned with the input.
func embedAll(ctx context.Context, embedder embeddings.Embedder, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([]pgvector.Vector, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			batch, err := embedder.EmbedTexts(gctx, texts[start:end])
			if err != nil {
				return errors.Wrapf(err, "embed batch [%d:%d]", start, end)
			}
			if len(batch) != end-start {
				return errors.Errorf("embedding count mismatch in batch [%d:%d]", start, end)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.WithStack(err)
	}
	return vectors, nil
}

func embeddingText(name, description string) string {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if description == "" {
		return name
	}
	return name + "\n" + description
}

func marshalSchema(schema map[string]any) (datatypes.JSON, error) {
	if schema == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return datatypes.JSON(encoded), nil
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
