package service

import (
	"strings"
	"time"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/spf13/cast"

	"github.com/Laisky/capability-search/internal/web/search/dto"
)

// Settings captures runtime configuration for the hierarchical search
// pipeline. The tool threshold defaulting looser than the skill threshold is
// a tuning convention, not an enforced relationship.
type Settings struct {
	SkillThreshold float64
	ToolThreshold  float64
	SkillLimit     int
	Limit          int

	EmbedTimeout       time.Duration
	SkillSearchTimeout time.Duration
	ItemSearchTimeout  time.Duration
	SchemaLoadTimeout  time.Duration

	EmbeddingModel string
	OpenAIBaseURL  string
}

// LoadSettingsFromConfig reads the shared configuration and returns a
// sanitized Settings instance.
func LoadSettingsFromConfig() Settings {
	cfg := Settings{
		SkillThreshold:     cast.ToFloat64(gconfig.S.Get("settings.search.skill_threshold")),
		ToolThreshold:      cast.ToFloat64(gconfig.S.Get("settings.search.tool_threshold")),
		SkillLimit:         gconfig.S.GetInt("settings.search.skill_limit"),
		Limit:              gconfig.S.GetInt("settings.search.limit"),
		EmbedTimeout:       gconfig.S.GetDuration("settings.search.embed_timeout"),
		SkillSearchTimeout: gconfig.S.GetDuration("settings.search.skill_search_timeout"),
		ItemSearchTimeout:  gconfig.S.GetDuration("settings.search.item_search_timeout"),
		SchemaLoadTimeout:  gconfig.S.GetDuration("settings.search.schema_load_timeout"),
		EmbeddingModel:     strings.TrimSpace(gconfig.S.GetString("settings.openai.embedding_model")),
		OpenAIBaseURL:      strings.TrimSpace(gconfig.S.GetString("settings.openai.base_url")),
	}

	if cfg.SkillThreshold <= 0 || cfg.SkillThreshold > 1 {
		cfg.SkillThreshold = 0.4
	}
	if cfg.ToolThreshold <= 0 || cfg.ToolThreshold > 1 {
		cfg.ToolThreshold = 0.3
	}
	if cfg.SkillLimit <= 0 {
		cfg.SkillLimit = 5
	}
	if cfg.Limit <= 0 || cfg.Limit > dto.MaxLimit {
		cfg.Limit = 10
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 10 * time.Second
	}
	if cfg.SkillSearchTimeout <= 0 {
		cfg.SkillSearchTimeout = 2 * time.Second
	}
	if cfg.ItemSearchTimeout <= 0 {
		cfg.ItemSearchTimeout = 5 * time.Second
	}
	if cfg.SchemaLoadTimeout <= 0 {
		cfg.SchemaLoadTimeout = 3 * time.Second
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}

	return cfg
}

// Defaults returns the request-level default values derived from settings.
func (s Settings) Defaults() dto.SearchDefaults {
	return dto.SearchDefaults{
		SkillThreshold: s.SkillThreshold,
		ToolThreshold:  s.ToolThreshold,
		SkillLimit:     s.SkillLimit,
		Limit:          s.Limit,
	}
}
